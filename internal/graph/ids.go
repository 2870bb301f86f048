package graph

import (
	"strconv"

	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"

	"zola/internal/models"
)

func nodeID(kind, pk string) graphql.ID {
	return graphql.ID(models.GlobalID(kind, pk))
}

func uintPK(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// pkOf accepts either a global id of the given kind or a raw primary key.
func pkOf(kind string, id graphql.ID) string {
	if k, pk, err := models.ParseGlobalID(string(id)); err == nil && k == kind {
		return pk
	}
	return string(id)
}

func invalidID(field, kind string, id graphql.ID) error {
	return models.NewFieldError(field, "Invalid "+kind+" id \""+string(id)+"\".")
}

func parseUintID(field, kind string, id graphql.ID) (uint, error) {
	n, err := strconv.ParseUint(pkOf(kind, id), 10, 64)
	if err != nil || n == 0 {
		return 0, invalidID(field, kind, id)
	}
	return uint(n), nil
}

func parseUserID(field string, id graphql.ID) (uuid.UUID, error) {
	u, err := uuid.Parse(pkOf("User", id))
	if err != nil {
		return uuid.Nil, invalidID(field, "User", id)
	}
	return u, nil
}
