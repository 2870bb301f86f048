package models

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidGlobalID = errors.New("invalid global id")

// GlobalID returns the Relay node id for an object: base64 of "<Type>:<pk>".
func GlobalID(kind, pk string) string {
	return base64.StdEncoding.EncodeToString([]byte(kind + ":" + pk))
}

// ParseGlobalID splits a Relay node id into its type name and primary key.
// URL-safe encodings are accepted as well.
func ParseGlobalID(id string) (kind, pk string, err error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(id); err != nil {
			return "", "", ErrInvalidGlobalID
		}
	}
	kind, pk, ok := strings.Cut(string(raw), ":")
	if !ok || kind == "" || pk == "" {
		return "", "", ErrInvalidGlobalID
	}
	return kind, pk, nil
}
