package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// TokenVerifier validates an access token and returns the user it was issued to.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (uuid.UUID, error)
}

type viewerKey struct{}
type authErrorKey struct{}
type clientIPKey struct{}
type accessTokenKey struct{}

// WithViewer stores the authenticated user id in ctx.
func WithViewer(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, viewerKey{}, id)
}

// ViewerID returns the authenticated user id, if any.
func ViewerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(viewerKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// AuthError returns why a presented token was rejected. It is nil for
// anonymous requests that sent no token at all.
func AuthError(ctx context.Context) error {
	err, _ := ctx.Value(authErrorKey{}).(error)
	return err
}

// WithClientIP stores the remote address used for rate limiting.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the remote address stored by OptionalAuth.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// AccessToken returns the raw access token the viewer authenticated with.
func AccessToken(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// BearerToken extracts the token from "Bearer <token>" or "JWT <token>".
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", false
	}
	switch strings.ToLower(parts[0]) {
	case "bearer", "jwt":
		return parts[1], true
	}
	return "", false
}

// OptionalAuth resolves the viewer from the Authorization header without
// rejecting anonymous requests. A bad token leaves the request anonymous and
// records the failure so protected operations can report it.
func OptionalAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := WithClientIP(c.UserContext(), c.IP())

		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			token, ok := BearerToken(header)
			if !ok {
				ctx = context.WithValue(ctx, authErrorKey{}, errMalformedHeader)
			} else if userID, err := verifier.VerifyAccessToken(ctx, token); err != nil {
				ctx = context.WithValue(ctx, authErrorKey{}, err)
			} else {
				c.Locals("userID", userID.String())
				ctx = WithViewer(ctx, userID)
				ctx = context.WithValue(ctx, accessTokenKey{}, token)
			}
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// AuthRequired rejects requests without a valid access token. The token may
// also come from the "token" query parameter, which browsers need for WebSocket upgrades.
func AuthRequired(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			var ok bool
			token, ok = BearerToken(c.Get(fiber.HeaderAuthorization))
			if !ok {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Authorization header required",
				})
			}
		}

		userID, err := verifier.VerifyAccessToken(c.UserContext(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("userID", userID.String())
		c.SetUserContext(WithViewer(c.UserContext(), userID))
		return c.Next()
	}
}

type authHeaderError string

func (e authHeaderError) Error() string { return string(e) }

const errMalformedHeader = authHeaderError("invalid authorization header format")
