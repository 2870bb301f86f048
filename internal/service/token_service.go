package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"zola/internal/cache"
	"zola/internal/config"
	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/observability"
	"zola/internal/repository"
)

// Claims is the access-token body.
type Claims struct {
	Email   string `json:"email"`
	OrigIat int64  `json:"origIat"`
	jwt.RegisteredClaims
}

// Payload is the decoded access token handed back to API clients.
type Payload struct {
	UserID  uuid.UUID
	Email   string
	Exp     int64
	OrigIat int64
	JTI     string
}

// TokenPair is what a login or refresh returns.
type TokenPair struct {
	Token            string
	RefreshToken     string
	Payload          Payload
	RefreshExpiresIn int64
}

// TokenService issues and verifies access tokens and rotates refresh tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      cache.TokenStore
	users      repository.UserRepository
	now        func() time.Time
}

func NewTokenService(cfg *config.Config, store cache.TokenStore, users repository.UserRepository) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTTL(),
		refreshTTL: cfg.RefreshTTL(),
		store:      store,
		users:      users,
		now:        time.Now,
	}
}

func (s *TokenService) signAccess(user *models.User, origIat time.Time) (string, Payload, error) {
	now := s.now()
	if origIat.IsZero() {
		origIat = now
	}
	claims := Claims{
		Email:   user.Email,
		OrigIat: origIat.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Payload{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, Payload{
		UserID:  user.ID,
		Email:   user.Email,
		Exp:     claims.ExpiresAt.Unix(),
		OrigIat: claims.OrigIat,
		JTI:     claims.ID,
	}, nil
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "") + hex.EncodeToString(b), nil
}

// IssuePair signs an access token and stores a fresh refresh token for user.
func (s *TokenService) IssuePair(ctx context.Context, user *models.User) (*TokenPair, error) {
	return s.issuePair(ctx, user, time.Time{})
}

func (s *TokenService) issuePair(ctx context.Context, user *models.User, origIat time.Time) (*TokenPair, error) {
	token, payload, err := s.signAccess(user, origIat)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.store.SaveRefresh(ctx, refresh, user.ID, s.refreshTTL); err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.AuthEvents.WithLabelValues("issued").Inc()
	return &TokenPair{
		Token:            token,
		RefreshToken:     refresh,
		Payload:          payload,
		RefreshExpiresIn: s.now().Add(s.refreshTTL).Unix(),
	}, nil
}

func (s *TokenService) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, models.ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrExpiredToken
		}
		return nil, models.ErrInvalidToken
	}
	return claims, nil
}

// Verify decodes an access token and checks it has not been revoked.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (*Payload, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		observability.AuthEvents.WithLabelValues("rejected").Inc()
		return nil, models.NewUnauthorizedError(err.Error())
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, models.NewUnauthorizedError(models.ErrInvalidToken.Error())
	}
	if claims.ID != "" {
		revoked, err := s.store.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "token blacklist check failed",
				slog.String("jti", claims.ID),
				slog.String("error", err.Error()),
			)
		}
		if err == nil && revoked {
			observability.AuthEvents.WithLabelValues("rejected").Inc()
			return nil, models.NewUnauthorizedError(models.ErrTokenRevoked.Error())
		}
	}
	return &Payload{
		UserID:  userID,
		Email:   claims.Email,
		Exp:     claims.ExpiresAt.Unix(),
		OrigIat: claims.OrigIat,
		JTI:     claims.ID,
	}, nil
}

// VerifyAccessToken satisfies middleware.TokenVerifier.
func (s *TokenService) VerifyAccessToken(ctx context.Context, tokenString string) (uuid.UUID, error) {
	payload, err := s.Verify(ctx, tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	return payload.UserID, nil
}

// Refresh consumes a refresh token and returns a new pair. The consumed token
// cannot be used again.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.store.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		observability.AuthEvents.WithLabelValues("refresh_rejected").Inc()
		if errors.Is(err, models.ErrTokenRevoked) || errors.Is(err, models.ErrExpiredToken) || errors.Is(err, models.ErrInvalidToken) {
			return nil, models.NewUnauthorizedError(err.Error())
		}
		return nil, models.NewInternalError(err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError(models.ErrInvalidToken.Error())
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, models.NewUnauthorizedError("user is disabled")
	}

	pair, err := s.issuePair(ctx, user, time.Time{})
	if err != nil {
		return nil, err
	}
	observability.AuthEvents.WithLabelValues("refreshed").Inc()
	return pair, nil
}

// Revoke deletes a refresh token. It reports false when the token was
// already used, revoked or never issued.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) (bool, error) {
	revoked, err := s.store.RevokeRefresh(ctx, refreshToken)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	if revoked {
		observability.AuthEvents.WithLabelValues("revoked").Inc()
	}
	return revoked, nil
}

// RevokeAccess blacklists an access token until it would have expired anyway.
func (s *TokenService) RevokeAccess(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if err := s.store.Blacklist(ctx, claims.ID, ttl); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// RefreshTTL is how long a refresh token stays usable.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}
