package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

// Claims carried by a subscriber token. Subject is the subscriber id of
// the network participant the token was issued to.
type Claims struct {
	jwt.RegisteredClaims
}

// Service issues and validates the HS256 bearer tokens presented by
// network subscribers calling the action endpoints. Revocation is
// cache-backed: a revoked jti is blacklisted until the token would have
// expired anyway.
type Service struct {
	secret   string
	duration time.Duration
	cache    ports.Cache
	log      *zap.Logger
}

func NewService(secret string, duration time.Duration, cache ports.Cache, log *zap.Logger) *Service {
	return &Service{
		secret:   secret,
		duration: duration,
		cache:    cache,
		log:      log,
	}
}

// Issue creates a signed token for the given subscriber id.
func (s *Service) Issue(subscriberID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriberID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	s.log.Debug("subscriber token issued",
		zap.String("subscriber_id", subscriberID),
		zap.String("jti", claims.ID),
	)
	return signed, nil
}

// Validate parses the token, rejects revoked ones and returns the
// subscriber id it was issued to.
func (s *Service) Validate(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	if s.revoked(ctx, claims.ID) {
		s.log.Warn("revoked token presented", zap.String("jti", claims.ID))
		return "", fmt.Errorf("token revoked")
	}

	return claims.Subject, nil
}

// Revoke blacklists the token's jti for the remainder of its lifetime.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.secret), nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return fmt.Errorf("invalid token claims")
	}

	ttl := s.duration
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}

	if err := s.cache.Set(ctx, revocationKey(claims.ID), "revoked", ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	s.log.Info("subscriber token revoked",
		zap.String("subscriber_id", claims.Subject),
		zap.String("jti", claims.ID),
	)
	return nil
}

func (s *Service) revoked(ctx context.Context, jti string) bool {
	val, err := s.cache.Get(ctx, revocationKey(jti))
	if err != nil {
		// Miss or cache outage counts as not revoked.
		return false
	}
	return val == "revoked"
}

func revocationKey(jti string) string {
	return fmt.Sprintf("revoked_token:%s", jti)
}
