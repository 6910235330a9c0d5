package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
)

type ContextKey string

const UserIDKey ContextKey = "userId"

var ErrNoUser = errors.New("internal/auth: no user in context")

func HashPassword(password string) (string, error) {
	hashedPw, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("internal/auth: pw hash failed: %w", err)
	}

	return hashedPw, nil
}

func CheckPasswordHash(password, hash string) (bool, error) {
	isMatch, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("internal/auth: pw and hash comparison failed: %w", err)
	}

	return isMatch, nil
}

// Tokens issues and validates HS256 session tokens.
type Tokens struct {
	Secret   string
	Issuer   string
	Lifetime time.Duration
}

func (t Tokens) Make(userID string) (string, error) {
	return MakeJWT(userID, t.Issuer, t.Secret, t.Lifetime)
}

func (t Tokens) Validate(token string) (string, error) {
	return ValidateJWT(token, t.Secret)
}

func MakeJWT(userID, issuer, tokenSecret string, expiresIn time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("internal/auth: empty user id")
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	})

	return token.SignedString([]byte(tokenSecret))
}

func ValidateJWT(tokenString, tokenSecret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", errors.New("internal/auth: token is invalid")
	}

	if claims.Subject == "" {
		return "", errors.New("internal/auth: subject claim is missing")
	}

	return claims.Subject, nil
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUser
	}

	return userID, nil
}
