// Package identity verifies the tokens minted by the external identity
// provider and turns their claims into a user profile.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ephemeral-chat/internal/config"
	"ephemeral-chat/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the profile fields supplied by the identity provider. The
// subject is the stable user id.
type Claims struct {
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed identity tokens.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// Verify parses tokenString and returns the user it identifies.
func (v *Verifier) Verify(tokenString string) (models.User, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.PreferredUsername == "" {
		return models.User{}, ErrInvalidToken
	}

	display := claims.Name
	if display == "" {
		display = claims.PreferredUsername
	}
	return models.User{
		ID:          claims.Subject,
		DisplayName: display,
		Username:    claims.PreferredUsername,
		Email:       claims.Email,
	}, nil
}

// Issue signs a token for user. The service never issues tokens itself; this
// is used by tests and local tooling standing in for the identity provider.
func (v *Verifier) Issue(user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name:              user.DisplayName,
		PreferredUsername: user.Username,
		Email:             user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
