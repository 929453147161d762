package auth

import (
	"errors"
	"fmt"
	"time"

	"consult_gateway_go_backend/internal/models"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims carried by credentials issued by the identity service.
type Claims struct {
	Role models.Role `json:"role"`
	Name string      `json:"name,omitempty"`
	jwt.StandardClaims
}

// TokenVerifier validates HS256 bearer credentials with a shared secret.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		// Expiry is checked before the signature, so only a token with a
		// valid signature may be reported as expired.
		if errors.As(err, &validationErr) &&
			validationErr.Errors&jwt.ValidationErrorExpired != 0 &&
			validationErr.Errors&jwt.ValidationErrorSignatureInvalid == 0 {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// Generate signs a credential for the given identity.
func (v *TokenVerifier) Generate(identity models.Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: identity.Role,
		Name: identity.Name,
		StandardClaims: jwt.StandardClaims{
			Subject:   identity.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(expiresIn).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
