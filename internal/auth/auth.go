package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const identityKey = "identity"

// IdentityResolver looks up the identity named by a verified credential.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, id string, role models.Role) (*models.Identity, error)
}

// Authenticator turns a bearer credential into an admitted identity.
type Authenticator struct {
	verifier *TokenVerifier
	resolver IdentityResolver
}

func NewAuthenticator(verifier *TokenVerifier, resolver IdentityResolver) *Authenticator {
	return &Authenticator{verifier: verifier, resolver: resolver}
}

// Authenticate fails with an AUTHENTICATION_ERROR whose code names the failure class.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, apperrors.NewAuthenticationError(apperrors.CodeMissingToken, "Authentication token is required")
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return models.Identity{}, apperrors.NewAuthenticationError(apperrors.CodeTokenExpired, "Authentication token has expired")
		}
		return models.Identity{}, apperrors.NewAuthenticationError(apperrors.CodeInvalidToken, "Invalid authentication token")
	}

	identity, err := a.resolver.ResolveIdentity(ctx, claims.Subject, claims.Role)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return models.Identity{}, apperrors.NewAuthenticationError(apperrors.CodeIdentityNotFound, "Identity not found")
		}
		return models.Identity{}, err
	}
	return *identity, nil
}

func SetupRoutes(r *gin.Engine, authenticator *Authenticator) {
	auth := r.Group("/auth")
	{
		auth.GET("/me", AuthMiddleware(authenticator), getIdentity)
	}
}

func AuthMiddleware(authenticator *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := zerolog.Ctx(c.Request.Context())

		token, err := ExtractToken(c.Request)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		identity, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.Debug().Err(err).Msg("Authentication rejected")
			apperrors.HandleError(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// ExtractToken reads the bearer credential from the Authorization header, or
// from the token query parameter on WebSocket upgrades.
func ExtractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if websocket.IsWebSocketUpgrade(r) {
			return r.URL.Query().Get("token"), nil
		}
		return "", nil
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
		return "", apperrors.NewAuthenticationError(apperrors.CodeInvalidToken, "Invalid authorization header")
	}
	return bearerToken[1], nil
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return models.Identity{}, false
	}
	identity, ok := value.(models.Identity)
	return identity, ok
}

func getIdentity(c *gin.Context) {
	identity, exists := IdentityFrom(c)
	if !exists {
		apperrors.HandleError(c, apperrors.NewAuthenticationError(apperrors.CodeIdentityNotFound, "Identity not found in context"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "identity": identity})
}
