// Package auth resolves request credentials to the tenant that owns them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseops-lab/pulseops/internal/cache"
	"github.com/pulseops-lab/pulseops/internal/core/config"
	httperr "github.com/pulseops-lab/pulseops/internal/core/errors"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
)

const principalContextKey = "pulseops.principal"

// Principal is the tenant a credential belongs to.
type Principal struct {
	KeyID     string `json:"key_id,omitempty" yaml:"key_id"`
	OrgID     string `json:"org_id" yaml:"org_id"`
	ProjectID string `json:"project_id,omitempty" yaml:"project_id"`
}

// Authenticator resolves a presented credential.
//
// Authenticate returns an error wrapping ErrMissingCredential for an empty
// credential, ErrInvalidCredential for an unknown or inactive one, and
// ErrTransient when the lookup itself failed.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (Principal, error)

	// Invalidate drops any cached resolution of credential.
	Invalidate(ctx context.Context, credential string) error
}

// New builds the authenticator selected by cfg.Mode.
func New(cfg config.AuthConfig, keys storage.APIKeyStore, c cache.Cache, ttl time.Duration) (Authenticator, error) {
	switch cfg.Mode {
	case "apikey":
		if keys == nil {
			return nil, fmt.Errorf("apikey auth requires an api key store")
		}
		return NewAPIKeyAuthenticator(keys, c, ttl), nil
	case "static":
		return LoadStaticAuthenticator(cfg.KeysFile)
	case "disabled":
		return NewDisabledAuthenticator(Principal{OrgID: cfg.DevOrgID, ProjectID: cfg.DevProjectID}), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// Middleware authenticates the credential in header and stores the
// principal on the gin context.
func Middleware(a Authenticator, header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := a.Authenticate(c.Request.Context(), c.GetHeader(header))
		switch {
		case err == nil:
			c.Set(principalContextKey, p)
			c.Next()

		case errors.Is(err, httperr.ErrMissingCredential):
			c.AbortWithStatusJSON(http.StatusUnauthorized, httperr.ErrorResponse{
				ErrorType: httperr.HttpMissingCredential,
				Message:   fmt.Sprintf("Missing %s header", header),
			})

		case errors.Is(err, httperr.ErrInvalidCredential):
			slog.Warn("[Auth] Rejected credential", "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidCredential,
				Message:   "Invalid or inactive API key",
			})

		default:
			slog.Error("[Auth] Credential lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, httperr.ErrorResponse{
				ErrorType: httperr.HttpInternalError,
				Message:   "Authentication failed",
			})
		}
	}
}

// PrincipalFrom returns the principal stored by Middleware.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
