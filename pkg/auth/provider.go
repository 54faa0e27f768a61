// Package auth produces authorization headers for Credly API requests.
//
// Two strategies exist. StaticProvider reads an organization API token once
// from the secret store and sends it as HTTP Basic credentials. BearerProvider
// runs the OAuth 2.0 client-credentials flow and refreshes its access token
// shortly before it expires. New selects one from the deployment environment.
package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/secrets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "credly_auth_token_refreshes_total",
	Help: "Credential loads and token exchanges by provider kind",
}, []string{"kind"})

// Kind identifies the strategy that produced a token.
type Kind string

const (
	// KindStatic is an organization API token valid for the process lifetime.
	KindStatic Kind = "static"

	// KindBearer is an OAuth 2.0 access token with an expiry.
	KindBearer Kind = "bearer"
)

// Token is the credential currently held by a provider.
type Token struct {
	Value string

	// ExpiresAt is zero for tokens that never expire.
	ExpiresAt time.Time

	Kind Kind
}

// Provider returns the headers that authorize a request. Implementations
// cache their credential and are safe for concurrent use.
type Provider interface {
	AuthHeaders(ctx context.Context) (http.Header, error)
}

// New returns the provider for the deployment environment: BearerProvider in
// production, StaticProvider everywhere else.
func New(env string, store secrets.Store, secretName string, exchanger TokenExchanger, logger zerolog.Logger) Provider {
	if IsProduction(env) {
		cfg := DefaultBearerConfig()
		cfg.SecretName = secretName
		return NewBearerProvider(exchanger, store, cfg, logger)
	}
	return NewStaticProvider(store, secretName, logger)
}

// IsProduction reports whether env names the production environment.
func IsProduction(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "PROD")
}

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}
