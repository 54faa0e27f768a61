package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/Sternrassler/credly-ingest/pkg/secrets"
	"github.com/rs/zerolog"
)

type staticCredentials struct {
	APIToken string `secret:"api_token"`
}

// StaticProvider authenticates with an organization API token sent as the
// Basic auth user name with an empty password. The secret is read on the
// first call only.
type StaticProvider struct {
	secrets    secrets.Store
	secretName string
	logger     zerolog.Logger

	mu     sync.Mutex
	token  *Token
	header string
}

// NewStaticProvider creates a static token provider.
func NewStaticProvider(store secrets.Store, secretName string, logger zerolog.Logger) *StaticProvider {
	return &StaticProvider{
		secrets:    store,
		secretName: secretName,
		logger:     logger,
	}
}

// AuthHeaders implements Provider.
func (p *StaticProvider) AuthHeaders(ctx context.Context) (http.Header, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		p.logger.Info().Str("secret", p.secretName).Msg("Loading static API token")

		values, err := p.secrets.GetSecret(ctx, p.secretName)
		if err != nil {
			return nil, fmt.Errorf("load static credentials: %w", err)
		}

		var creds staticCredentials
		if err := secrets.Decode(values, &creds); err != nil {
			return nil, fmt.Errorf("load static credentials: %w", err)
		}
		if creds.APIToken == "" {
			return nil, &ConfigurationError{Secret: p.secretName, Field: "api_token"}
		}

		tokenRefreshesTotal.WithLabelValues(string(KindStatic)).Inc()
		p.token = &Token{Value: creds.APIToken, Kind: KindStatic}
		p.header = basicAuth(creds.APIToken, "")
	}

	h := http.Header{}
	h.Set("Authorization", p.header)
	return h, nil
}

// Token returns the cached token, or nil before the first successful call.
func (p *StaticProvider) Token() *Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil {
		return nil
	}
	t := *p.token
	return &t
}
