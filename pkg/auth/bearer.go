package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/client"
	"github.com/Sternrassler/credly-ingest/pkg/secrets"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
	"golang.org/x/oauth2"
)

// DefaultTokenURL is used when the secret carries no token_url.
const DefaultTokenURL = "https://api.credly.com/v1/oauth/token"

// TokenExchanger posts the client-credentials grant. *client.Client
// satisfies it, so the exchange inherits the client's retry policy.
type TokenExchanger interface {
	PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (*client.Response, error)
}

// BearerConfig holds the OAuth 2.0 provider configuration.
type BearerConfig struct {
	// SecretName is the secret holding client_id, client_secret and
	// optionally token_url.
	SecretName string

	// RefreshBuffer is how long before expiry the token is refreshed.
	RefreshBuffer time.Duration

	// DefaultLifetime applies when neither the response nor the token itself
	// states an expiry.
	DefaultLifetime time.Duration
}

// DefaultBearerConfig returns the default configuration.
func DefaultBearerConfig() BearerConfig {
	return BearerConfig{
		SecretName:      "my-app/credentials",
		RefreshBuffer:   60 * time.Second,
		DefaultLifetime: 86400 * time.Second,
	}
}

type clientCredentials struct {
	ClientID     string `secret:"client_id"`
	ClientSecret string `secret:"client_secret"`
	TokenURL     string `secret:"token_url"`
}

// tokenResponse accepts the Credly envelope {"data": {"token": ...}} as well
// as a plain RFC 6749 body.
type tokenResponse struct {
	Data *struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	} `json:"data"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// BearerProvider implements the OAuth 2.0 client-credentials flow. The
// access token is refreshed in place once it is within RefreshBuffer of
// expiring.
type BearerProvider struct {
	exchanger TokenExchanger
	secrets   secrets.Store
	config    BearerConfig
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// NewBearerProvider creates an OAuth 2.0 provider.
func NewBearerProvider(exchanger TokenExchanger, store secrets.Store, cfg BearerConfig, logger zerolog.Logger) *BearerProvider {
	defaults := DefaultBearerConfig()
	if cfg.SecretName == "" {
		cfg.SecretName = defaults.SecretName
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = defaults.RefreshBuffer
	}
	if cfg.DefaultLifetime <= 0 {
		cfg.DefaultLifetime = defaults.DefaultLifetime
	}
	return &BearerProvider{
		exchanger: exchanger,
		secrets:   store,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthHeaders implements Provider.
func (p *BearerProvider) AuthHeaders(ctx context.Context) (http.Header, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.fresh() {
		p.logger.Info().Msg("OAuth token expired or missing, refreshing")
		if err := p.refresh(ctx); err != nil {
			return nil, err
		}
	}

	h := http.Header{}
	h.Set("Authorization", p.token.Type()+" "+p.token.AccessToken)
	return h, nil
}

// Token returns the cached token, or nil before the first successful call.
func (p *BearerProvider) Token() *Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil {
		return nil
	}
	return &Token{Value: p.token.AccessToken, ExpiresAt: p.token.Expiry, Kind: KindBearer}
}

func (p *BearerProvider) fresh() bool {
	if p.token == nil || p.token.AccessToken == "" {
		return false
	}
	return p.now().Before(p.token.Expiry.Add(-p.config.RefreshBuffer))
}

func (p *BearerProvider) refresh(ctx context.Context) error {
	values, err := p.secrets.GetSecret(ctx, p.config.SecretName)
	if err != nil {
		return &AuthenticationError{Reason: "load client credentials", Err: err}
	}

	var creds clientCredentials
	if err := secrets.Decode(values, &creds); err != nil {
		return &AuthenticationError{Reason: "load client credentials", Err: err}
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return &AuthenticationError{Reason: fmt.Sprintf("client_id or client_secret missing in secret %q", p.config.SecretName)}
	}
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}

	header := http.Header{}
	header.Set("Authorization", basicAuth(creds.ClientID, creds.ClientSecret))
	form := url.Values{"grant_type": {"client_credentials"}}

	resp, err := p.exchanger.PostForm(ctx, creds.TokenURL, form, header)
	if err != nil {
		return &AuthenticationError{Reason: "token exchange failed", Err: err}
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return &AuthenticationError{Reason: "decode token response", Err: err}
	}

	accessToken, expiresIn := body.AccessToken, body.ExpiresIn
	if body.Data != nil {
		accessToken = firstNonEmpty(body.Data.Token, body.Data.AccessToken, accessToken)
		if body.Data.ExpiresIn > 0 {
			expiresIn = body.Data.ExpiresIn
		}
	}
	if accessToken == "" {
		return &AuthenticationError{Reason: "token response carries no token", Err: errors.New("empty token")}
	}

	now := p.now()
	expiry := p.expiry(accessToken, expiresIn, now)

	p.token = &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}
	tokenRefreshesTotal.WithLabelValues(string(KindBearer)).Inc()

	p.logger.Info().
		Time("expires_at", expiry).
		Dur("lifetime", expiry.Sub(now)).
		Msg("Refreshed OAuth token")

	return nil
}

// expiry resolves the token lifetime from expires_in, then from the JWT exp
// claim, then from the configured default.
func (p *BearerProvider) expiry(accessToken string, expiresIn int64, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.After(now) {
			return exp.Time
		}
	}

	return now.Add(p.config.DefaultLifetime)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
