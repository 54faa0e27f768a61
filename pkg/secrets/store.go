// Package secrets reads credential blobs from a secret store.
package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
)

// ErrSecretNotFound is returned when the named secret does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// Store returns a secret as a flat key-value map.
type Store interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore reads JSON secrets from AWS Secrets Manager and caches them for
// the lifetime of the store.
type AWSStore struct {
	api    SecretsManagerAPI
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]map[string]string
}

// NewAWSStore creates a Secrets Manager backed store.
func NewAWSStore(api SecretsManagerAPI, logger zerolog.Logger) *AWSStore {
	return &AWSStore{
		api:    api,
		logger: logger,
		cache:  make(map[string]map[string]string),
	}
}

// GetSecret fetches and decodes the secret, serving repeated reads from cache.
func (s *AWSStore) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[name]; ok {
		return cached, nil
	}

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return nil, fmt.Errorf("get secret %s: %w", name, err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		raw = out.SecretBinary
	default:
		return nil, fmt.Errorf("secret %s has no value", name)
	}

	values, err := parseSecret(raw)
	if err != nil {
		return nil, fmt.Errorf("decode secret %s: %w", name, err)
	}

	s.cache[name] = values
	s.logger.Debug().Str("secret", name).Int("keys", len(values)).Msg("Loaded secret")

	return values, nil
}

// parseSecret decodes a JSON object into a string map. Non-string scalar
// values keep their JSON text, so numeric ids survive as "12345".
func parseSecret(raw []byte) (map[string]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(fields))
	for k, v := range fields {
		v = bytes.TrimSpace(v)
		switch {
		case bytes.Equal(v, []byte("null")):
			continue
		case len(v) > 0 && v[0] == '"':
			var str string
			if err := json.Unmarshal(v, &str); err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			values[k] = str
		default:
			values[k] = string(v)
		}
	}
	return values, nil
}

// StaticStore serves secrets from memory.
type StaticStore struct {
	mu      sync.Mutex
	secrets map[string]map[string]string
	reads   map[string]int
}

// NewStaticStore creates a store over the given secrets.
func NewStaticStore(secrets map[string]map[string]string) *StaticStore {
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	return &StaticStore{secrets: secrets, reads: make(map[string]int)}
}

// GetSecret implements Store.
func (s *StaticStore) GetSecret(_ context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads[name]++
	values, ok := s.secrets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out, nil
}

// Reads returns how many times the named secret was requested.
func (s *StaticStore) Reads(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[name]
}

// Decode maps a secret onto a struct using `secret` field tags.
func Decode(values map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "secret",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(values); err != nil {
		return fmt.Errorf("decode secret: %w", err)
	}
	return nil
}
