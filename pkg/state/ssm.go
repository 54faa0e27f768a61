package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
)

// DefaultParameterPrefix is the parameter path under which watermarks live.
const DefaultParameterPrefix = "/credly/watermark"

// SSMAPI is the subset of the Parameter Store client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// watermarkParameter is the JSON document stored in each parameter.
type watermarkParameter struct {
	Watermark string `json:"watermark"`
	UpdatedAt string `json:"updated_at"`
}

// SSMWatermarkStore keeps each watermark in its own String parameter named
// {prefix}/{key}.
type SSMWatermarkStore struct {
	client SSMAPI
	prefix string
	now    func() time.Time
	logger zerolog.Logger
}

// NewSSMWatermarkStore creates a Parameter Store backed watermark store.
func NewSSMWatermarkStore(client SSMAPI, prefix string, logger zerolog.Logger) *SSMWatermarkStore {
	if prefix == "" {
		prefix = DefaultParameterPrefix
	}
	return &SSMWatermarkStore{
		client: client,
		prefix: strings.TrimRight(prefix, "/"),
		now:    time.Now,
		logger: logger.With().Str("backend", "ssm").Logger(),
	}
}

// ParameterName returns the parameter holding key.
func (s *SSMWatermarkStore) ParameterName(key string) string {
	return s.prefix + "/" + strings.TrimLeft(key, "/")
}

// GetWatermark implements WatermarkStore. A missing parameter, or one
// without a watermark field, is ErrNotFound.
func (s *SSMWatermarkStore) GetWatermark(ctx context.Context, key string) (*Watermark, error) {
	name := s.ParameterName(key)

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			s.logger.Info().Str("parameter", name).Msg("Watermark parameter not found")
			return nil, ErrNotFound
		}
		storeErrors.WithLabelValues("ssm", "get").Inc()
		return nil, fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, ErrNotFound
	}

	var doc watermarkParameter
	if err := json.Unmarshal([]byte(*out.Parameter.Value), &doc); err != nil {
		storeErrors.WithLabelValues("ssm", "get").Inc()
		return nil, fmt.Errorf("decode parameter %s: %w", name, err)
	}
	if doc.Watermark == "" {
		return nil, ErrNotFound
	}

	ts, err := ParseWatermark(doc.Watermark)
	if err != nil {
		storeErrors.WithLabelValues("ssm", "get").Inc()
		return nil, fmt.Errorf("parse watermark in %s: %w", name, err)
	}

	w := &Watermark{Key: key, Watermark: ts}
	if doc.UpdatedAt != "" {
		if updated, err := time.Parse(time.RFC3339Nano, doc.UpdatedAt); err == nil {
			w.UpdatedAt = updated
		}
	}
	return w, nil
}

// PutWatermark implements WatermarkStore. The parameter is always
// overwritten.
func (s *SSMWatermarkStore) PutWatermark(ctx context.Context, key string, watermark time.Time) error {
	name := s.ParameterName(key)

	value, err := json.Marshal(watermarkParameter{
		Watermark: FormatWatermark(watermark),
		UpdatedAt: s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode watermark: %w", err)
	}

	if _, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:        aws.String(name),
		Value:       aws.String(string(value)),
		Type:        ssmtypes.ParameterTypeString,
		Overwrite:   aws.Bool(true),
		Description: aws.String("Last processed watermark for " + key),
	}); err != nil {
		storeErrors.WithLabelValues("ssm", "put").Inc()
		return fmt.Errorf("put parameter %s: %w", name, err)
	}

	s.logger.Info().
		Str("parameter", name).
		Str("watermark", FormatWatermark(watermark)).
		Msg("Updated watermark")
	return nil
}
