package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// DefaultMetadataTable is the DynamoDB table holding snapshot fingerprints.
const DefaultMetadataTable = "credly-ingestion-metadata"

// DynamoDBAPI is the subset of the DynamoDB client used here.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// metadataItem is one row of the metadata table, keyed by table_name.
type metadataItem struct {
	TableName     string `dynamodbav:"table_name"`
	PayloadHash   string `dynamodbav:"payload_hash"`
	RecordCount   int    `dynamodbav:"record_count"`
	LastUpdatedAt string `dynamodbav:"last_updated_at"`
}

// DynamoFingerprintStore keeps one fingerprint item per dataset.
type DynamoFingerprintStore struct {
	client DynamoDBAPI
	table  string
	logger zerolog.Logger
}

// NewDynamoFingerprintStore creates a DynamoDB backed fingerprint store.
func NewDynamoFingerprintStore(client DynamoDBAPI, table string, logger zerolog.Logger) *DynamoFingerprintStore {
	if table == "" {
		table = DefaultMetadataTable
	}
	return &DynamoFingerprintStore{
		client: client,
		table:  table,
		logger: logger.With().Str("backend", "dynamodb").Str("table", table).Logger(),
	}
}

// GetFingerprint implements FingerprintStore.
func (s *DynamoFingerprintStore) GetFingerprint(ctx context.Context, dataset string) (*Fingerprint, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"table_name": dataset})
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		storeErrors.WithLabelValues("dynamodb", "get").Inc()
		s.logger.Error().Err(err).Str("error_code", errorCode(err)).Str("dataset", dataset).Msg("Failed to get metadata")
		return nil, fmt.Errorf("get metadata for %s: %w", dataset, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var item metadataItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		storeErrors.WithLabelValues("dynamodb", "get").Inc()
		return nil, fmt.Errorf("decode metadata for %s: %w", dataset, err)
	}
	if item.PayloadHash == "" {
		return nil, ErrNotFound
	}

	fp := &Fingerprint{
		Dataset:     dataset,
		PayloadHash: item.PayloadHash,
		RecordCount: item.RecordCount,
	}
	if item.LastUpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, item.LastUpdatedAt); err == nil {
			fp.LastUpdatedAt = t
		}
	}
	return fp, nil
}

// PutFingerprint implements FingerprintStore. The item is replaced as a
// whole.
func (s *DynamoFingerprintStore) PutFingerprint(ctx context.Context, fp Fingerprint) error {
	item, err := attributevalue.MarshalMap(metadataItem{
		TableName:     fp.Dataset,
		PayloadHash:   fp.PayloadHash,
		RecordCount:   fp.RecordCount,
		LastUpdatedAt: fp.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		storeErrors.WithLabelValues("dynamodb", "put").Inc()
		s.logger.Error().Err(err).Str("error_code", errorCode(err)).Str("dataset", fp.Dataset).Msg("Failed to update metadata")
		return fmt.Errorf("put metadata for %s: %w", fp.Dataset, err)
	}

	s.logger.Info().
		Str("dataset", fp.Dataset).
		Int("records", fp.RecordCount).
		Msg("Updated metadata")
	return nil
}

// errorCode returns the service error code of an AWS API error, or "".
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
