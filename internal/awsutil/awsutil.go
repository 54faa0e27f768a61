// Package awsutil builds AWS SDK clients that can point at LocalStack.
package awsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Options selects the region, endpoint and credentials of every client.
type Options struct {
	Region string

	// Endpoint overrides the service endpoint, e.g. a LocalStack URL.
	Endpoint string

	// AccessKeyID and SecretAccessKey are used as static credentials when
	// set. With an Endpoint and no keys, LocalStack's dummy keys are used.
	AccessKeyID     string
	SecretAccessKey string
}

// Clients holds one client per service used by the ingester.
type Clients struct {
	S3             *s3.Client
	SSM            *ssm.Client
	DynamoDB       *dynamodb.Client
	SecretsManager *secretsmanager.Client
}

// LoadConfig resolves the shared AWS configuration.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	loadOpts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(opts.Region),
	}

	accessKey, secretKey := opts.AccessKeyID, opts.SecretAccessKey
	if opts.Endpoint != "" && accessKey == "" && secretKey == "" {
		accessKey, secretKey = "test", "test"
	}
	if accessKey != "" || secretKey != "" {
		loadOpts = append(loadOpts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("creating aws config: %w", err)
	}
	return cfg, nil
}

// NewClients builds every service client from cfg.
func NewClients(cfg aws.Config, endpoint string) *Clients {
	c := &Clients{}

	if endpoint != "" {
		c.S3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
		c.SSM = ssm.NewFromConfig(cfg, func(o *ssm.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		c.DynamoDB = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		c.SecretsManager = secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		return c
	}

	c.S3 = s3.NewFromConfig(cfg)
	c.SSM = ssm.NewFromConfig(cfg)
	c.DynamoDB = dynamodb.NewFromConfig(cfg)
	c.SecretsManager = secretsmanager.NewFromConfig(cfg)
	return c
}
