// Package database constructs the AWS service clients the platform runs
// on: DynamoDB for the tables, S3 for avatar objects, SSM for the token
// secret.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	appconfig "github.com/questline/core/internal/config"
)

// Clients bundles the constructed AWS clients.
type Clients struct {
	Dynamo    *dynamodb.Client
	S3        *s3.Client
	S3Presign *s3.PresignClient
	SSM       *ssm.Client
}

// Connect builds the shared AWS configuration and service clients. An
// endpoint override in config points everything at local emulators.
func Connect(ctx context.Context, cfg *appconfig.AppConfig) (*Clients, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.AWS.Endpoint
	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	ssmClient := ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Clients{
		Dynamo:    dynamoClient,
		S3:        s3Client,
		S3Presign: s3.NewPresignClient(s3Client),
		SSM:       ssmClient,
	}, nil
}

// ResolveJWTSecret returns the HS256 secret: the SSM secure parameter when
// configured, otherwise the inline dev secret.
func (c *Clients) ResolveJWTSecret(ctx context.Context, cfg *appconfig.AppConfig) ([]byte, error) {
	if cfg.JWT.SecretParam != "" {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		out, err := c.SSM.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(cfg.JWT.SecretParam),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("fetch jwt secret parameter: %w", err)
		}
		if out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
			return nil, fmt.Errorf("jwt secret parameter %q is empty", cfg.JWT.SecretParam)
		}
		return []byte(*out.Parameter.Value), nil
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("no jwt secret configured")
	}
	return []byte(cfg.JWT.Secret), nil
}
