package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/13rac1/bucketsync/internal/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// NewS3Client creates an S3 client from the provided configuration.
// Authentication priority: static credentials > AWS profile > default credential chain.
func NewS3Client(ctx context.Context, cfg *types.Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	opts = append(opts,
		config.WithRegion(cfg.S3.Region),
		config.WithRetryMaxAttempts(3),
		config.WithRetryMode(aws.RetryModeStandard),
	)

	// Use static credentials if provided (highest priority)
	if cfg.Auth.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Auth.AccessKeyID,
				cfg.Auth.SecretAccessKey,
				cfg.Auth.SessionToken,
			),
		))
	} else if cfg.Auth.Profile != "" {
		// Use profile if no static credentials
		opts = append(opts, config.WithSharedConfigProfile(cfg.Auth.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	endpoint := EndpointURL(cfg.S3)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = cfg.S3.PathStyle()
		}
	})

	return client, nil
}

// NewMinioClient creates a minio-go client from the provided configuration.
func NewMinioClient(cfg *types.Config) (*minio.Client, error) {
	lookup := minio.BucketLookupDNS
	if cfg.S3.PathStyle() {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(EndpointHost(cfg.S3), &minio.Options{
		Creds:        miniocreds.NewStaticV4(cfg.Auth.AccessKeyID, cfg.Auth.SecretAccessKey, cfg.Auth.SessionToken),
		Secure:       cfg.S3.Secure,
		Region:       cfg.S3.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return client, nil
}

// EndpointURL returns the endpoint with a scheme. A bare host:port gets
// https:// when secure is set and http:// otherwise. An empty endpoint stays
// empty so the SDK resolves the AWS default.
func EndpointURL(c types.S3Config) string {
	ep := strings.TrimSpace(c.Endpoint)
	if ep == "" {
		return ""
	}
	if strings.HasPrefix(ep, "http://") || strings.HasPrefix(ep, "https://") {
		return ep
	}
	if c.Secure {
		return "https://" + ep
	}
	return "http://" + ep
}

// EndpointHost returns the endpoint as host[:port] without scheme or path.
func EndpointHost(c types.S3Config) string {
	ep := strings.TrimSpace(c.Endpoint)
	ep = strings.TrimPrefix(ep, "https://")
	ep = strings.TrimPrefix(ep, "http://")
	return strings.TrimSuffix(ep, "/")
}
