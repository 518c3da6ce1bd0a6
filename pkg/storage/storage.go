package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/storysync/storysync-api/pkg/logger"
	"github.com/storysync/storysync-api/pkg/metrics"
	"go.uber.org/zap"
)

// MediaStore uploads sideloaded story media to an S3-compatible object store.
type MediaStore struct {
	s3Client  *s3.Client
	bucket    string
	publicURL string
}

// Config holds the object storage connection settings.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string
	Region          string
	PublicURL       string
}

// New creates a MediaStore against any S3-compatible endpoint.
func New(cfg Config) (*MediaStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media storage bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	s3Client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token not needed
		),
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("%s/%s", cfg.Endpoint, cfg.Bucket)
	}

	logger.Info("Media storage client initialized",
		zap.String("bucket", cfg.Bucket),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("region", region),
	)

	return &MediaStore{
		s3Client:  s3Client,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
	}, nil
}

// Upload stores an object under key and returns its public URL.
func (m *MediaStore) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
	start := time.Now()
	operation := "upload"

	_, err := m.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})

	duration := metrics.MeasureDuration(start)
	if err != nil {
		metrics.MediaStorageRequestDuration.WithLabelValues(operation, "error").Observe(duration)
		metrics.MediaStorageRequestTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	metrics.MediaStorageRequestDuration.WithLabelValues(operation, "success").Observe(duration)
	metrics.MediaStorageRequestTotal.WithLabelValues(operation, "success").Inc()

	url := fmt.Sprintf("%s/%s", m.publicURL, key)
	logger.Debug("Media uploaded",
		zap.String("key", key),
		zap.String("url", url),
		zap.Int("bytes", len(data)),
	)

	return url, nil
}
