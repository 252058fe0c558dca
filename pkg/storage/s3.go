package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/harmonium-app/plugin-registry/pkg/registry"
)

// S3Writer writes the registry artifact to an object store. S3 object
// puts are atomic on the service side, so readers of the artifact URL
// always see a complete document.
type S3Writer struct {
	client *s3.Client
	bucket string
	key    string
	logger *logrus.Logger
}

// NewS3Writer creates an S3-backed artifact writer. With explicit
// access keys it uses static credentials (MinIO, or AWS with explicit
// keys); otherwise it falls back to the default credential chain.
func NewS3Writer(cfg Config, logger *logrus.Logger) (*S3Writer, error) {
	ctx := context.Background()

	var awsCfg aws.Config
	var err error
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Writer{
		client: client,
		bucket: cfg.S3Bucket,
		key:    cfg.S3Key,
		logger: logger,
	}, nil
}

// Write implements Writer.Write.
func (w *S3Writer) Write(ctx context.Context, doc *registry.Document) error {
	data, err := marshalDocument(doc)
	if err != nil {
		return err
	}

	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(w.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload registry document to s3: %w", err)
	}

	w.logger.Infof("registry written to %s (%d bytes, %d plugins)", w.Location(), len(data), len(doc.Plugins))
	return nil
}

// Location implements Writer.Location.
func (w *S3Writer) Location() string {
	return fmt.Sprintf("s3://%s/%s", w.bucket, w.key)
}
