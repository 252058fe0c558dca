package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/harmonium-app/plugin-registry/pkg/registry"
)

// Writer persists a built registry document to a durable location. A
// write either fully replaces the previous artifact or leaves it
// untouched; a reader never observes a partially written document.
type Writer interface {
	Write(ctx context.Context, doc *registry.Document) error
	Location() string
}

// Config holds artifact storage configuration.
type Config struct {
	// Type selects the backend: "filesystem" or "s3".
	Type string `yaml:"type"`

	// OutputPath is the artifact path for the filesystem backend.
	OutputPath string `yaml:"output_path"`

	// S3 backend settings. Endpoint and path-style addressing support
	// MinIO for local development.
	S3Bucket       string `yaml:"s3_bucket"`
	S3Key          string `yaml:"s3_key"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"-"`
	S3SecretKey    string `yaml:"-"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		Type:       "filesystem",
		OutputPath: "registry/registry.json",
		S3Key:      "registry/registry.json",
	}
}

// NewWriter creates the writer selected by cfg.Type.
func NewWriter(cfg Config, logger *logrus.Logger) (Writer, error) {
	switch cfg.Type {
	case "filesystem":
		return NewFileSystemWriter(cfg.OutputPath, logger), nil
	case "s3":
		return NewS3Writer(cfg, logger)
	default:
		return nil, fmt.Errorf("invalid storage type: %s (must be filesystem or s3)", cfg.Type)
	}
}

// marshalDocument renders the document in its stable, pretty-printed
// artifact form.
func marshalDocument(doc *registry.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registry document: %w", err)
	}
	return append(data, '\n'), nil
}
