package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/harmonium-app/plugin-registry/pkg/registry"
)

// FileSystemWriter writes the registry artifact to a local path,
// creating intermediate directories as needed. The document is written
// to a temporary file in the destination directory and renamed into
// place so a concurrent reader sees either the old artifact or the new
// one, never a truncated mix.
type FileSystemWriter struct {
	path   string
	logger *logrus.Logger
}

// NewFileSystemWriter creates a filesystem-backed artifact writer.
func NewFileSystemWriter(path string, logger *logrus.Logger) *FileSystemWriter {
	return &FileSystemWriter{path: path, logger: logger}
}

// Write implements Writer.Write.
func (w *FileSystemWriter) Write(ctx context.Context, doc *registry.Document) error {
	data, err := marshalDocument(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write registry document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync registry document: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod registry document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("failed to move registry document into place: %w", err)
	}

	w.logger.Infof("registry written to %s (%d bytes, %d plugins)", w.path, len(data), len(doc.Plugins))
	return nil
}

// Location implements Writer.Location.
func (w *FileSystemWriter) Location() string {
	return w.path
}
