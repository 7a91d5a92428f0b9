package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelbatch/internal/transform"
)

// Publisher mirrors a finished output somewhere outside the local output
// directory and returns the remote key.
type Publisher interface {
	Publish(ctx context.Context, batchID string, index int, name string, data []byte, format string) (string, error)
}

// ObjectWriter is the subset of the object storage client used for mirroring.
type ObjectWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type ObjectStorePublisher struct {
	Storage ObjectWriter
	Prefix  string
}

func (p ObjectStorePublisher) Publish(ctx context.Context, batchID string, index int, name string, data []byte, format string) (string, error) {
	if p.Storage == nil {
		return "", errors.New("storage client is required")
	}

	objectKey := path.Join(
		defaultOutputPrefix(p.Prefix),
		sanitizePathToken(batchID),
		strconv.Itoa(index),
		name,
	)
	if err := p.Storage.WriteObject(ctx, objectKey, data, transform.ContentType(format)); err != nil {
		return "", fmt.Errorf("mirror output: %w", err)
	}
	return objectKey, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "outputs"
	}
	return prefix
}
