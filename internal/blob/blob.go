// Package blob stores banner backgrounds and other binary uploads outside the
// relational database.
package blob

import (
	"context"
	"fmt"
	"strings"
)

// Driver identifies a blob backend.
type Driver string

const (
	// DriverMemory keeps objects in process memory.
	DriverMemory Driver = "memory"
	// DriverS3 talks to AWS S3 or an S3 compatible server such as MinIO.
	DriverS3 Driver = "s3"
)

// Object is a stored blob.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// Store is a flat key/value object store. Put replaces existing objects.
type Store interface {
	Put(ctx context.Context, obj Object) error
	Get(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
	Driver() Driver
}

// Config contains blob settings.
type Config struct {
	Driver string   `env:"BLOB_DRIVER" envDefault:"memory"`
	S3     S3Config `envPrefix:"BLOB_S3_"`
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(cfg.Driver))) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
