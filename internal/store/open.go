package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendLibSQL = "libsql"
	BackendMongo  = "mongo"
)

// Options selects and configures an ElementStore backend.
type Options struct {
	Backend       string
	Path          string // libsql file URI
	MongoURI      string
	MongoDatabase string
}

// Open creates the configured backend and applies its migrations.
func Open(ctx context.Context, opts Options) (ElementStore, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendLibSQL, "":
		s, err := NewLibSQLStore(opts.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return s, nil
	case BackendMongo:
		s, err := NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
