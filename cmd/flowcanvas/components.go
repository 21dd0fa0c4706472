package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/internal/validation"
)

// components are the long-lived collaborators shared by serve and mcp.
type components struct {
	store       store.ElementStore
	hub         streaming.EventHub
	converter   *diagram.Converter
	validator   validation.Validator
	expressions *expressions.Registry

	closers []func() error
}

// buildComponents opens the configured store and hub and creates the
// stateless services. Callers must call close.
func buildComponents(ctx context.Context, cfg Config, logger *slog.Logger) (*components, error) {
	c := &components{
		converter: diagram.NewConverter(diagram.WithLayout(cfg.Layout), diagram.WithLogger(logger)),
	}

	v, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	c.validator = v

	reg, err := expressions.NewRegistry()
	if err != nil {
		return nil, err
	}
	c.expressions = reg

	if cfg.Store == store.BackendLibSQL {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.Open(ctx, cfg.storeOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	c.store = st
	c.closers = append(c.closers, st.Close)

	switch cfg.Hub {
	case hubRedis:
		hub, err := streaming.NewRedisHub(ctx, cfg.RedisURL, cfg.RedisChannel, logger)
		if err != nil {
			_ = c.close()
			return nil, fmt.Errorf("connect redis hub: %w", err)
		}
		c.hub = hub
		c.closers = append(c.closers, hub.Close)
	default:
		c.hub = streaming.NewMemoryHub()
	}

	logger.Info("components ready",
		slog.String("store", cfg.Store),
		slog.String("hub", cfg.Hub),
		slog.Any("engines", reg.Names()),
	)
	return c, nil
}

// close releases resources in reverse order of acquisition.
func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
