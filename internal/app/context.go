// Package app wires workspace, config, database and blob storage into a
// ready engine for the CLI and the server.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"vigia/internal/blob"
	s3blob "vigia/internal/blob/s3"
	"vigia/internal/config"
	"vigia/internal/db"
	"vigia/internal/engine"
	"vigia/internal/migrate"
)

// Context is everything a command needs to run.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
}

// Close releases the database handle.
func (c *Context) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Open resolves the workspace config, runs migrations and builds the
// engine. A missing vigia.yml falls back to defaults so read commands
// work in a fresh checkout.
func Open(ctx context.Context, workspace string) (*Context, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("vigia")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Context{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    engine.New(conn, cfg, blobs),
	}, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return blob.NewMemory(), nil
	case "s3":
		return s3blob.New(ctx, s3blob.Config{
			Region:    cfg.Storage.Region,
			Bucket:    cfg.Storage.Bucket,
			Endpoint:  cfg.Storage.Endpoint,
			PathStyle: cfg.Storage.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
