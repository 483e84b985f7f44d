package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/storage/migrations"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Ensure Postgres implements CursorStore interface
var _ storage.CursorStore = (*Postgres)(nil)

// Postgres is the postgres cursor store
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Migrate applies the embedded schema
func Migrate(url string, logger *zap.Logger) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("postgres: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("postgres: init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("postgres: close migrations", zap.NamedError("source", srcErr), zap.NamedError("db", dbErr))
		}
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	return nil
}

// New creates a new postgres store
func New(ctx context.Context, url string, maxConns int, logger *zap.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		logger.Error("pgx parse config error", zap.Error(err))
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		logger.Error("pgx pool error", zap.Error(err))
		return nil, err
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close closes the pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Load reads the cursor row, inserting the first-run row when absent
func (p *Postgres) Load(ctx context.Context) (model.Cursor, error) {
	var (
		c   model.Cursor
		raw []byte
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, idx, last_replied, updated_at
		FROM post_cursor
		WHERE id = $1
	`, model.CursorID).Scan(&c.ID, &c.Index, &raw, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		c = model.NewCursor()
		if _, err := p.pool.Exec(ctx, `
			INSERT INTO post_cursor (id, idx, last_replied, updated_at)
			VALUES ($1, 0, '{}'::jsonb, now())
			ON CONFLICT (id) DO NOTHING
		`, model.CursorID); err != nil {
			p.logger.Error("Load: init insert fail", zap.Error(err))
			return model.Cursor{}, err
		}
		p.logger.Info("cursor initialized with new data")
		return c, nil
	}
	if err != nil {
		p.logger.Error("Load: query fail", zap.Error(err))
		return model.Cursor{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.LastReplied); err != nil {
			return model.Cursor{}, fmt.Errorf("%w: last_replied: %v", storage.ErrCorrupt, err)
		}
	}
	if err := storage.Validate(c); err != nil {
		return model.Cursor{}, err
	}
	return c, nil
}

// Save overwrites the whole cursor row
func (p *Postgres) Save(ctx context.Context, c model.Cursor) error {
	lastReplied := c.LastReplied
	if lastReplied == nil {
		lastReplied = map[string]string{}
	}
	raw, err := json.Marshal(lastReplied)
	if err != nil {
		return fmt.Errorf("postgres: marshal last_replied: %w", err)
	}
	p.logger.Debug("Save", zap.Int("index", c.Index))
	_, err = p.pool.Exec(ctx, `
		INSERT INTO post_cursor (id, idx, last_replied, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET idx = EXCLUDED.idx, last_replied = EXCLUDED.last_replied, updated_at = EXCLUDED.updated_at
	`, model.CursorID, c.Index, raw, time.Now().UTC())
	if err != nil {
		p.logger.Error("Save: upsert fail", zap.Error(err))
	}
	return err
}
