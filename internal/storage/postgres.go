package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creative-dispatch/internal/config"
	"creative-dispatch/internal/creative"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore keeps assets as JSONB documents; integration_statuses is the
// per-integration map nested under each asset.
type PostgresStore struct {
	pool    *pgxpool.Pool
	channel string
}

var _ Store = (*PostgresStore)(nil)

func New(ctx context.Context, cfg config.Config) (*PostgresStore, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &PostgresStore{pool: pool, channel: cfg.Listener.Channel}, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, channel string) *PostgresStore {
	return &PostgresStore{pool: pool, channel: channel}
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadAdGroup(ctx context.Context, adGroupID string) (creative.AdGroup, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	g := creative.AdGroup{ID: adGroupID}
	err := s.pool.QueryRow(ctx,
		`SELECT name, brand_code FROM ad_groups WHERE id = $1`, adGroupID,
	).Scan(&g.Name, &g.BrandCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return creative.AdGroup{}, fmt.Errorf("%w: %s", ErrAdGroupNotFound, adGroupID)
	}
	if err != nil {
		return creative.AdGroup{}, fmt.Errorf("query ad group: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, doc, integration_statuses
		FROM assets
		WHERE ad_group_id = $1
		ORDER BY position, id
	`, adGroupID)
	if err != nil {
		return creative.AdGroup{}, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id             string
			docRaw, stsRaw []byte
		)
		if err := rows.Scan(&id, &docRaw, &stsRaw); err != nil {
			return creative.AdGroup{}, fmt.Errorf("scan asset: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(docRaw, &doc); err != nil {
			return creative.AdGroup{}, fmt.Errorf("decode asset %s: %w", id, err)
		}
		a := assetFromDocument(id, doc)
		if a.IntegrationStatuses, err = decodeStatuses(stsRaw); err != nil {
			return creative.AdGroup{}, fmt.Errorf("asset %s: %w", id, err)
		}
		g.Assets = append(g.Assets, a)
	}
	if rows.Err() != nil {
		return creative.AdGroup{}, rows.Err()
	}
	return g, nil
}

func (s *PostgresStore) LoadIntegration(ctx context.Context, integrationID string) (creative.Integration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	i := creative.Integration{ID: integrationID}
	err := s.pool.QueryRow(ctx,
		`SELECT name, brand_code, enabled FROM integrations WHERE id = $1`, integrationID,
	).Scan(&i.Name, &i.BrandCode, &i.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return creative.Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, integrationID)
	}
	if err != nil {
		return creative.Integration{}, fmt.Errorf("query integration: %w", err)
	}
	return i, nil
}

// SetState rewrites integration_statuses[integ.ID] for every asset in one
// transaction and notifies listeners with the ad group id on commit. The
// timestamp is the database's transaction time.
func (s *PostgresStore) SetState(ctx context.Context, adGroupID string, integ creative.Integration, assetIDs []string, state string, fields creative.StatusFields) error {
	if len(assetIDs) == 0 {
		return nil
	}
	entry, err := json.Marshal(fields.Document(state, integ, time.Now()))
	if err != nil {
		return fmt.Errorf("encode status entry: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE assets
		SET integration_statuses = jsonb_set(
			integration_statuses,
			ARRAY[$3::text],
			$4::jsonb || jsonb_build_object('updatedAt', to_jsonb(now())),
			true)
		WHERE ad_group_id = $1 AND id = ANY($2)
	`, adGroupID, assetIDs, integ.ID, string(entry))
	if err != nil {
		return fmt.Errorf("update integration status: %w", err)
	}
	if int(tag.RowsAffected()) != len(assetIDs) {
		return fmt.Errorf("%w: updated %d of %d assets in %s", ErrAssetNotFound, tag.RowsAffected(), len(assetIDs), adGroupID)
	}
	if s.channel != "" {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, adGroupID); err != nil {
			return fmt.Errorf("notify status change: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status tx: %w", err)
	}
	return nil
}

// SaveIntegration upserts an integration configuration row.
func (s *PostgresStore) SaveIntegration(ctx context.Context, i creative.Integration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO integrations (id, name, brand_code, enabled) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, brand_code = EXCLUDED.brand_code, enabled = EXCLUDED.enabled
	`, i.ID, i.Name, i.BrandCode, i.Enabled)
	if err != nil {
		return fmt.Errorf("save integration: %w", err)
	}
	return nil
}

// SaveAdGroup upserts an ad group and its asset documents. Stored integration
// statuses are left alone.
func (s *PostgresStore) SaveAdGroup(ctx context.Context, g creative.AdGroup) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ad group tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO ad_groups (id, name, brand_code) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, brand_code = EXCLUDED.brand_code
	`, g.ID, g.Name, g.BrandCode); err != nil {
		return fmt.Errorf("save ad group: %w", err)
	}
	for pos, a := range g.Assets {
		id := a.DocID()
		if id == "" {
			continue
		}
		doc, err := json.Marshal(assetDocument(a))
		if err != nil {
			return fmt.Errorf("encode asset %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO assets (ad_group_id, id, position, doc) VALUES ($1, $2, $3, $4::jsonb)
			ON CONFLICT (ad_group_id, id) DO UPDATE SET position = EXCLUDED.position, doc = EXCLUDED.doc
		`, g.ID, id, pos, string(doc)); err != nil {
			return fmt.Errorf("save asset %s: %w", id, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListenChannel() string {
	return s.channel
}

func (s *PostgresStore) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}
