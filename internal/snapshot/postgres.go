package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one row per instance and overwrites it on every save.
type PostgresStore struct {
	db       DB
	instance string
}

func NewPostgresStore(db DB, instance string) *PostgresStore {
	return &PostgresStore{db: db, instance: instance}
}

// NewPool opens a pgx pool from a connection URL.
func NewPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Migrate creates the snapshot table.
func Migrate(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `
		create table if not exists tradegate_snapshots (
			instance_id text primary key,
			version int not null,
			saved_at bigint not null,
			body jsonb not null,
			updated_at timestamptz not null default now()
		);`)
	if err != nil {
		return fmt.Errorf("migrate snapshots: %w", err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, s *Snapshot) error {
	bs, err := Encode(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		insert into tradegate_snapshots(instance_id, version, saved_at, body)
		values ($1, $2, $3, $4)
		on conflict (instance_id) do update
		set version = excluded.version, saved_at = excluded.saved_at, body = excluded.body, updated_at = now()
	`, p.instance, s.Version, s.SavedAt, bs)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", p.instance, err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	var body []byte
	err := p.db.QueryRow(ctx, `select body from tradegate_snapshots where instance_id = $1`, p.instance).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", p.instance, err)
	}
	return load(body, "postgres "+p.instance)
}
