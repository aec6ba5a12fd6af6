package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"svckit/config"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresTransport inserts every batch into a logs table in one round trip.
//
// Expected table layout:
//
//	CREATE TABLE shipped_logs (
//	    topic       TEXT        NOT NULL,
//	    trace_id    TEXT        NOT NULL,
//	    level       TEXT        NOT NULL,
//	    logged_at   TIMESTAMPTZ NOT NULL,
//	    contents    JSONB       NOT NULL
//	);
type PostgresTransport struct {
	pool   *pgxpool.Pool
	insert string
	logger *log.Logger
}

// NewPostgresTransport connects a pool to the DSN in the sink endpoint
func NewPostgresTransport(ctx context.Context, sink config.SinkConfig, cfg config.DatabaseConfig, logger *log.Logger) (*PostgresTransport, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid postgres table name %q", cfg.Table)
	}

	poolCfg, err := pgxpool.ParseConfig(sink.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres endpoint: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MinConns = int32(cfg.MinConnections)
	if d, err := time.ParseDuration(cfg.MaxIdleTime); err == nil {
		poolCfg.MaxConnIdleTime = d
	} else if logger != nil {
		logger.Printf("Warning: Invalid max_idle_time '%s', using pool default", cfg.MaxIdleTime)
	}
	if d, err := time.ParseDuration(cfg.MaxLifetime); err == nil {
		poolCfg.MaxConnLifetime = d
	} else if logger != nil {
		logger.Printf("Warning: Invalid max_lifetime '%s', using pool default", cfg.MaxLifetime)
	}
	// Connections are established lazily so an unreachable database does not
	// fail startup; the first send reports it instead.
	poolCfg.LazyConnect = true

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if logger != nil {
		logger.Printf("Postgres log transport created, table: %s", cfg.Table)
	}
	return &PostgresTransport{
		pool:   pool,
		insert: fmt.Sprintf("INSERT INTO %s (topic, trace_id, level, logged_at, contents) VALUES ($1, $2, $3, $4, $5::jsonb)", cfg.Table),
		logger: logger,
	}, nil
}

// PutLogs implements Transport
func (p *PostgresTransport) PutLogs(ctx context.Context, topic string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, e := range entries {
		contents, err := json.Marshal(e.Contents)
		if err != nil {
			return fmt.Errorf("failed to serialize log contents: %w", err)
		}
		b.Queue(p.insert, topic, e.TraceID(), e.Contents[KeyLevel], time.Unix(e.Time, 0).UTC(), string(contents))
	}

	br := p.pool.SendBatch(ctx, b)
	for i := range entries {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert of log entry %d/%d failed: %w", i+1, len(entries), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to complete log insert batch: %w", err)
	}
	return nil
}

// Close closes the pool
func (p *PostgresTransport) Close() error {
	p.pool.Close()
	return nil
}

var _ Transport = (*PostgresTransport)(nil)
