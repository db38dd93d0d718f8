package experience

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"quotrading/config"
)

// PostgresStore persists experiences in PostgreSQL for deployments where
// several trading instances share one learning history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS experiences (
			id          TEXT PRIMARY KEY,
			created_at  TIMESTAMPTZ NOT NULL,
			state       JSONB NOT NULL,
			took_trade  BOOLEAN NOT NULL,
			reward      DOUBLE PRECISION NOT NULL,
			duration    DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS exit_experiences (
			id          TEXT PRIMARY KEY,
			created_at  TIMESTAMPTZ NOT NULL,
			symbol      TEXT NOT NULL,
			regime      TEXT NOT NULL,
			state       JSONB NOT NULL,
			params      JSONB NOT NULL,
			pnl         DOUBLE PRECISION NOT NULL,
			exit_reason TEXT NOT NULL,
			partials    JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exit_experiences_symbol_regime
			ON exit_experiences (symbol, regime)`,
	}

	for _, migration := range migrations {
		if _, err := p.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// LoadExperiences reads the full entry-experience history, oldest first.
func (p *PostgresStore) LoadExperiences(ctx context.Context) ([]Experience, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, created_at, state, took_trade, reward, duration
		FROM experiences
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiences: %w", err)
	}
	defer rows.Close()

	var experiences []Experience
	for rows.Next() {
		var e Experience
		var stateJSON []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &stateJSON, &e.TookTrade, &e.Reward, &e.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan experience row: %w", err)
		}
		if err := json.Unmarshal(stateJSON, &e.State); err != nil {
			return nil, fmt.Errorf("failed to decode experience state: %w", err)
		}
		experiences = append(experiences, e)
	}
	return experiences, rows.Err()
}

// SaveExperience appends one entry-experience record.
func (p *PostgresStore) SaveExperience(ctx context.Context, e Experience) error {
	stateJSON, err := json.Marshal(e.State)
	if err != nil {
		return fmt.Errorf("failed to encode experience state: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO experiences (id, created_at, state, took_trade, reward, duration)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Timestamp, stateJSON, e.TookTrade, e.Reward, e.Duration)
	if err != nil {
		return fmt.Errorf("failed to insert experience: %w", err)
	}
	return nil
}

// LoadExitExperiences reads the full exit-experience history, oldest first.
func (p *PostgresStore) LoadExitExperiences(ctx context.Context) ([]ExitExperience, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, created_at, symbol, regime, state, params, pnl, exit_reason, partials
		FROM exit_experiences
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exit experiences: %w", err)
	}
	defer rows.Close()

	var records []ExitExperience
	for rows.Next() {
		var e ExitExperience
		var regimeLabel string
		var stateJSON, paramsJSON, partialsJSON []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Symbol, &regimeLabel, &stateJSON, &paramsJSON, &e.PnL, &e.ExitReason, &partialsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan exit experience row: %w", err)
		}
		e.Regime = parseRegime(regimeLabel)
		if err := json.Unmarshal(stateJSON, &e.State); err != nil {
			return nil, fmt.Errorf("failed to decode exit experience state: %w", err)
		}
		if err := json.Unmarshal(paramsJSON, &e.Params); err != nil {
			return nil, fmt.Errorf("failed to decode exit params: %w", err)
		}
		if len(partialsJSON) > 0 {
			if err := json.Unmarshal(partialsJSON, &e.Partials); err != nil {
				return nil, fmt.Errorf("failed to decode partial exits: %w", err)
			}
		}
		records = append(records, e)
	}
	return records, rows.Err()
}

// SaveExitExperience appends one exit-experience record.
func (p *PostgresStore) SaveExitExperience(ctx context.Context, e ExitExperience) error {
	stateJSON, err := json.Marshal(e.State)
	if err != nil {
		return fmt.Errorf("failed to encode exit experience state: %w", err)
	}
	paramsJSON, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("failed to encode exit params: %w", err)
	}
	var partialsJSON []byte
	if len(e.Partials) > 0 {
		partialsJSON, err = json.Marshal(e.Partials)
		if err != nil {
			return fmt.Errorf("failed to encode partial exits: %w", err)
		}
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO exit_experiences (id, created_at, symbol, regime, state, params, pnl, exit_reason, partials)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Timestamp, e.Symbol, e.Regime.String(), stateJSON, paramsJSON, e.PnL, e.ExitReason, partialsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert exit experience: %w", err)
	}
	return nil
}
