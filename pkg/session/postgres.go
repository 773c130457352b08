package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/marbledata/explorer/pkg/table"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresConfig holds the PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// ConnString builds a postgres:// connection string from the config.
func (c PostgresConfig) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// PostgresStore persists sessions and their conversation logs in PostgreSQL.
// Tables are serialized as JSONB so a session survives process restarts and
// can be rehydrated on any instance.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStore connects a pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, log *slog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Info("connected to PostgreSQL", "host", cfg.Host, "database", cfg.Database)
	return &PostgresStore{pool: pool, log: log}, nil
}

// Migrate runs all pending migrations with goose.
func Migrate(cfg PostgresConfig, log *slog.Logger) error {
	db, err := sql.Open("pgx", cfg.ConnString())
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	log.Info("running PostgreSQL migrations")
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) SaveSession(ctx context.Context, rec *Record) error {
	original, err := marshalNullable(rec.Original)
	if err != nil {
		return fmt.Errorf("marshal original table: %w", err)
	}
	profile, err := marshalNullable(rec.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	history, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO sessions (id, original_table, profile, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET original_table = EXCLUDED.original_table,
		    profile = EXCLUDED.profile,
		    history = EXCLUDED.history,
		    updated_at = EXCLUDED.updated_at
	`, rec.ID, original, profile, history, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *PostgresStore) AppendExchange(ctx context.Context, id uuid.UUID, ex Exchange) error {
	params, err := marshalNullable(ex.Params)
	if err != nil {
		return fmt.Errorf("marshal operation params: %w", err)
	}
	suggestions, err := json.Marshal(ex.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}

	var opType *string
	if ex.OpType != "" {
		opType = &ex.OpType
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO conversations (session_id, user_command, explanation, operation_type, operation_params, confidence, suggestions, created_at)
		SELECT id, $2, $3, $4, $5, $6, $7, $8 FROM sessions WHERE id = $1
	`, id, ex.Command, ex.Explanation, opType, params, ex.Confidence, suggestions, ex.At)
	if err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) LoadSession(ctx context.Context, id uuid.UUID) (*Record, []Exchange, error) {
	rec := &Record{ID: id}
	var original, profile, history []byte

	err := p.pool.QueryRow(ctx, `
		SELECT original_table, profile, history, created_at, updated_at
		FROM sessions WHERE id = $1
	`, id).Scan(&original, &profile, &history, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	if original != nil {
		rec.Original = &table.Table{}
		if err := json.Unmarshal(original, rec.Original); err != nil {
			return nil, nil, fmt.Errorf("unmarshal original table: %w", err)
		}
	}
	if profile != nil {
		rec.Profile = &table.DatasetProfile{}
		if err := json.Unmarshal(profile, rec.Profile); err != nil {
			return nil, nil, fmt.Errorf("unmarshal profile: %w", err)
		}
	}
	if history != nil {
		if err := json.Unmarshal(history, &rec.History); err != nil {
			return nil, nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}

	exchanges, err := p.loadExchanges(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, exchanges, nil
}

func (p *PostgresStore) loadExchanges(ctx context.Context, id uuid.UUID) ([]Exchange, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT user_command, explanation, operation_type, operation_params, confidence, suggestions, created_at
		FROM conversations
		WHERE session_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var ex Exchange
		var opType *string
		var params, suggestions []byte
		if err := rows.Scan(&ex.Command, &ex.Explanation, &opType, &params, &suggestions, &ex.At); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		if opType != nil {
			ex.OpType = *opType
		}
		if params != nil {
			if err := json.Unmarshal(params, &ex.Params); err != nil {
				return nil, fmt.Errorf("unmarshal operation params: %w", err)
			}
		}
		if suggestions != nil {
			if err := json.Unmarshal(suggestions, &ex.Suggestions); err != nil {
				return nil, fmt.Errorf("unmarshal suggestions: %w", err)
			}
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return exchanges, nil
}

func (p *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// marshalNullable marshals v, mapping nil (and typed nils) to SQL NULL.
func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *table.Table:
		if val == nil {
			return nil, nil
		}
	case *table.DatasetProfile:
		if val == nil {
			return nil, nil
		}
	case map[string]any:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
