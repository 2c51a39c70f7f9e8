package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/praxis/pkg/models"
)

// SQLConfig configures connection pooling for the relational store.
type SQLConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLConfig returns default connection pool settings.
func DefaultSQLConfig() *SQLConfig {
	return &SQLConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// SQL is the Postgres-backed store. Config payloads and message bodies
// are stored as JSONB; sequence assignment happens inside a transaction
// so concurrent runs of the same agent never collide.
type SQL struct {
	db *sql.DB
}

// NewSQLFromDSN opens and pings a Postgres database and returns the
// store bound to it.
func NewSQLFromDSN(dsn string, config *SQLConfig) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultSQLConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewSQL(db), nil
}

// NewSQL wraps an existing database handle.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

// EnsureSchema creates the three tables when they do not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS agent_configs (
			agent_uuid TEXT PRIMARY KEY,
			config JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			agent_uuid TEXT NOT NULL,
			seq BIGINT NOT NULL,
			run_id TEXT NOT NULL,
			record JSONB NOT NULL,
			PRIMARY KEY (agent_uuid, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			agent_uuid TEXT NOT NULL,
			run_id TEXT NOT NULL,
			events JSONB NOT NULL,
			PRIMARY KEY (agent_uuid, run_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Configs returns the config adapter.
func (s *SQL) Configs() ConfigStore { return &sqlConfigs{db: s.db} }

// Conversations returns the conversation adapter.
func (s *SQL) Conversations() ConversationStore { return &sqlConversations{db: s.db} }

// RunLogs returns the run log adapter.
func (s *SQL) RunLogs() RunLogStore { return &sqlRunLogs{db: s.db} }

// Close releases the connection pool.
func (s *SQL) Close() error { return s.db.Close() }

type sqlConfigs struct {
	db *sql.DB
}

func (s *sqlConfigs) Save(ctx context.Context, cfg *models.AgentConfig) error {
	if cfg == nil || cfg.AgentUUID == "" {
		return fmt.Errorf("config is required")
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_configs (agent_uuid, config, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (agent_uuid) DO UPDATE SET config = $2, updated_at = $3`,
		cfg.AgentUUID,
		payload,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save agent config: %w", err)
	}
	return nil
}

func (s *sqlConfigs) Load(ctx context.Context, agentUUID string) (*models.AgentConfig, error) {
	if agentUUID == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT config FROM agent_configs WHERE agent_uuid = $1`, agentUUID)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load agent config: %w", err)
	}
	var cfg models.AgentConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal agent config: %w", err)
	}
	return &cfg, nil
}

func (s *sqlConfigs) Delete(ctx context.Context, agentUUID string) (bool, error) {
	if agentUUID == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_configs WHERE agent_uuid = $1`, agentUUID)
	if err != nil {
		return false, fmt.Errorf("delete agent config: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete agent config rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *sqlConfigs) SetTitle(ctx context.Context, agentUUID, title string) (bool, error) {
	if agentUUID == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_configs
		 SET config = jsonb_set(config, '{title}', to_jsonb($2::TEXT)), updated_at = $3
		 WHERE agent_uuid = $1`,
		agentUUID,
		title,
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("set agent title: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set agent title rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *sqlConfigs) List(ctx context.Context, limit, offset int) ([]*models.AgentConfig, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM agent_configs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agent configs: %w", err)
	}

	args := []any{}
	limitClause := ""
	if limit > 0 {
		args = append(args, limit)
		limitClause = fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		limitClause += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	query := `SELECT config FROM agent_configs ORDER BY updated_at DESC, agent_uuid ASC` + limitClause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agent configs: %w", err)
	}
	defer rows.Close()

	configs := []*models.AgentConfig{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, 0, fmt.Errorf("scan agent config: %w", err)
		}
		var cfg models.AgentConfig
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, 0, fmt.Errorf("unmarshal agent config: %w", err)
		}
		configs = append(configs, &cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list agent configs: %w", err)
	}
	return configs, total, nil
}

type sqlConversations struct {
	db *sql.DB
}

func (s *sqlConversations) Save(ctx context.Context, record *models.ConversationRecord) error {
	if record == nil || record.AgentUUID == "" {
		return fmt.Errorf("record is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save conversation: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM conversations WHERE agent_uuid = $1`,
		record.AgentUUID).Scan(&seq); err != nil {
		return fmt.Errorf("next conversation seq: %w", err)
	}
	record.Seq = seq

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal conversation record: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (agent_uuid, seq, run_id, record)
		 VALUES ($1, $2, $3, $4)`,
		record.AgentUUID,
		record.Seq,
		record.RunID,
		payload,
	); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save conversation: %w", err)
	}
	return nil
}

func (s *sqlConversations) LoadPage(ctx context.Context, agentUUID string, limit, offset int) ([]*models.ConversationRecord, error) {
	args := []any{agentUUID}
	limitClause := ""
	if limit > 0 {
		args = append(args, limit)
		limitClause = fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		limitClause += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	query := `SELECT record FROM conversations WHERE agent_uuid = $1 ORDER BY seq DESC` + limitClause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load conversation page: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *sqlConversations) LoadCursor(ctx context.Context, agentUUID string, beforeSeq int64, limit int) ([]*models.ConversationRecord, bool, error) {
	args := []any{agentUUID}
	query := `SELECT record FROM conversations WHERE agent_uuid = $1`
	if beforeSeq > 0 {
		args = append(args, beforeSeq)
		query += fmt.Sprintf(" AND seq < $%d", len(args))
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		// Fetch one extra row to learn whether older records remain.
		args = append(args, limit+1)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("load conversation cursor: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, false, err
	}
	hasMore := false
	if limit > 0 && len(records) > limit {
		hasMore = true
		records = records[:limit]
	}
	return records, hasMore, nil
}

func scanRecords(rows *sql.Rows) ([]*models.ConversationRecord, error) {
	records := []*models.ConversationRecord{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan conversation record: %w", err)
		}
		var record models.ConversationRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("unmarshal conversation record: %w", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read conversation records: %w", err)
	}
	return records, nil
}

type sqlRunLogs struct {
	db *sql.DB
}

func (s *sqlRunLogs) Save(ctx context.Context, agentUUID, runID string, events []models.RunLogEvent) error {
	if agentUUID == "" || runID == "" {
		return fmt.Errorf("agent uuid and run id are required")
	}
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal run log: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_logs (agent_uuid, run_id, events)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (agent_uuid, run_id) DO UPDATE SET events = $3`,
		agentUUID,
		runID,
		payload,
	)
	if err != nil {
		return fmt.Errorf("save run log: %w", err)
	}
	return nil
}

func (s *sqlRunLogs) Load(ctx context.Context, agentUUID, runID string) ([]models.RunLogEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT events FROM run_logs WHERE agent_uuid = $1 AND run_id = $2`,
		agentUUID, runID)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load run log: %w", err)
	}
	var events []models.RunLogEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, fmt.Errorf("unmarshal run log: %w", err)
	}
	return events, nil
}
