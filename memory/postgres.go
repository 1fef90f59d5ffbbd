//go:build postgres

package memory

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore is an optional MemoryStore backend for operators who need
// the file layout's contract served from a shared database instead of a
// local disk, grounded on codeready-toolchain-tarsy's pkg/database/client.go
// embedded-migration bootstrap, trimmed from its Ent-backed client down to
// a plain pgxpool.Pool since this store has no generated-schema dependency.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, applies embedded migrations, and
// returns a ready PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("memory: run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "persona_supervisor", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply: %w", err)
	}
	return sourceDriver.Close()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) LoadGroupMetadata(ctx context.Context, chatID string) (*supervisor.PersistedGroupMetadata, error) {
	var meta supervisor.PersistedGroupMetadata
	var members []byte
	row := s.pool.QueryRow(ctx,
		`SELECT name, topic, members, last_sync, last_message_id, total_messages
		 FROM group_metadata WHERE chat_id = $1`, chatID)
	if err := row.Scan(&meta.Name, &meta.Topic, &members, &meta.LastSync, &meta.LastMessageID, &meta.TotalMessages); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: load group metadata: %w", err)
	}
	meta.ID = chatID
	_ = json.Unmarshal(members, &meta.Members)
	return &meta, nil
}

func (s *PostgresStore) SaveGroupMetadata(ctx context.Context, chatID string, meta supervisor.PersistedGroupMetadata) error {
	members, err := json.Marshal(meta.Members)
	if err != nil {
		return fmt.Errorf("memory: encode members: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO group_metadata (chat_id, name, topic, members, last_sync, last_message_id, total_messages)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chat_id) DO UPDATE SET
			name = EXCLUDED.name, topic = EXCLUDED.topic, members = EXCLUDED.members,
			last_sync = EXCLUDED.last_sync, last_message_id = EXCLUDED.last_message_id,
			total_messages = EXCLUDED.total_messages`,
		chatID, meta.Name, meta.Topic, members, meta.LastSync, meta.LastMessageID, meta.TotalMessages)
	if err != nil {
		return fmt.Errorf("memory: save group metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadGroupHistory(ctx context.Context, chatID string) ([]supervisor.Message, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT messages FROM group_history WHERE chat_id = $1`, chatID)
	if err := row.Scan(&raw); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: load group history: %w", err)
	}
	var messages []supervisor.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("memory: decode group history: %w", err)
	}
	return messages, nil
}

func (s *PostgresStore) SaveGroupHistory(ctx context.Context, chatID string, messages []supervisor.Message) error {
	raw, err := json.Marshal(dedupByID(messages))
	if err != nil {
		return fmt.Errorf("memory: encode group history: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO group_history (chat_id, messages) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET messages = EXCLUDED.messages`, chatID, raw)
	if err != nil {
		return fmt.Errorf("memory: save group history: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadParticipant(ctx context.Context, chatID, userID string) (*supervisor.ParticipantRecord, error) {
	var rec supervisor.ParticipantRecord
	var snapshots []byte
	row := s.pool.QueryRow(ctx,
		`SELECT username, snapshots FROM participants WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
	if err := row.Scan(&rec.Username, &snapshots); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: load participant: %w", err)
	}
	rec.UserID = userID
	if err := json.Unmarshal(snapshots, &rec.PersonalitySnapshots); err != nil {
		return nil, fmt.Errorf("memory: decode participant snapshots: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) SaveParticipant(ctx context.Context, chatID string, rec supervisor.ParticipantRecord) error {
	snapshots, err := json.Marshal(rec.PersonalitySnapshots)
	if err != nil {
		return fmt.Errorf("memory: encode participant snapshots: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO participants (chat_id, user_id, username, snapshots) VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET username = EXCLUDED.username, snapshots = EXCLUDED.snapshots`,
		chatID, rec.UserID, rec.Username, snapshots)
	if err != nil {
		return fmt.Errorf("memory: save participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadAgentActions(ctx context.Context, chatID, agentName string, limit int) ([]supervisor.ActionRecord, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx,
		`SELECT records FROM agent_actions WHERE chat_id = $1 AND agent_name = $2`, chatID, agentName)
	if err := row.Scan(&raw); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: load agent actions: %w", err)
	}
	var records []supervisor.ActionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("memory: decode agent actions: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func (s *PostgresStore) SaveAgentActions(ctx context.Context, chatID, agentName string, records []supervisor.ActionRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("memory: encode agent actions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_actions (chat_id, agent_name, records) VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, agent_name) DO UPDATE SET records = EXCLUDED.records`,
		chatID, agentName, raw)
	if err != nil {
		return fmt.Errorf("memory: save agent actions: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendOperatorDecision(ctx context.Context, groupID string, decision supervisor.OperatorDecisionLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("memory: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing supervisor.OperatorDecisionLogEntry
	var approved, rejected []byte
	row := tx.QueryRow(ctx, `SELECT approved, rejected FROM operator_decisions WHERE group_id = $1`, groupID)
	switch err := row.Scan(&approved, &rejected); {
	case err == nil:
		_ = json.Unmarshal(approved, &existing.Approved)
		_ = json.Unmarshal(rejected, &existing.Rejected)
	case err.Error() == "no rows in result set":
	default:
		return fmt.Errorf("memory: load operator decisions: %w", err)
	}

	existing.Approved = append(existing.Approved, decision.Approved...)
	existing.Rejected = append(existing.Rejected, decision.Rejected...)

	approvedJSON, err := json.Marshal(existing.Approved)
	if err != nil {
		return fmt.Errorf("memory: encode approved: %w", err)
	}
	rejectedJSON, err := json.Marshal(existing.Rejected)
	if err != nil {
		return fmt.Errorf("memory: encode rejected: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO operator_decisions (group_id, approved, rejected) VALUES ($1, $2, $3)
		ON CONFLICT (group_id) DO UPDATE SET approved = EXCLUDED.approved, rejected = EXCLUDED.rejected`,
		groupID, approvedJSON, rejectedJSON)
	if err != nil {
		return fmt.Errorf("memory: save operator decisions: %w", err)
	}
	return tx.Commit(ctx)
}

var _ supervisor.MemoryStore = (*PostgresStore)(nil)
