package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of pgxpool.Pool the store relies on.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists bots, transcripts, facts, presence and alerts.
type PostgresStore struct {
	pool PgxPool
	now  func() time.Time
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return newPostgresStoreWithPool(pool)
}

func newPostgresStoreWithPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// GetBot fetches a bot profile by id.
func (s *PostgresStore) GetBot(ctx context.Context, botID string) (*BotProfile, error) {
	query := `
		SELECT id, name, COALESCE(system_prompt, '')
		FROM bots
		WHERE id = $1
	`
	var bot BotProfile
	if err := s.pool.QueryRow(ctx, query, botID).Scan(&bot.ID, &bot.Name, &bot.SystemPrompt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("leads: select bot: %w", err)
	}
	return &bot, nil
}

// RecentMessages returns the newest messages of a session, newest first.
func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 12
	}
	query := `
		SELECT id::text, session_id, bot_id, role, content, intent_score, meeting, created_at
		FROM chat_logs
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: select chat logs: %w", err)
	}
	defer rows.Close()

	out := make([]ChatMessage, 0, limit)
	for rows.Next() {
		var (
			msg     ChatMessage
			role    string
			meeting []byte
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.BotID, &role, &msg.Content, &msg.IntentScore, &meeting, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("leads: scan chat log: %w", err)
		}
		msg.Role = Role(role)
		if len(meeting) > 0 {
			msg.Meeting = &MeetingNote{}
			if err := json.Unmarshal(meeting, msg.Meeting); err != nil {
				return nil, fmt.Errorf("leads: decode chat log meeting: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: iterate chat logs: %w", err)
	}
	return out, nil
}

// InsertMessage appends one transcript entry.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg ChatMessage) error {
	if msg.SessionID == "" {
		return ErrMissingSession
	}
	id, err := uuid.Parse(msg.ID)
	if err != nil {
		id = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	var meeting []byte
	if msg.Meeting != nil {
		if meeting, err = json.Marshal(msg.Meeting); err != nil {
			return fmt.Errorf("leads: encode chat log meeting: %w", err)
		}
	}
	query := `
		INSERT INTO chat_logs (id, session_id, bot_id, role, content, intent_score, meeting, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.pool.Exec(ctx, query, id, msg.SessionID, msg.BotID, string(msg.Role), msg.Content, msg.IntentScore, meeting, msg.CreatedAt); err != nil {
		return fmt.Errorf("leads: insert chat log: %w", err)
	}
	return nil
}

// ListFacts returns every fact recorded for a session, oldest first.
func (s *PostgresStore) ListFacts(ctx context.Context, sessionID string) ([]Fact, error) {
	query := `
		SELECT session_id, bot_id, contact_type, contact_value, metadata, created_at
		FROM extracted_contacts
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("leads: select facts: %w", err)
	}
	defer rows.Close()

	out := make([]Fact, 0)
	for rows.Next() {
		var (
			f        Fact
			factType string
			meta     []byte
		)
		if err := rows.Scan(&f.SessionID, &f.BotID, &factType, &f.Value, &meta, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("leads: scan fact: %w", err)
		}
		f.Type = FactType(factType)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &f.Metadata); err != nil {
				return nil, fmt.Errorf("leads: decode fact metadata: %w", err)
			}
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: iterate facts: %w", err)
	}
	return out, nil
}

// UpsertFacts writes facts in one transaction; re-inserting an identical
// (session, type, value) only refreshes its metadata.
func (s *PostgresStore) UpsertFacts(ctx context.Context, facts []Fact) error {
	if len(facts) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("leads: begin upsert facts: %w", err)
	}
	query := `
		INSERT INTO extracted_contacts (session_id, bot_id, contact_type, contact_value, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, contact_type, contact_value)
		DO UPDATE SET metadata = COALESCE(EXCLUDED.metadata, extracted_contacts.metadata)
	`
	for _, f := range facts {
		if f.SessionID == "" {
			_ = tx.Rollback(ctx)
			return ErrMissingSession
		}
		var meta []byte
		if len(f.Metadata) > 0 {
			if meta, err = json.Marshal(f.Metadata); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("leads: encode fact metadata: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, query, f.SessionID, f.BotID, string(f.Type), f.Value, meta); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("leads: upsert fact %s: %w", f.Type, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("leads: commit facts: %w", err)
	}
	return nil
}

// MarkOnline flips sibling sessions of the chat offline and upserts the
// current session as online, both in one transaction.
func (s *PostgresStore) MarkOnline(ctx context.Context, p SessionPresence) error {
	if p.SessionID == "" {
		return ErrMissingSession
	}
	if p.ChatID == "" {
		return ErrMissingChat
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = s.now()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("leads: begin presence: %w", err)
	}
	offline := `
		UPDATE session_heartbeats
		SET is_online = false
		WHERE chat_id = $1 AND session_id <> $2 AND is_online
	`
	if _, err := tx.Exec(ctx, offline, p.ChatID, p.SessionID); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("leads: mark siblings offline: %w", err)
	}
	online := `
		INSERT INTO session_heartbeats (session_id, chat_id, bot_id, is_online, last_seen)
		VALUES ($1, $2, $3, true, $4)
		ON CONFLICT (session_id)
		DO UPDATE SET chat_id = EXCLUDED.chat_id,
			bot_id = EXCLUDED.bot_id,
			is_online = true,
			last_seen = EXCLUDED.last_seen
	`
	if _, err := tx.Exec(ctx, online, p.SessionID, p.ChatID, p.BotID, p.LastSeen); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("leads: upsert heartbeat: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("leads: commit presence: %w", err)
	}
	return nil
}

// ClaimAlert records the first alert for a session, returning false if one exists.
func (s *PostgresStore) ClaimAlert(ctx context.Context, sessionID string, score int) (bool, error) {
	query := `
		INSERT INTO lead_alerts (session_id, intent_score)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, sessionID, score)
	if err != nil {
		return false, fmt.Errorf("leads: claim alert: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ReleaseAlert drops a claim so a later turn may alert again.
func (s *PostgresStore) ReleaseAlert(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM lead_alerts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("leads: release alert: %w", err)
	}
	return nil
}
