package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/havensocial/haven/pkg/models"
)

// Dialect selects placeholder style for the underlying driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements MessageStore and CallStore over database/sql. SQLite
// backs local runs; Postgres backs production deployments.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (and migrates) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, dialect: DialectSQLite}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres opens (and migrates) a Postgres-backed store.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	s := &SQLStore{db: db, dialect: DialectPostgres}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an existing database handle. Used by tests.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for migrations and health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		last_message_text TEXT NOT NULL DEFAULT '',
		last_message_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		unread_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		attachments TEXT NOT NULL DEFAULT '[]',
		reply_to_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		PRIMARY KEY (message_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS message_reads (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		read_at TIMESTAMP NOT NULL,
		PRIMARY KEY (message_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS calls (
		id TEXT PRIMARY KEY,
		caller_id TEXT NOT NULL,
		callee_id TEXT NOT NULL,
		call_type TEXT NOT NULL,
		status TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP,
		ended_at TIMESTAMP,
		duration INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls (caller_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls (callee_id, created_at)`,
}

func (s *SQLStore) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) CreateConversation(ctx context.Context, creatorID string, participantIDs []string, convType models.ConversationType) (*models.Conversation, error) {
	participants := dedupe(append([]string{creatorID}, participantIDs...))
	if convType == "" {
		if len(participants) == 2 {
			convType = models.ConversationDirect
		} else {
			convType = models.ConversationGroup
		}
	}

	if convType == models.ConversationDirect && len(participants) == 2 {
		if conv, err := s.findDirect(ctx, participants[0], participants[1]); err == nil {
			return conv, nil
		} else if err != ErrNotFound {
			return nil, err
		}
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		Type:         convType,
		Participants: participants,
		UnreadCounts: map[string]int{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO conversations (id, type, created_at, updated_at) VALUES (?, ?, ?, ?)`),
		conv.ID, string(conv.Type), now, now); err != nil {
		return nil, err
	}
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`),
			conv.ID, p); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *SQLStore) findDirect(ctx context.Context, a, b string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT c.id FROM conversations c
		 JOIN conversation_participants pa ON pa.conversation_id = c.id AND pa.user_id = ?
		 JOIN conversation_participants pb ON pb.conversation_id = c.id AND pb.user_id = ?
		 WHERE c.type = 'direct' LIMIT 1`), a, b)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.loadConversation(ctx, id)
}

func (s *SQLStore) loadConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: id, UnreadCounts: map[string]int{}}
	var lastAt sql.NullTime
	var convType string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT type, last_message_text, last_message_at, created_at, updated_at FROM conversations WHERE id = ?`), id).
		Scan(&convType, &conv.LastMessageText, &lastAt, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	conv.Type = models.ConversationType(convType)
	if lastAt.Valid {
		at := lastAt.Time
		conv.LastMessageAt = &at
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT user_id, unread_count FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		var unread int
		if err := rows.Scan(&userID, &unread); err != nil {
			return nil, err
		}
		conv.Participants = append(conv.Participants, userID)
		conv.UnreadCounts[userID] = unread
	}
	return conv, rows.Err()
}

func (s *SQLStore) GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *SQLStore) CreateMessage(ctx context.Context, senderID, conversationID string, payload MessagePayload) (*models.Message, error) {
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	attachments, err := json.Marshal(payload.Attachments)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           payload.Type,
		Content:        payload.Content,
		Attachments:    payload.Attachments,
		ReplyToID:      payload.ReplyToID,
		Reactions:      map[string]string{},
		CreatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO messages (id, conversation_id, sender_id, type, content, attachments, reply_to_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		msg.ID, conversationID, senderID, string(msg.Type), msg.Content, string(attachments), msg.ReplyToID, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE conversations SET last_message_text = ?, last_message_at = ?, updated_at = ? WHERE id = ?`),
		previewText(payload), now, now, conversationID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE conversation_participants SET unread_count = unread_count + 1
		 WHERE conversation_id = ? AND user_id <> ?`),
		conversationID, senderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQLStore) History(ctx context.Context, userID, conversationID string, limit int) ([]*models.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, sender_id, type, content, attachments, reply_to_id, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`), conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{ConversationID: conversationID, Reactions: map[string]string{}}
		var attachments, msgType string
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msgType, &msg.Content, &attachments, &msg.ReplyToID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Type = models.MessageType(msgType)
		if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first and attach reactions/read receipts.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	for _, msg := range out {
		if err := s.loadMessageMeta(ctx, msg); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) loadMessageMeta(ctx context.Context, msg *models.Message) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT user_id, emoji FROM message_reactions WHERE message_id = ?`), msg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var userID, emoji string
		if err := rows.Scan(&userID, &emoji); err != nil {
			return err
		}
		msg.Reactions[userID] = emoji
	}
	if err := rows.Err(); err != nil {
		return err
	}

	reads, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT user_id, read_at FROM message_reads WHERE message_id = ? ORDER BY read_at`), msg.ID)
	if err != nil {
		return err
	}
	defer reads.Close()
	for reads.Next() {
		var r models.ReadReceipt
		if err := reads.Scan(&r.UserID, &r.ReadAt); err != nil {
			return err
		}
		msg.ReadBy = append(msg.ReadBy, r)
	}
	return reads.Err()
}

func (s *SQLStore) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) error {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, id := range messageIDs {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO message_reads (message_id, user_id, read_at)
			 SELECT id, ?, ? FROM messages
			 WHERE id = ? AND conversation_id = ? AND sender_id <> ?
			 ON CONFLICT (message_id, user_id) DO NOTHING`),
			userID, now, id, conversationID, userID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE conversation_participants SET unread_count = 0 WHERE conversation_id = ? AND user_id = ?`),
		conversationID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) AddReaction(ctx context.Context, userID, messageID, emoji string) (*models.Message, error) {
	if _, err := s.messageExists(ctx, messageID); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO message_reactions (message_id, user_id, emoji) VALUES (?, ?, ?)
		 ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = excluded.emoji`),
		messageID, userID, emoji); err != nil {
		return nil, err
	}
	return s.loadMessage(ctx, messageID)
}

func (s *SQLStore) RemoveReaction(ctx context.Context, userID, messageID string) (*models.Message, error) {
	if _, err := s.messageExists(ctx, messageID); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM message_reactions WHERE message_id = ? AND user_id = ?`),
		messageID, userID); err != nil {
		return nil, err
	}
	return s.loadMessage(ctx, messageID)
}

func (s *SQLStore) messageExists(ctx context.Context, messageID string) (string, error) {
	var convID string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT conversation_id FROM messages WHERE id = ?`), messageID).Scan(&convID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return convID, err
}

func (s *SQLStore) loadMessage(ctx context.Context, messageID string) (*models.Message, error) {
	msg := &models.Message{ID: messageID, Reactions: map[string]string{}}
	var attachments, msgType string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT conversation_id, sender_id, type, content, attachments, reply_to_id, created_at
		 FROM messages WHERE id = ?`), messageID).
		Scan(&msg.ConversationID, &msg.SenderID, &msgType, &msg.Content, &attachments, &msg.ReplyToID, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	msg.Type = models.MessageType(msgType)
	if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	if err := s.loadMessageMeta(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQLStore) Create(ctx context.Context, callerID, calleeID string, callType models.CallType) (*models.Call, error) {
	now := time.Now().UTC()
	call := &models.Call{
		ID:        uuid.NewString(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		Type:      callType,
		Status:    models.CallInitiated,
		CreatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO calls (id, caller_id, callee_id, call_type, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		call.ID, callerID, calleeID, string(callType), string(call.Status), now)
	if err != nil {
		return nil, err
	}
	return call, nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, callID string, status models.CallStatus) (*models.Call, error) {
	call, err := s.Get(ctx, callID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	call.Status = status
	if status == models.CallAnswered && call.StartedAt == nil {
		started := now
		call.StartedAt = &started
	}
	if status == models.CallEnded && call.EndedAt == nil {
		ended := now
		call.EndedAt = &ended
		if call.StartedAt != nil {
			call.Duration = int(now.Sub(*call.StartedAt) / time.Second)
		}
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`UPDATE calls SET status = ?, started_at = ?, ended_at = ?, duration = ? WHERE id = ?`),
		string(call.Status), nullTime(call.StartedAt), nullTime(call.EndedAt), call.Duration, callID)
	if err != nil {
		return nil, err
	}
	return call, nil
}

func (s *SQLStore) Get(ctx context.Context, callID string) (*models.Call, error) {
	call := &models.Call{ID: callID}
	var callType, status string
	var started, ended sql.NullTime
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT caller_id, callee_id, call_type, status, conversation_id, started_at, ended_at, duration, created_at
		 FROM calls WHERE id = ?`), callID).
		Scan(&call.CallerID, &call.CalleeID, &callType, &status, &call.ConversationID, &started, &ended, &call.Duration, &call.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	call.Type = models.CallType(callType)
	call.Status = models.CallStatus(status)
	if started.Valid {
		at := started.Time
		call.StartedAt = &at
	}
	if ended.Valid {
		at := ended.Time
		call.EndedAt = &at
	}
	return call, nil
}

func (s *SQLStore) HistoryFor(ctx context.Context, userID string, limit int) ([]*models.Call, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, caller_id, callee_id, call_type, status, conversation_id, started_at, ended_at, duration, created_at
		 FROM calls WHERE caller_id = ? OR callee_id = ?
		 ORDER BY created_at DESC LIMIT ?`), userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Call
	for rows.Next() {
		call := &models.Call{}
		var callType, status string
		var started, ended sql.NullTime
		if err := rows.Scan(&call.ID, &call.CallerID, &call.CalleeID, &callType, &status,
			&call.ConversationID, &started, &ended, &call.Duration, &call.CreatedAt); err != nil {
			return nil, err
		}
		call.Type = models.CallType(callType)
		call.Status = models.CallStatus(status)
		if started.Valid {
			at := started.Time
			call.StartedAt = &at
		}
		if ended.Valid {
			at := ended.Time
			call.EndedAt = &at
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

func (s *SQLStore) MissedCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM calls WHERE callee_id = ? AND status = ?`),
		userID, string(models.CallMissed)).Scan(&count)
	return count, err
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
