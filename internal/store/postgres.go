package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoshine/detailing-desk/internal/model"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const conversationColumns = `id, customer_phone, customer_name, customer_id, platform, control_mode,
	assigned_agent, behavior_settings, status, needs_human_attention, last_message_time, created_at, updated_at`

// PostgresStore persists conversations in Postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// FindActiveByPhone looks up the active conversation for phone.
func (s *PostgresStore) FindActiveByPhone(ctx context.Context, phone string) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE customer_phone = $1 AND status = 'active'`,
		phone,
	)
	return scanConversation(row)
}

// CreateConversation inserts an active auto-mode conversation.
func (s *PostgresStore) CreateConversation(ctx context.Context, phone, name string, platform model.Platform) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, customer_phone, customer_name, platform)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+conversationColumns,
		uuid.Must(uuid.NewV7()).String(), phone, name, string(platform),
	)

	conv, err := scanConversation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, model.ErrActiveConversationExists
		}
		return nil, err
	}
	return conv, nil
}

// AppendMessage inserts a message. The conversation row update and the insert
// run as one statement, so the row lock orders appends per conversation.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID, content string, sender model.Sender, channel model.Platform) (*model.Message, error) {
	var msg model.Message
	err := s.pool.QueryRow(ctx,
		`WITH conv AS (
			UPDATE conversations
			SET last_message_time = GREATEST(clock_timestamp(), last_message_time + interval '1 microsecond'),
			    updated_at = now()
			WHERE id = $1
			RETURNING id, last_message_time
		)
		INSERT INTO messages (id, conversation_id, sender, channel, content, created_at)
		SELECT $2, conv.id, $3, $4, $5, conv.last_message_time FROM conv
		RETURNING id, conversation_id, sender, channel, content, created_at`,
		conversationID, uuid.Must(uuid.NewV7()).String(), string(sender), string(channel), content,
	).Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Channel, &msg.Content, &msg.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	msg.FromCustomer = msg.Sender == model.SenderCustomer

	return &msg, nil
}

// UpdateControlMode sets the control mode and assigned agent.
func (s *PostgresStore) UpdateControlMode(ctx context.Context, id string, mode model.ControlMode, agent *string) (*model.Conversation, error) {
	return s.update(ctx, id, `control_mode = $2, assigned_agent = $3`, string(mode), agent)
}

// UpdateBehaviorSettings replaces the behavior settings.
func (s *PostgresStore) UpdateBehaviorSettings(ctx context.Context, id string, settings *model.BehaviorSettings) (*model.Conversation, error) {
	var raw any
	if settings != nil {
		data, err := json.Marshal(settings)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal behavior settings: %w", err)
		}
		raw = data
	}
	return s.update(ctx, id, `behavior_settings = $2`, raw)
}

// SetNeedsAttention sets the human-attention flag.
func (s *PostgresStore) SetNeedsAttention(ctx context.Context, id string, needs bool) (*model.Conversation, error) {
	return s.update(ctx, id, `needs_human_attention = $2`, needs)
}

// CloseConversation marks the conversation closed.
func (s *PostgresStore) CloseConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return s.update(ctx, id, `status = 'closed'`)
}

func (s *PostgresStore) update(ctx context.Context, id, set string, args ...any) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE conversations SET `+set+`, updated_at = now() WHERE id = $1 RETURNING `+conversationColumns,
		append([]any{id}, args...)...,
	)
	return scanConversation(row)
}

// Find returns a conversation without messages.
func (s *PostgresStore) Find(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// Get returns a conversation with its messages in timestamp order.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender, channel, content, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Channel, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.FromCustomer = msg.Sender == model.SenderCustomer
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return conv, nil
}

// List returns conversations matching filter, newest activity first.
func (s *PostgresStore) List(ctx context.Context, filter model.Filter) ([]model.Conversation, error) {
	where := `status = 'active'`
	switch filter {
	case model.FilterManual:
		where = `status = 'active' AND control_mode = 'manual'`
	case model.FilterClosed:
		where = `status = 'closed'`
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE `+where+` ORDER BY last_message_time DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}

	return convs, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		conv     model.Conversation
		behavior []byte
	)
	err := row.Scan(
		&conv.ID,
		&conv.CustomerPhone,
		&conv.CustomerName,
		&conv.CustomerID,
		&conv.Platform,
		&conv.ControlMode,
		&conv.AssignedAgent,
		&behavior,
		&conv.Status,
		&conv.NeedsHumanAttention,
		&conv.LastMessageTime,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	if len(behavior) > 0 {
		conv.BehaviorSettings = &model.BehaviorSettings{}
		if err := json.Unmarshal(behavior, conv.BehaviorSettings); err != nil {
			return nil, fmt.Errorf("failed to decode behavior settings: %w", err)
		}
	}

	return &conv, nil
}
