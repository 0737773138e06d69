package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"atende_backend/platform/apperr"
)

// maxStoredMessages caps the per-conversation history kept in the database.
// Older rows are pruned on append.
const maxStoredMessages = 40

// Repository persists conversations and their message history.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const conversationColumns = `id, channel, channel_id, whatsapp_number, segment, audio_enabled, status, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.Channel, &c.ChannelID, &c.WhatsAppNumber,
		&c.Segment, &c.AudioEnabled, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreateActive returns the active conversation for the identity,
// creating one when none exists. A partial unique index guarantees at most
// one active row per (channel, channel_id); a concurrent insert losing the
// race falls back to re-selecting the winner.
func (r *Repository) FindOrCreateActive(ctx context.Context, channel, channelID, whatsappNumber string, audioEnabled bool) (*Conversation, error) {
	conv, err := r.findActive(ctx, channel, channelID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find active conversation: %w", err)
	}

	conv, err = scanConversation(r.pool.QueryRow(ctx, `
		INSERT INTO conversations (channel, channel_id, whatsapp_number, audio_enabled, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING `+conversationColumns,
		channel, channelID, whatsappNumber, audioEnabled,
	))
	if err == nil {
		return conv, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		conv, err = r.findActive(ctx, channel, channelID)
		if err != nil {
			return nil, fmt.Errorf("re-select active conversation: %w", err)
		}
		return conv, nil
	}
	return nil, fmt.Errorf("create conversation: %w", err)
}

func (r *Repository) findActive(ctx context.Context, channel, channelID string) (*Conversation, error) {
	return scanConversation(r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE channel = $1 AND channel_id = $2 AND status = 'active'`,
		channel, channelID,
	))
}

// GetByID fetches one conversation.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conv, err := scanConversation(r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("conversation %s not found", id))
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// UpdateSegment pins the conversation's segment. Callers only invoke this
// when moving from unknown to a concrete segment.
func (r *Repository) UpdateSegment(ctx context.Context, id uuid.UUID, segment Segment) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET segment = $2, updated_at = NOW() WHERE id = $1`,
		id, segment,
	)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	return nil
}

// UpdateStatus moves the conversation to a new lifecycle state.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// SetAudioEnabled records the user's voice-note preference.
func (r *Repository) SetAudioEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET audio_enabled = $2, updated_at = NOW() WHERE id = $1`,
		id, enabled,
	)
	if err != nil {
		return fmt.Errorf("set audio enabled: %w", err)
	}
	return nil
}

// AppendMessage stores one turn and prunes history beyond the cap, keeping
// the newest rows. Both writes share a transaction so a prune can never
// outrun its insert.
func (r *Repository) AppendMessage(ctx context.Context, conversationID uuid.UUID, role Role, content, audioRef string) (*Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var m Message
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content, audio_ref)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, role, content, audio_ref, created_at`,
		conversationID, role, content, audioRef,
	).Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.AudioRef, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM messages
		WHERE conversation_id = $1 AND id NOT IN (
			SELECT id FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)`,
		conversationID, maxStoredMessages,
	)
	if err != nil {
		return nil, fmt.Errorf("prune messages: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return &m, nil
}

// RecentMessages returns the newest limit messages in chronological order.
func (r *Repository) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, audio_ref, created_at
		FROM (
			SELECT id, conversation_id, role, content, audio_ref, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.AudioRef, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MessageCount returns how many stored turns the conversation has.
func (r *Repository) MessageCount(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// CloseStale closes active conversations idle since before the cutoff and
// returns how many were closed.
func (r *Repository) CloseStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET status = 'closed', updated_at = NOW()
		WHERE status = 'active' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("close stale conversations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// StatusCounts is the per-status conversation tally for the dashboard.
type StatusCounts struct {
	Active  int `json:"active"`
	Handoff int `json:"handoff"`
	Closed  int `json:"closed"`
}

// CountByStatus tallies conversations per lifecycle state.
func (r *Repository) CountByStatus(ctx context.Context) (StatusCounts, error) {
	var counts StatusCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'handoff'),
			COUNT(*) FILTER (WHERE status = 'closed')
		FROM conversations`,
	).Scan(&counts.Active, &counts.Handoff, &counts.Closed)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("count conversations: %w", err)
	}
	return counts, nil
}

// Summary is a conversation row with its message count, for the admin list.
type Summary struct {
	Conversation
	MessageCount int
}

// ListOptions filters the admin conversation listing.
type ListOptions struct {
	Status  Status
	Segment Segment
	Limit   int
	Offset  int
}

// List returns conversations for the admin API, newest activity first.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.channel, c.channel_id, c.whatsapp_number, c.segment,
		       c.audio_enabled, c.status, c.created_at, c.updated_at,
		       COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE ($1 = '' OR c.status = $1)
		  AND ($2 = '' OR c.segment = $2)
		GROUP BY c.id
		ORDER BY c.updated_at DESC
		LIMIT $3 OFFSET $4`,
		string(opts.Status), string(opts.Segment), opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		err := rows.Scan(
			&s.ID, &s.Channel, &s.ChannelID, &s.WhatsAppNumber, &s.Segment,
			&s.AudioEnabled, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
