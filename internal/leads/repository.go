package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no lead matches the lookup.
var ErrNotFound = errors.New("lead not found")

// Repository persists leads.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, conversation_id, channel, channel_id, segment, name, phone, email,
	need_summary, temperature, status, notes, created_at, updated_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.ConversationID, &l.Channel, &l.ChannelID, &l.Segment,
		&l.Name, &l.Phone, &l.Email, &l.NeedSummary, &l.Temperature,
		&l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// FindByConversation returns the lead tied to a conversation, or ErrNotFound.
func (r *Repository) FindByConversation(ctx context.Context, conversationID uuid.UUID) (*Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads WHERE conversation_id = $1`, conversationID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find lead by conversation: %w", err)
	}
	return lead, nil
}

// Create inserts a new lead and returns the stored row.
func (r *Repository) Create(ctx context.Context, lead *Lead) (*Lead, error) {
	stored, err := scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (conversation_id, channel, channel_id, segment, name, phone, email,
			need_summary, temperature, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+leadColumns,
		lead.ConversationID, lead.Channel, lead.ChannelID, lead.Segment,
		lead.Name, lead.Phone, lead.Email, lead.NeedSummary,
		lead.Temperature, lead.Status, lead.Notes,
	))
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return stored, nil
}

// Save writes back the merged field set of an existing lead.
func (r *Repository) Save(ctx context.Context, lead *Lead) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET name = $2, phone = $3, email = $4, need_summary = $5,
		    temperature = $6, status = $7, notes = $8, updated_at = NOW()
		WHERE id = $1`,
		lead.ID, lead.Name, lead.Phone, lead.Email, lead.NeedSummary,
		lead.Temperature, lead.Status, lead.Notes,
	)
	if err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	return nil
}

// UpdateStatus moves a lead through the funnel.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1`, id, status,
	)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	return nil
}

// ListOptions filters the admin lead listing and the CSV export.
type ListOptions struct {
	Segment     string
	Temperature string
	Status      string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// List returns leads newest first, filtered by the given options.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Lead, error) {
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE ($1 = '' OR segment = $1)
		  AND ($2 = '' OR temperature = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC
		LIMIT $6 OFFSET $7`,
		opts.Segment, opts.Temperature, opts.Status, opts.From, opts.To,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *lead)
	}
	return out, rows.Err()
}

// Stats is the lead tally for the dashboard.
type Stats struct {
	Total         int            `json:"total"`
	ByTemperature map[string]int `json:"by_temperature"`
	BySegment     map[string]int `json:"by_segment"`
	ByStatus      map[string]int `json:"by_status"`
}

// GetStats aggregates lead counts per temperature, segment and status.
func (r *Repository) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByTemperature: make(map[string]int),
		BySegment:     make(map[string]int),
		ByStatus:      make(map[string]int),
	}

	rows, err := r.pool.Query(ctx, `
		SELECT segment, temperature, status, COUNT(*)
		FROM leads
		GROUP BY segment, temperature, status`,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("lead stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segment, temperature, status string
		var count int
		if err := rows.Scan(&segment, &temperature, &status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan lead stats: %w", err)
		}
		stats.Total += count
		stats.ByTemperature[temperature] += count
		stats.BySegment[segment] += count
		stats.ByStatus[status] += count
	}
	return stats, rows.Err()
}

// CountSince returns how many leads were created at or after the cutoff.
func (r *Repository) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads WHERE created_at >= $1`, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return count, nil
}
