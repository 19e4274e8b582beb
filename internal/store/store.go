package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/speechio/internal/costs"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Session represents one caller's adapter session
type Session struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Usage is one session's usage counters as reported by the adapters.
type Usage struct {
	SynthesizedCharacters int64   `json:"synthesized_characters"`
	TranscribedSeconds    float64 `json:"transcribed_seconds"`
}

// UsageRecord is a persisted usage event with its computed cost.
type UsageRecord struct {
	ID                    string    `json:"id"`
	SessionID             string    `json:"session_id"`
	SynthesizedCharacters int64     `json:"synthesized_characters"`
	TranscribedSeconds    float64   `json:"transcribed_seconds"`
	SynthCostCents        int       `json:"synth_cost_cents"`
	TranscribeCostCents   int       `json:"transcribe_cost_cents"`
	TotalCostCents        int       `json:"total_cost_cents"`
	CreatedAt             time.Time `json:"created_at"`
}

// UsageSummary aggregates a client's usage across sessions.
type UsageSummary struct {
	ClientID              string  `json:"client_id"`
	Sessions              int     `json:"sessions"`
	SynthesizedCharacters int64   `json:"synthesized_characters"`
	TranscribedSeconds    float64 `json:"transcribed_seconds"`
	TotalCostCents        int64   `json:"total_cost_cents"`
}

// CreateSession inserts a new session row and returns it.
func (s *Store) CreateSession(ctx context.Context, clientID string) (Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (client_id)
		VALUES ($1)
		RETURNING id, client_id, started_at
	`, clientID).Scan(&sess.ID, &sess.ClientID, &sess.StartedAt)
	return sess, err
}

// EndSession marks a session as ended.
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sessions SET ended_at = $2 WHERE id = $1
	`, sessionID, endedAt)
	return err
}

// InsertUsage persists a session's usage counters with computed cost.
func (s *Store) InsertUsage(ctx context.Context, sessionID string, u Usage) error {
	c := costs.CalculateSessionCosts(costs.SessionMetrics{
		SynthesizedCharacters: u.SynthesizedCharacters,
		TranscribedSeconds:    u.TranscribedSeconds,
	})

	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_events (
			session_id, synthesized_characters, transcribed_seconds,
			synth_cost_cents, transcribe_cost_cents, total_cost_cents
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, sessionID, u.SynthesizedCharacters, u.TranscribedSeconds,
		c.SynthCostCents, c.TranscribeCostCents, c.TotalCostCents)
	return err
}

// GetUsageSummary aggregates usage for one client.
func (s *Store) GetUsageSummary(ctx context.Context, clientID string) (UsageSummary, error) {
	summary := UsageSummary{ClientID: clientID}
	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(DISTINCT se.id),
			COALESCE(SUM(u.synthesized_characters), 0),
			COALESCE(SUM(u.transcribed_seconds), 0),
			COALESCE(SUM(u.total_cost_cents), 0)
		FROM sessions se
		LEFT JOIN usage_events u ON u.session_id = se.id
		WHERE se.client_id = $1
	`, clientID).Scan(
		&summary.Sessions,
		&summary.SynthesizedCharacters,
		&summary.TranscribedSeconds,
		&summary.TotalCostCents,
	)
	return summary, err
}

// ListUsage returns a session's usage records, newest first.
func (s *Store) ListUsage(ctx context.Context, sessionID string) ([]UsageRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, synthesized_characters, transcribed_seconds,
		       synth_cost_cents, transcribe_cost_cents, total_cost_cents, created_at
		FROM usage_events
		WHERE session_id = $1
		ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var r UsageRecord
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.SynthesizedCharacters, &r.TranscribedSeconds,
			&r.SynthCostCents, &r.TranscribeCostCents, &r.TotalCostCents, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
