package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"arcade-backend/internal/model"
)

// EventRepository stores client analytics events (analytics_events).
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository instance.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Insert stores an event and fills in its id and creation time.
func (r *EventRepository) Insert(ctx context.Context, ev *model.AnalyticsEvent) error {
	const query = `
		INSERT INTO analytics_events (user_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := r.pool.QueryRow(ctx, query, ev.AccountID, ev.Type, payload).Scan(&ev.ID, &ev.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return nil
}

// ListByType returns the most recent events of one type, newest first.
func (r *EventRepository) ListByType(ctx context.Context, eventType string, limit int) ([]*model.AnalyticsEvent, error) {
	const query = `
		SELECT id, user_id::text, event_type, payload, created_at
		FROM analytics_events
		WHERE event_type = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics events: %w", err)
	}
	defer rows.Close()

	var events []*model.AnalyticsEvent
	for rows.Next() {
		var (
			ev      model.AnalyticsEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.AccountID, &ev.Type, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analytics event: %w", err)
		}
		ev.Payload = payload
		events = append(events, &ev)
	}
	return events, rows.Err()
}
