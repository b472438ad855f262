package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists domain events in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertEvent writes one event row and returns it with the assigned id and
// timestamp. A zero subject id is stored as NULL.
func (s *PGStore) InsertEvent(ctx context.Context, topic string, subjectID uuid.UUID, payload []byte) (Event, error) {
	if s == nil || s.Pool == nil {
		return Event{}, errors.New("events: pool not configured")
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	id := uuid.New()
	var subject *uuid.UUID
	if subjectID != uuid.Nil {
		subject = &subjectID
	}
	var occurredAt time.Time
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO domain_events (id, topic, subject_id, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING occurred_at`,
		id, topic, subject, payload,
	).Scan(&occurredAt)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         id,
		Topic:      topic,
		SubjectID:  subjectID,
		Payload:    payload,
		OccurredAt: occurredAt,
	}, nil
}

// ListRecent returns the newest events for the admin surface.
func (s *PGStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("events: pool not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, topic, COALESCE(subject_id, '00000000-0000-0000-0000-000000000000'::uuid), payload, occurred_at
		 FROM domain_events
		 ORDER BY occurred_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.SubjectID, &ev.Payload, &ev.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
