// Package inbox persists provider webhook events in SQLite so a per-user
// notification inbox can be reconstructed later.
package inbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kbukum/signalhub/internal/logger"
)

// Config holds inbox storage configuration.
type Config struct {
	// Enabled controls whether webhook events are persisted. When disabled,
	// inbox endpoints report the storage as unconfigured.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite database file. ":memory:" keeps it in-process.
	Path string `yaml:"path" mapstructure:"path"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "signalhub.db"
	}
}

// Event is one stored webhook event.
type Event struct {
	ID              string         `json:"id"`
	AppID           string         `json:"app_id"`
	ExternalID      string         `json:"external_id"`
	EventType       string         `json:"event_type"`
	NotificationID  string         `json:"notification_id,omitempty"`
	MessageContents map[string]any `json:"message_contents,omitempty"`
	Payload         map[string]any `json:"event_payload,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ListFilter narrows ListByUser results.
type ListFilter struct {
	// Limit caps the number of returned events (default 50).
	Limit int
	// EventTypes restricts to the given provider event types when non-empty.
	EventTypes []string
	// SinceDays restricts to events from the last N days when positive.
	SinceDays int
}

// Store is the SQLite-backed inbox.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore opens the database and applies the schema.
func NewStore(cfg Config, log *logger.Logger) (*Store, error) {
	cfg.ApplyDefaults()

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open inbox database: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, log: log.WithComponent("inbox")}, nil
}

// Insert stores one webhook event and returns its id.
func (s *Store) Insert(ctx context.Context, ev Event) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	contents, err := marshalNullable(ev.MessageContents)
	if err != nil {
		return "", fmt.Errorf("serialize message contents: %w", err)
	}
	payload, err := marshalNullable(ev.Payload)
	if err != nil {
		return "", fmt.Errorf("serialize event payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO message_events
		    (id, app_id, external_id, event_type, notification_id, message_contents, event_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AppID, ev.ExternalID, ev.EventType,
		nullable(ev.NotificationID), contents, payload,
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}

	s.log.Info("Stored webhook event", logger.Fields(
		"event_type", ev.EventType,
		"external_id", ev.ExternalID,
		"notification_id", ev.NotificationID,
	))
	return ev.ID, nil
}

// ListByUser returns the user's events, newest first.
func (s *Store) ListByUser(ctx context.Context, appID, externalID string, filter ListFilter) ([]Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := strings.Builder{}
	query.WriteString(`
		SELECT id, app_id, external_id, event_type, notification_id, message_contents, event_payload, created_at
		FROM message_events
		WHERE app_id = ? AND external_id = ?`)
	args := []any{appID, externalID}

	if len(filter.EventTypes) > 0 {
		query.WriteString(" AND event_type IN (?" + strings.Repeat(", ?", len(filter.EventTypes)-1) + ")")
		for _, t := range filter.EventTypes {
			args = append(args, t)
		}
	}
	if filter.SinceDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -filter.SinceDays)
		query.WriteString(" AND created_at >= ?")
		args = append(args, cutoff.Format(time.RFC3339Nano))
	}
	query.WriteString(" ORDER BY created_at DESC LIMIT ?")
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteByUser removes all events for a user and returns how many were deleted.
func (s *Store) DeleteByUser(ctx context.Context, appID, externalID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM message_events WHERE app_id = ? AND external_id = ?`,
		appID, externalID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	s.log.Info("Deleted webhook events", logger.Fields(
		"external_id", externalID,
		"count", n,
	))
	return n, nil
}

// Health verifies the database connection.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		ev                         Event
		notificationID             sql.NullString
		contents, payload, created sql.NullString
	)
	err := rows.Scan(&ev.ID, &ev.AppID, &ev.ExternalID, &ev.EventType,
		&notificationID, &contents, &payload, &created)
	if err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.NotificationID = notificationID.String
	if contents.Valid && contents.String != "" {
		_ = json.Unmarshal([]byte(contents.String), &ev.MessageContents)
	}
	if payload.Valid && payload.String != "" {
		_ = json.Unmarshal([]byte(payload.String), &ev.Payload)
	}
	if created.Valid {
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, created.String)
	}
	return ev, nil
}

func marshalNullable(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
