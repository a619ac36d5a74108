package inbox

import (
	"database/sql"
	"fmt"
)

// Schema for the webhook event inbox. Events are append-only; the inbox is
// reconstructed per user from (app_id, external_id).
const schema = `
CREATE TABLE IF NOT EXISTS message_events (
    -- Unique event identifier (UUID)
    id TEXT PRIMARY KEY,
    -- Provider application the event belongs to
    app_id TEXT NOT NULL,
    -- External user id the notification was addressed to
    external_id TEXT NOT NULL,
    -- Provider event type (notification.sent, notification.clicked, ...)
    event_type TEXT NOT NULL,
    -- Provider notification id, when present
    notification_id TEXT,
    -- Extracted message contents for inbox display (JSON)
    message_contents TEXT,
    -- Raw webhook payload (JSON)
    event_payload TEXT,
    -- Receipt time (RFC3339 UTC)
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_message_events_user
    ON message_events(app_id, external_id);

CREATE INDEX IF NOT EXISTS idx_message_events_created
    ON message_events(created_at);
`

// initSchema applies the schema to the SQLite database.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply inbox schema: %w", err)
	}
	return nil
}
