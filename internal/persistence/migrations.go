package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// Forward-only migrations keyed by PRAGMA user_version. Never edit a shipped
// step; append a new one.
var migrations = []string{
	// 1: chat messages with the original single status column.
	`
	CREATE TABLE messages (
		id          TEXT PRIMARY KEY,
		packet_id   INTEGER NOT NULL DEFAULT 0,
		from_num    INTEGER NOT NULL,
		to_num      INTEGER NOT NULL,
		channel_idx INTEGER,
		body        TEXT NOT NULL,
		at          INTEGER NOT NULL,
		outgoing    INTEGER NOT NULL DEFAULT 0,
		type        INTEGER NOT NULL DEFAULT 1,
		status      INTEGER NOT NULL DEFAULT 0,
		latitude    REAL,
		longitude   REAL,
		altitude    INTEGER,
		captured_at INTEGER
	);
	CREATE INDEX idx_messages_at ON messages(at);
	CREATE INDEX idx_messages_peer ON messages(from_num, to_num, at);
	CREATE INDEX idx_messages_channel ON messages(channel_idx, at);
	CREATE INDEX idx_messages_packet ON messages(packet_id);
	`,
	// 2: mesh node directory.
	`
	CREATE TABLE nodes (
		node_num   INTEGER PRIMARY KEY,
		long_name  TEXT NOT NULL DEFAULT '',
		short_name TEXT NOT NULL DEFAULT '',
		hw_model   TEXT NOT NULL DEFAULT '',
		last_heard INTEGER NOT NULL DEFAULT 0,
		latitude   REAL,
		longitude  REAL,
		snr        REAL,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX idx_nodes_last_heard ON nodes(last_heard);
	`,
	// 3: split delivery tracking into radio and mqtt tracks. The legacy
	// status column stays readable for rows written before this step.
	`
	ALTER TABLE messages ADD COLUMN radio_status INTEGER NOT NULL DEFAULT 0;
	ALTER TABLE messages ADD COLUMN mqtt_status INTEGER NOT NULL DEFAULT 0;
	`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this build supports (%d)", version, len(migrations))
	}

	for next := version + 1; next <= len(migrations); next++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d tx: %w", next, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[next-1]); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("apply migration %d: %w", next, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, next)); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("bump schema version to %d: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", next, err)
		}
	}

	return nil
}
