package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meshchat/internal/domain"
)

// Duplicate sends and re-heard packets inside this window are dropped.
const dedupWindow = 5000 * time.Millisecond

const messageColumns = `
	id, packet_id, from_num, to_num, channel_idx, body, at, outgoing, type,
	status, radio_status, mqtt_status, latitude, longitude, altitude, captured_at
`

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AddMessage inserts a message unless an equal one (same endpoints, same
// body) already landed inside the dedup window. The bool result is false
// for the silent duplicate case, with the stored row returned instead.
func (r *MessageRepo) AddMessage(ctx context.Context, m domain.Message) (domain.Message, bool, error) {
	if m.ID == "" {
		return domain.Message{}, false, errors.New("message id is required")
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}

	atMs := timeToUnixMillis(m.At)
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE from_num = ? AND to_num = ? AND body = ? AND at BETWEEN ? AND ?
		ORDER BY at DESC
		LIMIT 1
	`, m.From, m.To, m.Text, atMs-dedupWindow.Milliseconds(), atMs+dedupWindow.Milliseconds())
	existing, err := scanMessage(row)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.Message{}, false, fmt.Errorf("check duplicate message: %w", err)
	}

	var channelIdx any
	if m.Channel != nil {
		channelIdx = *m.Channel
	}
	var lat, lon, alt, capturedAt any
	if m.Location != nil {
		lat = m.Location.Latitude
		lon = m.Location.Longitude
		alt = nullableInt(m.Location.Altitude)
		if m.Location.CapturedAt != nil {
			capturedAt = timeToUnixMillis(*m.Location.CapturedAt)
		}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO messages(
			id, packet_id, from_num, to_num, channel_idx, body, at, outgoing, type,
			status, radio_status, mqtt_status, latitude, longitude, altitude, captured_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.PacketID, m.From, m.To, channelIdx, m.Text, atMs, boolToInt(m.Outgoing), int(m.Type),
		int(m.Status), int(m.RadioStatus), int(m.MQTTStatus), lat, lon, alt, capturedAt); err != nil {
		return domain.Message{}, false, fmt.Errorf("insert message: %w", err)
	}

	return m, true, nil
}

// ListRecentByChat returns the newest limit messages of one conversation in
// ascending time order.
func (r *MessageRepo) ListRecentByChat(ctx context.Context, key domain.ChatKey, limit int) ([]domain.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if key.Channel {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE channel_idx = ? AND to_num = ?
			ORDER BY at DESC
			LIMIT ?
		`, key.Index, int64(domain.BroadcastNodeNum), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE channel_idx IS NULL AND (from_num = ? OR to_num = ?)
			ORDER BY at DESC
			LIMIT ?
		`, key.Peer, key.Peer, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages by chat: %w", err)
	}

	out, err := collectMessages(rows, "chat")
	if err != nil {
		return nil, err
	}
	reverseMessages(out)

	return out, nil
}

// ListRecent returns the newest limit messages across all conversations in
// ascending time order.
func (r *MessageRepo) ListRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}

	out, err := collectMessages(rows, "recent")
	if err != nil {
		return nil, err
	}
	reverseMessages(out)

	return out, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = ?
	`, id)
	m, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, fmt.Errorf("get message %q: %w", id, err)
	}

	return m, nil
}

// UpdateRadioStatusByPacketID applies a radio track transition to every
// message correlated to packetID, skipping rows whose current state refuses
// the transition. The legacy column follows the radio track so pre-split
// readers stay coherent. Updated rows are returned post-transition.
func (r *MessageRepo) UpdateRadioStatusByPacketID(ctx context.Context, packetID uint32, next domain.RadioStatus) ([]domain.Message, error) {
	if packetID == 0 || next == domain.RadioStatusUnknown {
		return nil, nil
	}

	candidates, err := r.messagesByPacketID(ctx, packetID)
	if err != nil {
		return nil, err
	}

	var updated []domain.Message
	for _, m := range candidates {
		if !domain.ShouldTransitionRadioStatus(m.RadioStatus, next) {
			continue
		}
		m.RadioStatus = next
		m.Status = domain.LegacyForRadio(next)
		if _, err := r.db.ExecContext(ctx, `
			UPDATE messages
			SET radio_status = ?, status = ?
			WHERE id = ?
		`, int(m.RadioStatus), int(m.Status), m.ID); err != nil {
			return nil, fmt.Errorf("update radio status: %w", err)
		}
		updated = append(updated, m)
	}

	return updated, nil
}

// UpdateMQTTStatusByPacketID mirrors UpdateRadioStatusByPacketID for the
// MQTT relay track. Messages without an MQTT track (not_applicable) are
// left alone.
func (r *MessageRepo) UpdateMQTTStatusByPacketID(ctx context.Context, packetID uint32, next domain.MQTTStatus) ([]domain.Message, error) {
	if packetID == 0 || next == domain.MQTTStatusUnknown {
		return nil, nil
	}

	candidates, err := r.messagesByPacketID(ctx, packetID)
	if err != nil {
		return nil, err
	}

	var updated []domain.Message
	for _, m := range candidates {
		if m.MQTTStatus == domain.MQTTStatusNotApplicable {
			continue
		}
		if !domain.ShouldTransitionMQTTStatus(m.MQTTStatus, next) {
			continue
		}
		m.MQTTStatus = next
		if _, err := r.db.ExecContext(ctx, `
			UPDATE messages
			SET mqtt_status = ?
			WHERE id = ?
		`, int(m.MQTTStatus), m.ID); err != nil {
			return nil, fmt.Errorf("update mqtt status: %w", err)
		}
		updated = append(updated, m)
	}

	return updated, nil
}

// DeleteOldMessages keeps the keepCount most recent messages by timestamp
// and deletes the rest.
func (r *MessageRepo) DeleteOldMessages(ctx context.Context, keepCount int) (int64, error) {
	if keepCount < 0 {
		keepCount = 0
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id NOT IN (
			SELECT id FROM messages
			ORDER BY at DESC
			LIMIT ?
		)
	`, keepCount)
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted messages: %w", err)
	}

	return n, nil
}

// TrimOlderThan deletes messages older than cutoff and reports how many
// rows went away.
func (r *MessageRepo) TrimOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE at < ?
	`, timeToUnixMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("trim old messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count trimmed messages: %w", err)
	}

	return n, nil
}

// Import bulk-loads messages from another database export. Rows whose id
// already exists are skipped. Returns the number of rows actually added.
func (r *MessageRepo) Import(ctx context.Context, msgs []domain.Message) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	added := 0
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		var channelIdx any
		if m.Channel != nil {
			channelIdx = *m.Channel
		}
		var lat, lon, alt, capturedAt any
		if m.Location != nil {
			lat = m.Location.Latitude
			lon = m.Location.Longitude
			alt = nullableInt(m.Location.Altitude)
			if m.Location.CapturedAt != nil {
				capturedAt = timeToUnixMillis(*m.Location.CapturedAt)
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO messages(
				id, packet_id, from_num, to_num, channel_idx, body, at, outgoing, type,
				status, radio_status, mqtt_status, latitude, longitude, altitude, captured_at
			)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.PacketID, m.From, m.To, channelIdx, m.Text, timeToUnixMillis(m.At), boolToInt(m.Outgoing), int(m.Type),
			int(m.Status), int(m.RadioStatus), int(m.MQTTStatus), lat, lon, alt, capturedAt)
		if err != nil {
			return 0, fmt.Errorf("import message %q: %w", m.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import tx: %w", err)
	}

	return added, nil
}

func (r *MessageRepo) messagesByPacketID(ctx context.Context, packetID uint32) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE packet_id = ?
	`, packetID)
	if err != nil {
		return nil, fmt.Errorf("query messages by packet id: %w", err)
	}

	return collectMessages(rows, "packet")
}

func collectMessages(rows *sql.Rows, what string) ([]domain.Message, error) {
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s messages: %w", what, err)
	}

	return out, nil
}

func scanMessage(scanner interface {
	Scan(dest ...any) error
}) (domain.Message, error) {
	var (
		m           domain.Message
		packetID    int64
		fromNum     int64
		toNum       int64
		channelIdx  sql.NullInt64
		atMs        int64
		outgoing    int
		typ         int
		status      int
		radioStatus int
		mqttStatus  int
		lat         sql.NullFloat64
		lon         sql.NullFloat64
		alt         sql.NullInt64
		capturedAt  sql.NullInt64
	)
	if err := scanner.Scan(&m.ID, &packetID, &fromNum, &toNum, &channelIdx, &m.Text, &atMs, &outgoing, &typ,
		&status, &radioStatus, &mqttStatus, &lat, &lon, &alt, &capturedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, err
		}

		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}

	m.PacketID = uint32(packetID)
	m.From = uint32(fromNum)
	m.To = uint32(toNum)
	m.At = unixMillisToTime(atMs)
	m.Outgoing = outgoing != 0
	m.Type = domain.MessageType(typ)
	m.Status = domain.LegacyStatus(status)
	m.RadioStatus = domain.RadioStatus(radioStatus)
	m.MQTTStatus = domain.MQTTStatus(mqttStatus)
	if channelIdx.Valid {
		idx := int(channelIdx.Int64)
		m.Channel = &idx
	}
	if lat.Valid && lon.Valid {
		loc := &domain.Location{Latitude: lat.Float64, Longitude: lon.Float64}
		if alt.Valid {
			a := int(alt.Int64)
			loc.Altitude = &a
		}
		if capturedAt.Valid {
			at := unixMillisToTime(capturedAt.Int64)
			loc.CapturedAt = &at
		}
		m.Location = loc
	}

	return m, nil
}

func reverseMessages(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}

	return 0
}
