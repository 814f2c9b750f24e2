package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"meshchat/internal/domain"
)

type NodeRepo struct {
	db *sql.DB
}

func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

// Upsert merges a node snapshot into the directory. Empty fields in the
// update never blank out previously known values, since position-only and
// nodeinfo-only packets each carry a partial picture.
func (r *NodeRepo) Upsert(ctx context.Context, n domain.NodeInfo) error {
	if n.NodeNum == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nodes(node_num, long_name, short_name, hw_model, last_heard, latitude, longitude, snr, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_num) DO UPDATE SET
			long_name  = CASE WHEN excluded.long_name  <> '' THEN excluded.long_name  ELSE nodes.long_name  END,
			short_name = CASE WHEN excluded.short_name <> '' THEN excluded.short_name ELSE nodes.short_name END,
			hw_model   = CASE WHEN excluded.hw_model   <> '' THEN excluded.hw_model   ELSE nodes.hw_model   END,
			last_heard = MAX(nodes.last_heard, excluded.last_heard),
			latitude   = COALESCE(excluded.latitude,  nodes.latitude),
			longitude  = COALESCE(excluded.longitude, nodes.longitude),
			snr        = COALESCE(excluded.snr, nodes.snr),
			updated_at = excluded.updated_at
	`, n.NodeNum, n.LongName, n.ShortName, n.HwModel, timeToUnixMillis(n.LastHeard),
		nullableFloat(n.Latitude), nullableFloat(n.Longitude), nullableFloat(n.SNR), timeToUnixMillis(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}

	return nil
}

// List returns all known nodes, most recently heard first.
func (r *NodeRepo) List(ctx context.Context) ([]domain.NodeInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_num, long_name, short_name, hw_model, last_heard, latitude, longitude, snr, updated_at
		FROM nodes
		ORDER BY last_heard DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.NodeInfo
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return out, nil
}

func (r *NodeRepo) Get(ctx context.Context, nodeNum uint32) (domain.NodeInfo, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT node_num, long_name, short_name, hw_model, last_heard, latitude, longitude, snr, updated_at
		FROM nodes
		WHERE node_num = ?
	`, nodeNum)
	n, err := scanNode(row)
	if err != nil {
		return domain.NodeInfo{}, fmt.Errorf("get node %s: %w", domain.FormatNodeNum(nodeNum), err)
	}

	return n, nil
}

func scanNode(scanner interface {
	Scan(dest ...any) error
}) (domain.NodeInfo, error) {
	var (
		n         domain.NodeInfo
		nodeNum   int64
		heardMs   int64
		updatedMs int64
		lat       sql.NullFloat64
		lon       sql.NullFloat64
		snr       sql.NullFloat64
	)
	if err := scanner.Scan(&nodeNum, &n.LongName, &n.ShortName, &n.HwModel, &heardMs, &lat, &lon, &snr, &updatedMs); err != nil {
		return domain.NodeInfo{}, err
	}
	n.NodeNum = uint32(nodeNum)
	n.LastHeard = unixMillisToTime(heardMs)
	n.UpdatedAt = unixMillisToTime(updatedMs)
	if lat.Valid {
		n.Latitude = &lat.Float64
	}
	if lon.Valid {
		n.Longitude = &lon.Float64
	}
	if snr.Valid {
		n.SNR = &snr.Float64
	}

	return n, nil
}
