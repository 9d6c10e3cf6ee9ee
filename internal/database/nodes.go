package database

import (
	"context"
	"errors"
	"time"

	"filevault/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrParentNotFolder = errors.New("parent does not reference an existing folder")

const nodeColumns = `
	n.id, n.owner_id, n.parent_id, n.name, n.is_folder, n.mime_type, n.size_bytes, n.blob_path,
	(SELECT COALESCE(array_agg(user_id ORDER BY user_id), '{}') FROM node_shares WHERE node_id = n.id),
	n.created_at, n.updated_at`

func scanNode(row pgx.Row) (*models.Node, error) {
	var node models.Node
	err := row.Scan(
		&node.ID,
		&node.OwnerID,
		&node.ParentID,
		&node.Name,
		&node.IsFolder,
		&node.MimeType,
		&node.SizeBytes,
		&node.BlobPath,
		&node.SharedWith,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func collectNodes(rows pgx.Rows) ([]models.Node, error) {
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if nodes == nil {
		return []models.Node{}, nil
	}

	return nodes, nil
}

type CreateNodeParams struct {
	ID        string
	OwnerID   int64
	ParentID  *string
	Name      string
	IsFolder  bool
	MimeType  *string
	SizeBytes int64
	BlobPath  *string
}

func (q *Queries) CreateNode(ctx context.Context, arg CreateNodeParams) (*models.Node, error) {
	query := `
		INSERT INTO nodes (id, owner_id, parent_id, name, is_folder, mime_type, size_bytes, blob_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id, owner_id, parent_id, name, is_folder, mime_type, size_bytes, blob_path,
			'{}'::bigint[], created_at, updated_at
	`
	now := time.Now()

	row := q.db.QueryRow(ctx, query,
		arg.ID,
		arg.OwnerID,
		arg.ParentID,
		arg.Name,
		arg.IsFolder,
		arg.MimeType,
		arg.SizeBytes,
		arg.BlobPath,
		now,
	)

	node, err := scanNode(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrParentNotFolder
		}
		return nil, err
	}

	return node, nil
}

// GetNodeByID returns the node with its shared-with set, or nil when absent.
func (q *Queries) GetNodeByID(ctx context.Context, id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes n WHERE n.id = $1`

	node, err := scanNode(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return node, nil
}

func (q *Queries) NodeExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM nodes WHERE id = $1)"
	err := q.db.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetChildren returns the direct children of a folder.
func (q *Queries) GetChildren(ctx context.Context, parentID string) ([]models.Node, error) {
	query := `SELECT ` + nodeColumns + `
		FROM nodes n
		WHERE n.parent_id = $1
		ORDER BY n.is_folder DESC, n.name`

	rows, err := q.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

func (q *Queries) RenameNode(ctx context.Context, id string, newName string) (bool, error) {
	query := `
		UPDATE nodes
		SET name = $1, updated_at = $2
		WHERE id = $3
	`
	res, err := q.db.Exec(ctx, query, newName, time.Now(), id)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (q *Queries) MoveNode(ctx context.Context, id string, newParentID *string) (bool, error) {
	query := `
		UPDATE nodes
		SET parent_id = $1, updated_at = $2
		WHERE id = $3
	`
	res, err := q.db.Exec(ctx, query, newParentID, time.Now(), id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, ErrParentNotFolder
		}
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

// DeleteNodes removes all listed nodes in a single statement. The caller
// enumerates the subtree explicitly so blob content can be cleaned up per
// file; the parent foreign key cascade only backstops user deletion.
func (q *Queries) DeleteNodes(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM nodes WHERE id = ANY($1)`
	res, err := q.db.Exec(ctx, query, ids)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected(), nil
}

// AddShares grants read access to every listed user. Re-sharing with an
// already-shared user is a no-op.
func (q *Queries) AddShares(ctx context.Context, nodeID string, userIDs []int64) error {
	if len(userIDs) > 0 {
		query := `
			INSERT INTO node_shares (node_id, user_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING
		`
		if _, err := q.db.Exec(ctx, query, nodeID, userIDs); err != nil {
			return err
		}
	}

	_, err := q.db.Exec(ctx, `UPDATE nodes SET updated_at = $1 WHERE id = $2`, time.Now(), nodeID)
	return err
}

// RemoveShare revokes a user's access. Removing an absent share is a no-op.
func (q *Queries) RemoveShare(ctx context.Context, nodeID string, userID int64) error {
	query := `DELETE FROM node_shares WHERE node_id = $1 AND user_id = $2`
	if _, err := q.db.Exec(ctx, query, nodeID, userID); err != nil {
		return err
	}

	_, err := q.db.Exec(ctx, `UPDATE nodes SET updated_at = $1 WHERE id = $2`, time.Now(), nodeID)
	return err
}
