package database

import (
	"context"
	"fmt"
	"strings"

	"filevault/internal/models"
)

// ListNodesParams describes one page of the visible-nodes view. The viewer
// predicate (owner or shared-with) is always part of the generated filter.
type ListNodesParams struct {
	ViewerID   int64
	Search     string
	ParentID   *string
	RootOnly   bool
	IsFolder   *bool
	SharedOnly bool
	Limit      int
	Offset     int
}

func buildNodeFilter(arg ListNodesParams) (string, []interface{}) {
	conds := []string{
		"(n.owner_id = $1 OR EXISTS (SELECT 1 FROM node_shares s WHERE s.node_id = n.id AND s.user_id = $1))",
	}
	args := []interface{}{arg.ViewerID}

	if arg.SharedOnly {
		conds = append(conds, "n.owner_id <> $1")
	}

	if arg.Search != "" {
		args = append(args, "%"+arg.Search+"%")
		p := fmt.Sprintf("$%d", len(args))
		conds = append(conds, "(n.name ILIKE "+p+" OR n.mime_type ILIKE "+p+")")
	}

	if arg.RootOnly {
		conds = append(conds, "n.parent_id IS NULL")
	} else if arg.ParentID != nil {
		args = append(args, *arg.ParentID)
		conds = append(conds, fmt.Sprintf("n.parent_id = $%d", len(args)))
	}

	if arg.IsFolder != nil {
		args = append(args, *arg.IsFolder)
		conds = append(conds, fmt.Sprintf("n.is_folder = $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

// ListNodes returns one page, folders first, then by name ascending.
func (q *Queries) ListNodes(ctx context.Context, arg ListNodesParams) ([]models.Node, error) {
	filter, args := buildNodeFilter(arg)

	args = append(args, arg.Limit, arg.Offset)
	query := fmt.Sprintf(`SELECT %s
		FROM nodes n
		WHERE %s
		ORDER BY n.is_folder DESC, n.name ASC
		LIMIT $%d OFFSET $%d`,
		nodeColumns, filter, len(args)-1, len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

// CountNodes returns the total number of matching nodes before pagination.
func (q *Queries) CountNodes(ctx context.Context, arg ListNodesParams) (int64, error) {
	filter, args := buildNodeFilter(arg)
	query := "SELECT count(*) FROM nodes n WHERE " + filter

	var total int64
	err := q.db.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}
