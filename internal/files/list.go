package files

import (
	"context"

	"filevault/internal/database"
	"filevault/internal/models"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Filter narrows the visible-nodes view. The visibility predicate (owner or
// shared-with) always applies on top of these. Parent and RootOnly together
// form a tri-state: neither set means "any parent", RootOnly means "root-level
// items only", Parent means exact match.
type Filter struct {
	Search     string
	ParentID   *string
	RootOnly   bool
	IsFolder   *bool
	SharedOnly bool
	Page       int
	Limit      int
}

// List returns the requester's visible page of the tree plus the total match
// count before pagination. Folders sort before files, then by name ascending.
// Out-of-range paging inputs are clamped: page < 1 becomes 1, limit < 1
// becomes the default page size, and limit is capped at maxPageSize.
func (s *Service) List(ctx context.Context, requesterID int64, f Filter) ([]models.Node, int64, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}

	limit := f.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	arg := database.ListNodesParams{
		ViewerID:   requesterID,
		Search:     f.Search,
		ParentID:   f.ParentID,
		RootOnly:   f.RootOnly,
		IsFolder:   f.IsFolder,
		SharedOnly: f.SharedOnly,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}

	total, err := s.repo.CountNodes(ctx, arg)
	if err != nil {
		return nil, 0, storageErr(err)
	}

	nodes, err := s.repo.ListNodes(ctx, arg)
	if err != nil {
		return nil, 0, storageErr(err)
	}

	return nodes, total, nil
}

// PageSize reports the limit List would actually use for the given filter.
func (f Filter) PageSize() int {
	if f.Limit < 1 {
		return defaultPageSize
	}
	if f.Limit > maxPageSize {
		return maxPageSize
	}
	return f.Limit
}

// PageNumber reports the 1-indexed page List would actually use.
func (f Filter) PageNumber() int {
	if f.Page < 1 {
		return 1
	}
	return f.Page
}
