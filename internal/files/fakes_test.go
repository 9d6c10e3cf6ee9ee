package files

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"filevault/internal/database"
	"filevault/internal/models"
)

// fakeRepo is an in-memory Repository and UserDirectory for engine tests.
type fakeRepo struct {
	nodes map[string]*models.Node
	users map[int64]bool
}

func newFakeRepo(userIDs ...int64) *fakeRepo {
	users := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		users[id] = true
	}
	return &fakeRepo{
		nodes: make(map[string]*models.Node),
		users: users,
	}
}

func copyNode(n *models.Node) *models.Node {
	c := *n
	c.SharedWith = append([]int64(nil), n.SharedWith...)
	return &c
}

func (f *fakeRepo) CreateNode(ctx context.Context, arg database.CreateNodeParams) (*models.Node, error) {
	if arg.ParentID != nil {
		parent, ok := f.nodes[*arg.ParentID]
		if !ok || !parent.IsFolder {
			return nil, database.ErrParentNotFolder
		}
	}

	now := time.Now()
	node := &models.Node{
		ID:         arg.ID,
		OwnerID:    arg.OwnerID,
		ParentID:   arg.ParentID,
		Name:       arg.Name,
		IsFolder:   arg.IsFolder,
		MimeType:   arg.MimeType,
		SizeBytes:  arg.SizeBytes,
		BlobPath:   arg.BlobPath,
		SharedWith: []int64{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.nodes[node.ID] = node
	return copyNode(node), nil
}

func (f *fakeRepo) GetNodeByID(ctx context.Context, id string) (*models.Node, error) {
	node, ok := f.nodes[id]
	if !ok {
		return nil, nil
	}
	return copyNode(node), nil
}

func (f *fakeRepo) GetChildren(ctx context.Context, parentID string) ([]models.Node, error) {
	var children []models.Node
	for _, node := range f.nodes {
		if node.ParentID != nil && *node.ParentID == parentID {
			children = append(children, *copyNode(node))
		}
	}
	return children, nil
}

func (f *fakeRepo) RenameNode(ctx context.Context, id string, newName string) (bool, error) {
	node, ok := f.nodes[id]
	if !ok {
		return false, nil
	}
	node.Name = newName
	node.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRepo) MoveNode(ctx context.Context, id string, newParentID *string) (bool, error) {
	node, ok := f.nodes[id]
	if !ok {
		return false, nil
	}
	node.ParentID = newParentID
	node.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRepo) DeleteNodes(ctx context.Context, ids []string) (int64, error) {
	var deleted int64
	for _, id := range ids {
		if _, ok := f.nodes[id]; ok {
			delete(f.nodes, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeRepo) AddShares(ctx context.Context, nodeID string, userIDs []int64) error {
	node, ok := f.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	for _, userID := range userIDs {
		if !node.IsSharedWith(userID) {
			node.SharedWith = append(node.SharedWith, userID)
		}
	}
	sort.Slice(node.SharedWith, func(i, j int) bool { return node.SharedWith[i] < node.SharedWith[j] })
	node.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) RemoveShare(ctx context.Context, nodeID string, userID int64) error {
	node, ok := f.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	kept := node.SharedWith[:0]
	for _, id := range node.SharedWith {
		if id != userID {
			kept = append(kept, id)
		}
	}
	node.SharedWith = kept
	node.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) matches(node *models.Node, arg database.ListNodesParams) bool {
	if !node.CanRead(arg.ViewerID) {
		return false
	}
	if arg.SharedOnly && node.OwnerID == arg.ViewerID {
		return false
	}
	if arg.Search != "" {
		needle := strings.ToLower(arg.Search)
		nameHit := strings.Contains(strings.ToLower(node.Name), needle)
		mimeHit := node.MimeType != nil && strings.Contains(strings.ToLower(*node.MimeType), needle)
		if !nameHit && !mimeHit {
			return false
		}
	}
	if arg.RootOnly {
		if node.ParentID != nil {
			return false
		}
	} else if arg.ParentID != nil {
		if node.ParentID == nil || *node.ParentID != *arg.ParentID {
			return false
		}
	}
	if arg.IsFolder != nil && node.IsFolder != *arg.IsFolder {
		return false
	}
	return true
}

func (f *fakeRepo) matchingNodes(arg database.ListNodesParams) []models.Node {
	var matched []models.Node
	for _, node := range f.nodes {
		if f.matches(node, arg) {
			matched = append(matched, *copyNode(node))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].IsFolder != matched[j].IsFolder {
			return matched[i].IsFolder
		}
		return matched[i].Name < matched[j].Name
	})

	return matched
}

func (f *fakeRepo) ListNodes(ctx context.Context, arg database.ListNodesParams) ([]models.Node, error) {
	matched := f.matchingNodes(arg)

	if arg.Offset >= len(matched) {
		return []models.Node{}, nil
	}
	matched = matched[arg.Offset:]
	if arg.Limit < len(matched) {
		matched = matched[:arg.Limit]
	}
	return matched, nil
}

func (f *fakeRepo) CountNodes(ctx context.Context, arg database.ListNodesParams) (int64, error) {
	return int64(len(f.matchingNodes(arg))), nil
}

func (f *fakeRepo) CountUsersByIDs(ctx context.Context, ids []int64) (int64, error) {
	var count int64
	for _, id := range ids {
		if f.users[id] {
			count++
		}
	}
	return count, nil
}

// fakeBlobs records blob operations in memory.
type fakeBlobs struct {
	objects map[string]bool
	deleted []string
	failDel bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string]bool)}
}

func (f *fakeBlobs) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	f.objects[path] = true
	return nil
}

func (f *fakeBlobs) DownloadURL(ctx context.Context, path string) (*PresignedURL, error) {
	return &PresignedURL{
		URL:       "https://blobs.test/" + path,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}

func (f *fakeBlobs) Delete(ctx context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	if f.failDel {
		return fmt.Errorf("blob backend unavailable")
	}
	delete(f.objects, path)
	return nil
}

// newTestService wires a Service against the fakes with sequential node ids.
func newTestService(repo *fakeRepo, blobs *fakeBlobs) *Service {
	svc, err := NewService(repo, repo, blobs, testLogger())
	if err != nil {
		panic(err)
	}

	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("node-%016d-", seq)[:21]
	}
	return svc
}
