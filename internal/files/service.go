package files

import (
	"context"
	"io"
	"time"

	"filevault/internal/database"
	"filevault/internal/models"

	"github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog"
)

// Repository is the durable node store the engine runs against.
// *database.Store satisfies it.
type Repository interface {
	CreateNode(ctx context.Context, arg database.CreateNodeParams) (*models.Node, error)
	GetNodeByID(ctx context.Context, id string) (*models.Node, error)
	GetChildren(ctx context.Context, parentID string) ([]models.Node, error)
	RenameNode(ctx context.Context, id string, newName string) (bool, error)
	MoveNode(ctx context.Context, id string, newParentID *string) (bool, error)
	DeleteNodes(ctx context.Context, ids []string) (int64, error)
	AddShares(ctx context.Context, nodeID string, userIDs []int64) error
	RemoveShare(ctx context.Context, nodeID string, userID int64) error
	ListNodes(ctx context.Context, arg database.ListNodesParams) ([]models.Node, error)
	CountNodes(ctx context.Context, arg database.ListNodesParams) (int64, error)
}

// UserDirectory resolves share targets. *database.Store satisfies it.
type UserDirectory interface {
	CountUsersByIDs(ctx context.Context, ids []int64) (int64, error)
}

// PresignedURL is a time-limited locator for blob content.
type PresignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BlobStore is the binary content gateway. Object metadata lives in the
// Repository; the engine only issues deletes and download locators here.
type BlobStore interface {
	Put(ctx context.Context, path string, body io.Reader, contentType string) error
	DownloadURL(ctx context.Context, path string) (*PresignedURL, error)
	Delete(ctx context.Context, path string) error
}

// Service is the single authority for state-changing and access-checking
// operations on the node tree. It holds no mutable state of its own; all
// dependencies are injected.
type Service struct {
	repo  Repository
	users UserDirectory
	blobs BlobStore
	log   zerolog.Logger
	newID func() string
}

func NewService(repo Repository, users UserDirectory, blobs BlobStore, log zerolog.Logger) (*Service, error) {
	generateID, err := nanoid.Standard(21)
	if err != nil {
		return nil, err
	}

	return &Service{
		repo:  repo,
		users: users,
		blobs: blobs,
		log:   log,
		newID: generateID,
	}, nil
}

// checkParentAccess loads the parent folder and verifies the requester may
// create nodes inside it (owner or shared-with).
func (s *Service) checkParentAccess(ctx context.Context, requesterID int64, parentID string) (*models.Node, error) {
	parent, err := s.repo.GetNodeByID(ctx, parentID)
	if err != nil {
		return nil, storageErr(err)
	}
	if parent == nil || !parent.IsFolder {
		return nil, ErrParentNotFound
	}
	if !parent.CanRead(requesterID) {
		return nil, ErrForbidden
	}
	return parent, nil
}

// CreateFolder creates a folder owned by the requester, optionally inside an
// existing parent folder the requester has access to.
func (s *Service) CreateFolder(ctx context.Context, requesterID int64, name string, parentID *string) (*models.Node, error) {
	if parentID != nil {
		if _, err := s.checkParentAccess(ctx, requesterID, *parentID); err != nil {
			return nil, err
		}
	}

	node, err := s.repo.CreateNode(ctx, database.CreateNodeParams{
		ID:       s.newID(),
		OwnerID:  requesterID,
		ParentID: parentID,
		Name:     name,
		IsFolder: true,
	})
	if err != nil {
		return nil, storageErr(err)
	}

	return node, nil
}

type CreateFileParams struct {
	Name      string
	MimeType  string
	SizeBytes int64
	ParentID  *string
	// BlobPath is produced by the caller after a successful blob upload;
	// the engine records it and never performs the upload itself.
	BlobPath string
}

// CreateFile records an uploaded file in the tree, applying the same parent
// access check as CreateFolder.
func (s *Service) CreateFile(ctx context.Context, requesterID int64, arg CreateFileParams) (*models.Node, error) {
	if arg.ParentID != nil {
		if _, err := s.checkParentAccess(ctx, requesterID, *arg.ParentID); err != nil {
			return nil, err
		}
	}

	node, err := s.repo.CreateNode(ctx, database.CreateNodeParams{
		ID:        s.newID(),
		OwnerID:   requesterID,
		ParentID:  arg.ParentID,
		Name:      arg.Name,
		IsFolder:  false,
		MimeType:  &arg.MimeType,
		SizeBytes: arg.SizeBytes,
		BlobPath:  &arg.BlobPath,
	})
	if err != nil {
		return nil, storageErr(err)
	}

	return node, nil
}

// Get returns a node the requester may read (owner or shared-with).
func (s *Service) Get(ctx context.Context, requesterID int64, nodeID string) (*models.Node, error) {
	node, err := s.repo.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, storageErr(err)
	}
	if node == nil {
		return nil, ErrNotFound
	}
	if !node.CanRead(requesterID) {
		return nil, ErrForbidden
	}
	return node, nil
}

// getOwned returns a node the requester owns. Mutations are owner-only.
func (s *Service) getOwned(ctx context.Context, requesterID int64, nodeID string) (*models.Node, error) {
	node, err := s.repo.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, storageErr(err)
	}
	if node == nil {
		return nil, ErrNotFound
	}
	if node.OwnerID != requesterID {
		return nil, ErrForbidden
	}
	return node, nil
}

func (s *Service) Rename(ctx context.Context, requesterID int64, nodeID string, newName string) (*models.Node, error) {
	if _, err := s.getOwned(ctx, requesterID, nodeID); err != nil {
		return nil, err
	}

	if _, err := s.repo.RenameNode(ctx, nodeID, newName); err != nil {
		return nil, storageErr(err)
	}

	node, err := s.repo.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, storageErr(err)
	}
	return node, nil
}

// Move reparents a node. A nil newParentID moves it to root level. The new
// parent must be an existing folder owned by the requester, must not be the
// node itself, and must not lie inside the node's own subtree.
func (s *Service) Move(ctx context.Context, requesterID int64, nodeID string, newParentID *string) (*models.Node, error) {
	node, err := s.getOwned(ctx, requesterID, nodeID)
	if err != nil {
		return nil, err
	}

	if newParentID != nil {
		// Only folders can be their own parent candidate; for a file the
		// target simply fails the folder lookup below.
		if node.IsFolder && *newParentID == node.ID {
			return nil, ErrOwnParent
		}

		parent, err := s.repo.GetNodeByID(ctx, *newParentID)
		if err != nil {
			return nil, storageErr(err)
		}
		if parent == nil || !parent.IsFolder {
			return nil, ErrParentNotFound
		}
		if parent.OwnerID != requesterID {
			return nil, ErrForbidden
		}

		if node.IsFolder {
			if err := s.checkNoCycle(ctx, node.ID, parent); err != nil {
				return nil, err
			}
		}
	}

	if _, err := s.repo.MoveNode(ctx, nodeID, newParentID); err != nil {
		return nil, storageErr(err)
	}

	moved, err := s.repo.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, storageErr(err)
	}
	return moved, nil
}

// checkNoCycle walks the ancestor chain of the target parent. If nodeID shows
// up, attaching there would make the node its own ancestor.
func (s *Service) checkNoCycle(ctx context.Context, nodeID string, parent *models.Node) error {
	seen := map[string]bool{parent.ID: true}

	cur := parent
	for cur.ParentID != nil {
		ancestorID := *cur.ParentID
		if ancestorID == nodeID {
			return ErrCycle
		}
		if seen[ancestorID] {
			// Corrupt chain; refuse rather than loop forever.
			return ErrCycle
		}
		seen[ancestorID] = true

		next, err := s.repo.GetNodeByID(ctx, ancestorID)
		if err != nil {
			return storageErr(err)
		}
		if next == nil {
			break
		}
		cur = next
	}

	return nil
}

// Delete removes a node and, for folders, every descendant. Blob content is
// deleted best-effort: a failed blob delete is logged and never blocks the
// metadata removal.
func (s *Service) Delete(ctx context.Context, requesterID int64, nodeID string) error {
	node, err := s.getOwned(ctx, requesterID, nodeID)
	if err != nil {
		return err
	}

	subtree, err := s.collectSubtree(ctx, node)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(subtree))
	for i := range subtree {
		n := &subtree[i]
		ids = append(ids, n.ID)

		if n.IsFolder || n.BlobPath == nil {
			continue
		}
		if err := s.blobs.Delete(ctx, *n.BlobPath); err != nil {
			s.log.Warn().Err(err).
				Str("node_id", n.ID).
				Str("blob_path", *n.BlobPath).
				Msg("failed to delete blob content, metadata delete continues")
		}
	}

	if _, err := s.repo.DeleteNodes(ctx, ids); err != nil {
		return storageErr(err)
	}

	return nil
}

// collectSubtree enumerates the node and all descendants breadth-first.
func (s *Service) collectSubtree(ctx context.Context, root *models.Node) ([]models.Node, error) {
	subtree := []models.Node{*root}

	queue := []string{}
	if root.IsFolder {
		queue = append(queue, root.ID)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		children, err := s.repo.GetChildren(ctx, id)
		if err != nil {
			return nil, storageErr(err)
		}

		for _, child := range children {
			subtree = append(subtree, child)
			if child.IsFolder {
				queue = append(queue, child.ID)
			}
		}
	}

	return subtree, nil
}

// Share grants read access to every listed user. All ids must resolve to
// existing users. Sharing with the owner or an already-shared user is a
// silent no-op.
func (s *Service) Share(ctx context.Context, requesterID int64, nodeID string, userIDs []int64) (*models.Node, error) {
	if _, err := s.getOwned(ctx, requesterID, nodeID); err != nil {
		return nil, err
	}

	distinct := make([]int64, 0, len(userIDs))
	seen := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}

	count, err := s.users.CountUsersByIDs(ctx, distinct)
	if err != nil {
		return nil, storageErr(err)
	}
	if count != int64(len(distinct)) {
		return nil, ErrUnknownUsers
	}

	targets := distinct[:0]
	for _, id := range distinct {
		if id != requesterID {
			targets = append(targets, id)
		}
	}

	if err := s.repo.AddShares(ctx, nodeID, targets); err != nil {
		return nil, storageErr(err)
	}

	node, err := s.repo.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, storageErr(err)
	}
	return node, nil
}

// Unshare revokes a user's access. Revoking an absent share succeeds.
func (s *Service) Unshare(ctx context.Context, requesterID int64, nodeID string, userID int64) (*models.Node, error) {
	if _, err := s.getOwned(ctx, requesterID, nodeID); err != nil {
		return nil, err
	}

	if err := s.repo.RemoveShare(ctx, nodeID, userID); err != nil {
		return nil, storageErr(err)
	}

	node, err := s.repo.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, storageErr(err)
	}
	return node, nil
}

// Presign issues a fresh time-limited download locator for a file node.
// Folders yield nil. The caller is responsible for having checked access.
func (s *Service) Presign(ctx context.Context, node *models.Node) (*PresignedURL, error) {
	if node.IsFolder || node.BlobPath == nil {
		return nil, nil
	}

	url, err := s.blobs.DownloadURL(ctx, *node.BlobPath)
	if err != nil {
		return nil, storageErr(err)
	}
	return url, nil
}
