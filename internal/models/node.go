package models

import "time"

// Node is a single entry in the file tree: a folder or a file.
// BlobPath is the object-storage locator and is never sent to clients.
type Node struct {
	ID         string    `json:"id"`
	OwnerID    int64     `json:"owner_id"`
	ParentID   *string   `json:"parent_id"`
	Name       string    `json:"name"`
	IsFolder   bool      `json:"is_folder"`
	MimeType   *string   `json:"mime_type,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	BlobPath   *string   `json:"-"`
	SharedWith []int64   `json:"shared_with"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsSharedWith reports whether userID is in the node's shared-with set.
func (n *Node) IsSharedWith(userID int64) bool {
	for _, id := range n.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// CanRead reports whether userID may read the node (owner or shared-with).
func (n *Node) CanRead(userID int64) bool {
	return n.OwnerID == userID || n.IsSharedWith(userID)
}
