package files

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested node does not exist.
	ErrNotFound = errors.New("file or folder not found")

	// ErrParentNotFound is returned when a referenced parent is absent or not a folder.
	ErrParentNotFound = errors.New("parent folder not found")

	// ErrForbidden is returned when the requester is authenticated but not
	// allowed to perform the operation on this node.
	ErrForbidden = errors.New("you do not have permission to access this file or folder")

	// ErrOwnParent is returned when a folder is reparented onto itself.
	ErrOwnParent = errors.New("cannot set a folder as its own parent")

	// ErrCycle is returned when a reparent would make a folder its own descendant.
	ErrCycle = errors.New("cannot move a folder into one of its descendants")

	// ErrUnknownUsers is returned when a share targets at least one unresolvable user.
	ErrUnknownUsers = errors.New("one or more users do not exist")

	// ErrStorage wraps repository and blob-gateway failures.
	ErrStorage = errors.New("storage unavailable")
)

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
