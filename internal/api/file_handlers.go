package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"filevault/internal/files"
	"filevault/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CreateFolderRequest struct {
	Name   string  `json:"name" validate:"required,max=255"`
	Parent *string `json:"parent" validate:"omitempty,len=21"`
}

// fileView is a node annotated with a fresh download locator for files.
type fileView struct {
	models.Node
	DownloadURL *files.PresignedURL `json:"downloadUrl,omitempty"`
}

func (s *Server) annotate(r *http.Request, node *models.Node) fileView {
	view := fileView{Node: *node}

	if !node.IsFolder {
		url, err := s.svc.Presign(r.Context(), node)
		if err != nil {
			s.log.Warn().Err(err).Str("node_id", node.ID).Msg("failed to presign download url")
		} else {
			view.DownloadURL = url
		}
	}

	return view
}

// @Summary      Create a folder
// @Tags         files
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateFolderRequest  true  "Folder details"
// @Success      201      {object}  Response
// @Failure      400      {object}  Response
// @Failure      403      {object}  Response
// @Failure      404      {object}  Response
// @Router       /files/folders [post]
func (s *Server) CreateFolderHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	if fields := validateStruct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	folder, err := s.svc.CreateFolder(r.Context(), claims.UserID, req.Name, req.Parent)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Folder created successfully",
		Data:    folder,
	})
}

// @Summary      Upload a file
// @Description  Accepts multipart form data with the binary under "file" and an optional "parent" folder id.
// @Tags         files
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file    formData  file    true   "File content"
// @Param        parent  formData  string  false  "Parent folder id"
// @Success      201     {object}  Response
// @Failure      400     {object}  Response
// @Failure      403     {object}  Response
// @Failure      404     {object}  Response
// @Router       /files [post]
func (s *Server) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<30)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Error parsing multipart form")
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	var parentID *string
	if parent := r.FormValue("parent"); parent != "" {
		if len(parent) != 21 {
			writeValidationErrors(w, map[string]string{"parent": "Must be exactly 21 characters long"})
			return
		}
		parentID = &parent
	}

	mimeType := handler.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// Unique object name, so uploads never collide in blob storage.
	ext := filepath.Ext(handler.Filename)
	blobPath := fmt.Sprintf("%d/%d-%s%s", claims.UserID, time.Now().UnixMilli(), uuid.New().String(), ext)

	if err := s.blobs.Put(r.Context(), blobPath, file, mimeType); err != nil {
		s.log.Error().Err(err).Str("blob_path", blobPath).Msg("blob upload failed")
		writeError(w, http.StatusInternalServerError, "Failed to store file content")
		return
	}

	node, err := s.svc.CreateFile(r.Context(), claims.UserID, files.CreateFileParams{
		Name:      handler.Filename,
		MimeType:  mimeType,
		SizeBytes: handler.Size,
		ParentID:  parentID,
		BlobPath:  blobPath,
	})
	if err != nil {
		// The upload already happened; don't leave the blob orphaned.
		if delErr := s.blobs.Delete(r.Context(), blobPath); delErr != nil {
			s.log.Warn().Err(delErr).Str("blob_path", blobPath).Msg("failed to clean up blob after rejected upload")
		}
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "File uploaded successfully",
		Data:    map[string]interface{}{"file": s.annotate(r, node)},
	})
}

// @Summary      List files and folders
// @Description  Returns the requester's visible nodes: owned items plus items shared with them. Folders sort first, then names ascending.
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        search    query     string  false  "Substring match against name and mime type"
// @Param        parent    query     string  false  "Parent folder id; pass empty for root-level items only"
// @Param        isFolder  query     bool    false  "Folders only / files only"
// @Param        shared    query     bool    false  "Only items shared with me"
// @Param        page      query     int     false  "1-indexed page"  default(1)
// @Param        limit     query     int     false  "Page size"        default(10)
// @Success      200       {object}  ListResponse
// @Failure      400       {object}  Response
// @Router       /files [get]
func (s *Server) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	filter, fields := parseListFilter(r)
	if fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	nodes, total, err := s.svc.List(r.Context(), claims.UserID, filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	views := make([]fileView, 0, len(nodes))
	for i := range nodes {
		views = append(views, s.annotate(r, &nodes[i]))
	}

	limit := filter.PageSize()
	totalPages := (total + int64(limit) - 1) / int64(limit)

	writeJSON(w, http.StatusOK, ListResponse{
		Success: true,
		Count:   total,
		Pagination: Pagination{
			Page:       filter.PageNumber(),
			Limit:      limit,
			TotalPages: totalPages,
			Total:      total,
		},
		Data: views,
	})
}

// parseListFilter reads the list query params. The parent param is tri-state:
// absent means any parent, empty or "null" means root-level only, anything
// else is an exact parent id.
func parseListFilter(r *http.Request) (files.Filter, map[string]string) {
	q := r.URL.Query()
	fields := make(map[string]string)

	filter := files.Filter{
		Search: q.Get("search"),
		Page:   1,
		Limit:  10,
	}

	if q.Has("parent") {
		parent := q.Get("parent")
		if parent == "" || parent == "null" {
			filter.RootOnly = true
		} else {
			filter.ParentID = &parent
		}
	}

	if q.Has("isFolder") {
		isFolder, err := strconv.ParseBool(q.Get("isFolder"))
		if err != nil {
			fields["isFolder"] = "Must be a boolean"
		} else {
			filter.IsFolder = &isFolder
		}
	}

	if q.Has("shared") {
		shared, err := strconv.ParseBool(q.Get("shared"))
		if err != nil {
			fields["shared"] = "Must be a boolean"
		} else {
			filter.SharedOnly = shared
		}
	}

	if q.Has("page") {
		page, err := strconv.Atoi(q.Get("page"))
		if err != nil {
			fields["page"] = "Must be an integer"
		} else {
			filter.Page = page
		}
	}

	if q.Has("limit") {
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil {
			fields["limit"] = "Must be an integer"
		} else {
			filter.Limit = limit
		}
	}

	if len(fields) > 0 {
		return filter, fields
	}
	return filter, nil
}

// @Summary      Get a file or folder
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Node id"
// @Success      200  {object}  Response
// @Failure      403  {object}  Response
// @Failure      404  {object}  Response
// @Router       /files/{id} [get]
func (s *Server) GetFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "id")

	node, err := s.svc.Get(r.Context(), claims.UserID, nodeID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var downloadURL *files.PresignedURL
	if !node.IsFolder {
		downloadURL, err = s.svc.Presign(r.Context(), node)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"file":        node,
			"downloadUrl": downloadURL,
		},
	})
}

type UpdateFileRequest struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=255"`
	// Parent moves the node; an empty string moves it to root level.
	Parent *string `json:"parent" validate:"omitempty,max=21"`
}

// @Summary      Rename or move a file or folder
// @Tags         files
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string             true  "Node id"
// @Param        request  body      UpdateFileRequest  true  "Fields to update"
// @Success      200      {object}  Response
// @Failure      400      {object}  Response
// @Failure      403      {object}  Response
// @Failure      404      {object}  Response
// @Router       /files/{id} [put]
func (s *Server) UpdateFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "id")

	var req UpdateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if fields := validateStruct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	if req.Name == nil && req.Parent == nil {
		writeError(w, http.StatusBadRequest, "No update operation specified (provide 'name' or 'parent')")
		return
	}

	var node *models.Node
	var err error

	if req.Name != nil {
		newName := strings.TrimSpace(*req.Name)
		if newName == "" {
			writeValidationErrors(w, map[string]string{"name": "This field is required"})
			return
		}

		node, err = s.svc.Rename(r.Context(), claims.UserID, nodeID, newName)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	if req.Parent != nil {
		var newParent *string
		if *req.Parent != "" {
			newParent = req.Parent
		}

		node, err = s.svc.Move(r.Context(), claims.UserID, nodeID, newParent)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "File or folder updated successfully",
		Data:    node,
	})
}

// @Summary      Delete a file or folder
// @Description  Deleting a folder removes its whole subtree and the blob content of every file in it.
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Node id"
// @Success      200  {object}  Response
// @Failure      403  {object}  Response
// @Failure      404  {object}  Response
// @Router       /files/{id} [delete]
func (s *Server) DeleteFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "id")

	if err := s.svc.Delete(r.Context(), claims.UserID, nodeID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "File or folder deleted successfully",
	})
}

type ShareRequest struct {
	UserIDs []int64 `json:"userIds" validate:"required,min=1,dive,gt=0"`
}

// @Summary      Share a file or folder
// @Description  Grants read access to every listed user. Sharing with yourself or an already-shared user is a no-op.
// @Tags         files
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string        true  "Node id"
// @Param        request  body      ShareRequest  true  "Users to share with"
// @Success      200      {object}  Response
// @Failure      400      {object}  Response
// @Failure      403      {object}  Response
// @Failure      404      {object}  Response
// @Router       /files/{id}/share [post]
func (s *Server) ShareFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "id")

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if fields := validateStruct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	node, err := s.svc.Share(r.Context(), claims.UserID, nodeID, req.UserIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.notifyShared(node, req.UserIDs, claims.UserID)

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "File or folder shared successfully",
		Data:    node,
	})
}

// @Summary      Unshare a file or folder
// @Description  Revokes a user's access. Revoking an absent share still succeeds.
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Node id"
// @Param        userId  path      int     true  "User to revoke"
// @Success      200     {object}  Response
// @Failure      400     {object}  Response
// @Failure      403     {object}  Response
// @Failure      404     {object}  Response
// @Router       /files/{id}/share/{userId} [delete]
func (s *Server) UnshareFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "id")

	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	node, svcErr := s.svc.Unshare(r.Context(), claims.UserID, nodeID, userID)
	if svcErr != nil {
		s.writeServiceError(w, svcErr)
		return
	}

	s.notifyUnshared(node, userID)

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "File or folder unshared successfully",
		Data:    node,
	})
}

func (s *Server) notifyShared(node *models.Node, userIDs []int64, sharerID int64) {
	if s.wsHub == nil {
		return
	}

	event, _ := json.Marshal(map[string]interface{}{
		"event_type": "node_shared_with_you",
		"payload":    map[string]interface{}{"node": node, "sharer_id": sharerID},
	})

	for _, userID := range userIDs {
		if userID != sharerID {
			s.wsHub.PublishEvent(userID, event)
		}
	}
}

func (s *Server) notifyUnshared(node *models.Node, userID int64) {
	if s.wsHub == nil {
		return
	}

	event, _ := json.Marshal(map[string]interface{}{
		"event_type": "share_revoked_for_you",
		"payload":    map[string]string{"node_id": node.ID},
	})

	s.wsHub.PublishEvent(userID, event)
}
