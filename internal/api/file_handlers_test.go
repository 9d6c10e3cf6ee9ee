package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"filevault/internal/auth"
	"filevault/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func authedRequest(method, target string, body io.Reader, claims *auth.AppClaims) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(context.WithValue(req.Context(), userContextKey, claims))
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func createFolderAPI(t *testing.T, claims *auth.AppClaims, name string, parent *string) models.Node {
	t.Helper()

	body, err := json.Marshal(CreateFolderRequest{Name: name, Parent: parent})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	testServer.CreateFolderHandler(rr, authedRequest("POST", "/api/files/folders", bytes.NewReader(body), claims))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Data models.Node `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Data
}

func uploadFileAPI(t *testing.T, claims *auth.AppClaims, filename, content string, parent *string) models.Node {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if parent != nil {
		require.NoError(t, mw.WriteField("parent", *parent))
	}
	require.NoError(t, mw.Close())

	req := authedRequest("POST", "/api/files", &buf, claims)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	testServer.UploadFileHandler(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Data struct {
			File models.Node `json:"file"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Data.File
}

func TestCreateFolderHandler(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Project Files", nil)

	require.Equal(t, "Project Files", folder.Name)
	require.True(t, folder.IsFolder)
	require.Equal(t, ownerClaims.UserID, folder.OwnerID)
	require.Len(t, folder.ID, 21)

	child := createFolderAPI(t, ownerClaims, "Drafts", &folder.ID)
	require.Equal(t, folder.ID, *child.ParentID)
}

func TestCreateFolderHandlerValidation(t *testing.T) {
	rr := httptest.NewRecorder()
	body, _ := json.Marshal(CreateFolderRequest{Name: "   "})
	testServer.CreateFolderHandler(rr, authedRequest("POST", "/api/files/folders", bytes.NewReader(body), ownerClaims))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, decodeResponse(t, rr).Errors, "name")
}

func TestCreateFolderHandlerMissingParent(t *testing.T) {
	missing := "no-such-parent-000000"
	body, _ := json.Marshal(CreateFolderRequest{Name: "Orphan", Parent: &missing})

	rr := httptest.NewRecorder()
	testServer.CreateFolderHandler(rr, authedRequest("POST", "/api/files/folders", bytes.NewReader(body), ownerClaims))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadFileHandler(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Uploads", nil)
	file := uploadFileAPI(t, ownerClaims, "report.txt", "quarterly numbers", &folder.ID)

	require.Equal(t, "report.txt", file.Name)
	require.False(t, file.IsFolder)
	require.Equal(t, folder.ID, *file.ParentID)
	require.Equal(t, int64(len("quarterly numbers")), file.SizeBytes)
}

func TestUploadFileHandlerNoFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("parent", ""))
	require.NoError(t, mw.Close())

	req := authedRequest("POST", "/api/files", &buf, ownerClaims)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	testServer.UploadFileHandler(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "No file uploaded", decodeResponse(t, rr).Message)
}

func TestGetFileHandler(t *testing.T) {
	file := uploadFileAPI(t, ownerClaims, "readme.md", "hello", nil)

	req := withURLParams(
		authedRequest("GET", "/api/files/"+file.ID, nil, ownerClaims),
		map[string]string{"id": file.ID})
	rr := httptest.NewRecorder()
	testServer.GetFileHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			File        models.Node      `json:"file"`
			DownloadURL *json.RawMessage `json:"downloadUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, file.ID, resp.Data.File.ID)
	require.NotNil(t, resp.Data.DownloadURL)

	// A stranger gets 403, a missing id 404.
	req = withURLParams(
		authedRequest("GET", "/api/files/"+file.ID, nil, otherClaims),
		map[string]string{"id": file.ID})
	rr = httptest.NewRecorder()
	testServer.GetFileHandler(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	missing := "missing-file-00000000"
	req = withURLParams(
		authedRequest("GET", "/api/files/"+missing, nil, ownerClaims),
		map[string]string{"id": missing})
	rr = httptest.NewRecorder()
	testServer.GetFileHandler(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListFilesHandler(t *testing.T) {
	// Fresh user so the listing is not polluted by other tests.
	claims, err := seedUser(context.Background(), "Lister", "lister@api.test", models.RoleUser, testServer.config)
	require.NoError(t, err)

	folder := createFolderAPI(t, claims, "Music", nil)
	uploadFileAPI(t, claims, "song.mp3", "audio-bytes", &folder.ID)
	uploadFileAPI(t, claims, "cover.png", "image-bytes", nil)

	rr := httptest.NewRecorder()
	testServer.ListFilesHandler(rr, authedRequest("GET", "/api/files?page=1&limit=10", nil, claims))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Success    bool       `json:"success"`
		Count      int64      `json:"count"`
		Pagination Pagination `json:"pagination"`
		Data       []struct {
			models.Node
			DownloadURL *struct {
				URL string `json:"url"`
			} `json:"downloadUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, int64(3), resp.Count)
	require.Equal(t, 1, resp.Pagination.Page)
	require.Equal(t, int64(1), resp.Pagination.TotalPages)

	// Folders first, then names ascending; files carry download locators.
	require.Equal(t, "Music", resp.Data[0].Name)
	require.Nil(t, resp.Data[0].DownloadURL)
	require.Equal(t, "cover.png", resp.Data[1].Name)
	require.NotNil(t, resp.Data[1].DownloadURL)

	// Root-level only.
	rr = httptest.NewRecorder()
	testServer.ListFilesHandler(rr, authedRequest("GET", "/api/files?parent=", nil, claims))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(2), resp.Count)

	// Inside the folder.
	rr = httptest.NewRecorder()
	testServer.ListFilesHandler(rr, authedRequest("GET", "/api/files?parent="+folder.ID, nil, claims))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.Count)
	require.Equal(t, "song.mp3", resp.Data[0].Name)

	// Folders only.
	rr = httptest.NewRecorder()
	testServer.ListFilesHandler(rr, authedRequest("GET", "/api/files?isFolder=true", nil, claims))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.Count)
}

func TestListFilesHandlerBadQuery(t *testing.T) {
	rr := httptest.NewRecorder()
	testServer.ListFilesHandler(rr, authedRequest("GET", "/api/files?isFolder=maybe&page=one", nil, ownerClaims))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeResponse(t, rr)
	require.Contains(t, resp.Errors, "isFolder")
	require.Contains(t, resp.Errors, "page")
}

func TestUpdateFileHandlerRename(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Before Rename", nil)

	newName := "After Rename"
	body, _ := json.Marshal(UpdateFileRequest{Name: &newName})
	req := withURLParams(
		authedRequest("PUT", "/api/files/"+folder.ID, bytes.NewReader(body), ownerClaims),
		map[string]string{"id": folder.ID})
	rr := httptest.NewRecorder()
	testServer.UpdateFileHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data models.Node `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, newName, resp.Data.Name)
}

func TestUpdateFileHandlerMove(t *testing.T) {
	src := createFolderAPI(t, ownerClaims, "Move Src", nil)
	dst := createFolderAPI(t, ownerClaims, "Move Dst", nil)
	file := uploadFileAPI(t, ownerClaims, "nomad.txt", "x", &src.ID)

	body, _ := json.Marshal(UpdateFileRequest{Parent: &dst.ID})
	req := withURLParams(
		authedRequest("PUT", "/api/files/"+file.ID, bytes.NewReader(body), ownerClaims),
		map[string]string{"id": file.ID})
	rr := httptest.NewRecorder()
	testServer.UpdateFileHandler(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data models.Node `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, dst.ID, *resp.Data.ParentID)

	// Empty parent moves to root.
	empty := ""
	body, _ = json.Marshal(UpdateFileRequest{Parent: &empty})
	req = withURLParams(
		authedRequest("PUT", "/api/files/"+file.ID, bytes.NewReader(body), ownerClaims),
		map[string]string{"id": file.ID})
	rr = httptest.NewRecorder()
	testServer.UpdateFileHandler(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Nil(t, resp.Data.ParentID)
}

func TestUpdateFileHandlerCycle(t *testing.T) {
	outer := createFolderAPI(t, ownerClaims, "Cycle Outer", nil)
	inner := createFolderAPI(t, ownerClaims, "Cycle Inner", &outer.ID)

	body, _ := json.Marshal(UpdateFileRequest{Parent: &inner.ID})
	req := withURLParams(
		authedRequest("PUT", "/api/files/"+outer.ID, bytes.NewReader(body), ownerClaims),
		map[string]string{"id": outer.ID})
	rr := httptest.NewRecorder()
	testServer.UpdateFileHandler(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateFileHandlerNoOperation(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Untouched", nil)

	req := withURLParams(
		authedRequest("PUT", "/api/files/"+folder.ID, bytes.NewReader([]byte(`{}`)), ownerClaims),
		map[string]string{"id": folder.ID})
	rr := httptest.NewRecorder()
	testServer.UpdateFileHandler(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteFileHandler(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Delete Me", nil)
	file := uploadFileAPI(t, ownerClaims, "victim.txt", "x", &folder.ID)

	req := withURLParams(
		authedRequest("DELETE", "/api/files/"+folder.ID, nil, ownerClaims),
		map[string]string{"id": folder.ID})
	rr := httptest.NewRecorder()
	testServer.DeleteFileHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, decodeResponse(t, rr).Success)

	for _, id := range []string{folder.ID, file.ID} {
		node, err := testStore.GetNodeByID(context.Background(), id)
		require.NoError(t, err)
		require.Nil(t, node)
	}
}

func TestDeleteFileHandlerForbidden(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Not Yours", nil)

	req := withURLParams(
		authedRequest("DELETE", "/api/files/"+folder.ID, nil, otherClaims),
		map[string]string{"id": folder.ID})
	rr := httptest.NewRecorder()
	testServer.DeleteFileHandler(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestShareFileHandler(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Share Target", nil)

	body, _ := json.Marshal(ShareRequest{UserIDs: []int64{otherClaims.UserID}})
	req := withURLParams(
		authedRequest("POST", "/api/files/"+folder.ID+"/share", bytes.NewReader(body), ownerClaims),
		map[string]string{"id": folder.ID})
	rr := httptest.NewRecorder()
	testServer.ShareFileHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data models.Node `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Contains(t, resp.Data.SharedWith, otherClaims.UserID)

	// The recipient can now read it.
	req = withURLParams(
		authedRequest("GET", "/api/files/"+folder.ID, nil, otherClaims),
		map[string]string{"id": folder.ID})
	rr = httptest.NewRecorder()
	testServer.GetFileHandler(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestShareFileHandlerUnknownUser(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Share Strict", nil)

	body, _ := json.Marshal(ShareRequest{UserIDs: []int64{otherClaims.UserID, 999999}})
	req := withURLParams(
		authedRequest("POST", "/api/files/"+folder.ID+"/share", bytes.NewReader(body), ownerClaims),
		map[string]string{"id": folder.ID})
	rr := httptest.NewRecorder()
	testServer.ShareFileHandler(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)

	// Nothing was granted.
	node, err := testStore.GetNodeByID(context.Background(), folder.ID)
	require.NoError(t, err)
	require.Empty(t, node.SharedWith)
}

func TestUnshareFileHandler(t *testing.T) {
	folder := createFolderAPI(t, ownerClaims, "Unshare Target", nil)

	body, _ := json.Marshal(ShareRequest{UserIDs: []int64{otherClaims.UserID}})
	req := withURLParams(
		authedRequest("POST", "/api/files/"+folder.ID+"/share", bytes.NewReader(body), ownerClaims),
		map[string]string{"id": folder.ID})
	rr := httptest.NewRecorder()
	testServer.ShareFileHandler(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	target := fmt.Sprintf("/api/files/%s/share/%d", folder.ID, otherClaims.UserID)
	req = withURLParams(
		authedRequest("DELETE", target, nil, ownerClaims),
		map[string]string{"id": folder.ID, "userId": fmt.Sprintf("%d", otherClaims.UserID)})
	rr = httptest.NewRecorder()
	testServer.UnshareFileHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data models.Node `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Empty(t, resp.Data.SharedWith)

	// Revoking again still succeeds.
	req = withURLParams(
		authedRequest("DELETE", target, nil, ownerClaims),
		map[string]string{"id": folder.ID, "userId": fmt.Sprintf("%d", otherClaims.UserID)})
	rr = httptest.NewRecorder()
	testServer.UnshareFileHandler(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
