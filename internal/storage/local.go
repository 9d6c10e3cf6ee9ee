package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"filevault/internal/files"
)

// LocalStore keeps blob content on the local filesystem. Download locators
// point back at the server's /blobs/ route and carry an HMAC signature with
// an expiry, so they are time-limited just like presigned S3 URLs.
type LocalStore struct {
	basePath  string
	baseURL   string
	secret    []byte
	urlExpiry time.Duration
}

func NewLocalStore(basePath, baseURL, secret string, urlExpiry time.Duration) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, err
	}
	if urlExpiry == 0 {
		urlExpiry = 15 * time.Minute
	}
	return &LocalStore{
		basePath:  basePath,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		secret:    []byte(secret),
		urlExpiry: urlExpiry,
	}, nil
}

func (ls *LocalStore) fullPath(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", fmt.Errorf("empty blob path")
	}
	return filepath.Join(ls.basePath, clean), nil
}

func (ls *LocalStore) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	filePath, err := ls.fullPath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, body)
	return err
}

func (ls *LocalStore) Open(path string) (io.ReadCloser, error) {
	filePath, err := ls.fullPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s not found: %w", path, err)
		}
		return nil, err
	}

	return file, nil
}

func (ls *LocalStore) Delete(ctx context.Context, path string) error {
	filePath, err := ls.fullPath(path)
	if err != nil {
		return err
	}

	err = os.Remove(filePath)
	if os.IsNotExist(err) {
		return nil
	}

	return err
}

func (ls *LocalStore) sign(path string, expires int64) string {
	mac := hmac.New(sha256.New, ls.secret)
	fmt.Fprintf(mac, "%s:%d", path, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (ls *LocalStore) verify(path string, expires int64, signature string) bool {
	if expires < time.Now().Unix() {
		return false
	}
	expected := ls.sign(path, expires)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (ls *LocalStore) DownloadURL(ctx context.Context, path string) (*files.PresignedURL, error) {
	expiresAt := time.Now().Add(ls.urlExpiry)
	expires := expiresAt.Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", ls.sign(path, expires))

	return &files.PresignedURL{
		URL:       fmt.Sprintf("%s/blobs/%s?%s", ls.baseURL, path, q.Encode()),
		ExpiresAt: expiresAt,
	}, nil
}

// ServeHTTP serves signed blob URLs. Mount it at /blobs/.
func (ls *LocalStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/blobs/")
	if path == "" || path == r.URL.Path {
		http.Error(w, "Blob path is required", http.StatusBadRequest)
		return
	}

	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil || !ls.verify(path, expires, r.URL.Query().Get("signature")) {
		http.Error(w, "Invalid or expired download link", http.StatusForbidden)
		return
	}

	blob, err := ls.Open(path)
	if err != nil {
		http.Error(w, "Blob not found", http.StatusNotFound)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
	io.Copy(w, blob)
}
