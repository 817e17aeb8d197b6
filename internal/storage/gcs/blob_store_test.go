package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, prefix string) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "archive-bucket", Prefix: prefix})
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	s := &BlobStore{prefix: "archives"}
	assert.Equal(t, "archives/pub/metadata.json", s.ObjectName("pub/metadata.json"))
	s = &BlobStore{}
	assert.Equal(t, "pub/metadata.json", s.ObjectName("/pub/metadata.json"))
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/archive-bucket/o")
		assert.Equal(t, "archives/pub/posts/a.md", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "# Hello")
		fmt.Fprintln(w, `{"name": "archives/pub/posts/a.md", "bucket": "archive-bucket"}`)
	})
	store := newTestStore(t, handler, "archives")

	uri, err := store.PutObject(context.Background(), "pub/posts/a.md", "text/markdown", strings.NewReader("# Hello"))

	require.NoError(t, err)
	assert.Equal(t, "gs://archive-bucket/archives/pub/posts/a.md", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := newTestStore(t, handler, "")

	_, err := store.PutObject(context.Background(), "pub/posts/a.md", "text/markdown", strings.NewReader("x"))

	assert.Error(t, err)
}

func TestPutObjectEmptyPath(t *testing.T) {
	t.Parallel()

	store := &BlobStore{bucket: "b"}
	_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	assert.Error(t, err)
}
