package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	returnsapp "github.com/omnisync/backend/internal/application/returns"
	"github.com/omnisync/backend/internal/infrastructure/config"
)

// fakeS3 is a path-style S3 endpoint backed by a map
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	buckets map[string]bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}, buckets: map[string]bool{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if key == "" {
		switch r.Method {
		case http.MethodHead:
			if !f.buckets[bucket] {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodPut:
			f.buckets[bucket] = true
		}
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[path] = body
		f.types[path] = r.Header.Get("Content-Type")
	case http.MethodGet:
		data, ok := f.objects[path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", f.types[path])
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, path)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTestStore(t *testing.T, endpoint string) *S3LabelStore {
	t.Helper()
	store, err := NewS3LabelStore(context.Background(), &config.StorageConfig{
		Bucket:          "labels",
		Region:          "eu-central-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
		KeyPrefix:       "return-labels/",
	}, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	return store
}

func TestNewS3LabelStore_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3LabelStore(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3LabelStore(context.Background(), &config.StorageConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("half configured credentials return error", func(t *testing.T) {
		_, err := NewS3LabelStore(context.Background(), &config.StorageConfig{Bucket: "b", AccessKeyID: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("valid config creates store", func(t *testing.T) {
		store := newTestStore(t, "localhost:9000")
		assert.Equal(t, "labels", store.GetBucket())
	})
}

func TestS3LabelStore_PutGetDelete(t *testing.T) {
	fake := newFakeS3()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store := newTestStore(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.EnsureBucket(ctx), "existing bucket is fine")

	pdf := []byte("%PDF-1.4 return label")
	require.NoError(t, store.Put(ctx, "ret-1/label.pdf", "application/pdf", pdf))
	assert.Contains(t, fake.objects, "labels/return-labels/ret-1/label.pdf")

	data, contentType, err := store.Get(ctx, "ret-1/label.pdf")
	require.NoError(t, err)
	assert.Equal(t, pdf, data)
	assert.Equal(t, "application/pdf", contentType)

	require.NoError(t, store.Delete(ctx, "ret-1/label.pdf"))
	_, _, err = store.Get(ctx, "ret-1/label.pdf")
	assert.ErrorIs(t, err, returnsapp.ErrLabelNotFound)
}

func TestS3LabelStore_Validation(t *testing.T) {
	store := newTestStore(t, "http://127.0.0.1:1")
	ctx := context.Background()

	assert.Error(t, store.Put(ctx, "", "application/pdf", nil))
	assert.Error(t, store.Delete(ctx, ""))
	_, _, err := store.Get(ctx, "")
	assert.ErrorIs(t, err, returnsapp.ErrLabelNotFound)
}

func TestMemoryLabelStore(t *testing.T) {
	store := NewMemoryLabelStore()
	ctx := context.Background()

	data := []byte("label")
	require.NoError(t, store.Put(ctx, "k", "application/pdf", data))
	data[0] = 'X'

	got, contentType, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("label"), got, "stored copy is isolated from the caller")
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, 1, store.Len())

	_, _, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, returnsapp.ErrLabelNotFound)
	assert.Error(t, store.Put(ctx, "", "", nil))
}

func TestNewLabelStore_FallsBackToMemory(t *testing.T) {
	store, err := NewLabelStore(context.Background(), config.StorageConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLabelStore{}, store)
}
