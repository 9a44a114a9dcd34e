package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stackql/stackql-deploy/pkg/exportstore"
)

// mockS3Server simulates the S3 object API for testing.
type mockS3Server struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func newMockS3Server() *mockS3Server {
	return &mockS3Server{objects: make(map[string][]byte)}
}

func (m *mockS3Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")

	switch r.Method {
	case http.MethodGet:
		data, ok := m.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		m.objects[key] = data
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, endpoint string) exportstore.Store {
	t.Helper()
	s, err := NewStore(map[string]string{
		"bucket":           "test-bucket",
		"region":           "us-east-1",
		"endpoint":         endpoint,
		"force_path_style": "true",
		"access_key":       "test",
		"secret_key":       "test",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestNewStore_RequiresBucket(t *testing.T) {
	_, err := NewStore(map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}

func TestStore_ReadWrite(t *testing.T) {
	mock := newMockS3Server()
	server := httptest.NewServer(mock)
	defer server.Close()

	s := newTestStore(t, server.URL)
	ctx := context.Background()

	testData := []byte(`{"vpc_id": "vpc-123"}`)
	if err := s.Write(ctx, "stacks/dev.json", bytes.NewReader(testData)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader, err := s.Read(ctx, "stacks/dev.json")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read all failed: %v", err)
	}
	if !bytes.Equal(data, testData) {
		t.Errorf("expected %s, got %s", testData, data)
	}
}

func TestStore_ReadNotFound(t *testing.T) {
	mock := newMockS3Server()
	server := httptest.NewServer(mock)
	defer server.Close()

	s := newTestStore(t, server.URL)

	_, err := s.Read(context.Background(), "missing.json")
	if err != exportstore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
