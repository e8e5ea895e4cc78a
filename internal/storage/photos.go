package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/supabase-community/supabase-go"
)

// Photos stores uploaded applicant photos and serves back a URL for them.
type Photos interface {
	UploadPhoto(ctx context.Context, key, contentType string, data []byte) error
	PhotoURL(key string) string
}

// Supabase stores photos in a Supabase storage bucket.
type Supabase struct {
	client  *supabase.Client
	baseURL string
	bucket  string
}

func NewSupabase(baseURL, serviceRoleKey, bucket string) (*Supabase, error) {
	if baseURL == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(baseURL, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Supabase{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
	}, nil
}

func (s *Supabase) UploadPhoto(_ context.Context, key, _ string, data []byte) error {
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// PhotoURL returns the public object URL. The bucket is expected to be public.
func (s *Supabase) PhotoURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

// Memory keeps photos in process memory. Used when no bucket is configured.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) UploadPhoto(_ context.Context, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) PhotoURL(key string) string {
	return "/photos/" + key
}

// Photo returns a stored blob, or nil when the key is unknown.
func (m *Memory) Photo(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[key]
}
