package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
)

// memoryKV is a map-backed stand-in for the Badger KV store.
type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return v, nil
}

func (m *memoryKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memoryKV) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryKV) Extend(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return interfaces.ErrKeyNotFound
	}
	return nil
}

func newTestService(kv interfaces.KeyValueStorage) *Service {
	return NewService(common.GetLogger(), kv, &common.CrawlerConfig{
		UserAgent:     "CIRABot/1.0",
		RobotsTimeout: 5 * time.Second,
	})
}

func TestAllowed_DisallowedPath(t *testing.T) {
	var fetches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/robots.txt", r.URL.Path)
		fetches++
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin\nCrawl-delay: 2\n"))
	}))
	defer server.Close()

	s := newTestService(newMemoryKV())
	ctx := context.Background()

	allowed, err := s.Allowed(ctx, server.URL+"/admin/users")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = s.Allowed(ctx, server.URL+"/about")
	require.NoError(t, err)
	assert.True(t, allowed)

	delay, err := s.CrawlDelay(ctx, server.URL+"/about")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, delay)

	// All three calls served from one fetch
	assert.Equal(t, 1, fetches)
}

func TestAllowed_MissingRobotsAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	s := newTestService(newMemoryKV())

	allowed, err := s.Allowed(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllowed_ServerErrorAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newTestService(newMemoryKV())

	allowed, err := s.Allowed(context.Background(), server.URL+"/page")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllowed_RebuildsFromKVMirror(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not hit the network when the KV mirror has the file")
	}))
	defer server.Close()

	kv := newMemoryKV()
	serverURL := server.URL
	host := serverURL[len("http://"):]
	require.NoError(t, kv.Set(context.Background(), "robots:"+host, "User-agent: *\nDisallow: /private\n", time.Hour))

	s := newTestService(kv)

	allowed, err := s.Allowed(context.Background(), serverURL+"/private/x")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAllowed_InvalidURL(t *testing.T) {
	s := newTestService(newMemoryKV())
	_, err := s.Allowed(context.Background(), "://not-a-url")
	assert.Error(t, err)
}
