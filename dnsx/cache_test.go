package dnsx_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ckh4nd/MailBeacon/dnsx"
	"github.com/bl4ckh4nd/MailBeacon/types"
)

// mockUpstream tracks how many times ResolveMailServer was called.
type mockUpstream struct {
	server types.MailServer
	err    error
	delay  time.Duration
	calls  atomic.Int64
}

func (m *mockUpstream) ResolveMailServer(_ context.Context, _ string) (types.MailServer, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.server, m.err
}

func TestCache_BasicCaching(t *testing.T) {
	up := &mockUpstream{server: types.MailServer{Exchange: "mx.example.com", Preference: 10}}
	c := dnsx.NewCacheWithResolver(2*time.Second, time.Minute, up)

	// First call: actual resolution
	server, err := c.ResolveMailServer(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "mx.example.com", server.Exchange)
	assert.Equal(t, int64(1), up.calls.Load())

	// Second call: cached
	server, err = c.ResolveMailServer(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "mx.example.com", server.Exchange)
	assert.Equal(t, int64(1), up.calls.Load()) // still 1, no new resolution
}

func TestCache_DifferentDomains(t *testing.T) {
	up := &mockUpstream{server: types.MailServer{Exchange: "mx.test", Preference: 10}}
	c := dnsx.NewCacheWithResolver(2*time.Second, time.Minute, up)

	_, _ = c.ResolveMailServer(context.Background(), "a.com")
	_, _ = c.ResolveMailServer(context.Background(), "b.com")
	assert.Equal(t, int64(2), up.calls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestCache_TTLExpiry(t *testing.T) {
	up := &mockUpstream{server: types.MailServer{Exchange: "mx.test", Preference: 10}}
	c := dnsx.NewCacheWithResolver(2*time.Second, 50*time.Millisecond, up) // short TTL

	_, _ = c.ResolveMailServer(context.Background(), "example.com")
	assert.Equal(t, int64(1), up.calls.Load())

	time.Sleep(100 * time.Millisecond) // wait for expiry

	_, _ = c.ResolveMailServer(context.Background(), "example.com")
	assert.Equal(t, int64(2), up.calls.Load()) // refreshed
}

func TestCache_Singleflight(t *testing.T) {
	up := &mockUpstream{server: types.MailServer{Exchange: "mx.test", Preference: 10}}
	c := dnsx.NewCacheWithResolver(2*time.Second, time.Minute, up)

	// Launch many concurrent resolutions for the same domain
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			server, err := c.ResolveMailServer(context.Background(), "example.com")
			assert.NoError(t, err)
			assert.Equal(t, "mx.test", server.Exchange)
		}()
	}
	wg.Wait()

	// Should have performed only 1 actual resolution
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestCache_CachesErrors(t *testing.T) {
	up := &mockUpstream{err: types.NewError(types.KindNxDomain, "domain bad.com does not exist (NXDOMAIN)")}
	c := dnsx.NewCacheWithResolver(2*time.Second, time.Minute, up)

	_, err := c.ResolveMailServer(context.Background(), "bad.com")
	require.Error(t, err)

	_, err = c.ResolveMailServer(context.Background(), "bad.com")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindNxDomain))
	assert.Equal(t, int64(1), up.calls.Load()) // error was cached
}

func TestCache_WaiterHonorsContext(t *testing.T) {
	up := &mockUpstream{
		server: types.MailServer{Exchange: "mx.test", Preference: 10},
		delay:  300 * time.Millisecond,
	}
	c := dnsx.NewCacheWithResolver(2*time.Second, time.Minute, up)

	go func() {
		_, _ = c.ResolveMailServer(context.Background(), "example.com")
	}()
	time.Sleep(50 * time.Millisecond) // let the first resolution register

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := c.ResolveMailServer(ctx, "example.com")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "waiter should not block until the lookup finishes")
}

func TestCache_InitiatorHonorsContext(t *testing.T) {
	up := &mockUpstream{
		server: types.MailServer{Exchange: "mx.test", Preference: 10},
		delay:  300 * time.Millisecond,
	}
	c := dnsx.NewCacheWithResolver(2*time.Second, time.Minute, up)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := c.ResolveMailServer(ctx, "example.com")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "initiator should not block until the lookup finishes")

	// The query it started still completes and lands in the cache.
	time.Sleep(400 * time.Millisecond)
	server, err := c.ResolveMailServer(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "mx.test", server.Exchange)
	assert.Equal(t, int64(1), up.calls.Load())
}
