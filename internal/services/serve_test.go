package services

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livedown/internal/config"
	"github.com/conneroisu/livedown/internal/errors"
	"github.com/conneroisu/livedown/internal/server"
)

// syncBuffer guards a bytes.Buffer written by Serve and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setupTestServe(t *testing.T, open bool, opener BrowserOpener) (*ServeService, string, chan *server.Server) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# Hi"), 0o644))

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Open = open
	cfg.Browser.Command = "'google chrome' --incognito"

	ready := make(chan *server.Server, 1)
	svc := NewServeService(cfg, nil,
		WithBrowserOpener(opener),
		WithReadyHook(func(s *server.Server) { ready <- s }),
	)
	return svc, path, ready
}

func waitReady(t *testing.T, ready chan *server.Server) *server.Server {
	t.Helper()
	select {
	case srv := <-ready:
		return srv
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
		return nil
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	var gotURI, gotCommand string
	opener := func(ctx context.Context, uri, command string) error {
		gotURI, gotCommand = uri, command
		return nil
	}
	svc, path, ready := setupTestServe(t, true, opener)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- svc.Serve(ctx, ServeOptions{Path: path}) }()

	srv := waitReady(t, ready)
	assert.Equal(t, server.StateRunning, srv.State())
	assert.Equal(t, srv.URI(), gotURI)
	assert.Equal(t, "'google chrome' --incognito", gotCommand)

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, server.StateStopped, srv.State())
}

func TestServeBrowserFailureIsNotFatal(t *testing.T) {
	opener := func(ctx context.Context, uri, command string) error {
		return os.ErrNotExist
	}
	svc, path, ready := setupTestServe(t, true, opener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	result := make(chan error, 1)
	go func() { result <- svc.Serve(ctx, ServeOptions{Path: path, Out: out}) }()

	srv := waitReady(t, ready)
	assert.Equal(t, "Cannot open browser, please visit "+srv.URI()+"\n", out.String())

	cancel()
	assert.NoError(t, <-result)
}

func TestServeSkipsBrowserUnlessAsked(t *testing.T) {
	called := false
	opener := func(ctx context.Context, uri, command string) error {
		called = true
		return nil
	}
	svc, path, ready := setupTestServe(t, false, opener)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- svc.Serve(ctx, ServeOptions{Path: path}) }()
	waitReady(t, ready)

	cancel()
	assert.NoError(t, <-result)
	assert.False(t, called)
}

func TestServeReturnsAfterRemoteStop(t *testing.T) {
	svc, path, ready := setupTestServe(t, false, nil)

	result := make(chan error, 1)
	go func() { result <- svc.Serve(context.Background(), ServeOptions{Path: path}) }()
	srv := waitReady(t, ready)

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	require.NoError(t, StopRemote(context.Background(), host, port, 5*time.Second))

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after kill")
	}
	assert.Equal(t, server.StateStopped, srv.State())
}

func TestServeStartFailures(t *testing.T) {
	svc, _, _ := setupTestServe(t, false, nil)

	err := svc.Serve(context.Background(), ServeOptions{})
	assert.ErrorIs(t, err, errors.ErrMissingPath)

	err = svc.Serve(context.Background(), ServeOptions{Path: filepath.Join(t.TempDir(), "missing.md")})
	assert.ErrorIs(t, err, errors.ErrDocumentUnavailable)
}

func TestStopRemoteWithoutServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	err = StopRemote(context.Background(), "127.0.0.1", port, time.Second)
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeShutdown))
}
