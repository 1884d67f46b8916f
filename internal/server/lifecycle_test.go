package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
)

type blockingService struct {
	name    string
	started atomic.Bool
	stop    chan struct{}
	once    sync.Once
	stopLog *[]string
	mu      *sync.Mutex
}

func newBlockingService(name string, log *[]string, mu *sync.Mutex) *blockingService {
	return &blockingService{name: name, stop: make(chan struct{}), stopLog: log, mu: mu}
}

func (s *blockingService) Start() error {
	s.started.Store(true)
	<-s.stop
	return nil
}

func (s *blockingService) Stop(context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		*s.stopLog = append(*s.stopLog, s.name)
		s.mu.Unlock()
		close(s.stop)
	})
	return nil
}

func waitStarted(t *testing.T, svcs ...*blockingService) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range svcs {
			if !s.started.Load() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLifecycle_StopsInReverseOrderOnCancel(t *testing.T) {
	var (
		mu      sync.Mutex
		stopped []string
	)
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)
	first := newBlockingService("first", &stopped, &mu)
	second := newBlockingService("second", &stopped, &mu)
	lc.Add("first", first)
	lc.Add("second", second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitStarted(t, first, second)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"second", "first"}, stopped)
}

func TestLifecycle_ServiceFailureStopsOthers(t *testing.T) {
	var (
		mu      sync.Mutex
		stopped []string
	)
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)
	healthy := newBlockingService("healthy", &stopped, &mu)
	boom := errors.New("boom")
	lc.Add("healthy", healthy)
	lc.Add("broken", &FuncService{StartFn: func() error { return boom }})

	err := lc.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"healthy"}, stopped)
}

func TestFuncService_NilStop(t *testing.T) {
	started := false
	svc := &FuncService{StartFn: func() error {
		started = true
		return nil
	}}
	assert.NoError(t, svc.Start())
	assert.True(t, started)
	assert.NoError(t, svc.Stop(context.Background()))
}

func TestHTTPService_ServesUntilStopped(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})}
	svc := HTTPService(srv, lis)

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body) == "ok"
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestGRPCService_StopEndsServe(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	svc := GRPCService(grpc.NewServer(), lis)

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start() }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, svc.Stop(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("grpc server did not stop")
	}
}
