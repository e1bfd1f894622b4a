//go:build unix

package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewInsights/internal/usecase"
	"ReviewInsights/internal/worker"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestServeShutdownReapsRunningWorker(t *testing.T) {
	t.Parallel()

	pidFile := filepath.Join(t.TempDir(), "worker.pid")
	boundary := worker.NewBoundary(worker.Config{
		Command: []string{"sh", "-c", `echo $$ > "$WORKER_PID_FILE"; exec sleep 30`},
		Env:     []string{"WORKER_PID_FILE=" + pidFile},
	}, nil)
	pipeline := usecase.NewPipeline(usecase.PipelineDeps{Extractor: boundary})

	addr := freeAddr(t)
	srv := New(addr, pipeline, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, 200*time.Millisecond) }()

	go func() {
		for i := 0; i < 50; i++ {
			resp, err := http.Post("http://"+addr+"/analyze", "application/json", strings.NewReader(`{"url":"https://shop.example.com/slow"}`))
			if err == nil {
				// Hold the stream open so only the shutdown can end the run.
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	var pid int32
	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			return false
		}
		pid = int32(n)
		return true
	}, 5*time.Second, 20*time.Millisecond, "worker never started")

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}

	alive, err := process.PidExists(pid)
	require.NoError(t, err)
	assert.False(t, alive, "worker %d outlived the server", pid)
}
