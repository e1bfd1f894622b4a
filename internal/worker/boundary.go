// Package worker runs review extraction in a child process so that crashes, hangs and memory
// blow-ups in scraping code cannot take the analysis service down with them.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
)

const (
	defaultMaxOutput    = 64 << 20
	defaultPollInterval = 250 * time.Millisecond
	locatorFlag         = "--locator"
)

var errOutputTooLarge = errors.New("worker output exceeds limit")

// Config describes how to start and police one extraction worker.
type Config struct {
	// Command is the worker argv; "--locator <url>" is appended.
	Command []string
	// Env is added to the parent environment.
	Env []string
	// Timeout bounds the whole run; zero means the caller's context is the only limit.
	Timeout time.Duration
	// MemoryLimit is the RSS ceiling in bytes for the worker's whole process tree; zero disables it.
	MemoryLimit    uint64
	MaxOutputBytes int64
	PollInterval   time.Duration
}

// Boundary implements ports.Extractor with one child process per call.
type Boundary struct {
	cfg    Config
	logger *zap.SugaredLogger
}

var _ ports.Extractor = (*Boundary)(nil)

// NewBoundary applies defaults to cfg.
func NewBoundary(cfg Config, log *zap.SugaredLogger) *Boundary {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutput
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Boundary{cfg: cfg, logger: log}
}

// Extract never fails: whatever goes wrong in the worker yields an empty dataset.
func (b *Boundary) Extract(ctx context.Context, locator string) domain.Dataset {
	started := time.Now()
	dataset, err := b.run(ctx, locator)
	if err != nil {
		b.logger.Warnw("extraction failed", "locator", locator, "elapsed", time.Since(started), "error", err)
		return domain.Dataset{}
	}
	b.logger.Debugw("extraction finished", "locator", locator, "records", len(dataset), "elapsed", time.Since(started))
	return dataset
}

func (b *Boundary) run(ctx context.Context, locator string) (domain.Dataset, error) {
	if len(b.cfg.Command) == 0 {
		return nil, errors.New("worker command is not configured")
	}
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, b.cfg.Command[1:]...), locatorFlag, locator)
	cmd := exec.Command(b.cfg.Command[0], args...)
	cmd.Env = append(os.Environ(), b.cfg.Env...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start worker")
	}

	exited := make(chan struct{})
	watchErr := make(chan error, 1)
	go func() { watchErr <- b.watch(ctx, cmd, exited) }()

	var (
		out bytes.Buffer
		g   errgroup.Group
	)
	g.Go(func() error {
		n, err := io.Copy(&out, io.LimitReader(stdout, b.cfg.MaxOutputBytes+1))
		if err != nil {
			return errors.Wrap(err, "read worker output")
		}
		if n > b.cfg.MaxOutputBytes {
			killGroup(cmd)
			_, _ = io.Copy(io.Discard, stdout)
			return errOutputTooLarge
		}
		return nil
	})
	g.Go(func() error {
		b.relayLogs(stderr)
		return nil
	})

	readErr := g.Wait()
	waitErr := cmd.Wait()
	close(exited)
	// Reap stragglers such as browser processes left by a crashed worker.
	killGroup(cmd)

	if err := <-watchErr; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	if waitErr != nil {
		// A failed source still writes its envelope before exiting non-zero; keep its reason.
		if _, err := decodeEnvelope(out.Bytes()); err != nil && out.Len() > 0 {
			return nil, errors.WithSecondaryError(err, waitErr)
		}
		return nil, errors.Wrap(waitErr, "worker exited")
	}
	return decodeEnvelope(out.Bytes())
}

// watch kills the worker group when ctx ends or the resident set outgrows the limit.
func (b *Boundary) watch(ctx context.Context, cmd *exec.Cmd, exited <-chan struct{}) error {
	var proc *process.Process
	if b.cfg.MemoryLimit > 0 {
		p, err := process.NewProcess(int32(cmd.Process.Pid))
		if err != nil {
			b.logger.Debugw("memory watchdog disabled", "error", err)
		}
		proc = p
	}

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-exited:
			return nil
		case <-ctx.Done():
			killGroup(cmd)
			return errors.Wrap(ctx.Err(), "worker stopped")
		case <-ticker.C:
			if proc == nil {
				continue
			}
			if rss := residentSet(ctx, proc); rss > b.cfg.MemoryLimit {
				killGroup(cmd)
				return errors.Newf("worker exceeded memory limit: %d > %d bytes", rss, b.cfg.MemoryLimit)
			}
		}
	}
}

// residentSet sums RSS over the worker and all of its descendants. Browser renderers are
// grandchildren of the worker and hold most of the page memory.
func residentSet(ctx context.Context, proc *process.Process) uint64 {
	var total uint64
	for _, p := range processTree(ctx, proc) {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			total += info.RSS
		}
	}
	return total
}

// processTree returns proc followed by its descendants, depth first.
func processTree(ctx context.Context, proc *process.Process) []*process.Process {
	tree := []*process.Process{proc}
	children, err := proc.ChildrenWithContext(ctx)
	if err != nil {
		return tree
	}
	for _, child := range children {
		tree = append(tree, processTree(ctx, child)...)
	}
	return tree
}

func (b *Boundary) relayLogs(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		b.logger.Debugw("worker", "line", scanner.Text())
	}
	_, _ = io.Copy(io.Discard, r)
}
