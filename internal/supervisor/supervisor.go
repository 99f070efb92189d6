// Package supervisor launches a crawler's entry point as a child process,
// streams its combined output into the run's log file, and enforces the
// wall-clock timeout. It reports exactly one terminal status per run.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schuanhe/crawl-orch/internal/domain"
)

// DefaultTimeout is the wall-clock budget applied when a request has none
const DefaultTimeout = time.Hour

// Request describes one run to supervise
type Request struct {
	RunID      string
	CrawlerID  string
	Dir        string // crawler directory, becomes the child's cwd
	EntryPoint string // entry-point file name within Dir
	PythonBin  string // interpreter for .py entry points
	LogPath    string
	Timeout    time.Duration
}

// Run supervises a single crawler process to completion and returns its
// terminal status. It never panics outward and never returns a non-terminal
// status; supervision faults are recorded in the log and mapped to error.
func Run(ctx context.Context, req Request) domain.RunStatus {
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}

	if err := os.MkdirAll(filepath.Dir(req.LogPath), 0755); err != nil {
		return domain.StatusError
	}

	// Fresh file per run; run IDs are unique so there is nothing to preserve
	logFile, err := os.Create(req.LogPath)
	if err != nil {
		return domain.StatusError
	}
	defer logFile.Close()

	w := &logWriter{f: logFile}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	cmd := buildCommand(ctx, req)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		w.line("supervisor error: " + err.Error())
		return domain.StatusError
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		w.line("supervisor error: " + err.Error())
		return domain.StatusError
	}

	if err := cmd.Start(); err != nil {
		w.line("failed to start crawler: " + err.Error())
		return domain.StatusError
	}

	// Drain both streams before Wait; Wait closes the pipes
	var g errgroup.Group
	g.Go(func() error { return w.drain(stdout) })
	g.Go(func() error { return w.drain(stderr) })
	drainErr := g.Wait()

	waitErr := cmd.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		w.line(fmt.Sprintf("error: crawler run timed out after %s, process killed", req.Timeout))
		return domain.StatusTimeout
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			w.line(fmt.Sprintf("crawler exited with code %d", exitErr.ExitCode()))
		} else {
			w.line("process error: " + waitErr.Error())
		}
		return domain.StatusError
	}
	if drainErr != nil {
		w.line("log capture error: " + drainErr.Error())
		return domain.StatusError
	}

	return domain.StatusCompleted
}

func buildCommand(ctx context.Context, req Request) *exec.Cmd {
	var cmd *exec.Cmd
	if strings.HasSuffix(req.EntryPoint, ".py") {
		python := req.PythonBin
		if python == "" {
			python = "python3"
		}
		cmd = exec.CommandContext(ctx, python, req.EntryPoint)
	} else {
		cmd = exec.CommandContext(ctx, "./"+req.EntryPoint)
	}
	cmd.Dir = req.Dir
	cmd.Env = os.Environ()

	// Run the child in its own process group and kill the whole group on
	// timeout. Killing only the interpreter leaves grandchildren alive, and
	// they inherit the output pipes, stalling the drain goroutines until
	// the whole tree exits.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	// Backstop: if anything escapes the group and holds a pipe open, give
	// up on the remaining output instead of wedging the supervisor.
	cmd.WaitDelay = 5 * time.Second

	return cmd
}

// logWriter appends lines to the run log, flushing after every line so a
// concurrently-opened log viewer sees output as it is produced.
type logWriter struct {
	mu sync.Mutex
	f  *os.File
}

func (w *logWriter) line(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.f.WriteString(s + "\n")
	w.f.Sync()
}

func (w *logWriter) drain(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	// Crawlers can emit long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		w.line(scanner.Text())
	}
	return scanner.Err()
}
