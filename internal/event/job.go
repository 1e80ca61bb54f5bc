package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"adowatch/internal/config"
	"adowatch/internal/logging"
)

// Job runs one configured external program when an event fires. A Job is
// owned by whichever worker is processing its event; it must not be fired
// again before the previous invocation has been reaped.
type Job struct {
	cfg     config.Job
	runDir  string
	timeout time.Duration
	logger  *slog.Logger

	// In-flight process state, present only between Fire and Reap.
	cmd        *exec.Cmd
	invocation string
	deadline   time.Time
	started    time.Time
}

// Result describes one completed job invocation.
type Result struct {
	InvocationID string
	ExitCode     int
	TimedOut     bool
	Duration     time.Duration
}

// NewJob validates a job config and resolves its working directory.
func NewJob(cfg config.Job, logger *slog.Logger) (*Job, error) {
	if len(cfg.Args) == 0 {
		return nil, errors.New("job requires at least one argument")
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultJobTimeout * time.Second
	}

	runDir := strings.TrimSpace(cfg.RunDir)
	if runDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default run dir: %w", err)
		}
		runDir = home
	}

	if logger == nil {
		logger = logging.NewNop()
	}
	return &Job{
		cfg:     cfg,
		runDir:  runDir,
		timeout: timeout,
		logger:  logger.With(logging.String(logging.FieldJob, jobLabel(cfg))),
	}, nil
}

func jobLabel(cfg config.Job) string {
	if name := strings.TrimSpace(cfg.Name); name != "" {
		return name
	}
	if len(cfg.Args) > 0 {
		return filepath.Base(cfg.Args[0])
	}
	return "job"
}

// Name returns the job's configured name, falling back to the program name.
func (j *Job) Name() string {
	return jobLabel(j.cfg)
}

// Timeout returns the job's kill deadline duration.
func (j *Job) Timeout() time.Duration {
	return j.timeout
}

// InFlight reports whether a spawned process has not been reaped yet.
func (j *Job) InFlight() bool {
	return j.cmd != nil
}

// Fire serializes the payload and spawns the configured program with the
// payload on its standard input. With wait set it blocks until Reap
// completes and returns its result; otherwise it returns immediately and the
// caller must Reap before firing again. A spawn failure is returned to the
// caller; it must not be swallowed.
func (j *Job) Fire(payload Payload, wait bool) (*Result, error) {
	if j.cmd != nil {
		return nil, fmt.Errorf("job %s: previous invocation not reaped", j.Name())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("job %s: encode payload: %w", j.Name(), err)
	}
	body = append(body, '\n')

	cmd := exec.Command(j.cfg.Args[0], j.cfg.Args[1:]...) //nolint:gosec
	cmd.Dir = j.runDir
	cmd.Stdin = bytes.NewReader(body)
	// Run the job in its own process group so a timeout kill reaches any
	// children it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("job %s: spawn: %w", j.Name(), err)
	}

	now := time.Now()
	j.cmd = cmd
	j.invocation = uuid.NewString()
	j.started = now
	j.deadline = now.Add(j.timeout)

	j.logger.Debug("job fired",
		logging.String("invocation", j.invocation),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("event", payload.Name),
	)

	if wait {
		result, err := j.Reap()
		if err != nil {
			return nil, err
		}
		return &result, nil
	}
	return nil, nil
}

// Reap blocks until the spawned process terminates or the configured timeout
// (measured from Fire) elapses, whichever comes first. On timeout the
// process group is forcibly terminated and the result carries the TimedOut
// marker; a timeout is not an error. Calling Reap with no spawned process is
// a caller bug and returns an error.
func (j *Job) Reap() (Result, error) {
	if j.cmd == nil {
		return Result{}, fmt.Errorf("job %s: reap called with no spawned process", j.Name())
	}

	cmd := j.cmd
	result := Result{InvocationID: j.invocation}
	j.cmd = nil
	j.invocation = ""

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-time.After(time.Until(j.deadline)):
		j.killGroup(cmd)
		waitErr = <-done
		result.TimedOut = true
	}

	result.Duration = time.Since(j.started)
	result.ExitCode = -1
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if result.TimedOut {
		j.logger.Debug("job timed out and was killed",
			logging.String("invocation", result.InvocationID),
			logging.Duration("after", result.Duration),
		)
		return result, nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("job %s: wait: %w", j.Name(), waitErr)
	}

	j.logger.Debug("job reaped",
		logging.String("invocation", result.InvocationID),
		logging.Int("exit_code", result.ExitCode),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

func (j *Job) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative PID addresses the process group created at Fire.
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
