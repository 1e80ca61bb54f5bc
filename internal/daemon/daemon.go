package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"adowatch/internal/config"
	"adowatch/internal/logging"
	"adowatch/internal/monitor"
	"adowatch/internal/snapshot"
)

// Daemon runs the monitor as a locked, single-instance background process.
type Daemon struct {
	cfg     *config.Config
	store   *snapshot.Store
	manager *monitor.Manager
	logger  *slog.Logger

	lockPath string
	lock     *flock.Flock
	pidPath  string
}

// New constructs a daemon around an initialized monitor.
func New(cfg *config.Config, store *snapshot.Store, mgr *monitor.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || mgr == nil {
		return nil, errors.New("daemon requires config, store, and monitor manager")
	}
	lockPath := filepath.Join(cfg.Paths.StateDir, "adowatchd.lock")
	return &Daemon{
		cfg:      cfg,
		store:    store,
		manager:  mgr,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		pidPath:  filepath.Join(cfg.Paths.StateDir, "adowatchd.pid"),
	}, nil
}

// LockPath returns the path of the single-instance lock file.
func (d *Daemon) LockPath() string { return d.lockPath }

// Run acquires the instance lock and blocks in the poll loop until the
// context is cancelled or the monitor fails.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another adowatch daemon is already running (lock %s)", d.lockPath)
	}
	defer func() {
		if unlockErr := d.lock.Unlock(); unlockErr != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
		}
	}()

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(d.pidPath)

	d.logger.Info("daemon started",
		logging.Int("pid", os.Getpid()),
		logging.String("lock", d.lockPath),
	)
	defer d.logger.Info("daemon stopped")

	return d.manager.Run(ctx)
}

func (d *Daemon) writePIDFile() error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(d.pidPath, []byte(value), 0o644)
}
