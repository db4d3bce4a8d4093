package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"djenwatch/internal/logging"
	"djenwatch/internal/services"
)

// ErrAlreadyRunning reports that another watcher holds the lock.
var ErrAlreadyRunning = errors.New("another djenwatch watcher is already running")

// PassStatus describes the most recent watch pass.
type PassStatus struct {
	RequestID string    `json:"requestId"`
	StartedAt time.Time `json:"startedAt"`
	Report    Report    `json:"report"`
	Error     string    `json:"error,omitempty"`
}

// Watcher repeats sync passes on an interval.
type Watcher struct {
	syncer   *Syncer
	interval time.Duration
	lockPath string
	lock     *flock.Flock
	logger   *slog.Logger
	onPass   func(PassStatus)

	mu   sync.RWMutex
	last *PassStatus
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPassHook registers fn to run after every pass.
func WithPassHook(fn func(PassStatus)) WatcherOption {
	return func(w *Watcher) { w.onPass = fn }
}

// NewWatcher constructs a watcher that serializes on lockPath.
func NewWatcher(syncer *Syncer, lockPath string, interval time.Duration, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		syncer:   syncer,
		interval: interval,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		logger:   logging.NewComponentLogger(syncer.logger, "watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run acquires the lock, runs a pass immediately, then one per interval
// until ctx is cancelled. A failed pass is logged and reported; it never
// stops the loop.
func (w *Watcher) Run(ctx context.Context) error {
	if w.interval <= 0 {
		return services.Wrap(services.ErrConfiguration, "watch", "run", "interval must be positive", nil)
	}
	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, w.lockPath)
	}
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			w.logger.Warn("failed to release watch lock", logging.Error(err))
		}
	}()
	w.logger.Info("watch started",
		logging.String("lock", w.lockPath),
		logging.Duration("interval", w.interval),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.pass(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Last returns the most recent pass, if any.
func (w *Watcher) Last() (PassStatus, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last == nil {
		return PassStatus{}, false
	}
	return *w.last, true
}

func (w *Watcher) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	status := PassStatus{RequestID: uuid.NewString(), StartedAt: w.syncer.clock.Now()}
	passCtx := services.WithRequestID(ctx, status.RequestID)
	report, err := w.syncer.SyncCases(passCtx)
	status.Report = report
	if err != nil && ctx.Err() == nil {
		status.Error = err.Error()
		logging.ErrorWithContext(logging.WithContext(passCtx, w.logger), "sync pass failed", "sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "communications are retried on the next pass"),
		)
		if nerr := w.syncer.notifier.NotifyError(passCtx, err, "sync"); nerr != nil {
			w.logger.Warn("error notification failed", logging.Error(nerr))
		}
	}
	w.mu.Lock()
	w.last = &status
	w.mu.Unlock()
	if w.onPass != nil {
		w.onPass(status)
	}
}
