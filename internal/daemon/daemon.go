package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"pipelink/internal/channel"
	"pipelink/internal/config"
	"pipelink/internal/envelope"
	"pipelink/internal/feed"
	"pipelink/internal/journal"
	"pipelink/internal/logging"
	"pipelink/internal/models"
	"pipelink/internal/registry"
	"pipelink/internal/supervisor"
	"pipelink/internal/transport"
)

// ErrAlreadyRunning is returned by Run when another service holds the
// instance lock for the runtime directory.
var ErrAlreadyRunning = errors.New("another pipelink service is already running")

// Options carries the collaborators built by the caller.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	LevelVar   *slog.LevelVar
	Hub        *logging.StreamHub
	SessionID  string
	// Journal may be nil when journaling is disabled.
	Journal *journal.Store
}

// Daemon owns the service channels for one runtime directory.
type Daemon struct {
	cfg       *config.Config
	base      *slog.Logger
	logger    *slog.Logger
	sessionID string
	store     *journal.Store
	transport *transport.Transport

	registry *registry.Registry[envelope.Envelope]
	control  *supervisor.Supervisor[envelope.Envelope]
	syslog   *supervisor.Supervisor[envelope.Envelope]
	feed     *feed.Feed
	table    *models.Table

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	workers   sync.WaitGroup

	stopMu sync.Mutex
	stop   context.CancelFunc
}

// shutdownDelay lets the Shutdown reply leave before channels are torn down.
const shutdownDelay = 100 * time.Millisecond

// New constructs a daemon. Nothing is opened until Run.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, errors.New("daemon requires config")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	levelVar := opts.LevelVar
	if levelVar == nil {
		levelVar = new(slog.LevelVar)
	}
	hub := opts.Hub
	if hub == nil {
		hub = logging.NewStreamHub(cfg.Logging.StreamCapacity)
	}

	d := &Daemon{
		cfg:       cfg,
		base:      logger,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		sessionID: opts.SessionID,
		store:     opts.Journal,
		transport: transport.New(cfg.Paths.RuntimeDir, logger),
		registry:  registry.New[envelope.Envelope](),
		lockPath:  cfg.InstanceLockPath(),
		lock:      flock.New(cfg.InstanceLockPath()),
	}
	d.feed = feed.New(hub, d.registry, cfg.Channels.SysLog, logger)

	resources := []models.Resource{
		models.ConfigResource(cfg, opts.ConfigPath),
		models.StatusResource(d.Status),
		models.LogLevelResource(levelVar, logger),
		models.LogsResource(hub),
		models.ShutdownResource(d.requestStop),
	}
	if d.store != nil {
		resources = append(resources, models.JournalResource(d.store, cfg.Journal.RetentionDays))
	}
	table, err := models.NewTable(resources...)
	if err != nil {
		return nil, err
	}
	d.table = table

	backoff := supervisor.DefaultBackoff()
	backoff.InitialDelay = cfg.PollInterval()
	backoff.MaxDelay = cfg.BackoffMax()
	supOpts := []supervisor.Option{
		supervisor.WithPollInterval(cfg.PollInterval()),
		supervisor.WithBackoff(backoff),
		supervisor.WithLogger(logger),
	}
	d.control = supervisor.New(cfg.Channels.Control, d.newControlChannel, d.registry, supOpts...)
	d.syslog = supervisor.New(cfg.Channels.SysLog, d.newSysLogChannel, d.registry, supOpts...)
	return d, nil
}

// Run takes the instance lock and serves until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	if err := d.cfg.CheckRuntimeDir(); err != nil {
		return err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w for %s", ErrAlreadyRunning, d.cfg.Paths.RuntimeDir)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			logging.WarnWithContext(d.logger, "failed to release instance lock", "lock_release_failed",
				logging.Error(err),
				logging.String("lock", d.lockPath),
				logging.String(logging.FieldImpact, "stale lock file left behind"),
				logging.String(logging.FieldErrorHint, "remove the lock file if no service is running"))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.stopMu.Lock()
	d.stop = cancel
	d.stopMu.Unlock()
	defer func() {
		d.stopMu.Lock()
		d.stop = nil
		d.stopMu.Unlock()
	}()

	d.startedAt = time.Now()
	d.maintain(ctx)
	d.logger.Info("pipelink service started",
		logging.String(logging.FieldEventType, "service_started"),
		logging.String("runtime_dir", d.cfg.Paths.RuntimeDir),
		logging.String("control", d.cfg.Channels.Control),
		logging.String("syslog", d.cfg.Channels.SysLog),
		logging.Bool("journal", d.store != nil))

	var sups sync.WaitGroup
	for _, sup := range []*supervisor.Supervisor[envelope.Envelope]{d.control, d.syslog} {
		sups.Add(1)
		go func() {
			defer sups.Done()
			_ = sup.Run(ctx)
		}()
	}
	<-ctx.Done()
	sups.Wait()

	d.feed.Close()
	d.registry.Close()
	d.workers.Wait()
	d.logger.Info("pipelink service stopped", logging.String(logging.FieldEventType, "service_stopped"))
	return nil
}

// Stop asks a running service to shut down.
func (d *Daemon) Stop() {
	d.stopMu.Lock()
	stop := d.stop
	d.stopMu.Unlock()
	if stop != nil {
		stop()
	}
}

func (d *Daemon) requestStop() {
	d.logger.Info("shutdown requested", logging.String(logging.FieldEventType, "shutdown_requested"))
	time.AfterFunc(shutdownDelay, d.Stop)
}

// Running reports whether Run is active.
func (d *Daemon) Running() bool { return d.running.Load() }

// Status reports channel, feed and journal state.
func (d *Daemon) Status(ctx context.Context) (models.Status, error) {
	status := models.Status{
		SessionID: d.sessionID,
		PID:       os.Getpid(),
		StartedAt: d.startedAt,
		Channels:  []supervisor.Snapshot{d.control.Snapshot(), d.syslog.Snapshot()},
		Feed:      d.feed.Status(),
		Models:    d.table.Names(),
	}
	if !d.startedAt.IsZero() {
		status.Uptime = time.Since(d.startedAt).Round(time.Second).String()
	}
	if d.store != nil {
		health, err := d.store.Health(ctx)
		if err != nil {
			return status, err
		}
		status.Journal = &health
	}
	return status, nil
}

// maintain applies log and journal retention once at startup.
func (d *Daemon) maintain(ctx context.Context) {
	removed := logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     d.cfg.Paths.LogDir,
		Pattern: "*.log",
		Exclude: []string{d.cfg.LogFilePath()},
	})
	if removed > 0 {
		d.logger.Info("old logs pruned", logging.Int("removed", removed))
	}
	if d.store == nil || d.cfg.Journal.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -d.cfg.Journal.RetentionDays)
	pruned, err := d.store.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(d.logger, "journal prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "journal keeps entries past retention"),
			logging.String(logging.FieldErrorHint, "check "+filepath.Base(d.store.Path())+" permissions"))
		return
	}
	if pruned > 0 {
		d.logger.Info("journal pruned", logging.Int64("removed", pruned))
	}
}

func (d *Daemon) channelOptions() []channel.Option {
	return []channel.Option{
		channel.WithLogger(d.base),
		channel.WithConnector(d.transport),
		channel.WithQueueLimit(d.cfg.Channels.QueueLimit),
	}
}
