package vaccinesurvey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/task"
)

// StatusNoData is the loader status before the first successful load.
const StatusNoData = "No data loaded."

// Loader keeps one table loaded from the server and reloads it in the
// background whenever the account or server changes. At most one load runs
// at a time; a newer request supersedes an older one.
type Loader struct {
	mu       sync.RWMutex
	config   *Config
	client   Client
	username string
	password string
	status   string
	table    *Table

	configPath    string
	clientOptions []Option
	onTable       func(*Table)
	logger        *zap.Logger

	runner    *task.Runner[*Table]
	scheduler *task.Scheduler
	watcher   *task.Watcher
	running   bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// OnTable registers a callback receiving every successfully loaded table.
func OnTable(fn func(*Table)) LoaderOption {
	return func(l *Loader) {
		l.onTable = fn
	}
}

// WithConfigFile names the file reloaded when schedule.watch_config is set.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		l.configPath = path
	}
}

// WithClientOptions passes options to every client the loader creates.
func WithClientOptions(opts ...Option) LoaderOption {
	return func(l *Loader) {
		l.clientOptions = append(l.clientOptions, opts...)
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a stopped loader. Credentials are taken from config.Server.
func NewLoader(config *Config, opts ...LoaderOption) (*Loader, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	l := &Loader{
		username: config.Server.Username,
		password: config.Server.Password,
		status:   StatusNoData,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("loader")
	l.clientOptions = append([]Option{WithLogger(l.logger)}, l.clientOptions...)

	cp := *config
	c, err := NewClient(&cp, l.clientOptions...)
	if err != nil {
		return nil, err
	}
	l.config = &cp
	l.client = c
	l.runner = task.NewRunner[*Table](
		task.OnResult(l.handleResult),
		task.WithRunnerLogger[*Table](l.logger),
	)
	return l, nil
}

// Start launches the background worker, the refresh schedule and the config
// watcher. When credentials are complete and no load was requested yet, a
// load starts immediately.
func (l *Loader) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	schedule := l.config.Schedule
	l.mu.Unlock()

	if err := l.runner.Start(ctx); err != nil {
		return err
	}

	if schedule.Refresh != "" {
		l.scheduler = task.NewScheduler(l.logger)
		if _, err := l.scheduler.Add(schedule.Refresh, func() { l.Reload() }); err != nil {
			l.Stop()
			return err
		}
		l.scheduler.Start()
	}

	if schedule.WatchConfig && l.configPath != "" {
		w, err := task.NewWatcher(l.configPath, schedule.Debounce, l.reloadConfig, l.logger)
		if err != nil {
			l.Stop()
			return err
		}
		if err := w.Start(ctx); err != nil {
			l.Stop()
			return err
		}
		l.watcher = w
	}

	l.logger.Info("loader started", zap.String("server", l.config.Server.URL))
	if l.runner.Current() == nil {
		l.connect()
	}
	return nil
}

// Stop halts the watcher, the schedule and the worker, in that order.
func (l *Loader) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	l.mu.Unlock()

	if l.watcher != nil {
		if err := l.watcher.Stop(); err != nil {
			l.logger.Warn("failed to stop config watcher", zap.Error(err))
		}
		l.watcher = nil
	}
	if l.scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.scheduler.Stop(ctx); err != nil {
			l.logger.Warn("failed to stop scheduler", zap.Error(err))
		}
		cancel()
		l.scheduler = nil
	}
	if err := l.runner.Stop(); err != nil {
		return fmt.Errorf("failed to stop runner: %w", err)
	}
	l.logger.Info("loader stopped")
	return nil
}

// IsRunning returns whether the loader is started.
func (l *Loader) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// Close stops the loader and closes its client.
func (l *Loader) Close() error {
	if err := l.Stop(); err != nil {
		l.logger.Warn("error stopping loader", zap.Error(err))
	}
	l.mu.RLock()
	c := l.client
	l.mu.RUnlock()
	return c.Close()
}

// SetCredentials replaces the account and reconnects when both values are set.
// The returned handle is nil when no load was started.
func (l *Loader) SetCredentials(username, password string) *task.Handle[*Table] {
	l.mu.Lock()
	l.username = username
	l.password = password
	l.mu.Unlock()
	return l.connect()
}

// SetServer points the loader at another server and reconnects when the
// credentials are complete.
func (l *Loader) SetServer(url string) (*task.Handle[*Table], error) {
	l.mu.RLock()
	config := *l.config
	l.mu.RUnlock()

	config.Server.URL = url
	if err := l.replaceClient(&config); err != nil {
		return nil, err
	}
	return l.connect(), nil
}

// Reload starts a new load with the current account, superseding any load in progress.
func (l *Loader) Reload() *task.Handle[*Table] {
	l.mu.RLock()
	c, username, password := l.client, l.username, l.password
	l.mu.RUnlock()

	return l.runner.Submit(func(ctx context.Context) (*Table, error) {
		if err := c.Connect(ctx, username, password); err != nil {
			return nil, err
		}
		t, err := c.LoadTable(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Publish(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to publish table: %w", err)
		}
		return t, nil
	})
}

// Status returns a one-line summary of the last load.
func (l *Loader) Status() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Table returns the last successfully loaded table, or nil.
func (l *Loader) Table() *Table {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.table
}

// Client returns the client used for the next load.
func (l *Loader) Client() Client {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client
}

// connect reloads only when both credentials are present.
func (l *Loader) connect() *task.Handle[*Table] {
	l.mu.RLock()
	complete := l.username != "" && l.password != ""
	l.mu.RUnlock()
	if !complete {
		return nil
	}
	return l.Reload()
}

func (l *Loader) handleResult(id string, t *Table, err error) {
	l.mu.Lock()
	if err != nil {
		l.status = err.Error()
	} else {
		l.status = fmt.Sprintf("%d samples loaded.", t.Len())
		l.table = t
	}
	status, onTable := l.status, l.onTable
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("load failed", zap.String("task", id), zap.Error(err))
		return
	}
	l.logger.Info(status, zap.String("task", id))
	if onTable != nil {
		onTable(t)
	}
}

func (l *Loader) replaceClient(config *Config) error {
	c, err := NewClient(config, l.clientOptions...)
	if err != nil {
		return err
	}

	l.mu.Lock()
	old := l.client
	l.client = c
	l.config = config
	l.mu.Unlock()

	if err := old.Close(); err != nil {
		l.logger.Warn("failed to close previous client", zap.Error(err))
	}
	return nil
}

// reloadConfig re-reads the watched file and reconnects with the new settings.
func (l *Loader) reloadConfig() {
	config, err := LoadConfig(l.configPath)
	if err != nil {
		l.logger.Error("config reload failed", zap.String("path", l.configPath), zap.Error(err))
		return
	}
	if err := l.replaceClient(config); err != nil {
		l.logger.Error("config reload failed", zap.String("path", l.configPath), zap.Error(err))
		return
	}

	l.mu.Lock()
	if config.Server.Username != "" {
		l.username = config.Server.Username
	}
	if config.Server.Password != "" {
		l.password = config.Server.Password
	}
	l.mu.Unlock()

	l.logger.Info("config reloaded", zap.String("path", l.configPath))
	l.connect()
}
