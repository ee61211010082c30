package studysync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/studysync/internal/kv"
	"github.com/hyperengineering/studysync/remote"
)

// Metadata keys kept next to the local collections.
const (
	metaLastSync = "last_sync_at"
	metaProfile  = "profile"
)

// Client is the entry point of the sync layer. It owns the local store, the
// session context, the remote store and every collection engine.
type Client struct {
	config    Config
	logger    *slog.Logger
	logCloser io.Closer

	backend  *kv.SQLiteBackend
	local    *LocalStore
	session  *Session
	remote   remote.Store
	pg       *remote.PGStore
	identity IdentityProvider
	colls    *Collections

	mu         sync.Mutex
	closed     bool
	background *ScheduledTask
	tasks      []*ScheduledTask
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logCloser := cfg.Logger, io.Closer(nopCloser{})
	if logger == nil {
		logger, logCloser = NewLogger(cfg.Debug, cfg.DebugLogPath)
	}

	backend, err := kv.OpenSQLite(cfg.LocalPath, kv.SQLiteOptions{MaxBytes: cfg.LocalQuotaBytes})
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("client: %w", err)
	}
	if err := backend.SetMetadata(metaProfile, cfg.Profile); err != nil {
		logger.Warn("profile metadata not recorded", "error", err)
	}

	c := &Client{
		config:    cfg,
		logger:    logger,
		logCloser: logCloser,
		backend:   backend,
		local:     NewLocalStore(backend, logger),
	}

	if err := c.connectRemote(); err != nil {
		_ = backend.Close()
		_ = logCloser.Close()
		return nil, fmt.Errorf("client: %w", err)
	}

	c.session = NewSession(c.identity, c.local, logger)
	c.colls = NewCollections(c.session, c.remote)

	if c.remote != nil && cfg.AutoSync {
		c.background = Schedule(context.Background(), cfg.SyncInterval, c.backgroundSync)
	}

	return c, nil
}

// connectRemote builds the remote store and identity provider.
func (c *Client) connectRemote() error {
	cfg := c.config
	var pinger remote.Pinger

	switch {
	case cfg.Remote != nil:
		c.remote = cfg.Remote
	case cfg.PostgresDSN != "":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := remote.OpenPG(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		c.pg, c.remote = pg, pg
	case cfg.RemoteURL != "":
		c.remote = remote.NewHTTPClient(cfg.RemoteURL, cfg.APIKey)
	}
	if p, ok := c.remote.(remote.Pinger); ok {
		pinger = p
	}

	switch {
	case cfg.Identity != nil:
		c.identity = cfg.Identity
	case cfg.AccessToken != "":
		tok := NewTokenIdentity(pinger, cfg.ProbeTTL)
		tok.SetToken(cfg.AccessToken)
		if h, ok := c.remote.(*remote.HTTPClient); ok {
			h.WithToken(tok.Token)
		}
		c.identity = tok
	default:
		c.identity = NewStaticIdentity(cfg.User, c.remote != nil)
	}
	return nil
}

// Collections returns every collection engine.
func (c *Client) Collections() *Collections { return c.colls }

// Collection returns the named collection.
func (c *Client) Collection(name string) (Collection, error) {
	return c.colls.Get(name)
}

// Session returns the session context.
func (c *Client) Session() *Session { return c.session }

// Identity returns the identity provider.
func (c *Client) Identity() IdentityProvider { return c.identity }

// Load reads every collection from the local store.
func (c *Client) Load() {
	for _, col := range c.colls.All() {
		col.LoadRecords()
	}
}

// SyncAll observes the identity boundary and runs InitialSync on every
// collection. Collections already synced for the bound identity return
// their latched result.
func (c *Client) SyncAll(ctx context.Context) (map[string]Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.session.Observe()

	results := make(map[string]Result, len(c.colls.All()))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, col := range c.colls.All() {
		wg.Add(1)
		go func(col Collection) {
			defer wg.Done()
			res := col.InitialSync(ctx)
			mu.Lock()
			results[col.Name()] = res
			mu.Unlock()
		}(col)
	}
	wg.Wait()

	for _, res := range results {
		if res.Source == SourceRemote {
			c.recordSync(time.Now())
			break
		}
	}
	return results, nil
}

// SyncPending runs SyncPending on every collection: unsynced or degraded
// collections sync again and records still holding locally-minted ids are
// uploaded.
func (c *Client) SyncPending(ctx context.Context) (map[string]Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.session.Observe()

	results := make(map[string]Result, len(c.colls.All()))
	synced := false
	for _, col := range c.colls.All() {
		res := col.SyncPending(ctx)
		results[col.Name()] = res
		synced = synced || res.Source == SourceRemote
	}
	if synced {
		c.recordSync(time.Now())
	}
	return results, nil
}

// Resync resets every collection's latch and syncs again.
func (c *Client) Resync(ctx context.Context) (map[string]Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	for _, col := range c.colls.All() {
		col.Reset()
	}
	return c.SyncAll(ctx)
}

// Refresh overwrites every remote-backed collection from the remote store.
func (c *Client) Refresh(ctx context.Context) (map[string]Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	results := make(map[string]Result)
	for _, col := range c.colls.All() {
		results[col.Name()] = col.Refresh(ctx)
	}
	return results, nil
}

func (c *Client) recordSync(at time.Time) {
	if err := c.backend.SetMetadata(metaLastSync, at.UTC().Format(time.RFC3339)); err != nil {
		c.logger.Warn("last sync not recorded", "error", err)
	}
}

// CollectionStatus is one collection's line in Status.
type CollectionStatus struct {
	Name     string    `json:"name"`
	Records  int       `json:"records"`
	Pending  int       `json:"pending"`
	Synced   bool      `json:"synced"`
	LastSync time.Time `json:"last_sync,omitempty"`
}

// Status summarizes the client's state.
type Status struct {
	Profile       string             `json:"profile"`
	LocalPath     string             `json:"local_path"`
	Identity      string             `json:"identity,omitempty"`
	RemoteEnabled bool               `json:"remote_enabled"`
	RemoteCapable bool               `json:"remote_capable"`
	Interacted    bool               `json:"interacted"`
	LastSync      string             `json:"last_sync,omitempty"`
	Collections   []CollectionStatus `json:"collections"`
}

// Status reports per-collection counts, pending records and sync state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	lastSync, err := c.backend.GetMetadata(metaLastSync)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	st := &Status{
		Profile:       c.config.Profile,
		LocalPath:     c.config.LocalPath,
		Identity:      c.identity.CurrentIdentity(),
		RemoteEnabled: c.remote != nil,
		RemoteCapable: c.remote != nil && c.identity.IsRemoteCapable(ctx),
		Interacted:    c.session.Interacted(),
		LastSync:      lastSync,
	}
	c.session.Observe()
	for _, col := range c.colls.All() {
		recs := col.Records()
		pending := 0
		for _, r := range recs {
			if IsLocalID(r.ID()) {
				pending++
			}
		}
		st.Collections = append(st.Collections, CollectionStatus{
			Name:     col.Name(),
			Records:  len(recs),
			Pending:  pending,
			Synced:   col.Synced(),
			LastSync: col.LastSync(),
		})
	}
	return st, nil
}

// HealthStatus reports local and remote health.
type HealthStatus struct {
	Healthy         bool   `json:"healthy"`
	LocalOK         bool   `json:"local_ok"`
	RemoteEnabled   bool   `json:"remote_enabled"`
	RemoteReachable bool   `json:"remote_reachable"`
	Error           string `json:"error,omitempty"`
}

// HealthCheck returns the health status of the client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, LocalOK: true}

	if _, err := c.backend.GetMetadata(metaProfile); err != nil {
		status.LocalOK = false
		status.Healthy = false
		status.Error = err.Error()
		return status
	}

	if c.remote == nil {
		return status
	}
	status.RemoteEnabled = true
	if p, ok := c.remote.(remote.Pinger); ok {
		err := p.Ping(ctx)
		status.RemoteReachable = err == nil
		if err != nil {
			status.Error = err.Error()
		}
	} else {
		status.RemoteReachable = c.identity.IsRemoteCapable(ctx)
	}
	return status
}

// PersistTimerSnapshots periodically saves the snapshot returned by capture.
// The task is stopped by Close.
func (c *Client) PersistTimerSnapshots(interval time.Duration, capture func() Record) *ScheduledTask {
	task := c.colls.TimerSnapshot.Persist(context.Background(), interval, capture)
	c.mu.Lock()
	c.tasks = append(c.tasks, task)
	c.mu.Unlock()
	return task
}

// Close stops scheduled tasks and closes the stores.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tasks := append([]*ScheduledTask{c.background}, c.tasks...)
	c.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
	if c.pg != nil {
		c.pg.Close()
	}
	err := c.local.Close()
	_ = c.logCloser.Close()
	return err
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrStoreClosed
	}
	return nil
}

func (c *Client) backgroundSync(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	results, err := c.SyncPending(ctx)
	if err != nil {
		c.logger.Debug("background sync skipped", "error", err)
		return
	}
	for name, res := range results {
		if len(res.Promoted) > 0 {
			c.logger.Info("background sync uploaded pending records",
				"collection", name, "promoted", len(res.Promoted))
		}
	}
}
