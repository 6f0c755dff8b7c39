// Package orchestrator owns the provisioning state machine.
//
// The controller drives each request from INITIALIZING through CREATING to a
// terminal state, using the provider API as ground truth. The provider is
// asynchronous and eventually consistent: a create call only acknowledges the
// request, so the controller runs a reconciliation poller per request and
// derives all state changes from what the provider reports. Every timer is
// owned by the controller and tracked alongside its record, so a state
// transition can always stop the machinery it replaces.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/imamik/clusterd/internal/config"
	"github.com/imamik/clusterd/internal/progress"
	"github.com/imamik/clusterd/internal/provider"
	"github.com/imamik/clusterd/internal/registry"
	"github.com/imamik/clusterd/internal/util/retry"
)

const maxNameLength = 63

var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// FeatureEnabler is the post-ready side effect: one abstract capability
// enabled exactly once after a cluster becomes READY. Its outcome is recorded
// on the request but never feeds back into the state machine.
type FeatureEnabler interface {
	EnableFeature(ctx context.Context, clusterName string) error
}

// Options configures a Controller.
type Options struct {
	Provider provider.Client
	Registry *registry.Registry
	Config   *config.Config
	Timeouts *config.Timeouts
	Feature  FeatureEnabler // optional
	Log      logr.Logger
	Clock    func() time.Time // defaults to time.Now
}

// Controller owns the request state machine and all per-request timers.
type Controller struct {
	provider provider.Client
	registry *registry.Registry
	cfg      *config.Config
	timeouts *config.Timeouts
	feature  FeatureEnabler
	log      logr.Logger
	now      func() time.Time

	// createMu makes the name-conflict check and insert atomic.
	createMu sync.Mutex

	mu    sync.Mutex
	tasks map[string]*taskSet

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// taskSet tracks the background machinery owned by one request. Its mutex
// serializes every state-changing handler for that request id, which is what
// makes record mutation single-writer without per-field locking.
type taskSet struct {
	mu             sync.Mutex
	estimator      *progress.Estimator
	stopProgress   context.CancelFunc
	stopReconcile  context.CancelFunc
	stopDeletion   context.CancelFunc
	featureStarted bool
}

// New creates a controller and starts its terminal-record sweeper.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Timeouts == nil {
		opts.Timeouts = config.LoadTimeouts()
	}

	root, stop := context.WithCancel(context.Background())
	c := &Controller{
		provider: opts.Provider,
		registry: opts.Registry,
		cfg:      opts.Config,
		timeouts: opts.Timeouts,
		feature:  opts.Feature,
		log:      opts.Log,
		now:      opts.Clock,
		tasks:    make(map[string]*taskSet),
		root:     root,
		stop:     stop,
	}

	c.wg.Add(1)
	go c.runSweeper(root)

	return c
}

// Close stops all timers and waits for in-flight work to finish.
func (c *Controller) Close() {
	c.stop()
	c.wg.Wait()
}

// Create validates and registers a provisioning request, then issues the
// provider create call asynchronously. It returns the request id.
func (c *Controller) Create(ctx context.Context, name, tier string) (string, error) {
	if err := validateName(name); err != nil {
		createTotal.WithLabelValues("validation_rejected").Inc()
		return "", err
	}
	if !config.ValidTiers[tier] {
		createTotal.WithLabelValues("validation_rejected").Inc()
		return "", &ValidationError{Field: "tier", Reason: fmt.Sprintf("unknown tier %q", tier)}
	}

	c.createMu.Lock()
	defer c.createMu.Unlock()

	if _, held := c.registry.FindActiveByName(name); held {
		createTotal.WithLabelValues("conflict_rejected").Inc()
		return "", &ConflictError{Name: name}
	}

	id := uuid.NewString()
	req := &registry.Request{
		ID:            id,
		DesiredName:   name,
		Tier:          tier,
		State:         registry.StateInitializing,
		StartedAt:     c.now(),
		StatusMessage: "create request accepted",
	}
	if err := c.registry.Insert(req); err != nil {
		return "", err
	}

	createTotal.WithLabelValues("created").Inc()
	transitionsTotal.WithLabelValues(string(registry.StateInitializing)).Inc()
	c.updateActiveGauge()

	ts := c.ensureTasks(id)
	c.wg.Add(1)
	go c.issueCreate(id, ts, name, tier)

	c.log.Info("provisioning request created", "request", id, "name", name, "tier", tier)
	return id, nil
}

// Status returns a copy of the request record.
func (c *Controller) Status(id string) (*registry.Request, error) {
	rec, ok := c.registry.Get(id)
	if !ok {
		return nil, ErrUnknownRequest
	}
	return rec, nil
}

// Cancel aborts a request. Cancelling an already-terminal request is an
// idempotent no-op; cancelling twice does not issue a second delete.
func (c *Controller) Cancel(ctx context.Context, id, reason string) error {
	rec, ok := c.registry.Get(id)
	if !ok {
		return ErrUnknownRequest
	}
	if rec.State.Terminal() || rec.State == registry.StateDeleting {
		return nil
	}

	ts := c.ensureTasks(id)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	// Re-read under the per-id lock; a poll may have raced us to a terminal
	// state.
	rec, ok = c.registry.Get(id)
	if !ok {
		return ErrUnknownRequest
	}
	if rec.State.Terminal() || rec.State == registry.StateDeleting {
		return nil
	}

	c.beginCancellationLocked(id, ts, rec, reason)
	return nil
}

// issueCreate performs the initial provider create call with retry on
// transient failures. On ack it transitions the request to CREATING and
// starts the estimator and (after the grace delay) the reconcile poller.
func (c *Controller) issueCreate(id string, ts *taskSet, name, tier string) {
	defer c.wg.Done()

	var result *provider.CreateResult
	err := retry.Do(c.root, func() error {
		start := time.Now()
		res, err := c.provider.Create(c.root, provider.CreateOpts{
			Name:   name,
			Tier:   tier,
			Region: c.cfg.Provider.Region,
		})
		providerCallDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
		if err != nil {
			if provider.IsMalformed(err) {
				return retry.Fatal(err)
			}
			if apiErr, ok := provider.AsAPIError(err); ok && apiErr.Status < 500 && apiErr.Status != 429 {
				return retry.Fatal(err)
			}
			return err
		}
		result = res
		return nil
	},
		retry.WithMaxAttempts(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay))

	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := c.registry.Get(id)
	if !ok || rec.State != registry.StateInitializing {
		// Cancelled or failed while the ack was in flight; discard.
		return
	}

	if err != nil {
		if c.root.Err() != nil {
			// Shutting down; leave the record for restart recovery.
			return
		}
		c.failLocked(id, ts, providerErrorMessage("provider create call failed", err))
		return
	}

	updated, uerr := c.registry.Update(id, func(r *registry.Request) {
		r.State = registry.StateCreating
		r.ProviderID = result.ID
		if result.Name != "" {
			r.CanonicalName = result.Name
		}
		r.StatusMessage = "provider acknowledged create"
	})
	if uerr != nil {
		c.log.Error(uerr, "failed to persist create ack", "request", id)
		return
	}
	transitionsTotal.WithLabelValues(string(registry.StateCreating)).Inc()

	c.startCreationTimersLocked(id, ts, updated)
	c.log.Info("provider acknowledged create", "request", id,
		"providerId", result.ID, "canonicalName", updated.CanonicalName)
}

// startCreationTimersLocked starts the progress ticker immediately and the
// reconcile poller after the grace delay. Caller holds ts.mu.
func (c *Controller) startCreationTimersLocked(id string, ts *taskSet, rec *registry.Request) {
	ts.estimator = progress.NewEstimator(rec.StartedAt, c.cfg.NominalDuration(rec.Tier),
		progress.WithClock(c.now))
	ts.estimator.ObserveFloor(rec.Progress)

	pctx, pcancel := context.WithCancel(c.root)
	ts.stopProgress = pcancel
	c.wg.Add(1)
	go c.runProgressTicker(pctx, id, ts)

	rctx, rcancel := context.WithCancel(c.root)
	ts.stopReconcile = rcancel
	c.wg.Add(1)
	go c.runReconcilePoller(rctx, id, ts)
}

// runProgressTicker recomputes the time-based progress estimate on a fixed
// tick and enforces the overall provisioning timeout.
func (c *Controller) runProgressTicker(ctx context.Context, id string, ts *taskSet) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.timeouts.ProgressTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.progressTick(id, ts) {
				return
			}
		}
	}
}

func (c *Controller) progressTick(id string, ts *taskSet) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := c.registry.Get(id)
	if !ok || rec.State != registry.StateCreating {
		return false
	}

	// Safety valve: fail regardless of what the poller observes.
	if c.now().Sub(rec.StartedAt) > c.timeouts.MaxProvision {
		c.failLocked(id, ts, fmt.Sprintf("provisioning timed out after %s", c.timeouts.MaxProvision))
		return false
	}

	pct := ts.estimator.Current()
	if pct != rec.Progress {
		if _, err := c.registry.Update(id, func(r *registry.Request) {
			r.Progress = pct
		}); err != nil {
			c.log.Error(err, "failed to persist progress", "request", id)
		}
	}
	return true
}

// markReadyLocked finalizes a confirmed-ready request. Caller holds ts.mu.
func (c *Controller) markReadyLocked(id string, ts *taskSet, cluster *provider.Cluster) {
	ts.stopTimersLocked()

	finished := c.now()
	updated, err := c.registry.Update(id, func(r *registry.Request) {
		r.State = registry.StateReady
		r.Progress = 100
		r.StatusMessage = "cluster ready"
		r.FinishedAt = &finished
		if cluster.Connection != nil {
			r.Connection = cluster.Connection
		}
		if r.ProviderID == "" {
			r.ProviderID = cluster.ID
		}
	})
	if err != nil {
		c.log.Error(err, "failed to persist ready state", "request", id)
		return
	}
	transitionsTotal.WithLabelValues(string(registry.StateReady)).Inc()
	c.updateActiveGauge()
	c.log.Info("cluster ready", "request", id, "name", updated.QueryName())

	if c.feature != nil && !ts.featureStarted {
		ts.featureStarted = true
		c.wg.Add(1)
		go c.runFeature(id, ts, updated.QueryName())
	}
}

// failLocked finalizes a failed request: timers stopped, progress forced to
// zero, message preserved for operators. Caller holds ts.mu.
func (c *Controller) failLocked(id string, ts *taskSet, message string) {
	ts.stopTimersLocked()

	finished := c.now()
	if _, err := c.registry.Update(id, func(r *registry.Request) {
		r.State = registry.StateFailed
		r.Progress = 0
		r.StatusMessage = message
		r.FinishedAt = &finished
	}); err != nil {
		c.log.Error(err, "failed to persist failed state", "request", id)
		return
	}
	transitionsTotal.WithLabelValues(string(registry.StateFailed)).Inc()
	c.updateActiveGauge()
	c.log.Info("provisioning failed", "request", id, "reason", message)
}

// runFeature enables the post-ready auxiliary feature and records its
// outcome. Supervised: the result lands on the record, not in a log line.
func (c *Controller) runFeature(id string, ts *taskSet, clusterName string) {
	defer c.wg.Done()

	err := c.feature.EnableFeature(c.root, clusterName)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, ok := c.registry.Get(id); !ok {
		return
	}
	if _, uerr := c.registry.Update(id, func(r *registry.Request) {
		if err != nil {
			r.FeatureFailed = true
			r.FeatureMessage = err.Error()
		} else {
			r.FeatureEnabled = true
			r.FeatureMessage = "auxiliary feature enabled"
		}
	}); uerr != nil {
		c.log.Error(uerr, "failed to persist feature outcome", "request", id)
	}
}

// runSweeper periodically purges terminal records past the retention window.
func (c *Controller) runSweeper(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.timeouts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := c.registry.Sweep(c.now(), c.timeouts.TerminalRetention); purged > 0 {
				c.log.Info("swept terminal records", "purged", purged)
				c.updateActiveGauge()
			}
		}
	}
}

func (c *Controller) ensureTasks(id string) *taskSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.tasks[id]
	if !ok {
		ts = &taskSet{}
		c.tasks[id] = ts
	}
	return ts
}

func (c *Controller) dropTasks(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, id)
}

// stopTimersLocked cancels every running timer for the request. Caller holds
// ts.mu. Stopping before starting a replacement keeps the at-most-one-poller
// invariant.
func (ts *taskSet) stopTimersLocked() {
	if ts.stopProgress != nil {
		ts.stopProgress()
		ts.stopProgress = nil
	}
	if ts.stopReconcile != nil {
		ts.stopReconcile()
		ts.stopReconcile = nil
	}
	if ts.stopDeletion != nil {
		ts.stopDeletion()
		ts.stopDeletion = nil
	}
}

func (c *Controller) updateActiveGauge() {
	active := 0
	for _, rec := range c.registry.List() {
		if !rec.State.Terminal() {
			active++
		}
	}
	activeRequests.Set(float64(active))
}

func validateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("name exceeds %d characters", maxNameLength)}
	}
	if !namePattern.MatchString(name) {
		return &ValidationError{Field: "name", Reason: "name must start with a lowercase letter and contain only lowercase letters, digits, and hyphens"}
	}
	return nil
}

// providerErrorMessage keeps the provider's own message verbatim when one is
// available, so operators see the original cause.
func providerErrorMessage(prefix string, err error) string {
	if apiErr, ok := provider.AsAPIError(err); ok {
		return fmt.Sprintf("%s: %s", prefix, apiErr.Message)
	}
	return fmt.Sprintf("%s: %v", prefix, err)
}
