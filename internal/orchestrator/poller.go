package orchestrator

import (
	"context"
	"time"

	"github.com/imamik/clusterd/internal/provider"
	"github.com/imamik/clusterd/internal/registry"
)

// runReconcilePoller queries provider ground truth on a fixed interval,
// starting after an initial grace delay: the cluster is typically not
// queryable immediately after the create ack.
func (c *Controller) runReconcilePoller(ctx context.Context, id string, ts *taskSet) {
	defer c.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(c.timeouts.GraceDelay):
	}

	ticker := time.NewTicker(c.timeouts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := c.pollOnce(ctx, id, ts); done {
				return
			}
		}
	}
}

// pollOnce performs one reconciliation poll. It returns true when polling
// should stop: either the request reached a state this poller no longer
// serves, or the observation forced a terminal transition.
func (c *Controller) pollOnce(ctx context.Context, id string, ts *taskSet) bool {
	rec, ok := c.registry.Get(id)
	if !ok || rec.State.Terminal() || rec.State == registry.StateDeleting {
		return true
	}

	cluster, err := c.observedGet(ctx, rec.QueryName())
	switch {
	case err == nil:
		reconcilePollsTotal.WithLabelValues("confirmed").Inc()
		return c.onReconcile(id, ts, cluster)

	case provider.IsNotFound(err):
		if rec.CanonicalName != "" && rec.CanonicalName != rec.DesiredName {
			// The canonical name may be stale: the provider might never have
			// confirmed the rename. Probe the originally requested name and,
			// if that succeeds, adopt it as ground truth.
			probe, perr := c.observedGet(ctx, rec.DesiredName)
			if perr == nil {
				reconcilePollsTotal.WithLabelValues("fallback_adopted").Inc()
				c.adoptDesiredName(id, ts)
				return c.onReconcile(id, ts, probe)
			}
			if isHardError(perr) {
				reconcilePollsTotal.WithLabelValues("hard_error").Inc()
				return c.reportHardError(id, ts, perr)
			}
		}
		reconcilePollsTotal.WithLabelValues("not_found").Inc()
		// Transient: tolerated while the cluster is still expected to be
		// provisioning. The overall timeout bounds how long.
		return false

	case isHardError(err):
		reconcilePollsTotal.WithLabelValues("hard_error").Inc()
		return c.reportHardError(id, ts, err)

	default:
		reconcilePollsTotal.WithLabelValues("transport_error").Inc()
		c.log.Error(err, "reconcile poll failed", "request", id)
		return false
	}
}

// onReconcile maps an observed provider state into the local state machine.
// Returns true when the request reached a terminal state.
func (c *Controller) onReconcile(id string, ts *taskSet, cluster *provider.Cluster) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := c.registry.Get(id)
	if !ok || rec.State.Terminal() || rec.State == registry.StateDeleting {
		// The request moved on while this observation was in flight.
		return true
	}

	switch provider.ClassifyState(cluster.State) {
	case provider.ClassReady:
		c.markReadyLocked(id, ts, cluster)
		return true

	case provider.ClassFailed:
		message := cluster.Message
		if message == "" {
			message = "provider reported state " + cluster.State
		}
		c.failLocked(id, ts, message)
		return true

	case provider.ClassInProgress:
		if ts.estimator != nil {
			if cluster.Progress > 0 {
				ts.estimator.ObserveFloor(cluster.Progress)
			}
			pct := ts.estimator.PollTick()
			if _, err := c.registry.Update(id, func(r *registry.Request) {
				r.Progress = pct
				r.StatusMessage = observedMessage(cluster)
			}); err != nil {
				c.log.Error(err, "failed to persist poll update", "request", id)
			}
		}
		return false

	default:
		// Deleting or unrecognized: informational only.
		if _, err := c.registry.Update(id, func(r *registry.Request) {
			r.StatusMessage = observedMessage(cluster)
		}); err != nil {
			c.log.Error(err, "failed to persist poll update", "request", id)
		}
		return false
	}
}

// adoptDesiredName makes the originally requested name canonical after a
// successful fallback probe. All subsequent polls use it.
func (c *Controller) adoptDesiredName(id string, ts *taskSet) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	updated, err := c.registry.Update(id, func(r *registry.Request) {
		r.CanonicalName = r.DesiredName
	})
	if err != nil {
		c.log.Error(err, "failed to persist canonical name", "request", id)
		return
	}
	c.log.Info("adopted desired name as canonical", "request", id, "name", updated.CanonicalName)
}

// reportHardError fails the request on an explicit provider error or a
// malformed payload.
func (c *Controller) reportHardError(id string, ts *taskSet, err error) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := c.registry.Get(id)
	if !ok || rec.State.Terminal() || rec.State == registry.StateDeleting {
		return true
	}
	c.failLocked(id, ts, providerErrorMessage("provider reported error", err))
	return true
}

// observedGet wraps provider.Get with call duration metrics.
func (c *Controller) observedGet(ctx context.Context, name string) (*provider.Cluster, error) {
	start := time.Now()
	cluster, err := c.provider.Get(ctx, name)
	providerCallDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	return cluster, err
}

func isHardError(err error) bool {
	if provider.IsMalformed(err) {
		return true
	}
	_, ok := provider.AsAPIError(err)
	return ok
}

func observedMessage(cluster *provider.Cluster) string {
	if cluster.Message != "" {
		return cluster.Message
	}
	return "provider reports state " + cluster.State
}
