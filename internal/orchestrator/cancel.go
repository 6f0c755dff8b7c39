package orchestrator

import (
	"context"
	"time"

	"github.com/imamik/clusterd/internal/provider"
	"github.com/imamik/clusterd/internal/registry"
)

// beginCancellationLocked aborts an in-flight request: progress reporting is
// frozen, the creation machinery stops, and an independent deletion poller
// takes over. Caller holds ts.mu.
func (c *Controller) beginCancellationLocked(id string, ts *taskSet, rec *registry.Request, reason string) {
	ts.stopTimersLocked()
	if ts.estimator != nil {
		ts.estimator.Freeze()
	}

	message := "cancellation requested; deleting cluster"
	if reason != "" {
		message = "cancellation requested (" + reason + "); deleting cluster"
	}
	if _, err := c.registry.Update(id, func(r *registry.Request) {
		r.Cancelled = true
		r.State = registry.StateDeleting
		r.StatusMessage = message
	}); err != nil {
		c.log.Error(err, "failed to persist cancellation", "request", id)
		return
	}
	transitionsTotal.WithLabelValues(string(registry.StateDeleting)).Inc()
	c.log.Info("cancellation accepted", "request", id, "reason", reason)

	c.startDeletionPollerLocked(id, ts, rec.CanonicalName, rec.DesiredName, true)
}

// startDeletionPollerLocked starts the deletion-confirmation poller for a
// DELETING request. At most one deletion poller runs per request. Caller
// holds ts.mu.
func (c *Controller) startDeletionPollerLocked(id string, ts *taskSet, canonical, desired string, issueDelete bool) {
	if ts.stopDeletion != nil {
		return
	}
	dctx, dcancel := context.WithCancel(c.root)
	ts.stopDeletion = dcancel
	c.wg.Add(1)
	go c.runDeletionPoller(dctx, id, ts, canonical, desired, issueDelete)
}

// runDeletionPoller issues the provider delete call(s), then polls until the
// provider confirms removal or the confirmation bound is exceeded.
func (c *Controller) runDeletionPoller(ctx context.Context, id string, ts *taskSet, canonical, desired string, issueDelete bool) {
	defer c.wg.Done()

	if issueDelete {
		name := canonical
		if name == "" {
			name = desired
		}
		c.observedDelete(ctx, id, name)
		if canonical != "" && canonical != desired {
			// The provider may never have confirmed the rename, so the
			// cluster could still exist under the originally supplied name.
			c.observedDelete(ctx, id, desired)
		}
	}

	deadline := c.now().Add(c.timeouts.DeleteConfirmBound)
	ticker := time.NewTicker(c.timeouts.DeletePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := c.deletionTick(ctx, id, ts, deadline); done {
				return
			}
		}
	}
}

// deletionTick performs one deletion-confirmation poll. Returns true when
// polling should stop.
func (c *Controller) deletionTick(ctx context.Context, id string, ts *taskSet, deadline time.Time) bool {
	rec, ok := c.registry.Get(id)
	if !ok || rec.State != registry.StateDeleting {
		return true
	}

	if c.now().After(deadline) {
		// Leave the record present for operator follow-up rather than
		// letting the cluster silently disappear from view.
		ts.mu.Lock()
		defer ts.mu.Unlock()
		if _, err := c.registry.Update(id, func(r *registry.Request) {
			r.StatusMessage = "deletion not confirmed within " + c.timeouts.DeleteConfirmBound.String() +
				"; manual cleanup required"
		}); err != nil {
			c.log.Error(err, "failed to persist deletion timeout", "request", id)
		}
		c.log.Info("deletion confirmation timed out", "request", id)
		return true
	}

	cluster, err := c.observedGet(ctx, rec.QueryName())
	switch {
	case provider.IsNotFound(err):
		return c.confirmDeletion(id, ts)
	case err != nil:
		c.log.Error(err, "deletion poll failed", "request", id)
		return false
	default:
		ts.mu.Lock()
		defer ts.mu.Unlock()
		if _, uerr := c.registry.Update(id, func(r *registry.Request) {
			r.StatusMessage = "provider reports state " + cluster.State
		}); uerr != nil {
			c.log.Error(uerr, "failed to persist deletion status", "request", id)
		}
		return false
	}
}

// confirmDeletion removes the record entirely: a not-found response after a
// delete was issued is the provider confirming removal.
func (c *Controller) confirmDeletion(id string, ts *taskSet) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := c.registry.Get(id)
	if !ok || rec.State != registry.StateDeleting {
		return true
	}
	if err := c.registry.Remove(id); err != nil {
		c.log.Error(err, "failed to remove deleted request", "request", id)
		return false
	}
	transitionsTotal.WithLabelValues(string(registry.StateDeleted)).Inc()
	c.updateActiveGauge()
	c.dropTasks(id)
	c.log.Info("deletion confirmed, record removed", "request", id)
	return true
}

// observedDelete wraps provider.Delete with call duration metrics. Delete
// failures are logged but do not change request state: the deletion poller
// is the source of truth for teardown outcome.
func (c *Controller) observedDelete(ctx context.Context, id, name string) {
	start := time.Now()
	err := c.provider.Delete(ctx, name)
	providerCallDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Error(err, "provider delete call failed", "request", id, "name", name)
	}
}
