package orchestrator

import (
	"fmt"

	"github.com/imamik/clusterd/internal/registry"
)

// Resume reloads the persisted snapshot and restarts the machinery each
// recovered request needs. Recovery policy: records past the recovery
// retention window are failed with a timeout message; records within it get
// their pollers and estimators restarted transparently. The provisioning
// timeout still applies from the original start time.
func (c *Controller) Resume() error {
	records, err := c.registry.Load()
	if err != nil {
		return fmt.Errorf("failed to recover registry: %w", err)
	}

	now := c.now()
	for _, rec := range records {
		switch {
		case rec.State.Terminal():
			// Left in place; the sweeper purges it once retention expires.

		case now.Sub(rec.StartedAt) > c.timeouts.RecoveryRetention:
			ts := c.ensureTasks(rec.ID)
			ts.mu.Lock()
			c.failLocked(rec.ID, ts, fmt.Sprintf(
				"provisioning timed out: request older than %s at recovery", c.timeouts.RecoveryRetention))
			ts.mu.Unlock()

		case rec.State == registry.StateDeleting:
			ts := c.ensureTasks(rec.ID)
			ts.mu.Lock()
			// The delete call was issued before the restart; only the
			// confirmation poll needs to come back.
			c.startDeletionPollerLocked(rec.ID, ts, rec.CanonicalName, rec.DesiredName, false)
			ts.mu.Unlock()
			c.log.Info("resumed deletion poll", "request", rec.ID)

		default:
			// INITIALIZING or CREATING within the window. For INITIALIZING
			// the fate of the original create call is unknown; polling
			// discovers ground truth either way, so treat it as CREATING.
			ts := c.ensureTasks(rec.ID)
			ts.mu.Lock()
			updated, uerr := c.registry.Update(rec.ID, func(r *registry.Request) {
				if r.State == registry.StateInitializing {
					r.State = registry.StateCreating
				}
				r.StatusMessage = "recovered after restart; awaiting provider confirmation"
			})
			if uerr != nil {
				ts.mu.Unlock()
				return fmt.Errorf("failed to persist recovered request %s: %w", rec.ID, uerr)
			}
			c.startCreationTimersLocked(rec.ID, ts, updated)
			ts.mu.Unlock()
			c.log.Info("resumed provisioning", "request", rec.ID, "progress", updated.Progress)
		}
	}

	c.updateActiveGauge()
	return nil
}
