// Package registry holds the durable store of provisioning requests.
//
// The registry is the sole mutable source of truth for request records.
// Every mutation is written through to a single JSON snapshot file, which is
// the only durable store the service has.
package registry

import (
	"time"

	"github.com/imamik/clusterd/internal/provider"
)

// State is the lifecycle state of a provisioning request.
type State string

const (
	// StateInitializing means the request is recorded but the provider
	// create call has not been acknowledged yet.
	StateInitializing State = "INITIALIZING"
	// StateCreating means the provider acknowledged the create call and the
	// cluster is being provisioned.
	StateCreating State = "CREATING"
	// StateReady means the provider confirmed the cluster is usable.
	StateReady State = "READY"
	// StateFailed means provisioning failed or timed out.
	StateFailed State = "FAILED"
	// StateDeleting means teardown was requested and is awaiting confirmation.
	StateDeleting State = "DELETING"
	// StateDeleted means teardown was confirmed; the record is removed.
	StateDeleted State = "DELETED"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed || s == StateDeleted
}

// Request is one tracked end-to-end attempt to provision a cluster.
// The request id is distinct from the provider's own cluster identity.
type Request struct {
	ID          string `json:"id"`
	DesiredName string `json:"desiredName"`

	// CanonicalName is the name the provider ultimately uses for the
	// cluster. Empty until resolved; may diverge from DesiredName.
	CanonicalName string `json:"canonicalName,omitempty"`

	Tier  string `json:"tier"`
	State State  `json:"state"`

	// Progress is the completion percentage shown to consumers.
	// Non-decreasing while State is CREATING.
	Progress int `json:"progressPercent"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	StatusMessage string `json:"statusMessage,omitempty"`
	ProviderID    string `json:"providerResourceId,omitempty"`
	Cancelled     bool   `json:"cancelled,omitempty"`

	// Post-ready side effect outcome. Tracked on the record but never fed
	// back into the state machine.
	FeatureEnabled bool   `json:"featureEnabled,omitempty"`
	FeatureFailed  bool   `json:"featureFailed,omitempty"`
	FeatureMessage string `json:"featureMessage,omitempty"`

	Connection *provider.Connection `json:"connection,omitempty"`
}

// QueryName returns the name reconciliation polls should use:
// the canonical name once known, the desired name before that.
func (r *Request) QueryName() string {
	if r.CanonicalName != "" {
		return r.CanonicalName
	}
	return r.DesiredName
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	out := *r
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		out.FinishedAt = &finished
	}
	if r.Connection != nil {
		conn := *r.Connection
		out.Connection = &conn
	}
	return &out
}
