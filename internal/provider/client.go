// Package provider wraps the cluster provider's HTTP API.
//
// The provider API is asynchronous and eventually consistent: a create call
// only acknowledges the request, and the resulting cluster becomes observable
// some time later via get. All lifecycle decisions based on provider state
// belong to the orchestrator; this package only moves typed data in and out.
package provider

import (
	"context"
)

// CreateOpts holds all parameters for requesting a new cluster.
type CreateOpts struct {
	Name   string
	Tier   string
	Region string
}

// CreateResult is the provider's acknowledgement of a create request.
// Name may differ from the requested name; State is optional and advisory.
type CreateResult struct {
	ID    string
	Name  string
	State string
}

// Connection describes how to reach a provisioned cluster.
type Connection struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	URI  string `json:"uri,omitempty"`
}

// Cluster is the provider's view of a cluster returned by get.
type Cluster struct {
	ID      string
	Name    string
	State   string
	Message string

	// Progress is the provider's own completion estimate in percent,
	// 0 when the provider does not report one.
	Progress   int
	Connection *Connection
}

// Client defines the interface for talking to the cluster provider.
type Client interface {
	// Create requests a new cluster. The returned result is only an
	// acknowledgement; the cluster is typically not queryable yet.
	Create(ctx context.Context, opts CreateOpts) (*CreateResult, error)

	// Get returns the provider's current view of the named cluster,
	// or an error satisfying IsNotFound if the provider does not know it.
	Get(ctx context.Context, name string) (*Cluster, error)

	// Delete requests removal of the named cluster. Deleting a cluster the
	// provider does not know is not an error.
	Delete(ctx context.Context, name string) error
}

// StateClass buckets the provider's free-form lifecycle states.
type StateClass int

const (
	// ClassUnknown covers states this orchestrator does not act on.
	ClassUnknown StateClass = iota
	// ClassInProgress means the cluster is still being provisioned.
	ClassInProgress
	// ClassReady means the provider confirmed the cluster is usable.
	ClassReady
	// ClassFailed means the provider confirmed provisioning failed.
	ClassFailed
	// ClassDeleting means the provider is tearing the cluster down.
	ClassDeleting
)

// ClassifyState maps a provider-reported state string onto a StateClass.
// Unrecognized states classify as ClassUnknown and are informational only.
func ClassifyState(state string) StateClass {
	switch state {
	case "provisioning", "creating", "pending", "initializing":
		return ClassInProgress
	case "ready", "running", "healthy":
		return ClassReady
	case "failed", "error":
		return ClassFailed
	case "deleting", "destroying":
		return ClassDeleting
	default:
		return ClassUnknown
	}
}
