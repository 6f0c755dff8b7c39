package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterd/internal/provider"
	"github.com/imamik/clusterd/internal/registry"
)

func TestCancel_UnknownRequest(t *testing.T) {
	f := newFixture(t, &provider.MockClient{})
	err := f.ctrl.Cancel(context.Background(), "no-such-id", "")
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestCancel_MidCreating(t *testing.T) {
	var mu sync.Mutex
	deleted := false
	mock := &provider.MockClient{
		CreateFunc: func(_ context.Context, opts provider.CreateOpts) (*provider.CreateResult, error) {
			return &provider.CreateResult{ID: "c-1", Name: opts.Name + "-x7"}, nil
		},
	}
	mock.GetFunc = func(_ context.Context, name string) (*provider.Cluster, error) {
		mu.Lock()
		defer mu.Unlock()
		if deleted {
			return nil, provider.ErrNotFound
		}
		return &provider.Cluster{ID: "c-1", Name: name, State: "provisioning"}, nil
	}
	mock.DeleteFunc = func(_ context.Context, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		deleted = true
		return nil
	}
	f := newFixture(t, mock)

	id, err := f.ctrl.Create(context.Background(), "app-1", "small")
	require.NoError(t, err)
	f.waitForState(t, id, registry.StateCreating)

	require.NoError(t, f.ctrl.Cancel(context.Background(), id, "wrong tier selected"))

	rec, ok := f.registry.Get(id)
	if ok {
		// Not yet confirmed: the record must show the cancellation.
		assert.True(t, rec.Cancelled)
		assert.Equal(t, registry.StateDeleting, rec.State)
		assert.Contains(t, rec.StatusMessage, "wrong tier selected")
	}

	// A not-found after the delete confirms removal; the record disappears.
	require.Eventually(t, func() bool {
		_, ok := f.registry.Get(id)
		return !ok
	}, waitFor, tick)

	// Both the canonical and the originally supplied name were deleted:
	// the provider may never have confirmed the rename.
	deletes := f.mock.DeleteCalls()
	assert.Contains(t, deletes, "app-1-x7")
	assert.Contains(t, deletes, "app-1")

	// A purged request is indistinguishable from one that never existed.
	assert.ErrorIs(t, f.ctrl.Cancel(context.Background(), id, ""), ErrUnknownRequest)
	_, err = f.ctrl.Status(id)
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestCancel_IdempotentOnTerminal(t *testing.T) {
	f := newFixture(t, &provider.MockClient{}) // default Get reports ready

	id, err := f.ctrl.Create(context.Background(), "app-1", "small")
	require.NoError(t, err)
	f.waitForState(t, id, registry.StateReady)

	require.NoError(t, f.ctrl.Cancel(context.Background(), id, ""))
	require.NoError(t, f.ctrl.Cancel(context.Background(), id, ""))

	rec, ok := f.registry.Get(id)
	require.True(t, ok)
	assert.Equal(t, registry.StateReady, rec.State, "terminal state unchanged")
	assert.False(t, rec.Cancelled)
	assert.Empty(t, f.mock.DeleteCalls(), "no provider delete for a terminal request")
}

func TestCancel_SecondCancelNoDuplicateDelete(t *testing.T) {
	mock := &provider.MockClient{
		GetFunc: func(_ context.Context, name string) (*provider.Cluster, error) {
			return &provider.Cluster{Name: name, State: "deleting"}, nil
		},
	}
	f := newFixture(t, mock)

	id, err := f.ctrl.Create(context.Background(), "app-1", "small")
	require.NoError(t, err)
	f.waitForState(t, id, registry.StateCreating)

	require.NoError(t, f.ctrl.Cancel(context.Background(), id, ""))
	require.Eventually(t, func() bool {
		return len(f.mock.DeleteCalls()) > 0
	}, waitFor, tick)
	before := len(f.mock.DeleteCalls())

	require.NoError(t, f.ctrl.Cancel(context.Background(), id, "again"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, len(f.mock.DeleteCalls()), "cancel while DELETING issues no second delete")

	// A "deleting" status only refreshes the message.
	rec, ok := f.registry.Get(id)
	require.True(t, ok)
	assert.Equal(t, registry.StateDeleting, rec.State)
}

func TestCancel_ConfirmationTimeout(t *testing.T) {
	mock := &provider.MockClient{
		GetFunc: func(_ context.Context, name string) (*provider.Cluster, error) {
			return &provider.Cluster{Name: name, State: "deleting"}, nil
		},
	}

	reg := registry.New(registry.NewSnapshotStore(filepath.Join(t.TempDir(), "requests.json")), logr.Discard())
	tt := testTimeouts()
	tt.DeleteConfirmBound = 40 * time.Millisecond
	ctrl := New(Options{
		Provider: mock,
		Registry: reg,
		Config:   testConfig(),
		Timeouts: tt,
		Log:      logr.Discard(),
	})
	t.Cleanup(ctrl.Close)

	id, err := ctrl.Create(context.Background(), "app-1", "small")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec, ok := reg.Get(id)
		return ok && rec.State == registry.StateCreating
	}, waitFor, tick)

	require.NoError(t, ctrl.Cancel(context.Background(), id, ""))

	// The bound passes without confirmation: the record stays visible for
	// operator follow-up instead of silently disappearing.
	require.Eventually(t, func() bool {
		rec, ok := reg.Get(id)
		return ok && rec.State == registry.StateDeleting && rec.Cancelled &&
			strings.Contains(rec.StatusMessage, "manual cleanup required")
	}, waitFor, tick)
}
