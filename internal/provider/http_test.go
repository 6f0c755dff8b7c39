package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Create(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/clusters", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req createRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "app-1", req.Name)
		assert.Equal(t, "small", req.Tier)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createResponse{ID: "c-123", Name: "app-1-x7", State: "pending"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-token")
	result, err := c.Create(context.Background(), CreateOpts{Name: "app-1", Tier: "small", Region: "eu-central"})
	require.NoError(t, err)
	assert.Equal(t, "c-123", result.ID)
	assert.Equal(t, "app-1-x7", result.Name)
	assert.Equal(t, "pending", result.State)
}

func TestHTTPClient_Create_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"state": "pending"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "t")
	_, err := c.Create(context.Background(), CreateOpts{Name: "app-1", Tier: "small"})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestHTTPClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/clusters/app-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(clusterResponse{
			ID:         "c-123",
			Name:       "app-1",
			State:      "ready",
			Connection: &Connection{Host: "db.example.com", Port: 27017},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "t")
	cluster, err := c.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "ready", cluster.State)
	require.NotNil(t, cluster.Connection)
	assert.Equal(t, "db.example.com", cluster.Connection.Host)
}

func TestHTTPClient_Get_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "t")
	_, err := c.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestHTTPClient_Get_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "t")
	_, err := c.Get(context.Background(), "app-1")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.True(t, IsMalformed(err))
}

func TestHTTPClient_ErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(errorResponse{Code: "QUOTA_EXCEEDED", Message: "tier quota exhausted"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "t")
	_, err := c.Create(context.Background(), CreateOpts{Name: "app-1", Tier: "large"})
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "QUOTA_EXCEEDED", apiErr.Code)
	assert.Equal(t, "tier quota exhausted", apiErr.Message)
}

func TestHTTPClient_EnableBackups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/clusters/app-1/backups", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "t")
	require.NoError(t, c.EnableBackups(context.Background(), "app-1"))
}

func TestHTTPClient_Delete_NotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "t")
	require.NoError(t, c.Delete(context.Background(), "already-gone"))
}

func TestHTTPClient_CallTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewHTTPClient(srv.URL, "t", WithCallTimeout(50*time.Millisecond))
	_, err := c.Get(context.Background(), "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyState(t *testing.T) {
	tests := []struct {
		state string
		want  StateClass
	}{
		{"provisioning", ClassInProgress},
		{"creating", ClassInProgress},
		{"pending", ClassInProgress},
		{"ready", ClassReady},
		{"running", ClassReady},
		{"failed", ClassFailed},
		{"error", ClassFailed},
		{"deleting", ClassDeleting},
		{"repairing", ClassUnknown},
		{"", ClassUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyState(tt.state), "state %q", tt.state)
	}
}
