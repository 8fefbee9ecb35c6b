package commands

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerBaseURLPrecedence(t *testing.T) {
	t.Setenv("TRIBUTARY_SERVER_URL", "http://from-env:9000/")

	branchServerURL = ""
	assert.Equal(t, "http://from-env:9000", serverBaseURL())

	branchServerURL = "http://from-flag:8000/"
	t.Cleanup(func() { branchServerURL = "" })
	assert.Equal(t, "http://from-flag:8000", serverBaseURL())
}

func TestServerBaseURLDefault(t *testing.T) {
	branchServerURL = ""
	assert.Equal(t, "http://localhost:8080", serverBaseURL())
}

func TestCallAPISuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/branches", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"branches":[{"name":"main","status":"OPEN"}],"count":1}`))
	}))
	defer ts.Close()
	branchServerURL = ts.URL
	t.Cleanup(func() { branchServerURL = "" })

	raw, err := callAPI(http.MethodGet, "/api/v1/branches", nil)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"main"`)
}

func TestCallAPISendsJSONBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"name":"change1"}`))
	}))
	defer ts.Close()
	branchServerURL = ts.URL
	t.Cleanup(func() { branchServerURL = "" })

	raw, err := callAPI(http.MethodPost, "/api/v1/branches", map[string]string{"name": "change1"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "change1")
}

func TestCallAPIDecodesErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"BRANCH_EXISTS","message":"The branch change1, already exist"}`))
	}))
	defer ts.Close()
	branchServerURL = ts.URL
	t.Cleanup(func() { branchServerURL = "" })

	_, err := callAPI(http.MethodPost, "/api/v1/branches", map[string]string{"name": "change1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exist")
	assert.Contains(t, err.Error(), "BRANCH_EXISTS")
}

func TestCallAPIErrorWithoutEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()
	branchServerURL = ts.URL
	t.Cleanup(func() { branchServerURL = "" })

	_, err := callAPI(http.MethodGet, "/api/v1/branches", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
