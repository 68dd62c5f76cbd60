package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geepers/cascade/executor"
	"github.com/geepers/cascade/orchestrator"
	"github.com/geepers/cascade/store"
	"github.com/geepers/cascade/types"
)

func newTestMux(t *testing.T) (*http.ServeMux, *orchestrator.Orchestrator) {
	t.Helper()

	sessions := store.NewMemorySessionStore()
	t.Cleanup(func() { sessions.Close() })

	exec := executor.Func(func(ctx context.Context, agentIndex int, taskText string) (*executor.Result, error) {
		return &executor.Result{
			Content:    fmt.Sprintf("agent %d findings", agentIndex),
			TokensUsed: 10,
		}, nil
	})

	orch := orchestrator.New(exec, sessions, orchestrator.Config{
		MaxConcurrentUnits:      4,
		MaxPipelines:            4,
		PipelineQueueSize:       16,
		DefaultMidTierGroupSize: 2,
	}, zap.NewNop(), nil)
	t.Cleanup(orch.Close)

	mux := http.NewServeMux()
	NewSessionHandler(orch, zap.NewNop()).Register(mux)
	return mux, orch
}

func startSession(t *testing.T, mux *http.ServeMux, body string) string {
	t.Helper()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(body))
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		Data StartResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Data.SessionID)
	return resp.Data.SessionID
}

func waitCompleted(t *testing.T, orch *orchestrator.Orchestrator, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		session, err := orch.Status(context.Background(), id)
		return err == nil && session.State == types.StateCompleted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHandleStart_Accepted(t *testing.T) {
	mux, orch := newTestMux(t)

	id := startSession(t, mux, `{"description":"inspect hull","worker_count":2,"mode":"parallel"}`)
	waitCompleted(t, orch, id)
}

func TestHandleStart_InvalidTask(t *testing.T) {
	mux, _ := newTestMux(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions",
		strings.NewReader(`{"description":"","worker_count":2,"mode":"parallel"}`))
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrInvalidConfig), resp.Error.Code)
}

func TestHandleStart_UnknownField(t *testing.T) {
	mux, _ := newTestMux(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions",
		strings.NewReader(`{"description":"x","worker_count":1,"mode":"parallel","bogus":true}`))
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStatus(t *testing.T) {
	mux, orch := newTestMux(t)

	id := startSession(t, mux, `{"description":"status check","worker_count":1,"mode":"parallel"}`)
	waitCompleted(t, orch, id)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil)
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data types.Session `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, id, resp.Data.ID)
	assert.Equal(t, types.StateCompleted, resp.Data.State)
}

func TestHandleStatus_NotFound(t *testing.T) {
	mux, _ := newTestMux(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/no-such-id", nil)
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleResults_JSONAndMarkdown(t *testing.T) {
	mux, orch := newTestMux(t)

	id := startSession(t, mux, `{"description":"render me","worker_count":2,"mode":"parallel","enable_executive":true}`)
	waitCompleted(t, orch, id)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/results", nil)
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data types.Report `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data.Workers, 2)
	require.NotNil(t, resp.Data.Executive)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/results?format=markdown", nil)
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "## Executive Summary")
}

func TestHandleResults_NotReadyAndBadFormat(t *testing.T) {
	mux, orch := newTestMux(t)

	id := startSession(t, mux, `{"description":"fmt","worker_count":1,"mode":"parallel"}`)
	waitCompleted(t, orch, id)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/results?format=yaml", nil)
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/no-such-id/results", nil)
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCancel(t *testing.T) {
	mux, orch := newTestMux(t)

	id := startSession(t, mux, `{"description":"cancelable","worker_count":1,"mode":"parallel"}`)
	waitCompleted(t, orch, id)

	// Terminal session: cancel reports false but is not an error.
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/cancel", nil)
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data CancelResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Data.Cancelled)
	assert.Equal(t, types.StateCompleted, resp.Data.State)

	// Unknown session is a 404.
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/api/v1/sessions/no-such-id/cancel", nil)
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_ = orch
}

func TestHandleListAndDelete(t *testing.T) {
	mux, orch := newTestMux(t)

	id := startSession(t, mux, `{"description":"list me","worker_count":1,"mode":"parallel"}`)
	waitCompleted(t, orch, id)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			SessionIDs []string `json:"session_ids"`
			Count      int      `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Data.SessionIDs, id)
	assert.Equal(t, 1, resp.Data.Count)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil)
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil)
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
