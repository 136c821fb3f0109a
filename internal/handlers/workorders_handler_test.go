package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-workorder-sync/internal/store"
	"github.com/imrishuroy/go-workorder-sync/internal/store/storetest"
	"github.com/imrishuroy/go-workorder-sync/internal/syncer"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

type fakeRunner struct {
	healthErr error
	runErr    error
	calls     [][2]bool
}

func (f *fakeRunner) RunPasses(ctx context.Context, inbound, outbound bool) (syncer.Report, error) {
	f.calls = append(f.calls, [2]bool{inbound, outbound})
	return syncer.Report{RunID: "run-1", Outbound: syncer.OutboundStats{Read: 2, Synced: 2}}, f.runErr
}

func (f *fakeRunner) HealthCheck(ctx context.Context) error { return f.healthErr }

type fakeInbox struct {
	records []workorders.ClientWorkOrder
	err     error
}

func (f *fakeInbox) WriteInbound(ctx context.Context, rec workorders.ClientWorkOrder) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.records = append(f.records, rec)
	return "7.json", nil
}

type fixture struct {
	router *gin.Engine
	runner *fakeRunner
	store  *storetest.Memory
	inbox  *fakeInbox
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	f := &fixture{runner: &fakeRunner{}, store: storetest.NewMemory(), inbox: &fakeInbox{}}
	f.router = gin.New()
	RegisterRoutes(f.router, HandlerConfig{
		Runner: f.runner,
		Store:  f.store,
		Inbox:  f.inbox,
		Log:    logger,
	})
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	f.runner.healthErr = errors.New("connection refused")
	w = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSync_Directions(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-1", decode(t, w)["run_id"])

	w = f.do(http.MethodPost, "/sync", `{"direction":"outbound"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodPost, "/sync", `{"direction":"inbound"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, [][2]bool{{true, true}, {false, true}, {true, false}}, f.runner.calls)

	w = f.do(http.MethodPost, "/sync", `{"direction":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, f.runner.calls, 3)
}

func TestSync_Failure(t *testing.T) {
	f := newFixture()
	f.runner.runErr = &store.TransientError{Op: "health check", Err: errors.New("timeout")}

	w := f.do(http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "sync_failed", decode(t, w)["error"])
}

func TestCreateWorkOrder(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/workorders", `{"orderNo":7,"summary":"Replace belt","creationDate":"2024-05-01T08:00:00Z","isOnHold":true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "7.json", body["file"])
	assert.EqualValues(t, 7, body["order_no"])

	require.Len(t, f.inbox.records, 1)
	assert.True(t, f.inbox.records[0].IsOnHold)
}

func TestCreateWorkOrder_Rejected(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/workorders", `{"summary":"no number"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	fields, ok := decode(t, w)["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "required", fields["orderNo"])

	w = f.do(http.MethodPost, "/workorders", `{"orderNo":7,"summary":"x","creationDate":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_work_order", decode(t, w)["error"])

	w = f.do(http.MethodPost, "/workorders", `{"orderNo":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, f.inbox.records)
}

func TestCreateWorkOrder_WriteFailure(t *testing.T) {
	f := newFixture()
	f.inbox.err = errors.New("read-only file system")

	w := f.do(http.MethodPost, "/workorders", `{"orderNo":7,"summary":"x","creationDate":"2024-05-01T08:00:00Z"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListUnsynced(t *testing.T) {
	f := newFixture()
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	f.store.Put(workorders.WorkOrder{Number: 2, Title: "b", Status: workorders.StatusPending, CreatedAt: ts, UpdatedAt: ts})
	f.store.Put(workorders.WorkOrder{Number: 1, Title: "a", Status: workorders.StatusPending, CreatedAt: ts, UpdatedAt: ts, IsSynced: true})

	w := f.do(http.MethodGet, "/workorders/unsynced", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["count"])

	f.store.ReadErr = &store.TransientError{Op: "read unsynced", Err: errors.New("timeout")}
	w = f.do(http.MethodGet, "/workorders/unsynced", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetWorkOrder(t *testing.T) {
	f := newFixture()
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	f.store.Put(workorders.WorkOrder{Number: 3, Title: "Lube", Status: workorders.StatusInProgress, CreatedAt: ts, UpdatedAt: ts})

	w := f.do(http.MethodGet, "/workorders/3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "in_progress", decode(t, w)["status"])

	w = f.do(http.MethodGet, "/workorders/3?format=client", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["isActive"])
	assert.Equal(t, "Lube", body["summary"])

	w = f.do(http.MethodGet, "/workorders/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/workorders/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
