package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samlucas383/IoTDataX/internal/ingest"
	"github.com/samlucas383/IoTDataX/internal/telemetrydb"
)

type fakeIngester struct {
	submitted []*ingest.IngestRequest
	err       error
	snapshot  ingest.StatsSnapshot
}

func (f *fakeIngester) SubmitHTTP(req *ingest.IngestRequest) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, req)
	return nil
}

func (f *fakeIngester) Snapshot() ingest.StatsSnapshot { return f.snapshot }

type fakeStore struct {
	rows    []telemetrydb.TelemetryRow
	devices []telemetrydb.DeviceInfo
	latest  *telemetrydb.TelemetryRow
	stats   *telemetrydb.StoreStats
	deleted int64
	err     error

	lastFilter telemetrydb.TelemetryFilter
	lastHours  int
	lastDays   int
}

func (f *fakeStore) GetTelemetry(_ context.Context, filter telemetrydb.TelemetryFilter) ([]telemetrydb.TelemetryRow, error) {
	f.lastFilter = filter
	return f.rows, f.err
}

func (f *fakeStore) GetDevices(context.Context) ([]telemetrydb.DeviceInfo, error) {
	return f.devices, f.err
}

func (f *fakeStore) GetLatest(context.Context, string) (*telemetrydb.TelemetryRow, error) {
	return f.latest, f.err
}

func (f *fakeStore) GetHistory(_ context.Context, _ string, hours int) ([]telemetrydb.TelemetryRow, error) {
	f.lastHours = hours
	return f.rows, f.err
}

func (f *fakeStore) GetStats(context.Context) (*telemetrydb.StoreStats, error) {
	return f.stats, f.err
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, days int) (int64, error) {
	f.lastDays = days
	return f.deleted, f.err
}

func newTestServer(ingester Ingester, store TelemetryStore) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return NewRouter(NewHandlers(ingester, store), ok)
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIngest_Accepted(t *testing.T) {
	ingester := &fakeIngester{}
	handler := newTestServer(ingester, &fakeStore{})

	rec := doRequest(t, handler, http.MethodPost, "/ingest",
		`{"app_id": "weather-app", "ts": 1700000000000, "msg_id": "msg-1", "payload": {"temperature": 20.5}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "queued"}`, rec.Body.String())
	require.Len(t, ingester.submitted, 1)
	assert.Equal(t, "weather-app", ingester.submitted[0].AppID)
	assert.Equal(t, "msg-1", ingester.submitted[0].MsgID)
}

func TestIngest_InvalidJSON(t *testing.T) {
	handler := newTestServer(&fakeIngester{}, &fakeStore{})

	rec := doRequest(t, handler, http.MethodPost, "/ingest", `{"app_id": `)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestIngest_ValidationError(t *testing.T) {
	ingester := &fakeIngester{err: errors.New("app_id is required")}
	handler := newTestServer(ingester, &fakeStore{})

	rec := doRequest(t, handler, http.MethodPost, "/ingest", `{"ts": 1700000000000, "payload": {}}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIngest_Backpressure(t *testing.T) {
	ingester := &fakeIngester{err: ingest.ErrBackpressure}
	handler := newTestServer(ingester, &fakeStore{})

	rec := doRequest(t, handler, http.MethodPost, "/ingest",
		`{"app_id": "weather-app", "ts": 1700000000000, "payload": {}}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Detail, "backpressure")
}

func TestPipelineStats(t *testing.T) {
	ingester := &fakeIngester{snapshot: ingest.StatsSnapshot{
		QueueSize:     3,
		TotalReceived: 10,
		TotalIngested: 8,
		TotalErrors:   2,
		TotalBatches:  1,
		SuccessRate:   80,
	}}
	handler := newTestServer(ingester, &fakeStore{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/pipeline/stats", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var snapshot ingest.StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, ingester.snapshot, snapshot)
}

func TestGetTelemetry_FilterAndPaging(t *testing.T) {
	store := &fakeStore{rows: []telemetrydb.TelemetryRow{}}
	handler := newTestServer(&fakeIngester{}, store)

	rec := doRequest(t, handler, http.MethodGet,
		"/api/v1/telemetry?device_id=dev-1&device_type=ESP32&limit=50&offset=10", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, telemetrydb.TelemetryFilter{
		DeviceID:   "dev-1",
		DeviceType: "ESP32",
		Limit:      50,
		Offset:     10,
	}, store.lastFilter)
}

func TestGetTelemetry_LimitOutOfRange(t *testing.T) {
	handler := newTestServer(&fakeIngester{}, &fakeStore{})

	for _, target := range []string{
		"/api/v1/telemetry?limit=0",
		"/api/v1/telemetry?limit=1001",
		"/api/v1/telemetry?limit=abc",
	} {
		rec := doRequest(t, handler, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, target)
	}
}

func TestGetLatest(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	store := &fakeStore{latest: &telemetrydb.TelemetryRow{
		ID:        1,
		DeviceID:  "dev-1",
		Timestamp: &now,
		Payload:   map[string]any{"temperature": 20.5},
	}}
	handler := newTestServer(&fakeIngester{}, store)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/device/dev-1/latest", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var row telemetrydb.TelemetryRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "dev-1", row.DeviceID)
}

func TestGetLatest_UnknownDevice(t *testing.T) {
	handler := newTestServer(&fakeIngester{}, &fakeStore{latest: nil})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/device/nope/latest", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Detail, "nope")
}

func TestGetHistory_DefaultsAndBounds(t *testing.T) {
	store := &fakeStore{}
	handler := newTestServer(&fakeIngester{}, store)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/device/dev-1/history", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 24, store.lastHours)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/device/dev-1/history?hours=169", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteTelemetry(t *testing.T) {
	store := &fakeStore{deleted: 42}
	handler := newTestServer(&fakeIngester{}, store)

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/telemetry?days=7", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, store.lastDays)
	var resp deleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, int64(42), resp.DeletedRecords)
}

func TestStoreErrorMapsTo500(t *testing.T) {
	store := &fakeStore{err: assert.AnError}
	handler := newTestServer(&fakeIngester{}, store)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/devices", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthRoute(t *testing.T) {
	handler := newTestServer(&fakeIngester{}, &fakeStore{})

	rec := doRequest(t, handler, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
