package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/ingest"
	"github.com/samlucas383/IoTDataX/internal/telemetrydb"
)

// Ingester is the slice of the pipeline the HTTP layer needs: submit one
// record, read the stats snapshot.
type Ingester interface {
	SubmitHTTP(req *ingest.IngestRequest) error
	Snapshot() ingest.StatsSnapshot
}

// TelemetryStore is the query side of the persisted store.
type TelemetryStore interface {
	GetTelemetry(ctx context.Context, filter telemetrydb.TelemetryFilter) ([]telemetrydb.TelemetryRow, error)
	GetDevices(ctx context.Context) ([]telemetrydb.DeviceInfo, error)
	GetLatest(ctx context.Context, deviceID string) (*telemetrydb.TelemetryRow, error)
	GetHistory(ctx context.Context, deviceID string, hours int) ([]telemetrydb.TelemetryRow, error)
	GetStats(ctx context.Context) (*telemetrydb.StoreStats, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// Handlers serves the ingest endpoint, the query layer and pipeline
// introspection.
type Handlers struct {
	ingester Ingester
	store    TelemetryStore
}

func NewHandlers(ingester Ingester, store TelemetryStore) *Handlers {
	return &Handlers{ingester: ingester, store: store}
}

type errorResponse struct {
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}

type deleteResponse struct {
	Status         string `json:"status"`
	DeletedRecords int64  `json:"deleted_records"`
	OlderThanDays  int    `json:"older_than_days"`
}

// Ingest handles POST /ingest. Validation failures get 422 so producers can
// tell bad input from overload; backpressure gets 503 so they know to back
// off and retry.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingest.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, errors.Wrap(err, "invalid JSON body").Error())
		return
	}
	if err := h.ingester.SubmitHTTP(&req); err != nil {
		if errors.Is(err, ingest.ErrBackpressure) {
			writeError(w, http.StatusServiceUnavailable, "ingest backpressure: queue is full, retry with backoff")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// PipelineStats handles GET /api/v1/pipeline/stats.
func (h *Handlers) PipelineStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ingester.Snapshot())
}

// GetTelemetry handles GET /api/v1/telemetry.
func (h *Handlers) GetTelemetry(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 100, 1, 1000)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0, 0, 1<<31-1)
	if !ok {
		return
	}
	rows, err := h.store.GetTelemetry(r.Context(), telemetrydb.TelemetryFilter{
		DeviceID:   r.URL.Query().Get("device_id"),
		DeviceType: r.URL.Query().Get("device_type"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetDevices handles GET /api/v1/devices.
func (h *Handlers) GetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.GetDevices(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// GetLatest handles GET /api/v1/device/{deviceID}/latest.
func (h *Handlers) GetLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	row, err := h.store.GetLatest(r.Context(), deviceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "Device "+deviceID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// GetHistory handles GET /api/v1/device/{deviceID}/history.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	hours, ok := queryInt(w, r, "hours", 24, 1, 168)
	if !ok {
		return
	}
	rows, err := h.store.GetHistory(r.Context(), chi.URLParam(r, "deviceID"), hours)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetStats handles GET /api/v1/stats.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DeleteTelemetry handles DELETE /api/v1/telemetry.
func (h *Handlers) DeleteTelemetry(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 30, 1, 365)
	if !ok {
		return
	}
	deleted, err := h.store.DeleteOlderThan(r.Context(), days)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		Status:         "success",
		DeletedRecords: deleted,
		OlderThanDays:  days,
	})
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < min || value > max {
		writeError(w, http.StatusUnprocessableEntity,
			name+" must be an integer between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
		return 0, false
	}
	return value, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	log.WithError(err).Error("Store query failed")
	writeError(w, http.StatusInternalServerError, "store query failed")
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail, StatusCode: status})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to write response body")
	}
}
