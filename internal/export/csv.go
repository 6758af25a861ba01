// Package export renders telemetry snapshots as downloadable CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/telemetry"
	"github.com/wardflow/tanksentry/pkg/models"
)

// SnapshotSource yields the latest classified reading per tank.
type SnapshotSource interface {
	Snapshot() []telemetry.ClassifiedReading
}

// Handler serves CSV exports of current tank state.
type Handler struct {
	source SnapshotSource
	logger *zap.Logger
}

func NewHandler(source SnapshotSource, logger *zap.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

// RegisterRoutes registers export routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/export/readings.csv", h.handleReadings)
}

var csvHeader = []string{
	"resource_id", "ward", "timestamp",
	models.MetricPH, models.MetricTurbidity, models.MetricChlorine,
	models.MetricTemperature, models.MetricWaterLevel,
	"tier",
}

func (h *Handler) handleReadings(w http.ResponseWriter, r *http.Request) {
	ward := r.URL.Query().Get("ward")
	rows := h.source.Snapshot()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filename(time.Now().UTC())))

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		h.logger.Warn("csv export aborted", zap.Error(err))
		return
	}
	for _, cr := range rows {
		if ward != "" && cr.Ward != ward {
			continue
		}
		if err := cw.Write(record(cr)); err != nil {
			h.logger.Warn("csv export aborted", zap.Error(err))
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("csv export flush failed", zap.Error(err))
	}
}

func filename(now time.Time) string {
	return "readings-" + now.Format("20060102-150405") + ".csv"
}

func record(cr telemetry.ClassifiedReading) []string {
	return []string{
		cr.ResourceID,
		cr.Ward,
		cr.Timestamp.UTC().Format(time.RFC3339),
		metric(cr, models.MetricPH),
		metric(cr, models.MetricTurbidity),
		metric(cr, models.MetricChlorine),
		metric(cr, models.MetricTemperature),
		metric(cr, models.MetricWaterLevel),
		string(cr.Tier),
	}
}

// metric renders the named metric, or an empty cell when the sensor
// never reported it.
func metric(cr telemetry.ClassifiedReading, name string) string {
	v, ok := cr.Metrics[name]
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
