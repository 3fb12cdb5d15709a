package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fieldops.dev/tabletwatch/internal/store"
	"fieldops.dev/tabletwatch/pkg/telemetry"
)

// maxSubmissionBytes bounds the accepted request body. A full poll tick
// with raw logs fits comfortably under it.
const maxSubmissionBytes = 1 << 20

// defaultWindowHours is the lookback used when the hours parameter is
// absent; maxWindowHours caps it at one week.
const (
	defaultWindowHours = 24
	maxWindowHours     = 168
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// windowHours parses the hours query parameter, bounded to [1, one week].
func windowHours(r *http.Request) int {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return defaultWindowHours
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return defaultWindowHours
	}
	if hours > maxWindowHours {
		return maxWindowHours
	}
	return hours
}

// handleSubmit ingests one telemetry submission.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub telemetry.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&sub); err != nil {
		s.logger.Debug("failed to decode submission", "error", err)
		s.writeJSON(w, http.StatusUnprocessableEntity, &telemetry.ValidationError{
			Field:  "body",
			Reason: "malformed JSON payload",
		})
		return
	}

	receipt, err := s.gateway.Submit(r.Context(), &sub)
	if err != nil {
		var verr *telemetry.ValidationError
		if errors.As(err, &verr) {
			s.writeJSON(w, http.StatusUnprocessableEntity, verr)
			return
		}
		s.logger.Error("failed to accept submission", "device_id", sub.DeviceID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to accept submission")
		return
	}

	s.writeJSON(w, http.StatusOK, receipt)
}

// handleHealth reports service and storage health. Degraded storage is
// still a 200: the service answers, on a fallback backend.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.store.Health(r.Context())
	backend := s.store.Backend()

	if s.metrics != nil {
		for _, h := range []store.Health{store.HealthHealthy, store.HealthDegraded, store.HealthUnhealthy} {
			v := 0.0
			if h == health {
				v = 1.0
			}
			s.metrics.StorageHealth.WithLabelValues(string(backend), string(h)).Set(v)
		}
	}

	status := http.StatusOK
	if health == store.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"status":    health,
		"backend":   backend,
		"timestamp": time.Now().UTC(),
	})
}

// handleDevices lists every registered device with liveness and latest
// sample flags.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.engine.FleetDevices(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleDeviceMetrics serves the merged sample history of one device.
func (s *Server) handleDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	deviceID := telemetry.NormalizeDeviceID(r.PathValue("id"))

	_, found, err := s.store.GetDevice(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("failed to look up device", "device_id", deviceID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to look up device")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}

	history, err := s.engine.DeviceHistory(r.Context(), deviceID, windowHours(r))
	if err != nil {
		s.logger.Error("failed to read device history", "device_id", deviceID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read device history")
		return
	}

	s.writeJSON(w, http.StatusOK, history)
}

// handleAnalytics serves the fleet overview.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.FleetSummary(r.Context())
	if err != nil {
		s.logger.Error("failed to compute fleet summary", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute fleet summary")
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

// handleAnalyticsSummary serves the correlation summary: the fleet-wide
// timeout analysis, or one device's aggregate when device_id is given.
func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	hours := windowHours(r)

	if raw := r.URL.Query().Get("device_id"); raw != "" {
		deviceID := telemetry.NormalizeDeviceID(raw)

		_, found, err := s.store.GetDevice(r.Context(), deviceID)
		if err != nil {
			s.logger.Error("failed to look up device", "device_id", deviceID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to look up device")
			return
		}
		if !found {
			s.writeError(w, http.StatusNotFound, "device not found")
			return
		}

		summary, err := s.engine.DeviceSummary(r.Context(), deviceID, hours)
		if err != nil {
			s.logger.Error("failed to compute device summary", "device_id", deviceID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to compute device summary")
			return
		}
		s.writeJSON(w, http.StatusOK, summary)
		return
	}

	analysis, err := s.engine.TimeoutAnalysis(r.Context(), hours)
	if err != nil {
		s.logger.Error("failed to compute timeout analysis", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute timeout analysis")
		return
	}

	s.writeJSON(w, http.StatusOK, analysis)
}

// handleAnalyticsInsights serves the statistical pattern report.
func (s *Server) handleAnalyticsInsights(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.InsightReport(r.Context(), windowHours(r))
	if err != nil {
		s.logger.Error("failed to compute insight report", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute insight report")
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}
