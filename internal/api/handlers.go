package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/electrifix/scootertap/internal/baseline"
	"github.com/electrifix/scootertap/internal/capture"
	"github.com/electrifix/scootertap/internal/db"
	"github.com/electrifix/scootertap/internal/protocol"
	"github.com/electrifix/scootertap/internal/serialmux"
	"github.com/electrifix/scootertap/internal/session"
	"github.com/electrifix/scootertap/internal/units"
)

func (s *Server) listPorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ports, err := serialmux.ListPorts()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list serial ports: %v", err))
		return
	}
	if ports == nil {
		ports = []string{}
	}
	s.writeJSON(w, map[string]interface{}{"ports": ports})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	models, err := s.db.Models()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	s.writeJSON(w, models)
}

func (s *Server) listBaselines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	modelID, err := strconv.ParseInt(r.URL.Query().Get("model_id"), 10, 64)
	if err != nil || modelID < 1 {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'model_id' parameter")
		return
	}

	baselines, err := s.db.BaselinesForModel(modelID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve baselines: %v", err))
		return
	}
	if baselines == nil {
		baselines = []db.StoredBaseline{}
	}
	s.writeJSON(w, baselines)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.Sessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.CaptureSession{}
	}
	s.writeJSON(w, sessions)
}

func (s *Server) startCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var opts capture.StartOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if opts.Port == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'port'")
		return
	}

	sess, err := s.manager.Start(opts)
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, protocol.ErrUnknownProtocol):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to start capture: %v", err))
		return
	}

	_, _, _, status := sess.Snapshot()
	s.writeJSON(w, map[string]interface{}{
		"session_id": sess.ID(),
		"status":     status,
	})
}

func (s *Server) stopCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	counters, err := s.manager.Stop()
	if errors.Is(err, capture.ErrNoCapture) {
		s.writeJSONError(w, http.StatusConflict, "No capture is running")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to stop capture: %v", err))
		return
	}
	s.writeJSON(w, counters)
}

// statusResponse is the capture status snapshot returned by the API. Speed is
// converted to the server's display units.
type statusResponse struct {
	Active         bool                                `json:"active"`
	SessionID      string                              `json:"session_id,omitempty"`
	Protocol       string                              `json:"protocol,omitempty"`
	Status         session.Status                      `json:"status,omitempty"`
	Frame          *protocol.Frame                     `json:"frame,omitempty"`
	Classification map[protocol.Field]baseline.Verdict `json:"classification,omitempty"`
	Counters       *session.Counters                   `json:"counters,omitempty"`
	Units          string                              `json:"units"`
}

func (s *Server) captureStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sess := s.manager.Session()
	if sess == nil {
		s.writeJSON(w, statusResponse{Active: false, Units: s.units})
		return
	}

	frame, verdicts, counters, status := sess.Snapshot()
	s.convertFrameSpeed(&frame)
	s.writeJSON(w, statusResponse{
		Active:         sess.Active(),
		SessionID:      sess.ID(),
		Protocol:       sess.Protocol(),
		Status:         status,
		Frame:          &frame,
		Classification: verdicts,
		Counters:       &counters,
		Units:          s.units,
	})
}

// convertFrameSpeed rewrites the speed field into the display units without
// touching the caller's snapshot pointers.
func (s *Server) convertFrameSpeed(f *protocol.Frame) {
	if f.SpeedKMH == nil || s.units == units.KMH {
		return
	}
	converted := units.ConvertSpeed(*f.SpeedKMH, s.units)
	f.SpeedKMH = &converted
}
