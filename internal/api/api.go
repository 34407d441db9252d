package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/internal/engine"
	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// Controller is the part of the engine the API drives.
type Controller interface {
	GetState() *model.State
	SetState(ctx context.Context, zoneID, triggerID string, triggered bool) error
	Value(ref model.EntityRef) (bool, error)
}

// HistorySource lists master transitions, newest first.
type HistorySource interface {
	List(limit int) ([]model.HistoryEntry, error)
}

type Server struct {
	controller Controller
	history    HistorySource
}

type StateResponse struct {
	Success bool         `json:"success"`
	State   *model.State `json:"state"`
}

type SetStateRequest struct {
	ZoneID    string    `json:"zoneId"`
	TriggerID string    `json:"triggerId"`
	Triggered *flexBool `json:"triggered"`
}

type ValueResponse struct {
	Success bool `json:"success"`
	Value   bool `json:"value"`
}

type HistoryResponse struct {
	Success bool                 `json:"success"`
	History []model.HistoryEntry `json:"history"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

const defaultHistoryLimit = 50

// NewServer builds the control API. history may be nil when the history
// database is disabled.
func NewServer(controller Controller, history HistorySource) *Server {
	return &Server{
		controller: controller,
		history:    history,
	}
}

// Handler returns the routes wrapped with permissive CORS headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/state/value", s.handleValue)
	mux.HandleFunc("/history", s.handleHistory)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("Starting REST API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, StateResponse{Success: true, State: s.controller.GetState()})
	case http.MethodPost:
		s.setState(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) setState(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSetState(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ZoneID == "" || req.TriggerID == "" {
		s.writeError(w, http.StatusBadRequest, "zoneId and triggerId are required")
		return
	}
	if req.Triggered == nil {
		s.writeError(w, http.StatusBadRequest, "triggered is required")
		return
	}
	triggered := bool(*req.Triggered)

	log.Debug().
		Str("zone_id", req.ZoneID).
		Str("trigger_id", req.TriggerID).
		Bool("triggered", triggered).
		Msg("POST /state")

	if err := s.controller.SetState(r.Context(), req.ZoneID, req.TriggerID, triggered); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error().Err(err).Str("zone_id", req.ZoneID).Str("trigger_id", req.TriggerID).Msg("Failed to set trigger state")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().
		Str("zone_id", req.ZoneID).
		Str("trigger_id", req.TriggerID).
		Bool("triggered", triggered).
		Msg("Trigger state updated via API")
	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func decodeSetState(r *http.Request) (SetStateRequest, error) {
	var req SetStateRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return req, errors.New("Invalid form payload")
		}
		req.ZoneID = r.PostForm.Get("zoneId")
		req.TriggerID = r.PostForm.Get("triggerId")
		if raw := r.PostForm.Get("triggered"); raw != "" {
			value, err := parseBool(raw)
			if err != nil {
				return req, err
			}
			b := flexBool(value)
			req.Triggered = &b
		}
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.New("Invalid JSON payload")
	}
	return req, nil
}

// handleValue answers with one entity's value: the trigger when both ids
// are given, the zone when only zoneId is, and the master otherwise.
func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	zoneID := r.URL.Query().Get("zoneId")
	triggerID := r.URL.Query().Get("triggerId")

	ref := model.MasterRef()
	switch {
	case zoneID != "" && triggerID != "":
		ref = model.TriggerRef(zoneID, triggerID)
	case zoneID != "":
		ref = model.ZoneRef(zoneID)
	case triggerID != "":
		s.writeError(w, http.StatusBadRequest, "triggerId requires zoneId")
		return
	}

	value, err := s.controller.Value(ref)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ValueResponse{Success: true, Value: value})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "History is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.List(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Success: true, History: entries})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: message})
}

// flexBool accepts true/false, 0/1 and their string forms.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	value, err := parseBool(raw)
	if err != nil {
		return err
	}
	*b = flexBool(value)
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "on":
		return true, nil
	case "false", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("triggered must be a boolean, got %q", raw)
}
