// Package handlers exposes the analytics agent over HTTP. Hosts post events,
// identity changes, consent decisions and lifecycle signals; each request is
// handed to the pipeline and answered without waiting for delivery.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/validation"
	"analytics-sdk/internal/consent"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/settings"
)

// Version is reported by the health check.
const Version = "1.0.0"

// Agent is the pipeline surface the handlers drive.
type Agent interface {
	Track(d *dispatch.Dispatch)
	SetIdentity(value string) error
	VisitorID() string
	ResetVisitorID() string
	SetConsent(status consent.Status, categories []consent.Category) error
	ConsentPreferences() (consent.Preferences, bool)
	ActivityResumed()
	ActivityPaused()
	ActivityStopped(isChangingConfiguration bool)
	SetBatteryLevel(level int)
	SetConnectivity(connected, wifi bool)
	QueueSize(ctx context.Context) (int, error)
	Settings() *settings.LibrarySettings
}

type Handlers struct {
	agent  Agent
	logger logging.Logger
}

func New(agent Agent) *Handlers {
	return &Handlers{
		agent:  agent,
		logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "handlers"}),
	}
}

// TrackRequest is the body of POST /track.
type TrackRequest struct {
	Event string                 `json:"event" validate:"required,max=256"`
	Type  string                 `json:"type" validate:"omitempty,oneof=event view"`
	Data  map[string]interface{} `json:"data"`
}

type IdentityRequest struct {
	Identity string `json:"identity" validate:"required"`
}

type ConsentRequest struct {
	Status     string   `json:"status" validate:"required,oneof=consented notConsented unknown"`
	Categories []string `json:"categories"`
}

type BatteryRequest struct {
	Level int `json:"level" validate:"min=-1,max=100"`
}

type ConnectivityRequest struct {
	Connected bool `json:"connected"`
	Wifi      bool `json:"wifi"`
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, data interface{}) {
	h.sendJSONStatus(w, http.StatusOK, data)
}

func (h *Handlers) sendJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// sendError maps the error type to an HTTP status.
func (h *Handlers) sendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeMalformed:
		status = http.StatusBadRequest
	case errors.ErrTypeConfig:
		status = http.StatusConflict
	case errors.ErrTypeNotFound:
		status = http.StatusNotFound
	case errors.ErrTypeTransient, errors.ErrTypeConnection, errors.ErrTypeStorage:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", err)
	}
	h.sendJSONStatus(w, status, map[string]string{"error": err.Error()})
}

// decode reads and validates a JSON body into v.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.MalformedError("invalid JSON body", err)
	}
	return validation.ValidateStruct(v)
}

// HandleTrack accepts an event or view for the pipeline.
func (h *Handlers) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := decode(r, &req); err != nil {
		h.sendError(w, err)
		return
	}

	var d *dispatch.Dispatch
	if req.Type == "view" {
		d = dispatch.NewView(req.Event, req.Data)
	} else {
		d = dispatch.NewEvent(req.Event, req.Data)
	}
	h.agent.Track(d)

	h.sendJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"id":     d.ID(),
		"status": "accepted",
	})
}

// HandleIdentity links a known user identity to the visitor.
func (h *Handlers) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	var req IdentityRequest
	if err := decode(r, &req); err != nil {
		h.sendError(w, err)
		return
	}
	if err := h.agent.SetIdentity(req.Identity); err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSONResponse(w, map[string]string{"visitor_id": h.agent.VisitorID()})
}

func (h *Handlers) GetVisitor(w http.ResponseWriter, r *http.Request) {
	h.sendJSONResponse(w, map[string]string{"visitor_id": h.agent.VisitorID()})
}

func (h *Handlers) ResetVisitor(w http.ResponseWriter, r *http.Request) {
	h.sendJSONResponse(w, map[string]string{"visitor_id": h.agent.ResetVisitorID()})
}

// HandleConsent records the user's consent decision.
func (h *Handlers) HandleConsent(w http.ResponseWriter, r *http.Request) {
	var req ConsentRequest
	if err := decode(r, &req); err != nil {
		h.sendError(w, err)
		return
	}

	status := consent.ParseStatus(req.Status)
	if err := h.agent.SetConsent(status, consent.ParseCategories(req.Categories)); err != nil {
		h.sendError(w, err)
		return
	}
	h.GetConsent(w, r)
}

func (h *Handlers) GetConsent(w http.ResponseWriter, r *http.Request) {
	prefs, ok := h.agent.ConsentPreferences()
	if !ok {
		h.sendError(w, errors.ConfigError("consent management is not enabled"))
		return
	}
	h.sendJSONResponse(w, map[string]interface{}{
		"status":     string(prefs.Status),
		"categories": prefs.Categories,
	})
}

// HandleLifecycle forwards host lifecycle signals. The stopped signal takes
// an optional configuration_change query flag.
func (h *Handlers) HandleLifecycle(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["signal"] {
	case "resumed":
		h.agent.ActivityResumed()
	case "paused":
		h.agent.ActivityPaused()
	case "stopped":
		h.agent.ActivityStopped(r.URL.Query().Get("configuration_change") == "true")
	default:
		h.sendError(w, errors.NotFoundError("lifecycle signal"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleBattery(w http.ResponseWriter, r *http.Request) {
	var req BatteryRequest
	if err := decode(r, &req); err != nil {
		h.sendError(w, err)
		return
	}
	h.agent.SetBatteryLevel(req.Level)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if err := decode(r, &req); err != nil {
		h.sendError(w, err)
		return
	}
	h.agent.SetConnectivity(req.Connected, req.Wifi)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.sendJSONResponse(w, h.agent.Settings())
}

// HealthCheck reports the queue depth. A queue that cannot be read makes the
// agent unhealthy.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	queued, err := h.agent.QueueSize(r.Context())
	if err != nil {
		h.logger.Warn("Health check could not read the queue", logging.Err(err))
		http.Error(w, "Queue unhealthy", http.StatusServiceUnavailable)
		return
	}

	s := h.agent.Settings()
	h.sendJSONResponse(w, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now(),
		"version":         Version,
		"queued":          queued,
		"library_enabled": !s.DisableLibrary,
	})
}
