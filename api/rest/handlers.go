package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/speedx/push-server/internal/announce"
	"github.com/speedx/push-server/internal/monitoring"
	"github.com/speedx/push-server/internal/push"
)

// Dispatcher is the dispatch engine surface used by the handlers
type Dispatcher interface {
	Dispatch(ctx context.Context, req push.Request) (*push.Outcome, error)
}

// DeviceRegistry handles device token registration
type DeviceRegistry interface {
	RegisterDevice(ctx context.Context, userID, deviceToken string, info push.DeviceInfo) error
	UnregisterDevice(ctx context.Context, deviceToken string) error
}

// PreferenceGate answers whether a user wants a notification category
type PreferenceGate interface {
	ShouldSend(ctx context.Context, userID string, typ push.NotificationType) bool
}

// Announcements is the announcement service surface used by the handlers
type Announcements interface {
	Create(ctx context.Context, req announce.CreateRequest) (*announce.Announcement, error)
	List(ctx context.Context, limit int) ([]announce.Announcement, error)
}

// Handler holds dependencies for REST API handlers
type Handler struct {
	dispatcher    Dispatcher
	registry      DeviceRegistry
	gate          PreferenceGate
	announcements Announcements
	metrics       *monitoring.Metrics
	logger        *zap.Logger
	validator     *validator.Validate
}

// NewHandler creates a new REST API handler
func NewHandler(
	dispatcher Dispatcher,
	registry DeviceRegistry,
	gate PreferenceGate,
	announcements Announcements,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		dispatcher:    dispatcher,
		registry:      registry,
		gate:          gate,
		announcements: announcements,
		metrics:       metrics,
		logger:        logger,
		validator:     validator.New(),
	}
}

// SendRequest is the request body for sending a push notification
type SendRequest struct {
	Target  string                 `json:"target,omitempty"`
	UserID  string                 `json:"userId,omitempty"`
	UserIDs []string               `json:"userIds,omitempty"`
	Type    string                 `json:"type,omitempty"`
	Title   string                 `json:"title" validate:"required"`
	Body    string                 `json:"body" validate:"required"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Badge   *int                   `json:"badge,omitempty"`
	Sound   string                 `json:"sound,omitempty"`
}

// RegisterRequest is the request body for registering a device token
type RegisterRequest struct {
	UserID      string `json:"userId" validate:"required"`
	DeviceToken string `json:"deviceToken" validate:"required"`
	DeviceName  string `json:"deviceName,omitempty"`
	AppVersion  string `json:"appVersion,omitempty"`
	DeviceType  string `json:"deviceType,omitempty"`
}

// UnregisterRequest is the request body for unregistering a device token
type UnregisterRequest struct {
	DeviceToken string `json:"deviceToken" validate:"required"`
}

// SendResponse is the success envelope for a dispatch
type SendResponse struct {
	Success bool   `json:"success"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the error envelope; Error is always a human-readable
// message with no internal detail.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Send handles POST /api/v1/push/send
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveRequestDuration("send", time.Since(start).Seconds())
	}()
	h.metrics.IncrementActiveConnections()
	defer h.metrics.DecrementActiveConnections()

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.writeError(w, "title and body are required", http.StatusBadRequest)
		return
	}

	typ := push.NotificationType(req.Type)
	if typ == "" {
		typ = push.TypeCustom
	}

	dispatchReq := push.Request{
		Type: typ,
		Payload: push.Payload{
			Title: req.Title,
			Body:  req.Body,
			Data:  req.Data,
			Badge: req.Badge,
			Sound: req.Sound,
		},
	}

	switch {
	case req.Target == "all":
		dispatchReq.All = true
	case req.UserID != "":
		if !h.gate.ShouldSend(r.Context(), req.UserID, typ) {
			h.writeJSON(w, http.StatusOK, SendResponse{
				Success: false,
				Message: "recipient has this notification category disabled",
			})
			return
		}
		dispatchReq.UserID = req.UserID
	case len(req.UserIDs) > 0:
		allowed := h.filterByPreference(r.Context(), req.UserIDs, typ)
		if len(allowed) == 0 {
			h.writeJSON(w, http.StatusOK, SendResponse{
				Success: false,
				Message: "all recipients have this notification category disabled",
			})
			return
		}
		dispatchReq.UserIDs = allowed
	default:
		h.writeError(w, "must specify userId, userIds, or target=all", http.StatusBadRequest)
		return
	}

	outcome, err := h.dispatcher.Dispatch(r.Context(), dispatchReq)
	if err != nil {
		if errors.Is(err, push.ErrInvalidRequest) {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("dispatch failed", zap.Error(err))
		h.writeError(w, "failed to send notification", http.StatusInternalServerError)
		return
	}

	if !outcome.Success && outcome.Sent == 0 && outcome.Failed == 0 {
		// Resolution found no recipients; not exceptional but unsuccessful.
		h.writeError(w, outcome.Message, http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, SendResponse{
		Success: outcome.Success,
		Sent:    outcome.Sent,
		Failed:  outcome.Failed,
		Message: fmt.Sprintf("Notification sent to %d device(s)", outcome.Sent),
	})
}

// filterByPreference drops users who opted out of the category. The gate
// is advisory and consulted here, never inside the engine.
func (h *Handler) filterByPreference(ctx context.Context, userIDs []string, typ push.NotificationType) []string {
	allowed := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if h.gate.ShouldSend(ctx, id, typ) {
			allowed = append(allowed, id)
		}
	}
	return allowed
}

// Register handles POST /api/v1/push/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveRequestDuration("register", time.Since(start).Seconds())
	}()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.writeError(w, "userId and deviceToken are required", http.StatusBadRequest)
		return
	}

	info := push.DeviceInfo{
		DeviceName: req.DeviceName,
		AppVersion: req.AppVersion,
		DeviceType: req.DeviceType,
	}
	if err := h.registry.RegisterDevice(r.Context(), req.UserID, req.DeviceToken, info); err != nil {
		h.logger.Error("device registration failed", zap.Error(err))
		h.writeError(w, "failed to register device token", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Device token registered successfully",
	})
}

// Unregister handles POST /api/v1/push/unregister
func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveRequestDuration("unregister", time.Since(start).Seconds())
	}()

	var req UnregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.writeError(w, "deviceToken is required", http.StatusBadRequest)
		return
	}

	if err := h.registry.UnregisterDevice(r.Context(), req.DeviceToken); err != nil {
		h.logger.Error("device unregistration failed", zap.Error(err))
		h.writeError(w, "failed to unregister device token", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// CreateAnnouncement handles POST /api/v1/announcements
func (h *Handler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveRequestDuration("create_announcement", time.Since(start).Seconds())
	}()

	var req announce.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.Message == "" {
		h.writeError(w, "title and message are required", http.StatusBadRequest)
		return
	}

	a, err := h.announcements.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to create announcement", zap.Error(err))
		h.writeError(w, "failed to create announcement", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"announcement": a,
	})
}

// ListAnnouncements handles GET /api/v1/announcements
func (h *Handler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	announcements, err := h.announcements.List(r.Context(), 50)
	if err != nil {
		h.logger.Error("failed to list announcements", zap.Error(err))
		h.writeError(w, "failed to list announcements", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, announcements)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "push-server",
	})
}

// Metrics handles GET /metrics (Prometheus metrics)
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.Handler().ServeHTTP(w, r)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// SetupRoutes sets up all REST API routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/push/send", h.Send).Methods("POST")
	api.HandleFunc("/push/register", h.Register).Methods("POST")
	api.HandleFunc("/push/unregister", h.Unregister).Methods("POST")
	api.HandleFunc("/announcements", h.CreateAnnouncement).Methods("POST")
	api.HandleFunc("/announcements", h.ListAnnouncements).Methods("GET")

	// Health and metrics
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/metrics", h.Metrics).Methods("GET")

	// Add middleware
	router.Use(h.loggingMiddleware)
	router.Use(h.corsMiddleware)

	return router
}

// loggingMiddleware logs HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response recorder to capture status code
		recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		h.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.statusCode),
			zap.Duration("duration", duration),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// corsMiddleware adds CORS headers
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseRecorder wraps http.ResponseWriter to capture status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
