package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/speedx/push-server/internal/announce"
	"github.com/speedx/push-server/internal/monitoring"
	"github.com/speedx/push-server/internal/push"
)

var (
	testMetrics     *monitoring.Metrics
	testMetricsOnce sync.Once
)

// sharedMetrics avoids double-registering collectors across tests
func sharedMetrics() *monitoring.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = monitoring.NewMetrics()
	})
	return testMetrics
}

type stubDispatcher struct {
	outcome *push.Outcome
	err     error
	last    *push.Request
}

func (s *stubDispatcher) Dispatch(ctx context.Context, req push.Request) (*push.Outcome, error) {
	s.last = &req
	return s.outcome, s.err
}

type stubRegistry struct {
	registered   []string
	unregistered []string
	err          error
}

func (s *stubRegistry) RegisterDevice(ctx context.Context, userID, deviceToken string, info push.DeviceInfo) error {
	s.registered = append(s.registered, userID+"/"+deviceToken)
	return s.err
}

func (s *stubRegistry) UnregisterDevice(ctx context.Context, deviceToken string) error {
	s.unregistered = append(s.unregistered, deviceToken)
	return s.err
}

type stubGate struct {
	disabled map[string]bool
}

func (s *stubGate) ShouldSend(ctx context.Context, userID string, typ push.NotificationType) bool {
	return !s.disabled[userID]
}

type stubAnnouncements struct {
	created *announce.Announcement
	err     error
}

func (s *stubAnnouncements) Create(ctx context.Context, req announce.CreateRequest) (*announce.Announcement, error) {
	return s.created, s.err
}

func (s *stubAnnouncements) List(ctx context.Context, limit int) ([]announce.Announcement, error) {
	return nil, s.err
}

func newTestHandler(t *testing.T, d *stubDispatcher, r *stubRegistry, g *stubGate, a *stubAnnouncements) *Handler {
	if d == nil {
		d = &stubDispatcher{outcome: &push.Outcome{Success: true, Sent: 1}}
	}
	if r == nil {
		r = &stubRegistry{}
	}
	if g == nil {
		g = &stubGate{}
	}
	if a == nil {
		a = &stubAnnouncements{}
	}
	return NewHandler(d, r, g, a, sharedMetrics(), zaptest.NewLogger(t))
}

func doRequest(h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.SetupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestSendRequiresTitleAndBody(t *testing.T) {
	dispatcher := &stubDispatcher{}
	h := newTestHandler(t, dispatcher, nil, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/push/send", map[string]interface{}{
		"userId": "u1",
		"title":  "only a title",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, dispatcher.last)
}

func TestSendRequiresTarget(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/push/send", map[string]interface{}{
		"title": "t",
		"body":  "b",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendToUser(t *testing.T) {
	dispatcher := &stubDispatcher{outcome: &push.Outcome{Success: true, Sent: 2, Failed: 1}}
	h := newTestHandler(t, dispatcher, nil, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/push/send", map[string]interface{}{
		"userId": "u1",
		"type":   "badge_earned",
		"title":  "New badge",
		"body":   "You earned Night Owl",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 2, resp.Sent)
	require.Equal(t, 1, resp.Failed)

	require.Equal(t, "u1", dispatcher.last.UserID)
	require.Equal(t, push.TypeBadgeEarned, dispatcher.last.Type)
}

func TestSendTargetAll(t *testing.T) {
	dispatcher := &stubDispatcher{outcome: &push.Outcome{Success: true, Sent: 10}}
	h := newTestHandler(t, dispatcher, nil, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/push/send", map[string]interface{}{
		"target": "all",
		"title":  "t",
		"body":   "b",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, dispatcher.last.All)
}

func TestSendNoRecipients(t *testing.T) {
	dispatcher := &stubDispatcher{outcome: &push.Outcome{Success: false, Message: "no device tokens found"}}
	h := newTestHandler(t, dispatcher, nil, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/push/send", map[string]interface{}{
		"userId": "u1",
		"title":  "t",
		"body":   "b",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "no device tokens found", resp.Error)
}

func TestSendFiltersOptedOutUsers(t *testing.T) {
	dispatcher := &stubDispatcher{outcome: &push.Outcome{Success: true, Sent: 1}}
	gate := &stubGate{disabled: map[string]bool{"u2": true}}
	h := newTestHandler(t, dispatcher, nil, gate, nil)

	rec := doRequest(h, "POST", "/api/v1/push/send", map[string]interface{}{
		"userIds": []string{"u1", "u2"},
		"type":    "drive_reminder",
		"title":   "t",
		"body":    "b",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"u1"}, dispatcher.last.UserIDs)
}

func TestSendAllRecipientsOptedOut(t *testing.T) {
	dispatcher := &stubDispatcher{}
	gate := &stubGate{disabled: map[string]bool{"u1": true}}
	h := newTestHandler(t, dispatcher, nil, gate, nil)

	rec := doRequest(h, "POST", "/api/v1/push/send", map[string]interface{}{
		"userIds": []string{"u1"},
		"type":    "announcement",
		"title":   "t",
		"body":    "b",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, dispatcher.last)

	var resp SendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
}

func TestRegisterDevice(t *testing.T) {
	registry := &stubRegistry{}
	h := newTestHandler(t, nil, registry, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/push/register", map[string]interface{}{
		"userId":      "u1",
		"deviceToken": "tok-a",
		"deviceName":  "iPhone 15",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"u1/tok-a"}, registry.registered)
}

func TestRegisterDeviceRequiresFields(t *testing.T) {
	registry := &stubRegistry{}
	h := newTestHandler(t, nil, registry, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/push/register", map[string]interface{}{
		"userId": "u1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, registry.registered)
}

func TestUnregisterDevice(t *testing.T) {
	registry := &stubRegistry{}
	h := newTestHandler(t, nil, registry, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/push/unregister", map[string]interface{}{
		"deviceToken": "tok-a",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"tok-a"}, registry.unregistered)
}

func TestCreateAnnouncement(t *testing.T) {
	announcements := &stubAnnouncements{
		created: &announce.Announcement{ID: "a1", Title: "Update", Message: "v2 is out"},
	}
	h := newTestHandler(t, nil, nil, nil, announcements)

	rec := doRequest(h, "POST", "/api/v1/announcements", map[string]interface{}{
		"title":   "Update",
		"message": "v2 is out",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateAnnouncementRequiresFields(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil, nil)

	rec := doRequest(h, "POST", "/api/v1/announcements", map[string]interface{}{
		"title": "Update",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil, nil)

	rec := doRequest(h, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
