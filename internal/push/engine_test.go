package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/speedx/push-server/internal/provider"
)

// fakeTokenStore records calls and serves canned token records
type fakeTokenStore struct {
	byUser      map[string][]DeviceToken
	all         []DeviceToken
	findCalls   int
	markedUsed  []string
	markedAt    time.Time
	deactivated []string
}

func (f *fakeTokenStore) FindActiveTokensByUser(ctx context.Context, userID string) ([]DeviceToken, error) {
	f.findCalls++
	return f.byUser[userID], nil
}

func (f *fakeTokenStore) FindActiveTokensByUsers(ctx context.Context, userIDs []string) ([]DeviceToken, error) {
	f.findCalls++
	var out []DeviceToken
	for _, id := range userIDs {
		out = append(out, f.byUser[id]...)
	}
	return out, nil
}

func (f *fakeTokenStore) FindAllActiveTokens(ctx context.Context) ([]DeviceToken, error) {
	f.findCalls++
	return f.all, nil
}

func (f *fakeTokenStore) MarkTokensUsed(ctx context.Context, tokens []string, at time.Time) error {
	f.markedUsed = append(f.markedUsed, tokens...)
	f.markedAt = at
	return nil
}

func (f *fakeTokenStore) DeactivateTokens(ctx context.Context, tokens []string) error {
	f.deactivated = append(f.deactivated, tokens...)
	return nil
}

// fakeAuditLog collects appended entries
type fakeAuditLog struct {
	entries []LogEntry
}

func (f *fakeAuditLog) Append(ctx context.Context, entry LogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

// fakeProvider returns a canned batch result or error
type fakeProvider struct {
	result     *provider.BatchResult
	err        error
	calls      int
	lastTokens []string
	lastNotif  *provider.Notification
}

func (f *fakeProvider) Send(ctx context.Context, n *provider.Notification, tokens []string) (*provider.BatchResult, error) {
	f.calls++
	f.lastTokens = tokens
	f.lastNotif = n
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) Shutdown() {}

func newTestEngine(t *testing.T, store *fakeTokenStore, audit *fakeAuditLog, p *fakeProvider) *Engine {
	return NewEngine(store, audit, p, nil, zaptest.NewLogger(t))
}

func validPayload() Payload {
	return Payload{Title: "Nice drive!", Body: "You hit a new record"}
}

func TestDispatchValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "missing title",
			req:  Request{UserID: "u1", Payload: Payload{Body: "b"}},
		},
		{
			name: "missing body",
			req:  Request{UserID: "u1", Payload: Payload{Title: "t"}},
		},
		{
			name: "no target mode",
			req:  Request{Payload: validPayload()},
		},
		{
			name: "two target modes",
			req:  Request{UserID: "u1", All: true, Payload: validPayload()},
		},
		{
			name: "user and explicit tokens",
			req:  Request{UserID: "u1", DeviceTokens: []string{"tok"}, Payload: validPayload()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeTokenStore{}
			prov := &fakeProvider{}
			engine := newTestEngine(t, store, &fakeAuditLog{}, prov)

			outcome, err := engine.Dispatch(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			require.Nil(t, outcome)

			// Validation failures must happen before any I/O
			require.Zero(t, store.findCalls)
			require.Zero(t, prov.calls)
		})
	}
}

func TestDispatchNoRecipients(t *testing.T) {
	store := &fakeTokenStore{byUser: map[string][]DeviceToken{}}
	audit := &fakeAuditLog{}
	prov := &fakeProvider{}
	engine := newTestEngine(t, store, audit, prov)

	outcome, err := engine.Dispatch(context.Background(), Request{
		UserID:  "u1",
		Type:    TypeDriveReminder,
		Payload: validPayload(),
	})
	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.Equal(t, "no device tokens found", outcome.Message)
	require.Zero(t, prov.calls)
	require.Empty(t, audit.entries)
}

func TestDispatchBroadcastNoRecipients(t *testing.T) {
	store := &fakeTokenStore{}
	prov := &fakeProvider{}
	engine := newTestEngine(t, store, &fakeAuditLog{}, prov)

	outcome, err := engine.SendToAll(context.Background(), TypeAnnouncement, validPayload())
	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.Equal(t, "no active users found", outcome.Message)
	require.Zero(t, prov.calls)
}

func TestDispatchReconciliation(t *testing.T) {
	store := &fakeTokenStore{
		byUser: map[string][]DeviceToken{
			"u1": {
				{ID: "rec-a", UserID: "u1", DeviceToken: "tok-a", IsActive: true},
				{ID: "rec-b", UserID: "u1", DeviceToken: "tok-b", IsActive: true},
			},
		},
	}
	audit := &fakeAuditLog{}
	prov := &fakeProvider{
		result: &provider.BatchResult{
			Sent:   []provider.Delivery{{Token: "tok-a"}},
			Failed: []provider.Failure{{Token: "tok-b", Reason: provider.ReasonUnregistered}},
		},
	}
	engine := newTestEngine(t, store, audit, prov)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	outcome, err := engine.Dispatch(context.Background(), Request{
		UserID:  "u1",
		Type:    TypeBadgeEarned,
		Payload: validPayload(),
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, 1, outcome.Sent)
	require.Equal(t, 1, outcome.Failed)

	// Accepted token gets its last_used_at stamped
	require.Equal(t, []string{"tok-a"}, store.markedUsed)
	require.Equal(t, now, store.markedAt)

	// Permanently rejected token is deactivated
	require.Equal(t, []string{"tok-b"}, store.deactivated)

	// Exactly one audit entry per resolved token
	require.Len(t, audit.entries, 2)
	byToken := map[string]LogEntry{}
	for _, e := range audit.entries {
		byToken[e.DeviceTokenID] = e
	}
	require.Equal(t, StatusSent, byToken["rec-a"].Status)
	require.Empty(t, byToken["rec-a"].ErrorMessage)
	require.Equal(t, StatusFailed, byToken["rec-b"].Status)
	require.Equal(t, provider.ReasonUnregistered, byToken["rec-b"].ErrorMessage)
	require.Equal(t, TypeBadgeEarned, byToken["rec-a"].Type)
}

func TestDispatchTransientFailureKeepsTokenActive(t *testing.T) {
	store := &fakeTokenStore{
		byUser: map[string][]DeviceToken{
			"u1": {{ID: "rec-a", UserID: "u1", DeviceToken: "tok-a", IsActive: true}},
		},
	}
	audit := &fakeAuditLog{}
	prov := &fakeProvider{
		result: &provider.BatchResult{
			Failed: []provider.Failure{{Token: "tok-a", Reason: "TooManyRequests"}},
		},
	}
	engine := newTestEngine(t, store, audit, prov)

	outcome, err := engine.Dispatch(context.Background(), Request{
		UserID:  "u1",
		Payload: validPayload(),
	})
	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.Equal(t, 1, outcome.Failed)

	require.Empty(t, store.deactivated)
	require.Empty(t, store.markedUsed)
	require.Len(t, audit.entries, 1)
	require.Equal(t, StatusFailed, audit.entries[0].Status)
}

func TestDispatchExplicitTokensSkipAudit(t *testing.T) {
	store := &fakeTokenStore{}
	audit := &fakeAuditLog{}
	prov := &fakeProvider{
		result: &provider.BatchResult{
			Sent: []provider.Delivery{{Token: "tok-x"}},
		},
	}
	engine := newTestEngine(t, store, audit, prov)

	outcome, err := engine.Dispatch(context.Background(), Request{
		DeviceTokens: []string{"tok-x", "tok-x"},
		Payload:      validPayload(),
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)

	// Explicit lists are deduplicated and carry no owner metadata,
	// so no audit entries are written for them.
	require.Equal(t, []string{"tok-x"}, prov.lastTokens)
	require.Empty(t, audit.entries)

	// Liveness updates still match by token value
	require.Equal(t, []string{"tok-x"}, store.markedUsed)
}

func TestDispatchBroadcastDeduplicates(t *testing.T) {
	store := &fakeTokenStore{
		all: []DeviceToken{
			{ID: "r1", UserID: "u1", DeviceToken: "tok-a", IsActive: true},
			{ID: "r2", UserID: "u2", DeviceToken: "tok-b", IsActive: true},
			{ID: "r1", UserID: "u1", DeviceToken: "tok-a", IsActive: true},
		},
	}
	prov := &fakeProvider{
		result: &provider.BatchResult{
			Sent: []provider.Delivery{{Token: "tok-a"}, {Token: "tok-b"}},
		},
	}
	engine := newTestEngine(t, store, &fakeAuditLog{}, prov)

	outcome, err := engine.SendToAll(context.Background(), TypeAnnouncement, validPayload())
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.ElementsMatch(t, []string{"tok-a", "tok-b"}, prov.lastTokens)
}

func TestDispatchTransportFailure(t *testing.T) {
	store := &fakeTokenStore{
		byUser: map[string][]DeviceToken{
			"u1": {{ID: "rec-a", UserID: "u1", DeviceToken: "tok-a", IsActive: true}},
		},
	}
	audit := &fakeAuditLog{}
	prov := &fakeProvider{err: errors.New("connection refused")}
	engine := newTestEngine(t, store, audit, prov)

	outcome, err := engine.Dispatch(context.Background(), Request{
		UserID:  "u1",
		Payload: validPayload(),
	})
	require.Error(t, err)
	require.False(t, outcome.Success)
	require.NotEmpty(t, outcome.Message)

	// No per-token response was obtained, so nothing is reconciled
	require.Empty(t, audit.entries)
	require.Empty(t, store.markedUsed)
	require.Empty(t, store.deactivated)
}

func TestDispatchDefaultsTypeToCustom(t *testing.T) {
	store := &fakeTokenStore{
		byUser: map[string][]DeviceToken{
			"u1": {{ID: "rec-a", UserID: "u1", DeviceToken: "tok-a", IsActive: true}},
		},
	}
	audit := &fakeAuditLog{}
	prov := &fakeProvider{
		result: &provider.BatchResult{Sent: []provider.Delivery{{Token: "tok-a"}}},
	}
	engine := newTestEngine(t, store, audit, prov)

	_, err := engine.Dispatch(context.Background(), Request{
		UserID:  "u1",
		Payload: validPayload(),
	})
	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	require.Equal(t, TypeCustom, audit.entries[0].Type)
}
