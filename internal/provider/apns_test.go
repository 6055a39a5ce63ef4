package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockAPNSClient serves a scripted response per device token
type mockAPNSClient struct {
	responses map[string]*apns2.Response
	errs      map[string]error
	pushed    []*apns2.Notification
}

func (m *mockAPNSClient) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	m.pushed = append(m.pushed, n)
	if err := m.errs[n.DeviceToken]; err != nil {
		return nil, err
	}
	return m.responses[n.DeviceToken], nil
}

func newTestAPNsProvider(t *testing.T, client APNSClient) *APNsProvider {
	return &APNsProvider{
		client: client,
		topic:  "com.speedx.app",
		logger: zaptest.NewLogger(t),
	}
}

func TestAPNsSendPartitionsOutcomes(t *testing.T) {
	client := &mockAPNSClient{
		responses: map[string]*apns2.Response{
			"tok-ok":  {StatusCode: http.StatusOK},
			"tok-bad": {StatusCode: http.StatusGone, Reason: apns2.ReasonUnregistered},
		},
	}
	p := newTestAPNsProvider(t, client)

	result, err := p.Send(context.Background(), &Notification{
		Title: "t", Body: "b", Sound: "default",
	}, []string{"tok-ok", "tok-bad"})
	require.NoError(t, err)

	require.Len(t, result.Sent, 1)
	require.Equal(t, "tok-ok", result.Sent[0].Token)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "tok-bad", result.Failed[0].Token)
	require.Equal(t, apns2.ReasonUnregistered, result.Failed[0].Reason)
	require.True(t, PermanentFailure(result.Failed[0].Reason))
}

func TestAPNsSendSetsTopicPerNotification(t *testing.T) {
	client := &mockAPNSClient{
		responses: map[string]*apns2.Response{
			"tok-a": {StatusCode: http.StatusOK},
			"tok-b": {StatusCode: http.StatusOK},
		},
	}
	p := newTestAPNsProvider(t, client)

	_, err := p.Send(context.Background(), &Notification{Title: "t", Body: "b"}, []string{"tok-a", "tok-b"})
	require.NoError(t, err)

	require.Len(t, client.pushed, 2)
	for _, n := range client.pushed {
		require.Equal(t, "com.speedx.app", n.Topic)
	}
}

func TestAPNsSendPerTokenTransportError(t *testing.T) {
	client := &mockAPNSClient{
		responses: map[string]*apns2.Response{
			"tok-ok": {StatusCode: http.StatusOK},
		},
		errs: map[string]error{
			"tok-down": errors.New("dial tcp: connection refused"),
		},
	}
	p := newTestAPNsProvider(t, client)

	result, err := p.Send(context.Background(), &Notification{Title: "t", Body: "b"}, []string{"tok-ok", "tok-down"})
	require.NoError(t, err)

	require.Len(t, result.Sent, 1)
	require.Len(t, result.Failed, 1)
	// Transport errors on a single token are transient, never permanent
	require.False(t, PermanentFailure(result.Failed[0].Reason))
}
