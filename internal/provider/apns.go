package provider

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"

	"github.com/speedx/push-server/internal/config"
)

// APNSClient is the subset of apns2.Client methods used by the dispatcher.
// This allows substituting a test double.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsProvider sends notifications through the Apple Push Notification
// service using token-based (.p8) authentication.
type APNsProvider struct {
	client APNSClient
	topic  string // the app bundle ID
	logger *zap.Logger
}

// NewAPNsProvider creates an APNs provider. The P8 key is parsed
// immediately so bad credentials fail at startup.
func NewAPNsProvider(cfg config.APNsConfig, logger *zap.Logger) (*APNsProvider, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key from %s: %w", cfg.KeyPath, err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNs provider initialized",
		zap.String("key_id", cfg.KeyID),
		zap.String("team_id", cfg.TeamID),
		zap.Bool("production", cfg.Production),
	)

	return &APNsProvider{
		client: client,
		topic:  cfg.BundleID,
		logger: logger,
	}, nil
}

// Send pushes the notification to every token. The APNs HTTP/2 API is
// unary (one request per token), so the batch is a sequential fan-out;
// per-token rejections are collected into the result rather than
// returned as errors.
func (p *APNsProvider) Send(ctx context.Context, n *Notification, tokens []string) (*BatchResult, error) {
	builder := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound(n.Sound)

	if n.Badge != nil {
		builder = builder.Badge(*n.Badge)
	}
	if n.ContentAvailable {
		builder = builder.ContentAvailable()
	}
	if n.MutableContent {
		builder = builder.MutableContent()
	}
	for k, v := range n.Data {
		builder = builder.Custom(k, v)
	}

	result := &BatchResult{}
	for _, deviceToken := range tokens {
		notification := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       p.topic,
			Payload:     builder,
		}

		res, err := p.client.PushWithContext(ctx, notification)
		if err != nil {
			// Transport failure for one token in the fan-out; the token
			// itself may be fine, so report it as a transient failure.
			p.logger.Error("APNs transport error", zap.Error(err))
			result.Failed = append(result.Failed, Failure{Token: deviceToken, Reason: err.Error()})
			continue
		}

		if res.Sent() {
			result.Sent = append(result.Sent, Delivery{Token: deviceToken})
		} else {
			result.Failed = append(result.Failed, Failure{Token: deviceToken, Reason: res.Reason})
		}
	}

	p.logger.Info("APNs batch send complete",
		zap.Int("tokens", len(tokens)),
		zap.Int("sent", len(result.Sent)),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// Shutdown releases provider resources. The apns2 client holds no
// persistent connection state beyond the HTTP/2 transport pool.
func (p *APNsProvider) Shutdown() {
	if c, ok := p.client.(*apns2.Client); ok && c.HTTPClient != nil {
		c.HTTPClient.CloseIdleConnections()
	}
}
