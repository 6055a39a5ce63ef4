package provider

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/speedx/push-server/internal/config"
)

// fcmMulticastLimit is the maximum tokens FCM accepts per multicast call.
const fcmMulticastLimit = 500

// FCMProvider sends notifications through Firebase Cloud Messaging
type FCMProvider struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCMProvider creates an FCM provider from a service-account
// credentials file
func NewFCMProvider(ctx context.Context, cfg config.FirebaseConfig, logger *zap.Logger) (*FCMProvider, error) {
	opt := option.WithCredentialsFile(cfg.CredentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firebase messaging client: %w", err)
	}

	logger.Info("FCM provider initialized")
	return &FCMProvider{client: client, logger: logger}, nil
}

// Send delivers the notification to all tokens via multicast calls,
// chunked to the FCM per-call token limit.
func (p *FCMProvider) Send(ctx context.Context, n *Notification, tokens []string) (*BatchResult, error) {
	result := &BatchResult{}

	for start := 0; start < len(tokens); start += fcmMulticastLimit {
		end := start + fcmMulticastLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]

		response, err := p.client.SendEachForMulticast(ctx, p.buildMessage(n, chunk))
		if err != nil {
			return nil, fmt.Errorf("failed to send FCM multicast: %w", err)
		}

		for i, resp := range response.Responses {
			if resp.Success {
				result.Sent = append(result.Sent, Delivery{Token: chunk[i]})
			} else {
				result.Failed = append(result.Failed, Failure{
					Token:  chunk[i],
					Reason: fcmFailureReason(resp.Error),
				})
			}
		}
	}

	p.logger.Info("FCM batch send complete",
		zap.Int("tokens", len(tokens)),
		zap.Int("sent", len(result.Sent)),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// buildMessage maps the neutral notification onto an FCM multicast
// message, carrying the APNs alert fields for iOS devices.
func (p *FCMProvider) buildMessage(n *Notification, tokens []string) *messaging.MulticastMessage {
	data := make(map[string]string, len(n.Data))
	for k, v := range n.Data {
		data[k] = fmt.Sprint(v)
	}

	aps := &messaging.Aps{
		Alert: &messaging.ApsAlert{
			Title: n.Title,
			Body:  n.Body,
		},
		Sound:            n.Sound,
		ContentAvailable: n.ContentAvailable,
		MutableContent:   n.MutableContent,
	}
	if n.Badge != nil {
		aps.Badge = n.Badge
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: aps,
			},
		},
	}
}

// fcmFailureReason normalizes FCM per-token errors onto the shared
// failure reasons so the engine can classify permanent invalidity.
func fcmFailureReason(err error) string {
	if err == nil {
		return "unknown"
	}
	switch {
	case messaging.IsUnregistered(err):
		return ReasonUnregistered
	case errorutils.IsInvalidArgument(err):
		return ReasonBadDeviceToken
	default:
		return err.Error()
	}
}

// Shutdown is a no-op; the messaging client holds no connection state
// requiring explicit release.
func (p *FCMProvider) Shutdown() {}
