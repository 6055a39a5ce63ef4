package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/speedx/push-server/internal/config"
)

// New constructs the push gateway client selected by configuration.
// The client is expensive to build and meant to be constructed once and
// shared for the process lifetime.
func New(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Kind {
	case "apns":
		return NewAPNsProvider(cfg.APNs, logger)
	case "fcm":
		return NewFCMProvider(ctx, cfg.Firebase, logger)
	default:
		return nil, fmt.Errorf("unknown push provider kind %q", cfg.Kind)
	}
}
