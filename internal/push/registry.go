package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// TokenRegistrar is the store surface used for device registration
type TokenRegistrar interface {
	UpsertToken(ctx context.Context, userID, deviceToken string, info DeviceInfo) error
	DeactivateToken(ctx context.Context, deviceToken string) error
}

// PreferenceStore persists per-user notification preferences
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	EnsureDefaultPreferences(ctx context.Context, userID string) error
}

// Registry handles device token registration and unregistration
type Registry struct {
	tokens TokenRegistrar
	prefs  PreferenceStore
	logger *zap.Logger
}

// NewRegistry creates a new device registry
func NewRegistry(tokens TokenRegistrar, prefs PreferenceStore, logger *zap.Logger) *Registry {
	return &Registry{tokens: tokens, prefs: prefs, logger: logger}
}

// RegisterDevice upserts a device token keyed by the token value: a token
// seen again is reassigned to the given user and reactivated. Afterwards
// a default preferences row is ensured for the user so a missing row
// never blocks sends.
func (r *Registry) RegisterDevice(ctx context.Context, userID, deviceToken string, info DeviceInfo) error {
	if userID == "" || deviceToken == "" {
		return fmt.Errorf("%w: user_id and device_token are required", ErrInvalidRequest)
	}

	if err := r.tokens.UpsertToken(ctx, userID, deviceToken, info); err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}

	if err := r.prefs.EnsureDefaultPreferences(ctx, userID); err != nil {
		return fmt.Errorf("failed to create default preferences: %w", err)
	}

	r.logger.Info("device token registered", zap.String("user_id", userID))
	return nil
}

// UnregisterDevice deactivates a device token. The row is kept so
// existing audit entries stay resolvable.
func (r *Registry) UnregisterDevice(ctx context.Context, deviceToken string) error {
	if deviceToken == "" {
		return fmt.Errorf("%w: device_token is required", ErrInvalidRequest)
	}

	if err := r.tokens.DeactivateToken(ctx, deviceToken); err != nil {
		return fmt.Errorf("failed to unregister device token: %w", err)
	}

	r.logger.Info("device token unregistered")
	return nil
}
