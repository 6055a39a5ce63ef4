package push

import (
	"context"

	"go.uber.org/zap"

	"github.com/speedx/push-server/internal/database"
)

// PreferenceGate answers whether a user wants a given notification
// category. The gate is advisory: dispatch never consults it, callers of
// preference-sensitive categories do.
type PreferenceGate struct {
	store  PreferenceStore
	cache  *database.RedisClient
	logger *zap.Logger
}

// NewPreferenceGate creates a preference gate. cache may be nil.
func NewPreferenceGate(store PreferenceStore, cache *database.RedisClient, logger *zap.Logger) *PreferenceGate {
	return &PreferenceGate{store: store, cache: cache, logger: logger}
}

// ShouldSend reports whether the user has the category enabled. A missing
// preferences row fails open (all enabled), and custom notifications
// always bypass the stored preferences.
func (g *PreferenceGate) ShouldSend(ctx context.Context, userID string, typ NotificationType) bool {
	if typ == TypeCustom {
		return true
	}

	prefs := g.load(ctx, userID)
	if prefs == nil {
		return true
	}

	switch typ {
	case TypeBadgeEarned:
		return prefs.BadgeNotifications
	case TypeNightDriving:
		return prefs.NightDrivingAlerts
	case TypeDriveReminder:
		return prefs.DriveReminders
	case TypeAnnouncement:
		return prefs.Announcements
	default:
		return true
	}
}

// load reads preferences through the cache. Lookup failures are treated
// as a missing row so a degraded cache or store never blocks sends.
func (g *PreferenceGate) load(ctx context.Context, userID string) *Preferences {
	if g.cache != nil {
		var cached Preferences
		if err := g.cache.GetPreferences(ctx, userID, &cached); err == nil {
			return &cached
		}
	}

	prefs, err := g.store.GetPreferences(ctx, userID)
	if err != nil {
		g.logger.Warn("failed to load notification preferences",
			zap.Error(err), zap.String("user_id", userID))
		return nil
	}
	if prefs == nil {
		return nil
	}

	if g.cache != nil {
		if err := g.cache.CachePreferences(ctx, userID, prefs); err != nil {
			g.logger.Warn("failed to cache preferences", zap.Error(err))
		}
	}
	return prefs
}
