package push

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/speedx/push-server/internal/database"
)

// Store persists device tokens, notification logs and preferences in
// PostgreSQL. It implements TokenStore, AuditLog and PreferenceStore.
type Store struct {
	db *database.PostgresDB
}

// NewStore creates a new persistent store
func NewStore(db *database.PostgresDB) *Store {
	return &Store{db: db}
}

const tokenColumns = `id, user_id, device_token, device_type, device_name, app_version, is_active, last_used_at, created_at, updated_at`

// FindActiveTokensByUser returns all active tokens owned by one user
func (s *Store) FindActiveTokensByUser(ctx context.Context, userID string) ([]DeviceToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM device_tokens WHERE user_id = $1 AND is_active = true`, tokenColumns)
	return s.queryTokens(ctx, query, userID)
}

// FindActiveTokensByUsers returns all active tokens owned by any of the users
func (s *Store) FindActiveTokensByUsers(ctx context.Context, userIDs []string) ([]DeviceToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM device_tokens WHERE user_id = ANY($1) AND is_active = true`, tokenColumns)
	return s.queryTokens(ctx, query, pq.Array(userIDs))
}

// FindAllActiveTokens returns every active token regardless of owner
func (s *Store) FindAllActiveTokens(ctx context.Context) ([]DeviceToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM device_tokens WHERE is_active = true`, tokenColumns)
	return s.queryTokens(ctx, query)
}

func (s *Store) queryTokens(ctx context.Context, query string, args ...interface{}) ([]DeviceToken, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []DeviceToken
	for rows.Next() {
		var t DeviceToken
		var deviceType, deviceName, appVersion sql.NullString
		var lastUsedAt sql.NullTime

		err := rows.Scan(&t.ID, &t.UserID, &t.DeviceToken, &deviceType, &deviceName,
			&appVersion, &t.IsActive, &lastUsedAt, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}

		t.DeviceType = deviceType.String
		t.DeviceName = deviceName.String
		t.AppVersion = appVersion.String
		if lastUsedAt.Valid {
			t.LastUsedAt = &lastUsedAt.Time
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

// UpsertToken registers a device token, keyed by the token value. A token
// seen again is reassigned to the given user and reactivated.
func (s *Store) UpsertToken(ctx context.Context, userID, deviceToken string, info DeviceInfo) error {
	deviceType := info.DeviceType
	if deviceType == "" {
		deviceType = "ios"
	}

	query := `
		INSERT INTO device_tokens (user_id, device_token, device_type, device_name, app_version, is_active, last_used_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), true, NOW())
		ON CONFLICT (device_token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			is_active = true,
			last_used_at = NOW(),
			device_name = COALESCE(EXCLUDED.device_name, device_tokens.device_name),
			app_version = COALESCE(EXCLUDED.app_version, device_tokens.app_version),
			updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, userID, deviceToken, deviceType, info.DeviceName, info.AppVersion)
	if err != nil {
		return fmt.Errorf("failed to upsert device token: %w", err)
	}
	return nil
}

// MarkTokensUsed stamps last_used_at on every token that was accepted by
// the provider
func (s *Store) MarkTokensUsed(ctx context.Context, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	query := `UPDATE device_tokens SET last_used_at = $1, updated_at = NOW() WHERE device_token = ANY($2)`
	if _, err := s.db.ExecContext(ctx, query, at, pq.Array(tokens)); err != nil {
		return fmt.Errorf("failed to mark tokens used: %w", err)
	}
	return nil
}

// DeactivateTokens flips is_active off for permanently invalid tokens.
// Rows are never deleted so the audit trail keeps its references.
func (s *Store) DeactivateTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	query := `UPDATE device_tokens SET is_active = false, updated_at = NOW() WHERE device_token = ANY($1)`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(tokens)); err != nil {
		return fmt.Errorf("failed to deactivate tokens: %w", err)
	}
	return nil
}

// DeactivateToken unregisters a single device token
func (s *Store) DeactivateToken(ctx context.Context, deviceToken string) error {
	return s.DeactivateTokens(ctx, []string{deviceToken})
}

// Append writes one audit log entry. Entries are append-only.
func (s *Store) Append(ctx context.Context, entry LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal log data: %w", err)
	}

	query := `
		INSERT INTO notification_logs (id, user_id, device_token_id, notification_type, title, body, data, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`
	_, err = s.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.DeviceTokenID,
		entry.Type, entry.Title, entry.Body, data, entry.Status, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to append notification log: %w", err)
	}
	return nil
}

// GetPreferences loads a user's notification preferences. A missing row
// returns (nil, nil); callers treat absence as all-enabled.
func (s *Store) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	query := `
		SELECT user_id, enable_badge_notifications, enable_night_driving_alerts,
		       enable_drive_reminders, enable_announcements, created_at, updated_at
		FROM notification_preferences WHERE user_id = $1
	`

	var p Preferences
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.BadgeNotifications, &p.NightDrivingAlerts,
		&p.DriveReminders, &p.Announcements, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return &p, nil
}

// EnsureDefaultPreferences lazily creates a preferences row with every
// category enabled. No-op when the row already exists.
func (s *Store) EnsureDefaultPreferences(ctx context.Context, userID string) error {
	query := `INSERT INTO notification_preferences (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to ensure default preferences: %w", err)
	}
	return nil
}
