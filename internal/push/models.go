package push

import (
	"time"
)

// DeviceToken represents a registered device installation
type DeviceToken struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	DeviceToken string     `json:"device_token" db:"device_token"`
	DeviceType  string     `json:"device_type,omitempty" db:"device_type"`
	DeviceName  string     `json:"device_name,omitempty" db:"device_name"`
	AppVersion  string     `json:"app_version,omitempty" db:"app_version"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// NotificationType classifies a notification for preference filtering
// and audit classification
type NotificationType string

const (
	TypeBadgeEarned   NotificationType = "badge_earned"
	TypeNightDriving  NotificationType = "night_driving"
	TypeDriveReminder NotificationType = "drive_reminder"
	TypeAnnouncement  NotificationType = "announcement"
	TypeCustom        NotificationType = "custom"
)

// Payload carries the user-visible content of a notification
type Payload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
	Badge *int                   `json:"badge,omitempty"`
	Sound string                 `json:"sound,omitempty"`
}

// Request is a dispatch request. Exactly one of UserID, UserIDs,
// DeviceTokens or All must be set.
type Request struct {
	UserID       string           `json:"user_id,omitempty"`
	UserIDs      []string         `json:"user_ids,omitempty"`
	DeviceTokens []string         `json:"device_tokens,omitempty"`
	All          bool             `json:"all,omitempty"`
	Type         NotificationType `json:"type"`
	Payload      Payload          `json:"payload"`
}

// Outcome is the aggregated result of a dispatch
type Outcome struct {
	Success bool   `json:"success"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Message string `json:"message,omitempty"`
}

// LogEntry is one append-only audit record per (token, send) pair
type LogEntry struct {
	ID            string                 `json:"id" db:"id"`
	UserID        string                 `json:"user_id" db:"user_id"`
	DeviceTokenID string                 `json:"device_token_id" db:"device_token_id"`
	Type          NotificationType       `json:"notification_type" db:"notification_type"`
	Title         string                 `json:"title" db:"title"`
	Body          string                 `json:"body" db:"body"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Status        LogStatus              `json:"status" db:"status"`
	ErrorMessage  string                 `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}

// LogStatus is the audit outcome of a single token send
type LogStatus string

const (
	StatusSent   LogStatus = "sent"
	StatusFailed LogStatus = "failed"
)

// Preferences holds a user's per-category notification toggles
type Preferences struct {
	UserID              string    `json:"user_id" db:"user_id"`
	BadgeNotifications  bool      `json:"enable_badge_notifications" db:"enable_badge_notifications"`
	NightDrivingAlerts  bool      `json:"enable_night_driving_alerts" db:"enable_night_driving_alerts"`
	DriveReminders      bool      `json:"enable_drive_reminders" db:"enable_drive_reminders"`
	Announcements       bool      `json:"enable_announcements" db:"enable_announcements"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// DeviceInfo carries optional descriptive fields at registration time
type DeviceInfo struct {
	DeviceName string `json:"device_name,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}
