// Package announce persists announcements and fans them out as broadcast
// push notifications through the queue.
package announce

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/speedx/push-server/internal/database"
	"github.com/speedx/push-server/internal/monitoring"
	"github.com/speedx/push-server/internal/queue"
)

// Announcement is a persisted announcement record
type Announcement struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Icon      string    `json:"icon,omitempty" db:"icon"`
	Priority  string    `json:"priority" db:"priority"`
	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CreateRequest is the input for creating an announcement
type CreateRequest struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Icon      string `json:"icon,omitempty"`
	Priority  string `json:"priority,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	SendPush  *bool  `json:"send_push,omitempty"`
}

// BroadcastPublisher enqueues broadcast jobs
type BroadcastPublisher interface {
	PublishBroadcast(ctx context.Context, msg queue.BroadcastMessage) error
}

// Service handles announcement business logic
type Service struct {
	db        *database.PostgresDB
	publisher BroadcastPublisher
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

// NewService creates a new announcement service. metrics may be nil.
func NewService(db *database.PostgresDB, publisher BroadcastPublisher, metrics *monitoring.Metrics, logger *zap.Logger) *Service {
	return &Service{db: db, publisher: publisher, metrics: metrics, logger: logger}
}

// Create stores the announcement and, unless send_push is false, enqueues
// an announcement broadcast carrying the announcement ID as custom data.
// A queue failure does not fail the create: the announcement is already
// stored and the broadcast can be re-driven.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Announcement, error) {
	if req.Title == "" || req.Message == "" {
		return nil, fmt.Errorf("title and message are required")
	}

	a := &Announcement{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Message:   req.Message,
		Icon:      req.Icon,
		Priority:  req.Priority,
		CreatedBy: req.CreatedBy,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if a.Icon == "" {
		a.Icon = "📢"
	}
	if a.Priority == "" {
		a.Priority = "normal"
	}

	query := `
		INSERT INTO announcements (id, title, message, icon, priority, created_by, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.Title, a.Message, a.Icon, a.Priority, a.CreatedBy, a.IsActive, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert announcement: %w", err)
	}

	if req.SendPush == nil || *req.SendPush {
		msg := queue.BroadcastMessage{
			ID:    a.ID,
			Type:  "announcement",
			Title: fmt.Sprintf("%s %s", a.Icon, a.Title),
			Body:  a.Message,
			Data: map[string]interface{}{
				"type":           "announcement",
				"announcementId": a.ID,
			},
			CreatedAt: a.CreatedAt,
		}
		if err := s.publisher.PublishBroadcast(ctx, msg); err != nil {
			s.logger.Error("failed to enqueue announcement broadcast",
				zap.Error(err), zap.String("announcement_id", a.ID))
		} else if s.metrics != nil {
			s.metrics.RecordBroadcastQueued()
		}
	}

	s.logger.Info("announcement created", zap.String("id", a.ID), zap.String("title", a.Title))
	return a, nil
}

// List returns announcements, newest first
func (s *Service) List(ctx context.Context, limit int) ([]Announcement, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, title, message, COALESCE(icon, ''), priority, COALESCE(created_by, ''), is_active, created_at
		FROM announcements ORDER BY created_at DESC LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query announcements: %w", err)
	}
	defer rows.Close()

	var announcements []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &a.Icon, &a.Priority, &a.CreatedBy, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		announcements = append(announcements, a)
	}

	return announcements, rows.Err()
}
