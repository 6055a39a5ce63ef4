package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/speedx/push-server/internal/monitoring"
	"github.com/speedx/push-server/internal/provider"
)

// ErrInvalidRequest marks a dispatch request the caller must fix: missing
// title or body, or zero / more than one target mode.
var ErrInvalidRequest = errors.New("invalid request")

// TokenStore is the persistent token mapping consumed by the engine
type TokenStore interface {
	FindActiveTokensByUser(ctx context.Context, userID string) ([]DeviceToken, error)
	FindActiveTokensByUsers(ctx context.Context, userIDs []string) ([]DeviceToken, error)
	FindAllActiveTokens(ctx context.Context) ([]DeviceToken, error)
	MarkTokensUsed(ctx context.Context, tokens []string, at time.Time) error
	DeactivateTokens(ctx context.Context, tokens []string) error
}

// AuditLog records every attempted send
type AuditLog interface {
	Append(ctx context.Context, entry LogEntry) error
}

// Engine resolves dispatch targets to live device tokens, performs the
// batched provider send, and reconciles per-token outcomes back into the
// token store and the audit log.
type Engine struct {
	tokens   TokenStore
	audit    AuditLog
	provider provider.Client
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a dispatch engine. metrics may be nil.
func NewEngine(tokens TokenStore, audit AuditLog, client provider.Client, metrics *monitoring.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		tokens:   tokens,
		audit:    audit,
		provider: client,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// resolution is the output of target resolution: the concrete token list
// plus the owner metadata needed for reconciliation. Tokens supplied
// explicitly by the caller have no entry in owners.
type resolution struct {
	tokens []string
	owners map[string]DeviceToken
}

// Dispatch validates the request, resolves its target to device tokens,
// sends one batched provider call and reconciles the per-token outcomes.
//
// Zero resolved tokens is reported as an unsuccessful outcome, not an
// error. A provider transport failure returns both an outcome and the
// error; no reconciliation happens in that case since no per-token
// response was obtained. Per-token rejections never become call-level
// errors regardless of how many tokens fail.
func (e *Engine) Dispatch(ctx context.Context, req Request) (*Outcome, error) {
	start := e.now()
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = TypeCustom
	}

	res, err := e.resolve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dispatch target: %w", err)
	}

	if len(res.tokens) == 0 {
		msg := "no device tokens found"
		if req.All {
			msg = "no active users found"
		}
		e.logger.Warn("dispatch resolved no recipients", zap.String("type", string(req.Type)))
		return &Outcome{Success: false, Message: msg}, nil
	}

	e.logger.Info("dispatching notification",
		zap.String("type", string(req.Type)),
		zap.Int("tokens", len(res.tokens)),
	)

	notification := Compose(req.Payload)

	result, err := e.provider.Send(ctx, notification, res.tokens)
	if err != nil {
		e.logger.Error("provider send failed", zap.Error(err))
		if e.metrics != nil {
			e.metrics.RecordSendError(string(req.Type))
		}
		return &Outcome{Success: false, Message: err.Error()}, fmt.Errorf("provider send failed: %w", err)
	}

	e.reconcile(ctx, req, res, result)

	if e.metrics != nil {
		e.metrics.RecordDispatch(string(req.Type), len(result.Sent), len(result.Failed))
		e.metrics.ObserveDispatchDuration(string(req.Type), e.now().Sub(start).Seconds())
	}

	e.logger.Info("dispatch complete",
		zap.String("type", string(req.Type)),
		zap.Int("sent", len(result.Sent)),
		zap.Int("failed", len(result.Failed)),
	)

	return &Outcome{
		Success: len(result.Sent) > 0,
		Sent:    len(result.Sent),
		Failed:  len(result.Failed),
	}, nil
}

// SendToAll broadcasts a notification to every active device token.
func (e *Engine) SendToAll(ctx context.Context, typ NotificationType, payload Payload) (*Outcome, error) {
	return e.Dispatch(ctx, Request{All: true, Type: typ, Payload: payload})
}

// Shutdown releases the provider connection. Invoked from the host
// process shutdown sequence.
func (e *Engine) Shutdown() {
	e.provider.Shutdown()
}

// validate enforces the request invariants before any I/O happens
func validate(req Request) error {
	if req.Payload.Title == "" || req.Payload.Body == "" {
		return fmt.Errorf("%w: title and body are required", ErrInvalidRequest)
	}

	modes := 0
	if req.UserID != "" {
		modes++
	}
	if len(req.UserIDs) > 0 {
		modes++
	}
	if len(req.DeviceTokens) > 0 {
		modes++
	}
	if req.All {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("%w: exactly one of user_id, user_ids, device_tokens or all must be set", ErrInvalidRequest)
	}
	return nil
}

// resolve turns the request target into a deduplicated token list with
// owner metadata. Explicit token lists carry no owner metadata, which
// leaves those sends without audit entries.
func (e *Engine) resolve(ctx context.Context, req Request) (*resolution, error) {
	var (
		records []DeviceToken
		err     error
	)

	switch {
	case req.UserID != "":
		records, err = e.tokens.FindActiveTokensByUser(ctx, req.UserID)
	case len(req.UserIDs) > 0:
		records, err = e.tokens.FindActiveTokensByUsers(ctx, req.UserIDs)
	case req.All:
		records, err = e.tokens.FindAllActiveTokens(ctx)
	default:
		res := &resolution{owners: map[string]DeviceToken{}}
		seen := make(map[string]bool, len(req.DeviceTokens))
		for _, t := range req.DeviceTokens {
			if !seen[t] {
				seen[t] = true
				res.tokens = append(res.tokens, t)
			}
		}
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	res := &resolution{owners: make(map[string]DeviceToken, len(records))}
	for _, r := range records {
		if _, dup := res.owners[r.DeviceToken]; dup {
			continue
		}
		res.owners[r.DeviceToken] = r
		res.tokens = append(res.tokens, r.DeviceToken)
	}
	return res, nil
}

// reconcile writes one audit entry per resolved token with known owner
// metadata, stamps last_used_at on accepted tokens, and deactivates
// tokens the provider reported as permanently invalid. Reconciliation
// errors are logged, never escalated: the send already happened.
func (e *Engine) reconcile(ctx context.Context, req Request, res *resolution, result *provider.BatchResult) {
	failures := make(map[string]string, len(result.Failed))
	for _, f := range result.Failed {
		failures[f.Token] = f.Reason
	}

	for _, token := range res.tokens {
		record, known := res.owners[token]
		if !known {
			continue
		}

		entry := LogEntry{
			UserID:        record.UserID,
			DeviceTokenID: record.ID,
			Type:          req.Type,
			Title:         req.Payload.Title,
			Body:          req.Payload.Body,
			Data:          req.Payload.Data,
			Status:        StatusSent,
		}
		if reason, failed := failures[token]; failed {
			entry.Status = StatusFailed
			entry.ErrorMessage = reason
		}

		if err := e.audit.Append(ctx, entry); err != nil {
			e.logger.Error("failed to write notification log",
				zap.Error(err), zap.String("user_id", record.UserID))
		}
	}

	if len(result.Sent) > 0 {
		sent := make([]string, 0, len(result.Sent))
		for _, d := range result.Sent {
			sent = append(sent, d.Token)
		}
		if err := e.tokens.MarkTokensUsed(ctx, sent, e.now()); err != nil {
			e.logger.Error("failed to update last_used_at", zap.Error(err))
		}
	}

	var invalid []string
	for _, f := range result.Failed {
		if provider.PermanentFailure(f.Reason) {
			invalid = append(invalid, f.Token)
		}
	}
	if len(invalid) > 0 {
		e.logger.Info("deactivating invalid device tokens", zap.Int("count", len(invalid)))
		if err := e.tokens.DeactivateTokens(ctx, invalid); err != nil {
			e.logger.Error("failed to deactivate tokens", zap.Error(err))
		} else if e.metrics != nil {
			e.metrics.RecordTokensDeactivated(len(invalid))
		}
	}
}
