// Package provider wraps the platform push gateways behind a common
// batched-send interface.
package provider

import (
	"context"
)

// Notification is a provider-ready notification built by the composer
type Notification struct {
	Title            string
	Body             string
	Sound            string
	Badge            *int
	Data             map[string]interface{}
	ContentAvailable bool
	MutableContent   bool
}

// Delivery is one accepted token within a batch send
type Delivery struct {
	Token string
}

// Failure is one rejected token within a batch send
type Failure struct {
	Token  string
	Reason string
}

// BatchResult partitions a batch send into per-token outcomes
type BatchResult struct {
	Sent   []Delivery
	Failed []Failure
}

// Client is the push gateway interface consumed by the dispatch engine.
// Send performs one batched call for the whole token list; a returned
// error means the call itself failed and no per-token outcomes exist.
type Client interface {
	Send(ctx context.Context, n *Notification, tokens []string) (*BatchResult, error)
	Shutdown()
}

// Failure reasons reported by the gateways, normalized across providers.
const (
	ReasonBadDeviceToken         = "BadDeviceToken"
	ReasonUnregistered           = "Unregistered"
	ReasonDeviceTokenNotForTopic = "DeviceTokenNotForTopic"
)

// PermanentFailure reports whether a failure reason indicates the token
// is permanently invalid and should be deactivated. Transient reasons
// (rate limiting, payload too large, internal errors) return false.
func PermanentFailure(reason string) bool {
	switch reason {
	case ReasonBadDeviceToken, ReasonUnregistered, ReasonDeviceTokenNotForTopic:
		return true
	}
	return false
}
