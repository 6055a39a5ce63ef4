package push

import (
	"github.com/speedx/push-server/internal/provider"
)

// Compose builds a provider-ready notification from a logical payload.
//
// Sound defaults to "default" when unspecified. The badge count is set
// only when the caller provided one; absence means "leave unchanged" on
// the device. Every notification is marked content-available and
// mutable-content so rich payloads can be processed by a client-side
// extension after delivery.
func Compose(p Payload) *provider.Notification {
	sound := p.Sound
	if sound == "" {
		sound = "default"
	}

	return &provider.Notification{
		Title:            p.Title,
		Body:             p.Body,
		Sound:            sound,
		Badge:            p.Badge,
		Data:             p.Data,
		ContentAvailable: true,
		MutableContent:   true,
	}
}
