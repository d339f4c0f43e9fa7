package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrWebhookNotSupported is returned when a transport cannot manage
// webhook registration itself (e.g. WhatsApp, configured in the Meta
// console).
var ErrWebhookNotSupported = errors.New("channel webhook management not supported")

// Transport is the capability interface every platform adapter implements.
// The shared inbound processor is parameterized over it so the buffering,
// correlation, and reply-splitting logic exists exactly once.
type Transport interface {
	Type() Type

	// SendText delivers a single plain-text message to a chat.
	SendText(ctx context.Context, chatID, text string) error

	// SendTyping emits a typing indicator. Best-effort.
	SendTyping(ctx context.Context, chatID string) error

	// ResolveFileURL resolves a platform file handle to a retrievable URL.
	ResolveFileURL(ctx context.Context, platformKey string) (string, error)

	// MaxAttachmentBytes is the size above which the platform's own file
	// API refuses retrieval; larger attachments are rejected up front.
	MaxAttachmentBytes() int64

	// MaxMessageLength is the per-message text limit for reply splitting.
	MaxMessageLength() int

	// NormalizePhone canonicalizes a phone string, stripping any
	// channel-specific transport prefix first.
	NormalizePhone(raw string) string
}

// WebhookManager is implemented by transports whose inbound webhook can be
// registered programmatically.
type WebhookManager interface {
	SetWebhook(ctx context.Context, url string) error
	WebhookInfo(ctx context.Context) (map[string]any, error)
	DeleteWebhook(ctx context.Context) error
}

// Registry holds the registered transports keyed by channel type.
type Registry struct {
	mu         sync.RWMutex
	transports map[Type]Transport
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[Type]Transport)}
}

// Register adds a transport. It fails on duplicate channel types.
func (r *Registry) Register(t Transport) error {
	if t == nil {
		return fmt.Errorf("transport is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[t.Type()]; exists {
		return fmt.Errorf("transport already registered: %s", t.Type())
	}
	r.transports[t.Type()] = t
	return nil
}

// MustRegister adds a transport and panics on duplicates. Boot-time only.
func (r *Registry) MustRegister(t Transport) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the transport for a channel type.
func (r *Registry) Get(channelType Type) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[channelType]
	return t, ok
}

// Types lists the registered channel types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.transports))
	for t := range r.transports {
		types = append(types, t)
	}
	return types
}
