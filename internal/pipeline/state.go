package pipeline

import "fmt"

// State is where an outgoing message is in its lifecycle.
type State int

const (
	StateComposed State = iota
	StateAppended
	StateAwaitingWebhook
	StateNoWebhookConfigured
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateComposed:
		return "composed"
	case StateAppended:
		return "appended"
	case StateAwaitingWebhook:
		return "awaiting_webhook"
	case StateNoWebhookConfigured:
		return "no_webhook_configured"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateNoWebhookConfigured || s == StateCompleted || s == StateFailed
}

// Reason explains a failed (or degraded) delivery.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonWebhookError
	ReasonProxyStatus
	ReasonTimeout
	ReasonUnknown
	ReasonResolveFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonWebhookError:
		return "webhook_error"
	case ReasonProxyStatus:
		return "proxy_status"
	case ReasonTimeout:
		return "timeout"
	case ReasonUnknown:
		return "unknown"
	case ReasonResolveFailed:
		return "resolve_failed"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}
