package models

import "encoding/json"

// ProxyRequest is the body accepted by the webhook forwarding proxy and
// posted verbatim to a chat's external webhook.
type ProxyRequest struct {
	ChatID  string `json:"chatId" validate:"required"`
	Message string `json:"message" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

// ProxyResponse is the proxy's business-level envelope.
type ProxyResponse struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// RelayResponse is returned by the generic webhook relay.
type RelayResponse struct {
	Success    bool   `json:"success"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Response   string `json:"response"`
	Error      string `json:"error,omitempty"`
}

// InternalKeyHeader authenticates server-internal calls to the webhook proxy.
const InternalKeyHeader = "X-Internal-Key"
