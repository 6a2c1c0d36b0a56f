package chat

// inboundFrame is the only client-to-server message shape.
type inboundFrame struct {
	Text string `json:"text"`
}

// errorFrame is sent back on a bad or throttled frame; the connection stays
// open. Error carries the machine code ("throttled", "validation.failed"),
// Message the human text.
type errorFrame struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
