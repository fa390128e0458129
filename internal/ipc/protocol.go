// Package ipc is the newline-delimited JSON control protocol spoken over the
// server's unix socket.
package ipc

const (
	CommandStatus = "status"
	CommandPress  = "press"
)

type Request struct {
	Command string `json:"command"`
}

// Response carries link state for status and the dispatch result for press.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	LEDOn   bool   `json:"led_on"`
	Peer    string `json:"peer,omitempty"`
	Sent    uint64 `json:"sent,omitempty"`
	Pending bool   `json:"pending,omitempty"`
	Dropped uint64 `json:"dropped,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
