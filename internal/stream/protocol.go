package stream

import (
	"encoding/json"
	"errors"
)

// Message type tags on the wire.
const (
	TypeConnected  = "connected"
	TypeAck        = "ack"
	TypeProcessing = "processing"
	TypePong       = "pong"
	TypeResult     = "result"
	TypeError      = "error"

	TypeDone = "done"
	TypePing = "ping"
)

const (
	readyMessage      = "Ready to receive audio"
	processingMessage = "Analyzing audio..."
)

type ConnectedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type AckMessage struct {
	Type       string `json:"type"`
	Bytes      int    `json:"bytes"`
	TotalBytes int64  `json:"totalBytes"`
}

// StatusMessage carries processing and pong notifications.
type StatusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type ResultData struct {
	TrackName  string  `json:"trackName"`
	Artist     string  `json:"artist"`
	Confidence float64 `json:"confidence"`
}

type ResultMessage struct {
	Type string     `json:"type"`
	Data ResultData `json:"data"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ControlMessage is any inbound text frame.
type ControlMessage struct {
	Type string `json:"type"`
}

var errNoType = errors.New("control message has no type")

func ParseControl(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type == "" {
		return msg, errNoType
	}
	return msg, nil
}
