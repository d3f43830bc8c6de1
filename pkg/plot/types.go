package plot

import (
	"time"

	"github.com/raykavin/rsdash/pkg/core"
)

// Message types exchanged over the websocket
const (
	MessageChart  = "chart"
	MessageRegion = "region"
	MessageYear   = "year"
	MessageError  = "error"
	MessageDevice = "device"
)

// Message is a single websocket frame
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type chartPayload struct {
	ID     string           `json:"id"`
	Config core.ChartConfig `json:"config"`
}

type regionPayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type yearPayload struct {
	Year    string   `json:"year"`
	Options []string `json:"options"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// clientMessage is what browsers send back: device capabilities and year
// selections
type clientMessage struct {
	Type  string `json:"type"`
	Touch bool   `json:"touch"`
	Year  string `json:"year"`
}

// State is the snapshot of everything currently displayed
type State struct {
	Year       string                      `json:"year"`
	Selected   string                      `json:"selected"`
	Generation uint64                      `json:"generation"`
	Charts     map[string]core.ChartConfig `json:"charts"`
	Regions    map[string]string           `json:"regions"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}
