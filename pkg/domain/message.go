package domain

// MessageStyle maps onto the alert styles of the browser UI.
type MessageStyle string

const (
	StyleInfo    MessageStyle = "info"
	StyleSuccess MessageStyle = "success"
	StyleWarning MessageStyle = "warning"
	StyleDanger  MessageStyle = "danger"
)

// Message is one alert pushed to a client over the realtime channel.
//
// ID addresses the alert box in the UI: messages sharing an ID replace
// each other, so progress updates of one job collapse into one box.
type Message struct {
	ID    string       `json:"id"`
	Style MessageStyle `json:"style"`
	Line1 string       `json:"line1"`
	Line2 string       `json:"line2,omitempty"`
}
