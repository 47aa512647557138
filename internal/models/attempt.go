package models

import "time"

// AttemptOutcome classifies how an upload attempt ended.
type AttemptOutcome string

const (
	OutcomeSuccess        AttemptOutcome = "success"
	OutcomeFallback       AttemptOutcome = "fallback"
	OutcomeTransportError AttemptOutcome = "transport_error"
	OutcomeServerError    AttemptOutcome = "server_error"
)

// Attempt is the diagnostics record of one upload request.
type Attempt struct {
	ID         string         `json:"id"`
	WidgetID   string         `json:"widgetId"`
	FileName   string         `json:"fileName"`
	Size       int64          `json:"size"`
	Outcome    AttemptOutcome `json:"outcome"`
	StatusCode int            `json:"statusCode,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	DurationMs int64          `json:"durationMs"`
}

// Failed reports whether the attempt left Result State untouched.
func (a *Attempt) Failed() bool {
	return a.Outcome == OutcomeTransportError || a.Outcome == OutcomeServerError
}
