package models

import "time"

// Phase is the coarse state of an upload widget.
type Phase string

const (
	PhaseIdle      Phase = "idle"      // no file selected
	PhaseReady     Phase = "ready"     // file selected, no result from it yet
	PhaseCompleted Phase = "completed" // a successful upload produced a result
)

// FallbackText is shown when a successful response carries no extractable text.
const FallbackText = "Uploaded successfully!"

// UploadResult is the text produced by a completed upload attempt.
type UploadResult struct {
	Text        string    `json:"text" msgpack:"text"`
	AttemptID   string    `json:"attemptId" msgpack:"attemptId"`
	FileName    string    `json:"fileName" msgpack:"fileName"`
	Fallback    bool      `json:"fallback" msgpack:"fallback"`
	CompletedAt time.Time `json:"completedAt" msgpack:"completedAt"`
}

// Snapshot is an immutable copy of a widget's state, used for rendering and push.
type Snapshot struct {
	WidgetID      string         `json:"widgetId" msgpack:"widgetId"`
	Phase         Phase          `json:"phase" msgpack:"phase"`
	File          *SelectedFile  `json:"file,omitempty" msgpack:"file,omitempty"`
	Result        *UploadResult  `json:"result,omitempty" msgpack:"result,omitempty"`
	Uploading     bool           `json:"uploading" msgpack:"uploading"`
	Notifications []Notification `json:"notifications" msgpack:"notifications"`
	Version       uint64         `json:"version" msgpack:"version"`
}

// CanUpload reports whether the upload action should be enabled in the view.
func (s Snapshot) CanUpload() bool {
	return !s.Uploading
}
