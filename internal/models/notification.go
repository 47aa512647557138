package models

import "time"

// NotificationKind identifies why a notification was raised.
type NotificationKind string

const (
	NotifyNoFileSelected NotificationKind = "no_file_selected"
	NotifyUploadFailed   NotificationKind = "upload_failed"
)

// Notification is a dismissible user-visible notice. It is never part of
// Result State.
type Notification struct {
	ID        string           `json:"id" msgpack:"id"`
	Kind      NotificationKind `json:"kind" msgpack:"kind"`
	Message   string           `json:"message" msgpack:"message"`
	CreatedAt time.Time        `json:"createdAt" msgpack:"createdAt"`
}
