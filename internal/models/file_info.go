package models

import "time"

// SelectedFile is the file currently held in a widget's Selection State.
// The bytes live in the blob store under ID; the struct itself is never mutated
// after creation, a new pick produces a new SelectedFile.
type SelectedFile struct {
	ID          string    `json:"id" msgpack:"id"`
	Name        string    `json:"name" msgpack:"name"`
	ContentType string    `json:"contentType" msgpack:"contentType"`
	Size        int64     `json:"size" msgpack:"size"`
	ChosenAt    time.Time `json:"chosenAt" msgpack:"chosenAt"`
}

// BlobInfo describes bytes held by the blob store.
type BlobInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	DetectedType string    `json:"detectedType"`
	StoredAt     time.Time `json:"storedAt"`
}
