package models

import (
	"io"
	"time"
)

// Photo is a stored image record. The client never mutates it.
type Photo struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	AlbumID    string    `json:"albumId,omitempty"`
	GcsURL     string    `json:"gcsUrl"`
	UploadedOn time.Time `json:"uploadedOn"`
	Tags       []string  `json:"tags,omitempty"`
	Size       int64     `json:"size"`
	Format     string    `json:"format"`
}

// UploadStatus is the outcome of a single file upload.
type UploadStatus string

const (
	// StatusSuccess marks a file the server accepted.
	StatusSuccess UploadStatus = "success"
	// StatusError marks a file that was rejected or never acknowledged.
	StatusError UploadStatus = "error"
)

// PendingUpload is a file staged for upload but not yet submitted.
type PendingUpload struct {
	// ID identifies the staged entry independently of its name.
	ID string
	// DisplayName is unique within a selection.
	DisplayName string
	// SizeBytes is the file size, or -1 when unknown.
	SizeBytes int64
	// Open returns a fresh reader over the file contents.
	Open func() (io.ReadCloser, error)
}

// UploadResult is one entry of the upload result log.
type UploadResult struct {
	Name       string       `json:"name"`
	Status     UploadStatus `json:"status"`
	ServerData *Photo       `json:"data,omitempty"`
	// Err holds the failure text for StatusError entries.
	Err string `json:"error,omitempty"`
}
