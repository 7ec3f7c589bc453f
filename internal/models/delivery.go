package models

import "time"

// Delivery is a journal row describing one settled dispatch outcome.
// File content is never recorded.
type Delivery struct {
	ID          int64          `json:"id"`
	Handle      string         `json:"handle"`
	FileName    string         `json:"file_name"`
	Size        int64          `json:"size"`
	Destination string         `json:"destination"`
	Status      DispatchStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
