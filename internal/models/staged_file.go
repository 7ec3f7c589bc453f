package models

import "time"

// StagedFile is an uploaded file waiting to be delivered.
type StagedFile struct {
	Handle    string    `json:"handle"`
	FileName  string    `json:"file_name"`
	Content   []byte    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
