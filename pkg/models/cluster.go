package models

import "time"

// ClusterState is the API form of a bucket counter.
type ClusterState struct {
	Bucket    string    `json:"bucket"`
	Digits    string    `json:"digits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllocationResponse is returned by the allocate endpoint.
type AllocationResponse struct {
	Bucket  string `json:"bucket"`
	Path    string `json:"path"`
	Digits  string `json:"digits"`
	Next    string `json:"next"`
	Wrapped bool   `json:"wrapped"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
