package models

// ValidationResult is the outcome of probing and format-checking a dataset.
// An empty-but-well-formed file is valid; a missing or corrupt format marker
// is not, regardless of payload size.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}
