package models

import "time"

// Observation is one request as the listener saw it.
type Observation struct {
	ID         int64     `json:"id,omitempty"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	RemoteAddr string    `json:"remote_addr"`
	Body       string    `json:"body"`
	BodySize   int64     `json:"body_size"`
	Rendered   string    `json:"rendered,omitempty"`
	StatusCode int       `json:"status_code"`
	ParseError string    `json:"parse_error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Parsed reports whether the body decoded as JSON.
func (o *Observation) Parsed() bool {
	return o.ParseError == "" && o.StatusCode == 204
}
