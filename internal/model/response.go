package model

// APIResponse is the envelope of every JSON endpoint owned by the
// dashboard. Error is a plain message so clients can show it directly.
type APIResponse struct {
	Success     bool   `json:"success"`
	Data        any    `json:"data,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
	Details     string `json:"details,omitempty"`
	AuthExpired bool   `json:"authExpired,omitempty"`
	Meta        *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	Limit int `json:"limit"`
	Total int `json:"total"`
}
