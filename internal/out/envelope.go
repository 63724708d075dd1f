package out

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string     `json:"version"`
	Success  bool       `json:"success"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorBody `json:"error"`
	Warnings []string   `json:"warnings,omitempty"`
	Meta     Meta       `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Meta struct {
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   string      `json:"command"`
	UserID    string      `json:"user_id,omitempty"`
	Chain     string      `json:"chain,omitempty"`
	Cache     CacheStatus `json:"cache"`
}

// CacheStatus reports how the command's data was served: hit, miss or bypass.
type CacheStatus struct {
	Status string `json:"status"`
	TTLMS  int64  `json:"ttl_ms,omitempty"`
}

func CacheBypass() CacheStatus {
	return CacheStatus{Status: "bypass"}
}

func CacheTTL(status string, ttl time.Duration) CacheStatus {
	return CacheStatus{Status: status, TTLMS: ttl.Milliseconds()}
}
