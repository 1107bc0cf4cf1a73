package trace

// HAR structures cover the subset of the HTTP Archive 1.2 format the basic
// model projects network requests from. Recorders disagree on optional
// fields, so everything beyond url/method/status is left to its zero value.

// HAR is the root of an HTTP Archive document.
type HAR struct {
	Log HARLog `json:"log"`
}

// HARLog holds the archive entries.
type HARLog struct {
	Version string     `json:"version"`
	Entries []HAREntry `json:"entries"`
}

// HAREntry is one request/response pair with total time in milliseconds.
type HAREntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
}

// HARRequest is the request half of an entry.
type HARRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// HARResponse is the response half of an entry.
type HARResponse struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
}

// NetworkRequest is a normalized request derived from a HAR entry.
// Failure is true when the response status is an error class; a missing
// status is treated as 0 and therefore not a failure.
type NetworkRequest struct {
	URL        string  `json:"url"`
	Method     string  `json:"method"`
	Status     int     `json:"status"`
	StatusText string  `json:"statusText"`
	Duration   float64 `json:"duration"`
	Failure    bool    `json:"failure"`
}

// requestFromEntry normalizes one HAR entry.
func requestFromEntry(entry HAREntry) NetworkRequest {
	return NetworkRequest{
		URL:        entry.Request.URL,
		Method:     entry.Request.Method,
		Status:     entry.Response.Status,
		StatusText: entry.Response.StatusText,
		Duration:   entry.Time,
		Failure:    entry.Response.Status >= 400,
	}
}
