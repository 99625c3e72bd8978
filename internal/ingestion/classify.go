package ingestion

import "net/http"

// outcome is the classification of a single fetch attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNotFound
	outcomeTransient
	outcomePermanent
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeNotFound:
		return "not_found"
	case outcomeTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// classifyStatus maps a response status to an attempt outcome.
func classifyStatus(code int) outcome {
	switch {
	case code >= 200 && code < 300:
		return outcomeSuccess

	// 404 is matched by callers as "not published yet".
	case code == http.StatusNotFound:
		return outcomeNotFound

	// Timeouts and rate limiting are client errors but usually transient; the backoff
	// widens the interval for the latter.
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return outcomeTransient

	// Assume a struggling server recovers eventually.
	case code >= 500 && code < 600:
		return outcomeTransient

	default:
		return outcomePermanent
	}
}
