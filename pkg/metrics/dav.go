package metrics

import "time"

// DAVMetrics records per-request WebDAV observations. Implementations must be
// safe for concurrent use.
type DAVMetrics interface {
	// RecordRequest counts one finished request with its final HTTP status.
	RecordRequest(method, mount string, status int, duration time.Duration)

	// RecordDenial counts an authorization rejection (401 or 403).
	RecordDenial(method, mount string)

	// RecordQuotaRejection counts a write stopped by a quota ceiling.
	RecordQuotaRejection(mount string)

	// AddBytesTransferred accumulates payload bytes by direction
	// ("read" for GET, "write" for PUT).
	AddBytesTransferred(mount, direction string, n int64)

	// RequestStarted / RequestFinished track the in-flight gauge.
	RequestStarted(method string)
	RequestFinished(method string)
}

// NewNoopDAVMetrics returns a DAVMetrics that discards everything.
func NewNoopDAVMetrics() DAVMetrics {
	return noopDAVMetrics{}
}

type noopDAVMetrics struct{}

func (noopDAVMetrics) RecordRequest(string, string, int, time.Duration) {}
func (noopDAVMetrics) RecordDenial(string, string)                      {}
func (noopDAVMetrics) RecordQuotaRejection(string)                      {}
func (noopDAVMetrics) AddBytesTransferred(string, string, int64)        {}
func (noopDAVMetrics) RequestStarted(string)                            {}
func (noopDAVMetrics) RequestFinished(string)                           {}
