package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}

func (n *NoopRecorder) IncChatOutcome(string, string) {}

func (n *NoopRecorder) IncRateLimited() {}

func (n *NoopRecorder) IncLimiterFallback(string) {}

func (n *NoopRecorder) IncUpstreamRetry(int) {}
