package pipeline

// Metrics receives pipeline counters. Labels are plain strings so collector
// implementations stay independent of this package.
type Metrics interface {
	PipelineStarted(chain string)
	PipelineSkipped(chain, reason string)
	StageAdvanced(chain, from, to string)
	Forwarded(chain string, delivered bool)
	OutboundSent(delivered bool)
	RecordError(category string)
	SetPending(chain, stage string, count int)
}

const (
	SkipReasonMarker         = "marker"
	SkipReasonNoAddress      = "no_address"
	SkipReasonAlreadyPending = "already_pending"
)

type noopMetrics struct{}

func (noopMetrics) PipelineStarted(string) {}
func (noopMetrics) PipelineSkipped(string, string) {}
func (noopMetrics) StageAdvanced(string, string, string) {}
func (noopMetrics) Forwarded(string, bool) {}
func (noopMetrics) OutboundSent(bool) {}
func (noopMetrics) RecordError(string) {}
func (noopMetrics) SetPending(string, string, int) {}
