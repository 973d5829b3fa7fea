package workflow

import "time"

// Attempt outcomes reported to a Recorder.
const (
	AttemptSuccess = "success"
	AttemptFailure = "failure"
	AttemptTimeout = "timeout"
	AttemptPanic   = "panic"
)

// Recovery kinds reported to a Recorder.
const (
	RecoveryFallback = "fallback"
	RecoveryCache    = "cache"
)

// Recorder receives engine measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordWorkflow(success bool, steps int, totalTokens int, latency time.Duration)
	RecordAttempt(tool, outcome string)
	RecordInvocation(tool string, success bool, tokens int, latency time.Duration)
	RecordRecovery(kind string)
	RecordBudgetRejection(tool string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWorkflow(bool, int, int, time.Duration) {}
func (nopRecorder) RecordAttempt(string, string) {}
func (nopRecorder) RecordInvocation(string, bool, int, time.Duration) {}
func (nopRecorder) RecordRecovery(string) {}
func (nopRecorder) RecordBudgetRejection(string) {}

// MultiRecorder fans measurements out to every non-nil recorder.
func MultiRecorder(recorders ...Recorder) Recorder {
	var rs multiRecorder
	for _, r := range recorders {
		if r != nil {
			rs = append(rs, r)
		}
	}
	switch len(rs) {
	case 0:
		return nopRecorder{}
	case 1:
		return rs[0]
	}
	return rs
}

type multiRecorder []Recorder

func (m multiRecorder) RecordWorkflow(success bool, steps int, totalTokens int, latency time.Duration) {
	for _, r := range m {
		r.RecordWorkflow(success, steps, totalTokens, latency)
	}
}

func (m multiRecorder) RecordAttempt(tool, outcome string) {
	for _, r := range m {
		r.RecordAttempt(tool, outcome)
	}
}

func (m multiRecorder) RecordInvocation(tool string, success bool, tokens int, latency time.Duration) {
	for _, r := range m {
		r.RecordInvocation(tool, success, tokens, latency)
	}
}

func (m multiRecorder) RecordRecovery(kind string) {
	for _, r := range m {
		r.RecordRecovery(kind)
	}
}

func (m multiRecorder) RecordBudgetRejection(tool string) {
	for _, r := range m {
		r.RecordBudgetRejection(tool)
	}
}
