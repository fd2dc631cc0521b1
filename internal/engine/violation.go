package engine

import "github.com/longrun-ai/dominds-sub008/internal/wire"

// Violation codes. Each names a recoverable protocol breach; the heuristic
// applied after reporting is documented on the handler that raises it.
const (
	ViolationMalformedEvent    = "malformed_event"
	ViolationDuplicateStart    = "duplicate_start"
	ViolationStartAfterFinish  = "start_after_finish"
	ViolationChunkAfterFinish  = "chunk_after_finish"
	ViolationDuplicateCall     = "duplicate_call"
	ViolationUnknownCall       = "unknown_call"
	ViolationUnidentifiedChunk = "unidentified_chunk"
	ViolationTurnOrder         = "assistant_before_user_turn"
	ViolationSettleAfterPurge  = "settle_after_purge"
)

// Violation is a structured report of a recoverable protocol breach.
// Violations never abort reconciliation; they are delivered to the
// observer and surfaced as a non-blocking notice.
type Violation struct {
	Code      string
	Message   string
	EventType wire.Kind
	GenSeq    int
	CallID    string
	Expected  string
	Actual    string
}

// Observer receives protocol violations as they are raised. Must not call
// back into the engine.
type Observer func(Violation)

// report delivers a violation to the observer and renders it as a notice
// tied to the affected generation (global when no such unit exists).
func (e *Engine) report(v Violation) {
	if e.observe != nil {
		e.observe(v)
	}
	target := 0
	if _, ok := e.units[v.GenSeq]; ok {
		target = v.GenSeq
	}
	e.sink.ShowNotice(target, v.Message)
}
