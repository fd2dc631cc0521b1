package engine

import "github.com/longrun-ai/dominds-sub008/internal/wire"

// StreamKind names one of the parallel substreams multiplexed within a
// generation pass.
type StreamKind string

const (
	StreamReasoning StreamKind = "reasoning"
	StreamAnswer    StreamKind = "answer"
	StreamToolCall  StreamKind = "tool_call"
	StreamWebSearch StreamKind = "web_search"
)

// CallSiteView is the read-only projection of a call site handed to the
// view sink.
type CallSiteView struct {
	CallID       string
	GenSeq       int
	Name         wire.CallName
	Status       wire.CallStatus
	StartedAtMs  int64
	EndedAtMs    int64
	Mentions     []string
	SessionToken string
}

// AnchorRefs are the back-references an anchor applies to a generation
// bubble.
type AnchorRefs struct {
	CallID     string
	Assignment string
	Caller     string
}

// Question is a pending question for the human operator. Questions survive
// dialog and course switches.
type Question struct {
	QuestionID string
	From       string
	Text       string
}

// ViewSink receives abstract rendering intents from the engine. The engine
// never waits on a sink: calls are fire-and-forget side effects, and
// implementations must not call back into the engine.
//
// Sinks only ever see read-only projections; all reconciled state stays
// owned by the engine.
type ViewSink interface {
	// EnsureGeneration guarantees a placeholder exists for genseq.
	EnsureGeneration(genseq int)
	// DiscardGeneration removes the bubble for genseq and everything in it.
	DiscardGeneration(genseq int)
	// AppendSubstream appends text to a substream. id is empty for the
	// single-instance reasoning/answer streams and carries the
	// callId/itemId for tool-call and web-search instances.
	AppendSubstream(genseq int, stream StreamKind, id, text string)
	// FinishSubstream marks a substream finished.
	FinishSubstream(genseq int, stream StreamKind, id string)
	// UpdateCallSite updates a call site's timing and status.
	UpdateCallSite(site CallSiteView)
	// ShowUserTurn renders an ended user turn.
	ShowUserTurn(genseq int, msgID, from, content string)
	// ShowCallResponse renders the substantive content of a call response
	// as its own timeline entry, independent of call-site settlement.
	ShowCallResponse(callID, from, content string)
	// ApplyAnchor attaches cross-reference attributes to a generation bubble.
	ApplyAnchor(genseq int, role wire.AnchorRole, refs AnchorRefs)
	// ShowNotice renders a non-blocking notice tied to a generation, or a
	// global notice when genseq is zero.
	ShowNotice(genseq int, text string)
	// SetRunState reflects a run-state transition.
	SetRunState(state string)
	// SetReminder updates the global reminder banner.
	SetReminder(text string)
	// PushQuestion surfaces a pending question for the human operator.
	PushQuestion(q Question)
}

// NopSink discards every intent. Useful for headless runs and as an
// embedding base for partial sink implementations in tests.
type NopSink struct{}

func (NopSink) EnsureGeneration(int)                            {}
func (NopSink) DiscardGeneration(int)                           {}
func (NopSink) AppendSubstream(int, StreamKind, string, string) {}
func (NopSink) FinishSubstream(int, StreamKind, string)         {}
func (NopSink) UpdateCallSite(CallSiteView)                     {}
func (NopSink) ShowUserTurn(int, string, string, string)        {}
func (NopSink) ShowCallResponse(string, string, string)         {}
func (NopSink) ApplyAnchor(int, wire.AnchorRole, AnchorRefs)    {}
func (NopSink) ShowNotice(int, string)                          {}
func (NopSink) SetRunState(string)                              {}
func (NopSink) SetReminder(string)                              {}
func (NopSink) PushQuestion(Question)                           {}

var _ ViewSink = NopSink{}
