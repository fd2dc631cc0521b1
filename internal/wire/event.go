// Package wire defines the typed event stream spoken between the dialog
// gateway and the reconciliation engine, along with frame decoding and
// per-kind validation.
package wire

// Kind identifies the type of a wire event.
type Kind string

const (
	KindGenBegin      Kind = "gen.begin"
	KindGenEnd        Kind = "gen.end"
	KindGenAbort      Kind = "gen.abort"
	KindThinkingBegin Kind = "thinking.begin"
	KindThinkingDelta Kind = "thinking.delta"
	KindThinkingEnd   Kind = "thinking.end"
	KindSayBegin      Kind = "say.begin"
	KindSayDelta      Kind = "say.delta"
	KindSayEnd        Kind = "say.end"
	KindCallBegin     Kind = "call.begin"
	KindCallDelta     Kind = "call.delta"
	KindCallResult    Kind = "call.result"
	KindSearchBegin   Kind = "search.begin"
	KindSearchDelta   Kind = "search.delta"
	KindSearchEnd     Kind = "search.end"
	KindUserTurn      Kind = "user.turn"
	KindAnchor        Kind = "anchor"
	KindRunState      Kind = "run.state"
	KindReminder      Kind = "reminder"
	KindQ4H           Kind = "q4h"
	KindStreamError   Kind = "stream.error"
)

// CallName is the closed set of outbound call flavors.
type CallName string

const (
	CallTool        CallName = "tool"
	CallTeammate    CallName = "call_teammate"
	CallAgent       CallName = "call_agent"
	CallCallback    CallName = "callback"
	CallAskHuman    CallName = "ask_human"
	CallSelfReflect CallName = "self_reflect"
)

// KnownCallName reports whether name is in the closed call-name set.
func KnownCallName(name CallName) bool {
	switch name {
	case CallTool, CallTeammate, CallAgent, CallCallback, CallAskHuman, CallSelfReflect:
		return true
	}
	return false
}

// CallStatus is the settle status carried by a call.result event.
type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallCompleted CallStatus = "completed"
	CallFailed    CallStatus = "failed"
)

// AnchorRole distinguishes which side of a cross-reference an anchor binds.
type AnchorRole string

const (
	AnchorAssignment AnchorRole = "assignment"
	AnchorResponse   AnchorRole = "response"
)

// Event is the closed union of wire events. Every concrete event type in
// this package implements it; the engine switches exhaustively over the
// concrete types so a new kind cannot silently fall through.
type Event interface {
	EventKind() Kind
}

// CourseScoped is implemented by events that carry a course field. Events
// without one are course-agnostic and always pass the course gate.
type CourseScoped interface {
	Event
	CourseNum() int
}

// Scoped carries the identifiers shared by course-scoped generation events.
type Scoped struct {
	Course int `json:"course"`
	GenSeq int `json:"genseq"`
}

// CourseNum returns the event's course epoch.
func (s Scoped) CourseNum() int { return s.Course }

// GenBegin starts a generation pass.
type GenBegin struct {
	Scoped
}

// GenEnd completes a generation pass, optionally late-binding a model label.
type GenEnd struct {
	Scoped
	Model string `json:"model,omitempty"`
}

// GenAbort discards a generation pass and everything keyed to it.
type GenAbort struct {
	Scoped
}

// ThinkingBegin opens the reasoning substream.
type ThinkingBegin struct {
	Scoped
}

// ThinkingDelta appends reasoning text.
type ThinkingDelta struct {
	Scoped
	Text string `json:"text"`
}

// ThinkingEnd closes the reasoning substream.
type ThinkingEnd struct {
	Scoped
}

// SayBegin opens the answer substream.
type SayBegin struct {
	Scoped
}

// SayDelta appends answer text.
type SayDelta struct {
	Scoped
	Text string `json:"text"`
}

// SayEnd closes the answer substream.
type SayEnd struct {
	Scoped
}

// CallBegin opens a tool/teammate call substream and creates its call site.
type CallBegin struct {
	Scoped
	CallID       string   `json:"call_id"`
	CallName     CallName `json:"call_name"`
	Mentions     []string `json:"mentions,omitempty"`
	SessionToken string   `json:"session_token,omitempty"`
	TS           string   `json:"ts,omitempty"`
}

// CallDelta appends call argument text. CallID may be empty; follow-up
// chunks do not always carry the identifier.
type CallDelta struct {
	Scoped
	CallID string `json:"call_id,omitempty"`
	Text   string `json:"text"`
}

// CallResult settles a call site and may carry the substantive response
// content. It is course-agnostic: responses arrive from other agents on
// their own clock.
type CallResult struct {
	CallID    string     `json:"call_id"`
	Status    CallStatus `json:"status"`
	EndedAtMs int64      `json:"ended_at_ms,omitempty"`
	From      string     `json:"from,omitempty"`
	Content   string     `json:"content,omitempty"`
}

// SearchBegin opens a web-search substream instance.
type SearchBegin struct {
	Scoped
	ItemID string `json:"item_id"`
	Query  string `json:"query,omitempty"`
}

// SearchDelta appends web-search progress text. ItemID may be empty.
type SearchDelta struct {
	Scoped
	ItemID string `json:"item_id,omitempty"`
	Text   string `json:"text"`
}

// SearchEnd closes a web-search substream instance.
type SearchEnd struct {
	Scoped
	ItemID string `json:"item_id"`
}

// UserTurn marks the end of a user turn.
type UserTurn struct {
	Scoped
	MsgID   string `json:"msg_id"`
	From    string `json:"from,omitempty"`
	Content string `json:"content"`
}

// Anchor cross-references a call site with the generation that answers it.
type Anchor struct {
	Scoped
	CallID     string     `json:"call_id"`
	Role       AnchorRole `json:"role"`
	Assignment string     `json:"assignment,omitempty"`
	Caller     string     `json:"caller,omitempty"`
}

// RunState reports a run-state transition for the current dialog.
type RunState struct {
	State string `json:"state"`
}

// Reminder updates the global reminder banner. Dialog-independent.
type Reminder struct {
	Text string `json:"text"`
}

// Q4H delivers a pending question for the human operator. Dialog-independent.
type Q4H struct {
	QuestionID string `json:"question_id"`
	From       string `json:"from,omitempty"`
	Text       string `json:"text"`
}

// StreamError surfaces a stream-level error as a non-blocking notice.
type StreamError struct {
	Message string `json:"message"`
	GenSeq  int    `json:"genseq,omitempty"`
}

func (GenBegin) EventKind() Kind      { return KindGenBegin }
func (GenEnd) EventKind() Kind        { return KindGenEnd }
func (GenAbort) EventKind() Kind      { return KindGenAbort }
func (ThinkingBegin) EventKind() Kind { return KindThinkingBegin }
func (ThinkingDelta) EventKind() Kind { return KindThinkingDelta }
func (ThinkingEnd) EventKind() Kind   { return KindThinkingEnd }
func (SayBegin) EventKind() Kind      { return KindSayBegin }
func (SayDelta) EventKind() Kind      { return KindSayDelta }
func (SayEnd) EventKind() Kind        { return KindSayEnd }
func (CallBegin) EventKind() Kind     { return KindCallBegin }
func (CallDelta) EventKind() Kind     { return KindCallDelta }
func (CallResult) EventKind() Kind    { return KindCallResult }
func (SearchBegin) EventKind() Kind   { return KindSearchBegin }
func (SearchDelta) EventKind() Kind   { return KindSearchDelta }
func (SearchEnd) EventKind() Kind     { return KindSearchEnd }
func (UserTurn) EventKind() Kind      { return KindUserTurn }
func (Anchor) EventKind() Kind        { return KindAnchor }
func (RunState) EventKind() Kind      { return KindRunState }
func (Reminder) EventKind() Kind      { return KindReminder }
func (Q4H) EventKind() Kind           { return KindQ4H }
func (StreamError) EventKind() Kind   { return KindStreamError }
