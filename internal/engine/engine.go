// Package engine reconstructs a consistent, replayable view of a live
// multi-agent dialog from an ordered-but-not-strictly-ordered stream of
// wire events. It is single-threaded and event-driven: Handle processes
// one event to completion before the next, which is what makes the
// single-active-generation invariant and idempotent settlement tractable
// without locks.
package engine

import (
	"log/slog"
	"time"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// noSeq marks "no active generation". Valid genseqs are positive.
const noSeq = 0

// Engine owns all reconciliation state for one dialog context. It is not
// safe for concurrent use; callers must serialize Handle with the
// navigation methods.
type Engine struct {
	logger  *slog.Logger
	sink    ViewSink
	observe Observer
	now     func() time.Time

	dialog *DialogContext
	prev   *DialogContext
	nav    navPhase

	course int

	units      map[int]*GenerationUnit
	activeSeq  int
	calls      map[string]*CallSite
	callsBySeq map[int][]string
	anchors    map[int][]PendingAnchor

	runState  string
	reminder  string
	questions []Question
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSink sets the view sink receiving rendering intents.
func WithSink(sink ViewSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithObserver sets the protocol-violation observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.observe = obs }
}

// withClock overrides the receipt-time clock. Test hook.
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an idle engine. Without a sink, intents are discarded.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		sink:   NopSink{},
		now:    time.Now,
		nav:    navIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resetVolatile()
	return e
}

// Handle is the single entry point for wire events. It never blocks and
// never panics on malformed input: validation failures and protocol
// breaches are reported to the observer and processing continues with the
// per-component recovery heuristic.
func (e *Engine) Handle(ev wire.Event) {
	if ev == nil {
		return
	}

	if ferr := wire.Validate(ev); ferr != nil {
		code := ViolationMalformedEvent
		if ferr.EventType == wire.KindCallBegin && ferr.Field == "call_name" {
			code = ViolationUnknownCall
		}
		e.report(Violation{
			Code:      code,
			Message:   ferr.Error(),
			EventType: ferr.EventType,
			Expected:  ferr.Expected,
			Actual:    ferr.Actual,
		})
		if !salvageable(ev, ferr) {
			return
		}
	}

	// Dialog-independent events stay live even while the timeline is
	// being rebuilt.
	switch ev := ev.(type) {
	case *wire.Reminder:
		e.reminder = ev.Text
		e.sink.SetReminder(ev.Text)
		return
	case *wire.Q4H:
		q := Question{QuestionID: ev.QuestionID, From: ev.From, Text: ev.Text}
		e.questions = append(e.questions, q)
		e.sink.PushQuestion(q)
		return
	}

	if e.nav != navActive {
		e.logger.Debug("suppressing event outside active dialog",
			slog.String("kind", string(ev.EventKind())))
		return
	}

	// Course gate: the one ordering guarantee everything downstream may
	// rely on. A stale course is a normal replay artifact, not an error.
	if scoped, ok := ev.(wire.CourseScoped); ok && scoped.CourseNum() != e.course {
		return
	}

	switch ev := ev.(type) {
	case *wire.GenBegin:
		e.startGeneration(ev.GenSeq)
	case *wire.GenEnd:
		e.finishGeneration(ev.GenSeq, ev.Model)
	case *wire.GenAbort:
		e.discardGeneration(ev.GenSeq)
	case *wire.ThinkingBegin:
		e.startStream(ev.GenSeq, StreamReasoning, ev.EventKind())
	case *wire.ThinkingDelta:
		e.appendStream(ev.GenSeq, StreamReasoning, ev.Text, ev.EventKind())
	case *wire.ThinkingEnd:
		e.finishStream(ev.GenSeq, StreamReasoning)
	case *wire.SayBegin:
		e.startStream(ev.GenSeq, StreamAnswer, ev.EventKind())
	case *wire.SayDelta:
		e.appendStream(ev.GenSeq, StreamAnswer, ev.Text, ev.EventKind())
	case *wire.SayEnd:
		e.finishStream(ev.GenSeq, StreamAnswer)
	case *wire.CallBegin:
		e.beginCall(ev)
	case *wire.CallDelta:
		e.appendCallStream(ev)
	case *wire.CallResult:
		e.settleCall(ev)
	case *wire.SearchBegin:
		e.startSearch(ev)
	case *wire.SearchDelta:
		e.appendSearch(ev)
	case *wire.SearchEnd:
		e.finishSearch(ev)
	case *wire.UserTurn:
		e.handleUserTurn(ev)
	case *wire.Anchor:
		e.handleAnchor(ev)
	case *wire.RunState:
		e.runState = ev.State
		e.sink.SetRunState(ev.State)
	case *wire.StreamError:
		e.handleStreamError(ev)
	}
}

// salvageable reports whether an event that failed validation can still be
// processed with best-effort defaults. Only a call begin with an unknown
// flavor qualifies: the call is real, the label is not, so it proceeds as
// a plain tool call.
func salvageable(ev wire.Event, ferr *wire.FieldError) bool {
	cb, ok := ev.(*wire.CallBegin)
	if !ok || ferr.Field != "call_name" {
		return false
	}
	cb.CallName = wire.CallTool
	return true
}

// handleUserTurn renders an ended user turn. An assistant substream that
// arrived before this marker for the same genseq is flagged, but the turn
// is rendered in arrival order; the engine never reorders to repair a
// producer's sequencing.
func (e *Engine) handleUserTurn(ev *wire.UserTurn) {
	if _, ok := e.units[ev.GenSeq]; ok {
		e.report(Violation{
			Code:      ViolationTurnOrder,
			Message:   "assistant substream arrived before end of user turn",
			EventType: ev.EventKind(),
			GenSeq:    ev.GenSeq,
		})
	}
	e.sink.ShowUserTurn(ev.GenSeq, ev.MsgID, ev.From, ev.Content)
}

// handleStreamError surfaces a stream-level error as a notice tied to the
// referenced generation when it exists, global otherwise.
func (e *Engine) handleStreamError(ev *wire.StreamError) {
	target := 0
	if _, ok := e.units[ev.GenSeq]; ok {
		target = ev.GenSeq
	}
	e.sink.ShowNotice(target, ev.Message)
}
