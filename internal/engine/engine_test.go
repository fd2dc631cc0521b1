package engine

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// recordSink records every intent the engine emits.
type recordSink struct {
	NopSink
	ensured   []int
	discarded []int
	appends   []appendIntent
	finished  []finishIntent
	callSites []CallSiteView
	userTurns []string
	responses []string
	anchors   []anchorIntent
	notices   []string
	runStates []string
	reminders []string
	questions []Question
}

type appendIntent struct {
	seq    int
	stream StreamKind
	id     string
	text   string
}

type finishIntent struct {
	seq    int
	stream StreamKind
	id     string
}

type anchorIntent struct {
	seq  int
	role wire.AnchorRole
	refs AnchorRefs
}

func (r *recordSink) EnsureGeneration(seq int)  { r.ensured = append(r.ensured, seq) }
func (r *recordSink) DiscardGeneration(seq int) { r.discarded = append(r.discarded, seq) }
func (r *recordSink) AppendSubstream(seq int, stream StreamKind, id, text string) {
	r.appends = append(r.appends, appendIntent{seq, stream, id, text})
}
func (r *recordSink) FinishSubstream(seq int, stream StreamKind, id string) {
	r.finished = append(r.finished, finishIntent{seq, stream, id})
}
func (r *recordSink) UpdateCallSite(site CallSiteView) { r.callSites = append(r.callSites, site) }
func (r *recordSink) ShowUserTurn(seq int, msgID, from, content string) {
	r.userTurns = append(r.userTurns, content)
}
func (r *recordSink) ShowCallResponse(callID, from, content string) {
	r.responses = append(r.responses, content)
}
func (r *recordSink) ApplyAnchor(seq int, role wire.AnchorRole, refs AnchorRefs) {
	r.anchors = append(r.anchors, anchorIntent{seq, role, refs})
}
func (r *recordSink) ShowNotice(seq int, text string) { r.notices = append(r.notices, text) }
func (r *recordSink) SetRunState(state string)        { r.runStates = append(r.runStates, state) }
func (r *recordSink) SetReminder(text string)         { r.reminders = append(r.reminders, text) }
func (r *recordSink) PushQuestion(q Question)         { r.questions = append(r.questions, q) }

func scoped(course, seq int) wire.Scoped {
	return wire.Scoped{Course: course, GenSeq: seq}
}

// newTestEngine returns an engine navigated into a dialog at course 1,
// with a recording sink and violation capture.
func newTestEngine(t *testing.T) (*Engine, *recordSink, *[]Violation) {
	t.Helper()
	sink := &recordSink{}
	var violations []Violation
	e := New(
		WithLogger(slog.Default()),
		WithSink(sink),
		WithObserver(func(v Violation) { violations = append(violations, v) }),
		withClock(func() time.Time { return time.UnixMilli(1_000_000) }),
	)
	if err := e.SetDialog(DialogContext{RootID: "root", SelfID: "alice"}); err != nil {
		t.Fatalf("SetDialog() error = %v", err)
	}
	e.SetCurrentCourse(1)
	return e, sink, &violations
}

func TestSingleActiveUnit(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.Handle(&wire.GenBegin{Scoped: scoped(1, 1)})
	e.Handle(&wire.GenBegin{Scoped: scoped(1, 2)})

	if got := e.units[1].State; got != Completed {
		t.Errorf("unit 1 state = %v, want %v", got, Completed)
	}
	if got := e.units[2].State; got != Generating {
		t.Errorf("unit 2 state = %v, want %v", got, Generating)
	}
	if e.activeSeq != 2 {
		t.Errorf("activeSeq = %d, want 2", e.activeSeq)
	}
}

func TestReplayedStartFinalizesOverlappingUnit(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.Handle(&wire.GenBegin{Scoped: scoped(1, 5)})
	e.Handle(&wire.GenBegin{Scoped: scoped(1, 6)})
	// gen.begin for 5 re-arrives while 6 is generating.
	e.Handle(&wire.GenBegin{Scoped: scoped(1, 5)})

	generating := 0
	for _, u := range e.units {
		if u.State == Generating {
			generating++
		}
	}
	if generating != 1 {
		t.Fatalf("Generating units = %d (unit5=%v unit6=%v), want exactly 1",
			generating, e.units[5].State, e.units[6].State)
	}
	if got := e.units[6].State; got != Completed {
		t.Errorf("unit 6 state = %v, want %v", got, Completed)
	}
	if got := e.units[5].State; got != Generating {
		t.Errorf("re-armed unit 5 state = %v, want %v", got, Generating)
	}
	if e.activeSeq != 5 {
		t.Errorf("activeSeq = %d, want 5", e.activeSeq)
	}
}

func TestChunkOrdering(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.Handle(&wire.GenBegin{Scoped: scoped(1, 5)})
	e.Handle(&wire.SayBegin{Scoped: scoped(1, 5)})
	e.Handle(&wire.SayDelta{Scoped: scoped(1, 5), Text: "Hello"})
	e.Handle(&wire.SayDelta{Scoped: scoped(1, 5), Text: " world"})
	e.Handle(&wire.SayEnd{Scoped: scoped(1, 5)})
	e.Handle(&wire.GenEnd{Scoped: scoped(1, 5)})

	u := e.units[5]
	if got := u.answer.buf.String(); got != "Hello world" {
		t.Errorf("answer text = %q, want %q", got, "Hello world")
	}
	if u.State != Completed {
		t.Errorf("unit state = %v, want %v", u.State, Completed)
	}
	if u.answer.state != streamFinished {
		t.Errorf("answer state = %v, want finished", u.answer.state)
	}
}

func TestCourseIsolation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.SetCurrentCourse(2)
	e.Handle(&wire.GenBegin{Scoped: scoped(2, 1)})

	before := e.Snapshot()
	e.Handle(&wire.SayDelta{Scoped: scoped(1, 9), Text: "ignored"})
	e.Handle(&wire.GenBegin{Scoped: scoped(1, 9)})
	e.Handle(&wire.GenAbort{Scoped: scoped(1, 1)})
	after := e.Snapshot()

	if !reflect.DeepEqual(before, after) {
		t.Errorf("stale-course events mutated state:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestDiscardPurgesCallSites(t *testing.T) {
	e, _, violations := newTestEngine(t)

	e.Handle(&wire.CallBegin{Scoped: scoped(1, 7), CallID: "c1", CallName: wire.CallTool})
	e.Handle(&wire.GenAbort{Scoped: scoped(1, 7)})

	e.Handle(&wire.CallResult{CallID: "c1", Status: wire.CallCompleted, EndedAtMs: 42})

	if len(*violations) == 0 {
		t.Fatal("settle after purge raised no violation")
	}
	last := (*violations)[len(*violations)-1]
	if last.Code != ViolationSettleAfterPurge {
		t.Errorf("violation code = %q, want %q", last.Code, ViolationSettleAfterPurge)
	}
	if _, ok := e.calls["c1"]; ok {
		t.Error("call site resurrected after discard")
	}
}

func TestAnchorOrderIndependence(t *testing.T) {
	run := func(anchorFirst bool) UnitSnapshot {
		e, _, _ := newTestEngine(t)
		anchor := &wire.Anchor{
			Scoped: scoped(1, 3),
			CallID: "c9",
			Role:   wire.AnchorResponse,
			Caller: "bob",
		}
		if anchorFirst {
			e.Handle(anchor)
			e.Handle(&wire.GenBegin{Scoped: scoped(1, 3)})
		} else {
			e.Handle(&wire.GenBegin{Scoped: scoped(1, 3)})
			e.Handle(anchor)
		}
		return e.units[3].snapshot()
	}

	a := run(true)
	b := run(false)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("anchor order changed final unit:\nanchor-first %+v\nstart-first  %+v", a, b)
	}
	want := AnchorRefs{CallID: "c9", Caller: "bob"}
	if got := a.Anchors[wire.AnchorResponse]; got != want {
		t.Errorf("anchor refs = %+v, want %+v", got, want)
	}
}

func TestAnchorBeforeStartQueuesPending(t *testing.T) {
	e, sink, _ := newTestEngine(t)

	e.Handle(&wire.Anchor{Scoped: scoped(1, 4), CallID: "c2", Role: wire.AnchorAssignment, Assignment: "triage"})
	if len(sink.anchors) != 0 {
		t.Fatalf("anchor applied before unit existed")
	}
	if len(e.anchors[4]) != 1 {
		t.Fatalf("pending anchors for genseq 4 = %d, want 1", len(e.anchors[4]))
	}

	e.Handle(&wire.GenBegin{Scoped: scoped(1, 4)})
	if len(sink.anchors) != 1 {
		t.Fatalf("pending anchor not drained on unit creation")
	}
	if len(e.anchors) != 0 {
		t.Errorf("pending anchor not deleted after apply")
	}
}

func TestIdempotentSettle(t *testing.T) {
	e, _, violations := newTestEngine(t)

	e.Handle(&wire.CallBegin{Scoped: scoped(1, 2), CallID: "c3", CallName: wire.CallTeammate})
	settle := &wire.CallResult{CallID: "c3", Status: wire.CallCompleted, EndedAtMs: 777}
	e.Handle(settle)
	e.Handle(settle)

	if len(*violations) != 0 {
		t.Errorf("idempotent settle raised violations: %+v", *violations)
	}
	site := e.calls["c3"]
	if site.Status != wire.CallCompleted {
		t.Errorf("status = %q, want completed", site.Status)
	}
	if site.EndedAtMs != 777 {
		t.Errorf("ended at = %d, want 777", site.EndedAtMs)
	}
}

func TestCallBeginAutoCreatesUnit(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.Handle(&wire.CallBegin{Scoped: scoped(1, 7), CallID: "c1", CallName: wire.CallTool})

	u, ok := e.units[7]
	if !ok {
		t.Fatal("unit 7 not auto-created")
	}
	if u.State != Generating {
		t.Errorf("unit 7 state = %v, want %v", u.State, Generating)
	}
	site := e.calls["c1"]
	if site == nil || site.Status != wire.CallPending {
		t.Errorf("call site = %+v, want pending", site)
	}
	if site.StartedAtMs != 1_000_000 {
		t.Errorf("started at = %d, want receipt-time default", site.StartedAtMs)
	}
}

func TestStaleCourseChunkAppendsNothing(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	e.SetCurrentCourse(3)

	e.Handle(&wire.SayDelta{Scoped: scoped(2, 9), Text: "ignored"})

	if len(sink.appends) != 0 {
		t.Errorf("stale-course chunk reached the sink: %+v", sink.appends)
	}
	if len(e.units) != 0 {
		t.Errorf("stale-course chunk created a unit")
	}
}

func TestOrphanChunkSynthesizesStart(t *testing.T) {
	e, sink, _ := newTestEngine(t)

	e.Handle(&wire.ThinkingDelta{Scoped: scoped(1, 6), Text: "hmm"})

	u, ok := e.units[6]
	if !ok {
		t.Fatal("unit 6 not auto-created for orphan chunk")
	}
	if u.reasoning.state != streamActive {
		t.Errorf("reasoning state = %v, want active", u.reasoning.state)
	}
	if got := u.reasoning.buf.String(); got != "hmm" {
		t.Errorf("reasoning text = %q, want %q", got, "hmm")
	}
	if len(sink.appends) != 1 || sink.appends[0].stream != StreamReasoning {
		t.Errorf("appends = %+v, want one reasoning append", sink.appends)
	}
}

func TestDuplicateStartReportedAndIgnored(t *testing.T) {
	e, _, violations := newTestEngine(t)

	e.Handle(&wire.SayBegin{Scoped: scoped(1, 1)})
	e.Handle(&wire.SayDelta{Scoped: scoped(1, 1), Text: "keep"})
	e.Handle(&wire.SayBegin{Scoped: scoped(1, 1)})

	if len(*violations) != 1 || (*violations)[0].Code != ViolationDuplicateStart {
		t.Fatalf("violations = %+v, want one duplicate_start", *violations)
	}
	if got := e.units[1].answer.buf.String(); got != "keep" {
		t.Errorf("duplicate start reset buffer: %q", got)
	}
	if e.units[1].answer.state != streamActive {
		t.Errorf("duplicate start changed stream state")
	}
}

func TestFinishMismatchProceeds(t *testing.T) {
	e, _, violations := newTestEngine(t)

	e.Handle(&wire.GenBegin{Scoped: scoped(1, 5)})
	e.Handle(&wire.GenEnd{Scoped: scoped(1, 6), Model: "sable-9"})

	if got := e.units[5].State; got != Completed {
		t.Errorf("active unit not finished on mismatched genseq: %v", got)
	}
	if e.activeSeq != noSeq {
		t.Errorf("activeSeq = %d, want cleared", e.activeSeq)
	}
	if got := e.units[5].Model; got != "sable-9" {
		t.Errorf("model label = %q, want %q", got, "sable-9")
	}
	// Mismatch logs; it is deliberately not a violation.
	if len(*violations) != 0 {
		t.Errorf("finish mismatch raised violations: %+v", *violations)
	}
}

func TestOrphanFinishClearsBookkeeping(t *testing.T) {
	e, _, violations := newTestEngine(t)

	e.Handle(&wire.GenEnd{Scoped: scoped(1, 9)})

	if len(e.units) != 0 {
		t.Errorf("orphan finish created a unit")
	}
	if len(*violations) != 0 {
		t.Errorf("orphan finish raised violations: %+v", *violations)
	}
}

func TestCallDeltaFallsBackToOpenCall(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.Handle(&wire.CallBegin{Scoped: scoped(1, 2), CallID: "c1", CallName: wire.CallTool})
	e.Handle(&wire.CallBegin{Scoped: scoped(1, 2), CallID: "c2", CallName: wire.CallTool})
	e.Handle(&wire.CallDelta{Scoped: scoped(1, 2), Text: `{"arg":1}`})

	u := e.units[2]
	if got := u.toolCalls["c2"].buf.String(); got != `{"arg":1}` {
		t.Errorf("chunk went to %q, want most recent open call c2", got)
	}
	if got := u.toolCalls["c1"].buf.String(); got != "" {
		t.Errorf("chunk leaked into c1: %q", got)
	}
}

func TestCallResultContentDecoupledFromSettlement(t *testing.T) {
	e, sink, violations := newTestEngine(t)

	// No call site exists: settlement fails, content still surfaces.
	e.Handle(&wire.CallResult{CallID: "ghost", Status: wire.CallFailed, Content: "it broke", From: "bob"})

	if len(*violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(*violations))
	}
	if len(sink.responses) != 1 || sink.responses[0] != "it broke" {
		t.Errorf("responses = %+v, want the content entry", sink.responses)
	}
}

func TestUserTurnAfterAssistantStreamFlagged(t *testing.T) {
	e, sink, violations := newTestEngine(t)

	e.Handle(&wire.SayDelta{Scoped: scoped(1, 3), Text: "early"})
	e.Handle(&wire.UserTurn{Scoped: scoped(1, 3), MsgID: "m1", Content: "question?"})

	found := false
	for _, v := range *violations {
		if v.Code == ViolationTurnOrder {
			found = true
		}
	}
	if !found {
		t.Error("turn-order breach not reported")
	}
	// Rendered in arrival order regardless.
	if len(sink.userTurns) != 1 || sink.userTurns[0] != "question?" {
		t.Errorf("user turn not rendered: %+v", sink.userTurns)
	}
}

func TestSettleFinishesOpenToolStream(t *testing.T) {
	e, sink, _ := newTestEngine(t)

	e.Handle(&wire.CallBegin{Scoped: scoped(1, 2), CallID: "c1", CallName: wire.CallAgent})
	e.Handle(&wire.CallResult{CallID: "c1", Status: wire.CallCompleted, EndedAtMs: 5})

	if got := e.units[2].toolCalls["c1"].state; got != streamFinished {
		t.Errorf("tool stream state = %v, want finished", got)
	}
	found := false
	for _, f := range sink.finished {
		if f.stream == StreamToolCall && f.id == "c1" {
			found = true
		}
	}
	if !found {
		t.Errorf("no FinishSubstream intent for c1: %+v", sink.finished)
	}
}

func TestMalformedEventReported(t *testing.T) {
	e, sink, violations := newTestEngine(t)

	e.Handle(&wire.UserTurn{Scoped: scoped(1, 1), MsgID: "", Content: "hi"})

	if len(*violations) != 1 || (*violations)[0].Code != ViolationMalformedEvent {
		t.Fatalf("violations = %+v, want one malformed_event", *violations)
	}
	if len(sink.userTurns) != 0 {
		t.Errorf("malformed user turn rendered anyway")
	}
	if len(sink.notices) != 1 {
		t.Errorf("no notice surfaced for violation")
	}
}

func TestUnknownCallNameSalvagedAsTool(t *testing.T) {
	e, _, violations := newTestEngine(t)

	e.Handle(&wire.CallBegin{Scoped: scoped(1, 1), CallID: "c1", CallName: "summon_demon"})

	if len(*violations) != 1 || (*violations)[0].Code != ViolationUnknownCall {
		t.Fatalf("violations = %+v, want one unknown_call", *violations)
	}
	site := e.calls["c1"]
	if site == nil {
		t.Fatal("salvageable call begin dropped entirely")
	}
	if site.Name != wire.CallTool {
		t.Errorf("call name = %q, want defaulted %q", site.Name, wire.CallTool)
	}
}

func TestWebSearchLifecycle(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.Handle(&wire.SearchBegin{Scoped: scoped(1, 1), ItemID: "s1", Query: "weather "})
	e.Handle(&wire.SearchDelta{Scoped: scoped(1, 1), Text: "in lisbon"})
	e.Handle(&wire.SearchEnd{Scoped: scoped(1, 1), ItemID: "s1"})

	s := e.units[1].searches["s1"]
	if got := s.buf.String(); got != "weather in lisbon" {
		t.Errorf("search text = %q, want %q", got, "weather in lisbon")
	}
	if s.state != streamFinished {
		t.Errorf("search state = %v, want finished", s.state)
	}
}

func TestOverlapFinalizeClosesOpenStreams(t *testing.T) {
	e, sink, _ := newTestEngine(t)

	e.Handle(&wire.GenBegin{Scoped: scoped(1, 1)})
	e.Handle(&wire.SayBegin{Scoped: scoped(1, 1)})
	e.Handle(&wire.GenBegin{Scoped: scoped(1, 2)})

	if got := e.units[1].answer.state; got != streamFinished {
		t.Errorf("overlapped unit's answer stream = %v, want finished", got)
	}
	found := false
	for _, f := range sink.finished {
		if f.seq == 1 && f.stream == StreamAnswer {
			found = true
		}
	}
	if !found {
		t.Errorf("no finish intent for force-finalized stream: %+v", sink.finished)
	}
}

func TestChunkAfterFinishDropped(t *testing.T) {
	e, _, violations := newTestEngine(t)

	e.Handle(&wire.SayBegin{Scoped: scoped(1, 1)})
	e.Handle(&wire.SayDelta{Scoped: scoped(1, 1), Text: "done"})
	e.Handle(&wire.SayEnd{Scoped: scoped(1, 1)})
	e.Handle(&wire.SayDelta{Scoped: scoped(1, 1), Text: " extra"})

	if got := e.units[1].answer.buf.String(); got != "done" {
		t.Errorf("answer text = %q, want %q", got, "done")
	}
	if len(*violations) != 1 || (*violations)[0].Code != ViolationChunkAfterFinish {
		t.Errorf("violations = %+v, want one chunk_after_finish", *violations)
	}
}

func TestStreamErrorNoticeTargeting(t *testing.T) {
	e, sink, _ := newTestEngine(t)

	e.Handle(&wire.StreamError{Message: "upstream hiccup"})
	e.Handle(&wire.GenBegin{Scoped: scoped(1, 2)})
	e.Handle(&wire.StreamError{Message: "mid-generation stall", GenSeq: 2})

	if len(sink.notices) != 2 {
		t.Fatalf("notices = %d, want 2", len(sink.notices))
	}
}
