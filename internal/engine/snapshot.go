package engine

import (
	"sort"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// Snapshot is a deep, read-only projection of the full engine state. It is
// what the debug surface serves and what course-isolation tests compare;
// two snapshots being equal means no observable state changed.
type Snapshot struct {
	Dialog    *DialogContext  `json:"dialog,omitempty"`
	Previous  *DialogContext  `json:"previous,omitempty"`
	Course    int             `json:"course"`
	ActiveSeq int             `json:"active_genseq"`
	RunState  string          `json:"run_state,omitempty"`
	Reminder  string          `json:"reminder,omitempty"`
	Units     []UnitSnapshot  `json:"units"`
	CallSites []CallSiteView  `json:"call_sites"`
	Pending   []PendingAnchor `json:"pending_anchors"`
	Questions []Question      `json:"questions"`
}

// UnitSnapshot projects one generation unit.
type UnitSnapshot struct {
	Seq       int                            `json:"genseq"`
	State     string                         `json:"state"`
	Finalized bool                           `json:"finalized"`
	Model     string                         `json:"model,omitempty"`
	Reasoning StreamSnapshot                 `json:"reasoning"`
	Answer    StreamSnapshot                 `json:"answer"`
	ToolCalls []StreamSnapshot               `json:"tool_calls,omitempty"`
	Searches  []StreamSnapshot               `json:"web_searches,omitempty"`
	Anchors   map[wire.AnchorRole]AnchorRefs `json:"anchors,omitempty"`
}

// StreamSnapshot projects one substream's accumulated state.
type StreamSnapshot struct {
	ID    string `json:"id,omitempty"`
	State string `json:"state"`
	Text  string `json:"text"`
}

func streamStateName(s streamState) string {
	switch s {
	case streamActive:
		return "active"
	case streamFinished:
		return "finished"
	default:
		return "not_started"
	}
}

// Snapshot captures the engine's full observable state.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Course:    e.course,
		ActiveSeq: e.activeSeq,
		RunState:  e.runState,
		Reminder:  e.reminder,
		Units:     make([]UnitSnapshot, 0, len(e.units)),
		CallSites: make([]CallSiteView, 0, len(e.calls)),
		Pending:   make([]PendingAnchor, 0),
		Questions: append([]Question(nil), e.questions...),
	}
	if e.dialog != nil {
		d := *e.dialog
		snap.Dialog = &d
	}
	if e.prev != nil {
		p := *e.prev
		snap.Previous = &p
	}

	seqs := make([]int, 0, len(e.units))
	for seq := range e.units {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for _, seq := range seqs {
		snap.Units = append(snap.Units, e.units[seq].snapshot())
	}

	callIDs := make([]string, 0, len(e.calls))
	for id := range e.calls {
		callIDs = append(callIDs, id)
	}
	sort.Strings(callIDs)
	for _, id := range callIDs {
		snap.CallSites = append(snap.CallSites, e.calls[id].view())
	}

	pendingSeqs := make([]int, 0, len(e.anchors))
	for seq := range e.anchors {
		pendingSeqs = append(pendingSeqs, seq)
	}
	sort.Ints(pendingSeqs)
	for _, seq := range pendingSeqs {
		snap.Pending = append(snap.Pending, e.anchors[seq]...)
	}

	return snap
}

func (u *GenerationUnit) snapshot() UnitSnapshot {
	us := UnitSnapshot{
		Seq:       u.Seq,
		State:     u.State.String(),
		Finalized: u.Finalized,
		Model:     u.Model,
		Reasoning: StreamSnapshot{State: streamStateName(u.reasoning.state), Text: u.reasoning.buf.String()},
		Answer:    StreamSnapshot{State: streamStateName(u.answer.state), Text: u.answer.buf.String()},
	}
	for _, id := range u.toolOrder {
		if s := u.toolCalls[id]; s != nil {
			us.ToolCalls = append(us.ToolCalls, StreamSnapshot{ID: id, State: streamStateName(s.state), Text: s.buf.String()})
		}
	}
	for _, id := range u.searchOrder {
		if s := u.searches[id]; s != nil {
			us.Searches = append(us.Searches, StreamSnapshot{ID: id, State: streamStateName(s.state), Text: s.buf.String()})
		}
	}
	if len(u.anchors) > 0 {
		us.Anchors = make(map[wire.AnchorRole]AnchorRefs, len(u.anchors))
		for role, refs := range u.anchors {
			us.Anchors[role] = refs
		}
	}
	return us
}
