package engine

import (
	"log/slog"
	"strings"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// GenState is the lifecycle state of a generation pass.
type GenState int

const (
	Generating GenState = iota
	Completed
	Discarded
)

func (s GenState) String() string {
	switch s {
	case Generating:
		return "generating"
	case Completed:
		return "completed"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

type streamState int

const (
	streamNotStarted streamState = iota
	streamActive
	streamFinished
)

// substream is one single-instance channel (reasoning or answer) within a
// generation pass. Chunks append only while active.
type substream struct {
	state streamState
	buf   strings.Builder
}

// callStream is one multi-instance tool-call or web-search channel, keyed
// by callId/itemId.
type callStream struct {
	id    string
	state streamState
	buf   strings.Builder
}

// GenerationUnit is one LLM generation pass, keyed by genseq within the
// current course.
type GenerationUnit struct {
	Seq       int
	State     GenState
	Finalized bool
	Model     string

	reasoning substream
	answer    substream

	toolCalls   map[string]*callStream
	toolOrder   []string
	searches    map[string]*callStream
	searchOrder []string

	// Applied anchor back-references, by role.
	anchors map[wire.AnchorRole]AnchorRefs
}

func newGenerationUnit(seq int) *GenerationUnit {
	return &GenerationUnit{
		Seq:       seq,
		State:     Generating,
		toolCalls: make(map[string]*callStream),
		searches:  make(map[string]*callStream),
		anchors:   make(map[wire.AnchorRole]AnchorRefs),
	}
}

// stream returns the single-instance substream for kind. Tool-call and
// web-search streams are instance-keyed and never routed through here.
func (u *GenerationUnit) stream(kind StreamKind) *substream {
	if kind == StreamReasoning {
		return &u.reasoning
	}
	return &u.answer
}

// lastOpen returns the most recent open instance in order, for chunk
// events that arrive without an identifier.
func lastOpen(streams map[string]*callStream, order []string) *callStream {
	for i := len(order) - 1; i >= 0; i-- {
		if s := streams[order[i]]; s != nil && s.state == streamActive {
			return s
		}
	}
	return nil
}

// ensureUnit returns the unit for seq, creating it in Generating state if
// it does not exist. Auto-creation is the recovery path for chunk and call
// events whose gen.begin was lost; a chunk must never be dropped because
// its start event was.
func (e *Engine) ensureUnit(seq int, why wire.Kind) *GenerationUnit {
	if u, ok := e.units[seq]; ok {
		return u
	}
	e.logger.Warn("auto-creating generation unit",
		slog.Int("genseq", seq),
		slog.String("trigger", string(why)))
	return e.startGeneration(seq)
}

// startGeneration arms the unit for seq as the single Generating unit,
// finalizing any other unit that is still Generating first, and drains any
// pending anchors for seq.
func (e *Engine) startGeneration(seq int) *GenerationUnit {
	// The single-Generating invariant holds on every path in, including a
	// re-arriving gen.begin for an existing unit.
	if e.activeSeq != noSeq && e.activeSeq != seq {
		if cur, ok := e.units[e.activeSeq]; ok && cur.State == Generating {
			e.logger.Debug("force-finalizing overlapping generation",
				slog.Int("old_genseq", cur.Seq),
				slog.Int("new_genseq", seq))
			e.finalizeUnit(cur, "")
		}
	}

	if u, ok := e.units[seq]; ok {
		// Out-of-order re-arrival of gen.begin: re-arm in place.
		u.State = Generating
		u.Finalized = false
		e.activeSeq = seq
		e.sink.EnsureGeneration(seq)
		e.drainAnchors(u)
		return u
	}

	u := newGenerationUnit(seq)
	e.units[seq] = u
	e.activeSeq = seq
	e.sink.EnsureGeneration(seq)
	e.drainAnchors(u)
	return u
}

// finishGeneration completes the pass for seq. Finishing must never get
// stuck behind a stale expectation: a genseq mismatch is logged and the
// finish applied to the unit the tracker actually holds.
func (e *Engine) finishGeneration(seq int, model string) {
	u, ok := e.units[seq]
	if !ok {
		if e.activeSeq != noSeq {
			if cur, curOK := e.units[e.activeSeq]; curOK && cur.State == Generating {
				e.logger.Debug("generation finish genseq mismatch, finishing active unit",
					slog.Int("finish_genseq", seq),
					slog.Int("active_genseq", cur.Seq))
				e.finalizeUnit(cur, model)
				e.activeSeq = noSeq
				e.prev = nil
				return
			}
		}
		// Orphan finish: the unit was already cleared, e.g. by navigation.
		e.logger.Debug("orphan generation finish", slog.Int("genseq", seq))
		if e.activeSeq == seq {
			e.activeSeq = noSeq
		}
		return
	}

	e.finalizeUnit(u, model)
	if e.activeSeq == seq {
		e.activeSeq = noSeq
	}
	// A completed generation invalidates the retained previous dialog.
	e.prev = nil
}

// finalizeUnit marks a unit Completed and closes its open substreams.
func (e *Engine) finalizeUnit(u *GenerationUnit, model string) {
	if u.reasoning.state == streamActive {
		u.reasoning.state = streamFinished
		e.sink.FinishSubstream(u.Seq, StreamReasoning, "")
	}
	if u.answer.state == streamActive {
		u.answer.state = streamFinished
		e.sink.FinishSubstream(u.Seq, StreamAnswer, "")
	}
	for _, id := range u.toolOrder {
		if s := u.toolCalls[id]; s != nil && s.state == streamActive {
			s.state = streamFinished
			e.sink.FinishSubstream(u.Seq, StreamToolCall, id)
		}
	}
	for _, id := range u.searchOrder {
		if s := u.searches[id]; s != nil && s.state == streamActive {
			s.state = streamFinished
			e.sink.FinishSubstream(u.Seq, StreamWebSearch, id)
		}
	}
	u.State = Completed
	u.Finalized = true
	if model != "" {
		u.Model = model
	}
}

// discardGeneration removes the unit for seq unconditionally and purges
// every call site and pending anchor keyed to it.
func (e *Engine) discardGeneration(seq int) {
	if u, ok := e.units[seq]; ok {
		u.State = Discarded
		delete(e.units, seq)
	}
	if e.activeSeq == seq {
		e.activeSeq = noSeq
	}
	for _, callID := range e.callsBySeq[seq] {
		delete(e.calls, callID)
	}
	delete(e.callsBySeq, seq)
	delete(e.anchors, seq)
	e.sink.DiscardGeneration(seq)
}
