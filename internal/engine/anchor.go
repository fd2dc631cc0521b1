package engine

import (
	"log/slog"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// PendingAnchor is a cross-reference that arrived before its target
// generation unit existed. It is consumed the moment a unit for its genseq
// is created, by any path.
type PendingAnchor struct {
	GenSeq int
	Role   wire.AnchorRole
	Refs   AnchorRefs
}

// handleAnchor applies an anchor to its generation bubble, or queues it
// until the unit exists. Re-applying identical refs is observably a no-op.
func (e *Engine) handleAnchor(ev *wire.Anchor) {
	refs := AnchorRefs{
		CallID:     ev.CallID,
		Assignment: ev.Assignment,
		Caller:     ev.Caller,
	}

	u, ok := e.units[ev.GenSeq]
	if !ok {
		e.logger.Debug("queueing anchor for absent generation",
			slog.Int("genseq", ev.GenSeq),
			slog.String("call_id", ev.CallID),
			slog.String("role", string(ev.Role)))
		e.anchors[ev.GenSeq] = append(e.anchors[ev.GenSeq], PendingAnchor{
			GenSeq: ev.GenSeq,
			Role:   ev.Role,
			Refs:   refs,
		})
		return
	}
	e.applyAnchor(u, ev.Role, refs)
}

// applyAnchor attaches refs to a unit idempotently.
func (e *Engine) applyAnchor(u *GenerationUnit, role wire.AnchorRole, refs AnchorRefs) {
	if cur, ok := u.anchors[role]; ok && cur == refs {
		return
	}
	u.anchors[role] = refs
	e.sink.ApplyAnchor(u.Seq, role, refs)
}

// drainAnchors applies and deletes every pending anchor queued for the
// unit's genseq. Called from every unit-creation path.
func (e *Engine) drainAnchors(u *GenerationUnit) {
	queued, ok := e.anchors[u.Seq]
	if !ok {
		return
	}
	delete(e.anchors, u.Seq)
	for _, p := range queued {
		e.applyAnchor(u, p.Role, p.Refs)
	}
}
