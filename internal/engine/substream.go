package engine

import (
	"log/slog"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// startStream opens a single-instance substream. A second start while the
// stream is already active (or after it finished) is reported and ignored;
// the accumulated text is never reset by a duplicate start.
func (e *Engine) startStream(seq int, kind StreamKind, evKind wire.Kind) {
	u := e.ensureUnit(seq, evKind)
	s := u.stream(kind)
	switch s.state {
	case streamActive:
		e.report(Violation{
			Code:      ViolationDuplicateStart,
			Message:   "duplicate " + string(kind) + " start",
			EventType: evKind,
			GenSeq:    seq,
		})
	case streamFinished:
		e.report(Violation{
			Code:      ViolationStartAfterFinish,
			Message:   string(kind) + " start after finish",
			EventType: evKind,
			GenSeq:    seq,
		})
	default:
		s.state = streamActive
	}
}

// appendStream appends chunk text to a single-instance substream. A chunk
// before the start event synthesizes the start (the stream producer's
// ordering is not trusted for start/chunk pairs); a chunk after finish is
// reported and dropped.
func (e *Engine) appendStream(seq int, kind StreamKind, text string, evKind wire.Kind) {
	u := e.ensureUnit(seq, evKind)
	s := u.stream(kind)
	switch s.state {
	case streamNotStarted:
		e.logger.Warn("synthesizing substream start for orphan chunk",
			slog.Int("genseq", seq),
			slog.String("stream", string(kind)))
		s.state = streamActive
	case streamFinished:
		e.report(Violation{
			Code:      ViolationChunkAfterFinish,
			Message:   string(kind) + " chunk after finish",
			EventType: evKind,
			GenSeq:    seq,
		})
		return
	}
	s.buf.WriteString(text)
	e.sink.AppendSubstream(seq, kind, "", text)
}

// finishStream closes a single-instance substream. Finishing a stream that
// never became active is an expected consequence of lossy delivery and is
// only logged.
func (e *Engine) finishStream(seq int, kind StreamKind) {
	u, ok := e.units[seq]
	if !ok {
		e.logger.Debug("orphan substream finish",
			slog.Int("genseq", seq),
			slog.String("stream", string(kind)))
		return
	}
	s := u.stream(kind)
	if s.state != streamActive {
		e.logger.Debug("substream finish while not active",
			slog.Int("genseq", seq),
			slog.String("stream", string(kind)),
			slog.Int("state", int(s.state)))
		return
	}
	s.state = streamFinished
	e.sink.FinishSubstream(seq, kind, "")
}

// appendCallStream appends argument text to a tool-call instance. Lookup
// is by call id first, then by the most recent open instance for the
// genseq; follow-up chunks do not always carry the identifier.
func (e *Engine) appendCallStream(ev *wire.CallDelta) {
	u := e.ensureUnit(ev.GenSeq, ev.EventKind())

	var s *callStream
	if ev.CallID != "" {
		s = u.toolCalls[ev.CallID]
		if s == nil {
			e.logger.Warn("auto-creating tool-call stream for orphan chunk",
				slog.Int("genseq", ev.GenSeq),
				slog.String("call_id", ev.CallID))
			s = &callStream{id: ev.CallID, state: streamActive}
			u.toolCalls[ev.CallID] = s
			u.toolOrder = append(u.toolOrder, ev.CallID)
		}
	} else {
		s = lastOpen(u.toolCalls, u.toolOrder)
		if s == nil {
			e.report(Violation{
				Code:      ViolationUnidentifiedChunk,
				Message:   "tool-call chunk with no call id and no open call",
				EventType: ev.EventKind(),
				GenSeq:    ev.GenSeq,
			})
			return
		}
	}

	if s.state != streamActive {
		e.report(Violation{
			Code:      ViolationChunkAfterFinish,
			Message:   "tool-call chunk after finish",
			EventType: ev.EventKind(),
			GenSeq:    ev.GenSeq,
			CallID:    s.id,
		})
		return
	}
	s.buf.WriteString(ev.Text)
	e.sink.AppendSubstream(ev.GenSeq, StreamToolCall, s.id, ev.Text)
}

// startSearch opens a web-search instance keyed by item id.
func (e *Engine) startSearch(ev *wire.SearchBegin) {
	u := e.ensureUnit(ev.GenSeq, ev.EventKind())
	if s, ok := u.searches[ev.ItemID]; ok {
		if s.state == streamActive {
			e.report(Violation{
				Code:      ViolationDuplicateStart,
				Message:   "duplicate web-search start",
				EventType: ev.EventKind(),
				GenSeq:    ev.GenSeq,
				CallID:    ev.ItemID,
			})
		}
		return
	}
	s := &callStream{id: ev.ItemID, state: streamActive}
	u.searches[ev.ItemID] = s
	u.searchOrder = append(u.searchOrder, ev.ItemID)
	if ev.Query != "" {
		s.buf.WriteString(ev.Query)
		e.sink.AppendSubstream(ev.GenSeq, StreamWebSearch, ev.ItemID, ev.Query)
	}
}

// appendSearch appends progress text to a web-search instance, falling
// back to the most recent open instance when the item id is absent.
func (e *Engine) appendSearch(ev *wire.SearchDelta) {
	u := e.ensureUnit(ev.GenSeq, ev.EventKind())

	var s *callStream
	if ev.ItemID != "" {
		s = u.searches[ev.ItemID]
		if s == nil {
			e.logger.Warn("auto-creating web-search stream for orphan chunk",
				slog.Int("genseq", ev.GenSeq),
				slog.String("item_id", ev.ItemID))
			s = &callStream{id: ev.ItemID, state: streamActive}
			u.searches[ev.ItemID] = s
			u.searchOrder = append(u.searchOrder, ev.ItemID)
		}
	} else {
		s = lastOpen(u.searches, u.searchOrder)
		if s == nil {
			e.report(Violation{
				Code:      ViolationUnidentifiedChunk,
				Message:   "web-search chunk with no item id and no open search",
				EventType: ev.EventKind(),
				GenSeq:    ev.GenSeq,
			})
			return
		}
	}

	if s.state != streamActive {
		e.report(Violation{
			Code:      ViolationChunkAfterFinish,
			Message:   "web-search chunk after finish",
			EventType: ev.EventKind(),
			GenSeq:    ev.GenSeq,
			CallID:    s.id,
		})
		return
	}
	s.buf.WriteString(ev.Text)
	e.sink.AppendSubstream(ev.GenSeq, StreamWebSearch, s.id, ev.Text)
}

// finishSearch closes a web-search instance.
func (e *Engine) finishSearch(ev *wire.SearchEnd) {
	u, ok := e.units[ev.GenSeq]
	if !ok {
		e.logger.Debug("orphan web-search finish",
			slog.Int("genseq", ev.GenSeq),
			slog.String("item_id", ev.ItemID))
		return
	}
	s := u.searches[ev.ItemID]
	if s == nil || s.state != streamActive {
		e.logger.Debug("web-search finish while not active",
			slog.Int("genseq", ev.GenSeq),
			slog.String("item_id", ev.ItemID))
		return
	}
	s.state = streamFinished
	e.sink.FinishSubstream(ev.GenSeq, StreamWebSearch, ev.ItemID)
}
