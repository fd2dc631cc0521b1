package engine

import (
	"log/slog"
	"time"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// CallSite is one outbound tool/teammate invocation, tracked independently
// of which generation unit answers it.
type CallSite struct {
	CallID       string
	GenSeq       int
	Name         wire.CallName
	Status       wire.CallStatus
	StartedAtMs  int64
	EndedAtMs    int64
	Mentions     []string
	SessionToken string
}

func (c *CallSite) view() CallSiteView {
	return CallSiteView{
		CallID:       c.CallID,
		GenSeq:       c.GenSeq,
		Name:         c.Name,
		Status:       c.Status,
		StartedAtMs:  c.StartedAtMs,
		EndedAtMs:    c.EndedAtMs,
		Mentions:     c.Mentions,
		SessionToken: c.SessionToken,
	}
}

// beginCall opens the tool-call substream instance for the call and
// indexes a pending call site by call id and by genseq.
func (e *Engine) beginCall(ev *wire.CallBegin) {
	u := e.ensureUnit(ev.GenSeq, ev.EventKind())

	if s, ok := u.toolCalls[ev.CallID]; ok {
		// The stream instance already exists (orphan-chunk recovery or a
		// duplicate begin). Re-arm it rather than resetting the buffer.
		if s.state == streamActive {
			e.report(Violation{
				Code:      ViolationDuplicateCall,
				Message:   "duplicate call begin",
				EventType: ev.EventKind(),
				GenSeq:    ev.GenSeq,
				CallID:    ev.CallID,
			})
		} else {
			s.state = streamActive
		}
	} else {
		u.toolCalls[ev.CallID] = &callStream{id: ev.CallID, state: streamActive}
		u.toolOrder = append(u.toolOrder, ev.CallID)
	}

	if _, ok := e.calls[ev.CallID]; ok {
		// Replays during navigation re-deliver call begins; keep the
		// existing site and its timing.
		e.logger.Debug("call site already indexed", slog.String("call_id", ev.CallID))
		return
	}

	site := &CallSite{
		CallID:       ev.CallID,
		GenSeq:       ev.GenSeq,
		Name:         ev.CallName,
		Status:       wire.CallPending,
		StartedAtMs:  parseEventTime(ev.TS, e.now),
		Mentions:     ev.Mentions,
		SessionToken: ev.SessionToken,
	}
	e.calls[ev.CallID] = site
	e.callsBySeq[ev.GenSeq] = append(e.callsBySeq[ev.GenSeq], ev.CallID)
	e.sink.UpdateCallSite(site.view())
}

// settleCall applies a call response. Settlement and response content are
// two independent effects: a missing call site blocks only the timing
// update, never the content.
func (e *Engine) settleCall(ev *wire.CallResult) {
	site, ok := e.calls[ev.CallID]
	if !ok {
		// Purged by a discard, or a response for a call we never saw.
		e.report(Violation{
			Code:      ViolationSettleAfterPurge,
			Message:   "call response for unknown or purged call site",
			EventType: ev.EventKind(),
			CallID:    ev.CallID,
		})
	} else {
		// Re-settling overwrites timing and status; replays during
		// navigation are expected.
		site.Status = ev.Status
		if ev.EndedAtMs > 0 {
			site.EndedAtMs = ev.EndedAtMs
		} else if site.EndedAtMs == 0 {
			site.EndedAtMs = e.now().UnixMilli()
		}
		e.sink.UpdateCallSite(site.view())

		if u, uok := e.units[site.GenSeq]; uok {
			if s := u.toolCalls[ev.CallID]; s != nil && s.state == streamActive {
				s.state = streamFinished
				e.sink.FinishSubstream(site.GenSeq, StreamToolCall, ev.CallID)
			}
		}
	}

	if ev.Content != "" {
		e.sink.ShowCallResponse(ev.CallID, ev.From, ev.Content)
	}
}

// parseEventTime parses an RFC3339 event timestamp into unix millis,
// defaulting to receipt time.
func parseEventTime(ts string, now func() time.Time) int64 {
	if ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t.UnixMilli()
		}
	}
	return now().UnixMilli()
}
