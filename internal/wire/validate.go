package wire

import "fmt"

// FieldError describes a frame that failed per-kind validation. It names
// the offending field and, when useful, what was expected versus received.
type FieldError struct {
	EventType Kind
	Field     string
	Expected  string
	Actual    string
}

func (e *FieldError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: field %q: expected %s, got %q", e.EventType, e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: missing required field %q", e.EventType, e.Field)
}

func missing(kind Kind, field string) *FieldError {
	return &FieldError{EventType: kind, Field: field}
}

// Validate checks the per-kind required fields of a typed event. A nil
// return means the event is well formed. A non-nil return is a protocol
// violation to be reported; callers may still process the event with
// best-effort defaults where that is safe.
func Validate(ev Event) *FieldError {
	switch ev := ev.(type) {
	case *GenBegin:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *GenEnd:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *GenAbort:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *ThinkingBegin:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *ThinkingDelta:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *ThinkingEnd:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *SayBegin:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *SayDelta:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *SayEnd:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *CallBegin:
		if err := requireSeq(ev.EventKind(), ev.Scoped); err != nil {
			return err
		}
		if ev.CallID == "" {
			return missing(ev.EventKind(), "call_id")
		}
		if !KnownCallName(ev.CallName) {
			return &FieldError{
				EventType: ev.EventKind(),
				Field:     "call_name",
				Expected:  "one of the known call names",
				Actual:    string(ev.CallName),
			}
		}
		return nil
	case *CallDelta:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *CallResult:
		if ev.CallID == "" {
			return missing(ev.EventKind(), "call_id")
		}
		if ev.Status != CallCompleted && ev.Status != CallFailed {
			return &FieldError{
				EventType: ev.EventKind(),
				Field:     "status",
				Expected:  "completed or failed",
				Actual:    string(ev.Status),
			}
		}
		return nil
	case *SearchBegin:
		if err := requireSeq(ev.EventKind(), ev.Scoped); err != nil {
			return err
		}
		if ev.ItemID == "" {
			return missing(ev.EventKind(), "item_id")
		}
		return nil
	case *SearchDelta:
		return requireSeq(ev.EventKind(), ev.Scoped)
	case *SearchEnd:
		if err := requireSeq(ev.EventKind(), ev.Scoped); err != nil {
			return err
		}
		if ev.ItemID == "" {
			return missing(ev.EventKind(), "item_id")
		}
		return nil
	case *UserTurn:
		if err := requireSeq(ev.EventKind(), ev.Scoped); err != nil {
			return err
		}
		if ev.MsgID == "" {
			return missing(ev.EventKind(), "msg_id")
		}
		if ev.Content == "" {
			return missing(ev.EventKind(), "content")
		}
		return nil
	case *Anchor:
		if err := requireSeq(ev.EventKind(), ev.Scoped); err != nil {
			return err
		}
		if ev.CallID == "" {
			return missing(ev.EventKind(), "call_id")
		}
		if ev.Role != AnchorAssignment && ev.Role != AnchorResponse {
			return &FieldError{
				EventType: ev.EventKind(),
				Field:     "role",
				Expected:  "assignment or response",
				Actual:    string(ev.Role),
			}
		}
		return nil
	case *RunState:
		if ev.State == "" {
			return missing(ev.EventKind(), "state")
		}
		return nil
	case *Reminder:
		return nil
	case *Q4H:
		if ev.QuestionID == "" {
			return missing(ev.EventKind(), "question_id")
		}
		return nil
	case *StreamError:
		if ev.Message == "" {
			return missing(ev.EventKind(), "message")
		}
		return nil
	}
	return &FieldError{EventType: ev.EventKind(), Field: "type", Expected: "a known event type", Actual: string(ev.EventKind())}
}

// requireSeq checks the course/genseq pair every generation-scoped event
// must carry. genseq is 1-based; course 0 is valid (the first course).
func requireSeq(kind Kind, s Scoped) *FieldError {
	if s.GenSeq <= 0 {
		return missing(kind, "genseq")
	}
	if s.Course < 0 {
		return &FieldError{EventType: kind, Field: "course", Expected: "a non-negative course", Actual: fmt.Sprintf("%d", s.Course)}
	}
	return nil
}
