package wire

import (
	"encoding/json"
	"fmt"
)

// Decode converts a raw JSON frame into a typed event. The frame must carry
// a "type" tag naming one of the known kinds; unknown kinds are an error so
// a producer/consumer version skew surfaces immediately instead of being
// silently dropped.
func Decode(data []byte) (Event, error) {
	var tag struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode frame type: %w", err)
	}

	unmarshal := func(ev Event) (Event, error) {
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", tag.Type, err)
		}
		return ev, nil
	}

	switch tag.Type {
	case KindGenBegin:
		return unmarshal(&GenBegin{})
	case KindGenEnd:
		return unmarshal(&GenEnd{})
	case KindGenAbort:
		return unmarshal(&GenAbort{})
	case KindThinkingBegin:
		return unmarshal(&ThinkingBegin{})
	case KindThinkingDelta:
		return unmarshal(&ThinkingDelta{})
	case KindThinkingEnd:
		return unmarshal(&ThinkingEnd{})
	case KindSayBegin:
		return unmarshal(&SayBegin{})
	case KindSayDelta:
		return unmarshal(&SayDelta{})
	case KindSayEnd:
		return unmarshal(&SayEnd{})
	case KindCallBegin:
		return unmarshal(&CallBegin{})
	case KindCallDelta:
		return unmarshal(&CallDelta{})
	case KindCallResult:
		return unmarshal(&CallResult{})
	case KindSearchBegin:
		return unmarshal(&SearchBegin{})
	case KindSearchDelta:
		return unmarshal(&SearchDelta{})
	case KindSearchEnd:
		return unmarshal(&SearchEnd{})
	case KindUserTurn:
		return unmarshal(&UserTurn{})
	case KindAnchor:
		return unmarshal(&Anchor{})
	case KindRunState:
		return unmarshal(&RunState{})
	case KindReminder:
		return unmarshal(&Reminder{})
	case KindQ4H:
		return unmarshal(&Q4H{})
	case KindStreamError:
		return unmarshal(&StreamError{})
	case "":
		return nil, fmt.Errorf("frame missing type tag")
	default:
		return nil, fmt.Errorf("unknown event type: %s", tag.Type)
	}
}

// Encode marshals a typed event into a JSON frame carrying its type tag.
// Used by the journal for replay and by tests.
func Encode(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", ev.EventKind(), err)
	}

	// Splice the type tag into the payload object.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", ev.EventKind(), err)
	}
	fields["type"] = json.RawMessage(fmt.Sprintf("%q", ev.EventKind()))
	return json.Marshal(fields)
}
