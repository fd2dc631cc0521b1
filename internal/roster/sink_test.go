package roster

import (
	"reflect"
	"testing"

	"github.com/longrun-ai/dominds-sub008/internal/engine"
)

type captureSink struct {
	engine.NopSink
	turnFrom     string
	responseFrom string
	mentions     []string
	questionFrom string
}

func (c *captureSink) ShowUserTurn(genseq int, msgID, from, content string) { c.turnFrom = from }
func (c *captureSink) ShowCallResponse(callID, from, content string)        { c.responseFrom = from }
func (c *captureSink) UpdateCallSite(site engine.CallSiteView)              { c.mentions = site.Mentions }
func (c *captureSink) PushQuestion(q engine.Question)                       { c.questionFrom = q.From }

func TestLabelingSink(t *testing.T) {
	path := writeRoster(t, `
members:
  - id: alice
    display_name: Alice
  - id: bob
    display_name: Bob
`)
	team, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	capture := &captureSink{}
	sink := NewLabelingSink(capture, team)

	sink.ShowUserTurn(1, "m1", "alice", "hi")
	if capture.turnFrom != "Alice" {
		t.Errorf("user turn from = %q, want Alice", capture.turnFrom)
	}

	sink.ShowCallResponse("c1", "bob", "done")
	if capture.responseFrom != "Bob" {
		t.Errorf("call response from = %q, want Bob", capture.responseFrom)
	}

	sink.UpdateCallSite(engine.CallSiteView{CallID: "c1", Mentions: []string{"bob", "stranger"}})
	if want := []string{"Bob", "stranger"}; !reflect.DeepEqual(capture.mentions, want) {
		t.Errorf("mentions = %v, want %v", capture.mentions, want)
	}

	sink.PushQuestion(engine.Question{QuestionID: "q1", From: "alice", Text: "merge?"})
	if capture.questionFrom != "Alice" {
		t.Errorf("question from = %q, want Alice", capture.questionFrom)
	}
}

func TestLabelingSinkEmptyRoster(t *testing.T) {
	capture := &captureSink{}
	sink := NewLabelingSink(capture, Empty())

	sink.ShowUserTurn(1, "m1", "carol", "hi")
	if capture.turnFrom != "carol" {
		t.Errorf("user turn from = %q, want raw id fallback", capture.turnFrom)
	}

	sink.ShowCallResponse("c1", "", "anonymous")
	if capture.responseFrom != "" {
		t.Errorf("call response from = %q, want empty passthrough", capture.responseFrom)
	}
}
