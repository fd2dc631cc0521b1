package roster

import "github.com/longrun-ai/dominds-sub008/internal/engine"

// LabelingSink decorates a view sink, mapping member ids carried by
// rendering intents to roster display names. Unknown ids pass through
// unchanged, so the view degrades to raw ids when the roster is empty.
type LabelingSink struct {
	engine.ViewSink

	team *Roster
}

// NewLabelingSink wraps next with roster labeling.
func NewLabelingSink(next engine.ViewSink, team *Roster) *LabelingSink {
	return &LabelingSink{ViewSink: next, team: team}
}

// ShowUserTurn labels the turn's author.
func (s *LabelingSink) ShowUserTurn(genseq int, msgID, from, content string) {
	s.ViewSink.ShowUserTurn(genseq, msgID, s.label(from), content)
}

// ShowCallResponse labels the responding agent.
func (s *LabelingSink) ShowCallResponse(callID, from, content string) {
	s.ViewSink.ShowCallResponse(callID, s.label(from), content)
}

// UpdateCallSite labels the call site's mentioned members.
func (s *LabelingSink) UpdateCallSite(site engine.CallSiteView) {
	if len(site.Mentions) > 0 {
		labeled := make([]string, len(site.Mentions))
		for i, id := range site.Mentions {
			labeled[i] = s.label(id)
		}
		site.Mentions = labeled
	}
	s.ViewSink.UpdateCallSite(site)
}

// PushQuestion labels the asking agent.
func (s *LabelingSink) PushQuestion(q engine.Question) {
	q.From = s.label(q.From)
	s.ViewSink.PushQuestion(q)
}

func (s *LabelingSink) label(id string) string {
	if id == "" {
		return ""
	}
	return s.team.DisplayName(id)
}
