package engine

import (
	"fmt"
	"log/slog"
)

// DialogContext identifies the conversation being viewed. RootID and
// SelfID are required; navigation into a context missing either is
// rejected and the engine keeps its prior state.
type DialogContext struct {
	RootID            string
	SelfID            string
	AgentID           string
	Status            string
	SupdialogID       string
	AssignmentFromSup string
}

func (d DialogContext) validate() error {
	if d.RootID == "" {
		return fmt.Errorf("dialog context missing root id")
	}
	if d.SelfID == "" {
		return fmt.Errorf("dialog context missing self id")
	}
	return nil
}

type navPhase int

const (
	navIdle navPhase = iota
	navActive
	navSwitching
)

// SetDialog navigates into a dialog context. The outgoing context is
// retained as "previous" to tolerate a short tail of in-flight events for
// the same identity; it is invalidated by the next generation finish or by
// ClearDialog, never by a timer. All volatile reconciliation state is
// purged.
func (e *Engine) SetDialog(ctx DialogContext) error {
	if err := ctx.validate(); err != nil {
		return fmt.Errorf("set dialog: %w", err)
	}

	e.nav = navSwitching
	if e.dialog != nil {
		snapshot := *e.dialog
		e.prev = &snapshot
	}
	e.dialog = &ctx
	e.resetVolatile()
	e.nav = navActive

	e.logger.Info("dialog switched",
		slog.String("root_id", ctx.RootID),
		slog.String("self_id", ctx.SelfID))
	return nil
}

// ClearDialog navigates out of the current dialog and drops both the
// current and the retained previous context.
func (e *Engine) ClearDialog() {
	e.dialog = nil
	e.prev = nil
	e.resetVolatile()
	e.nav = navIdle
	e.logger.Info("dialog cleared")
}

// Dialog returns the current dialog context, or false when idle.
func (e *Engine) Dialog() (DialogContext, bool) {
	if e.dialog == nil {
		return DialogContext{}, false
	}
	return *e.dialog, true
}

// SetCurrentCourse switches the course gate to n, purging volatile state.
// The dialog context is kept. Setting the course it already holds is a
// no-op so redundant navigation callbacks cannot wipe a live timeline.
func (e *Engine) SetCurrentCourse(n int) {
	if n == e.course {
		return
	}
	e.logger.Info("course switched", slog.Int("from", e.course), slog.Int("to", n))
	e.course = n
	e.resetVolatile()
}

// ResetForCourse purges volatile state and sets the course gate to n even
// when n is already current. Used to prepare for a course replay.
func (e *Engine) ResetForCourse(n int) {
	e.logger.Info("reset for course", slog.Int("course", n))
	e.course = n
	e.resetVolatile()
}

// resetVolatile empties every structure owned per dialog/course: units,
// substream buffers, call index, pending anchors. Reminders and pending
// human questions survive; they are dialog-independent.
func (e *Engine) resetVolatile() {
	e.units = make(map[int]*GenerationUnit)
	e.activeSeq = noSeq
	e.calls = make(map[string]*CallSite)
	e.callsBySeq = make(map[int][]string)
	e.anchors = make(map[int][]PendingAnchor)
	e.runState = ""
}
