package journal

import (
	"context"
	"testing"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

func TestJournalAppendAndReplay(t *testing.T) {
	j, err := Open("file:journal1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	events := []wire.Event{
		&wire.GenBegin{Scoped: wire.Scoped{Course: 1, GenSeq: 1}},
		&wire.SayDelta{Scoped: wire.Scoped{Course: 1, GenSeq: 1}, Text: "hello"},
		&wire.GenEnd{Scoped: wire.Scoped{Course: 1, GenSeq: 1}, Model: "sable-9"},
	}
	for _, ev := range events {
		if err := j.Append(ctx, "root-a", ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	// A frame for another dialog must not leak into the replay.
	if err := j.Append(ctx, "root-b", &wire.GenBegin{Scoped: wire.Scoped{Course: 1, GenSeq: 9}}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	var kinds []wire.Kind
	err = j.Replay(ctx, "root-a", func(ev wire.Event) error {
		kinds = append(kinds, ev.EventKind())
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	want := []wire.Kind{wire.KindGenBegin, wire.KindSayDelta, wire.KindGenEnd}
	if len(kinds) != len(want) {
		t.Fatalf("replayed %d frames, want %d", len(kinds), len(want))
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("frame %d kind = %s, want %s", i, kinds[i], k)
		}
	}
}

func TestJournalCountAndPrune(t *testing.T) {
	j, err := Open("file:journal2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := j.Append(ctx, "root-a", &wire.GenBegin{Scoped: wire.Scoped{Course: 1, GenSeq: i}}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := j.Count(ctx, "root-a")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	if err := j.Prune(ctx, "root-a"); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	n, err = j.Count(ctx, "root-a")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count() after prune = %d, want 0", n)
	}
}
