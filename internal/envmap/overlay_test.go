package envmap

import (
	"errors"
	"maps"
	"testing"
)

// rejectingEnvironment fails writes to one key.
type rejectingEnvironment struct {
	*MemoryEnvironment
	reject string
}

func (e *rejectingEnvironment) Set(key, value string) error {
	if key == e.reject {
		return errors.New("invalid argument")
	}
	return e.MemoryEnvironment.Set(key, value)
}

func TestOverlayStagesUntilCommit(t *testing.T) {
	t.Parallel()

	base := NewMemoryEnvironment(map[string]string{"KEEP": "base"})
	stage := NewOverlay(base)

	if outcome, err := Merge(stage, "NEW", "one", false); err != nil || outcome != Added {
		t.Fatalf("unexpected merge result %v, %v", outcome, err)
	}
	if outcome, err := Merge(stage, "NEW", "two", false); err != nil || outcome != Kept {
		t.Fatalf("expected staged key to count as present, got %v, %v", outcome, err)
	}
	if _, ok := base.Lookup("NEW"); ok {
		t.Fatalf("expected base untouched before commit")
	}

	if err := stage.Commit(); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if want := map[string]string{"KEEP": "base", "NEW": "one"}; !maps.Equal(base.Map(), want) {
		t.Fatalf("expected %v, got %v", want, base.Map())
	}
}

func TestOverlayCommitRevertsOnFailure(t *testing.T) {
	t.Parallel()

	base := &rejectingEnvironment{
		MemoryEnvironment: NewMemoryEnvironment(map[string]string{"KEEP": "base"}),
		reject:            "BAD=KEY",
	}
	stage := NewOverlay(base)
	for _, kv := range [][2]string{{"KEEP", "new"}, {"ADDED", "x"}, {"BAD=KEY", "y"}, {"LATER", "z"}} {
		if _, err := Merge(stage, kv[0], kv[1], true); err != nil {
			t.Fatalf("Merge returned error: %v", err)
		}
	}

	if err := stage.Commit(); err == nil {
		t.Fatalf("expected commit to fail")
	}
	if want := map[string]string{"KEEP": "base"}; !maps.Equal(base.Map(), want) {
		t.Fatalf("expected base restored to %v, got %v", want, base.Map())
	}
}
