package callstack

import (
	"errors"
	"testing"
)

func TestAllMarksAggregateFrames(t *testing.T) {
	indexes := make([]int, 2)

	err := All(
		func() error {
			f := Frames()[0]
			if !f.IsAsync() {
				t.Error("Expected aggregate frame to be async")
			}
			if !f.IsPromiseAll() {
				t.Error("Expected aggregate frame to report the aggregate")
			}
			indexes[0] = f.PromiseIndex()
			return nil
		},
		func() error {
			indexes[1] = Frames()[0].PromiseIndex()
			return nil
		},
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if indexes[0] != 0 || indexes[1] != 1 {
		t.Errorf("Expected aggregate indexes [0 1], got %v", indexes)
	}
}

func TestGoMarksAsyncOnly(t *testing.T) {
	err := Go(func() error {
		f := Frames()[0]
		if !f.IsAsync() {
			t.Error("Expected async frame")
		}
		if f.IsPromiseAll() {
			t.Error("Expected no aggregate flag for a single task")
		}
		if f.PromiseIndex() != -1 {
			t.Errorf("Expected absent promise index, got %d", f.PromiseIndex())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestSyncFramesNotMarked(t *testing.T) {
	f := Frames()[0]
	if f.IsAsync() || f.IsPromiseAll() {
		t.Error("Expected sync frame to carry no async flags")
	}
}

func TestAsyncMarkClearedAfterTask(t *testing.T) {
	if err := All(func() error { return nil }); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	count := 0
	asyncGoroutines.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != 0 {
		t.Errorf("Expected empty async registry after tasks, got %d entries", count)
	}
}

func TestAllJoinsErrors(t *testing.T) {
	errA := errors.New("task a failed")
	errB := errors.New("task b failed")

	err := All(
		func() error { return errA },
		func() error { return nil },
		func() error { return errB },
	)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Expected both task errors joined, got %v", err)
	}
}

func TestResolvedInsideAggregate(t *testing.T) {
	err := All(func() error {
		snaps, err := Resolved()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			t.Fatal("Expected snapshots inside aggregate")
		}
		s := snaps[0]
		if s["isAsync"] != true || s["isPromiseAll"] != true {
			t.Errorf("Expected async aggregate snapshot, got %v/%v", s["isAsync"], s["isPromiseAll"])
		}
		if s["getPromiseIndex"] != 0 {
			t.Errorf("Expected promise index 0, got %v", s["getPromiseIndex"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}
