package statemachine

import (
	"context"
	"testing"
	"time"
)

type counterStatus struct {
	ticks int
}

const (
	stateRun  = 200
	stateStop = 800
)

func TestRun_TerminatesAtTerminalState(t *testing.T) {
	states := []State[counterStatus]{
		{ID: stateRun, Description: "run", Action: func(_ context.Context, s *counterStatus) uint32 {
			s.ticks++
			if s.ticks >= 3 {
				return stateStop
			}
			return stateRun
		}},
		{ID: stateStop, Description: "stop", Action: func(_ context.Context, s *counterStatus) uint32 {
			return stateStop
		}},
	}
	rt := New(states, stateStop)
	rt.SetBasePeriod(time.Millisecond)

	status := &counterStatus{}
	if err := rt.Run(context.Background(), status, stateRun); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if status.ticks != 3 {
		t.Errorf("ticks = %d, want 3", status.ticks)
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	states := []State[counterStatus]{
		{ID: stateRun, Description: "run", Action: func(_ context.Context, s *counterStatus) uint32 {
			s.ticks++
			return stateRun // never reaches terminal on its own
		}},
	}
	rt := New(states, stateStop)
	rt.SetBasePeriod(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	status := &counterStatus{}
	err := rt.Run(ctx, status, stateRun)
	if err == nil {
		t.Fatal("Run should return an error on context cancellation")
	}
	if status.ticks == 0 {
		t.Error("expected at least one tick before cancellation")
	}
}

func TestRun_UnknownState(t *testing.T) {
	rt := New([]State[counterStatus]{}, stateStop)
	err := rt.Run(context.Background(), &counterStatus{}, 999)
	if _, ok := err.(ErrUnknownState); !ok {
		t.Fatalf("err = %v, want ErrUnknownState", err)
	}
}

func TestRun_InvokesTerminalActionOnce(t *testing.T) {
	var terminalCalls int
	states := []State[counterStatus]{
		{ID: stateRun, Description: "run", Action: func(_ context.Context, s *counterStatus) uint32 {
			return stateStop
		}},
		{ID: stateStop, Description: "stop", Action: func(_ context.Context, s *counterStatus) uint32 {
			terminalCalls++
			return stateStop
		}},
	}
	rt := New(states, stateStop)
	rt.SetBasePeriod(time.Millisecond)

	if err := rt.Run(context.Background(), &counterStatus{}, stateRun); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if terminalCalls != 1 {
		t.Errorf("terminal action invoked %d times, want 1", terminalCalls)
	}
}

func TestStateLookup(t *testing.T) {
	states := []State[counterStatus]{
		{ID: stateRun, Description: "run", Action: func(context.Context, *counterStatus) uint32 { return stateRun }},
	}
	rt := New(states, stateStop)

	st, ok := rt.State(stateRun)
	if !ok || st.Description != "run" {
		t.Errorf("State(stateRun) = %+v, %v", st, ok)
	}
	if _, ok := rt.State(999); ok {
		t.Error("State(999) found, want not found")
	}
}

func TestWithTerminationSignals_CancelsOnParentCancel(t *testing.T) {
	parent, parentCancel := context.WithCancel(context.Background())
	ctx, stop := WithTerminationSignals(parent)
	defer stop()

	parentCancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not canceled when parent was canceled")
	}
}
