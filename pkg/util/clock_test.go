package util

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewManualClock(start)

	ch := c.After(10 * time.Second)
	c.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(10 * time.Second)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("timer did not fire")
	}

	if got := c.Now(); !got.Equal(start.Add(10 * time.Second)) {
		t.Errorf("Now = %v", got)
	}

	select {
	case <-c.After(0):
	default:
		t.Error("zero duration should fire immediately")
	}
}
