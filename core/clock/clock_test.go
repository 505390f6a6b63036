package clock

import (
	"testing"
	"time"
)

func TestFake_Advance(t *testing.T) {
	start := time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "c") })
	stopped := c.AfterFunc(time.Second, func() { fired = append(fired, "stopped") })
	if !stopped.Stop() {
		t.Fatal("Stop() = false; want true")
	}
	if stopped.Stop() {
		t.Error("second Stop() = true; want false")
	}

	c.Advance(1500 * time.Millisecond)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("fired = %v; want [a]", fired)
	}
	if got := c.Now(); !got.Equal(start.Add(1500 * time.Millisecond)) {
		t.Errorf("Now() = %v; want %v", got, start.Add(1500*time.Millisecond))
	}

	c.Advance(time.Second)
	want := []string{"a", "b", "c"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v; want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired[%d] = %s; want %s", i, fired[i], want[i])
		}
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d; want 0", c.Pending())
	}
}

func TestFake_RearmFromCallback(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	var ticks int
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)
	if ticks != 10 {
		t.Errorf("ticks = %d; want 10", ticks)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d; want 1", c.Pending())
	}
}
