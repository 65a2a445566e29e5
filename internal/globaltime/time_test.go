package globaltime

import (
	"testing"
	"time"
)

func TestFreezeAndRestore(t *testing.T) {
	pinned := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	Freeze(pinned)
	defer Restore()

	if got := Now(); !got.Equal(pinned) {
		t.Fatalf("Now() = %v, want %v", got, pinned)
	}
	if got := UTC(); !got.Equal(pinned) {
		t.Fatalf("UTC() = %v, want %v", got, pinned)
	}

	Restore()
	if got := Now(); got.Equal(pinned) {
		t.Fatalf("Now() still frozen after Restore()")
	}
}
