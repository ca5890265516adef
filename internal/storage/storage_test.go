package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "plugbridge/pkg/logx"
)

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	ext := ".jsonl"
	if driver != "file" {
		ext = ".db"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "history"+ext)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = (%v, %v), want disabled", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "etcd", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openDriver(t, driver)
			ctx := context.Background()

			base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
			for i := 0; i < 5; i++ {
				e := Event{
					At:         base.Add(time.Duration(i) * time.Minute),
					Origin:     "trigger",
					AuthorID:   "user-1",
					Intensity:  0.133,
					DurationMS: 2000,
					Devices:    2,
				}
				if err := st.AppendEvent(ctx, e); err != nil {
					t.Fatalf("AppendEvent: %v", err)
				}
			}

			got, err := st.RecentEvents(ctx, 3)
			if err != nil {
				t.Fatalf("RecentEvents: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("len = %d, want 3", len(got))
			}
			// Newest first.
			if !got[0].At.After(got[1].At) {
				t.Fatalf("events not newest-first: %v then %v", got[0].At, got[1].At)
			}
			if got[0].Origin != "trigger" || got[0].Devices != 2 {
				t.Fatalf("unexpected event: %+v", got[0])
			}
		})
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openDriver(t, driver)
			ctx := context.Background()

			old := Event{At: time.Now().Add(-48 * time.Hour), Origin: "trigger"}
			fresh := Event{At: time.Now(), Origin: "command"}
			if err := st.AppendEvent(ctx, old); err != nil {
				t.Fatalf("AppendEvent: %v", err)
			}
			if err := st.AppendEvent(ctx, fresh); err != nil {
				t.Fatalf("AppendEvent: %v", err)
			}

			n, err := st.Prune(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("Prune: %v", err)
			}
			if n != 1 {
				t.Fatalf("pruned = %d, want 1", n)
			}

			got, err := st.RecentEvents(ctx, 10)
			if err != nil {
				t.Fatalf("RecentEvents after prune: %v", err)
			}
			if len(got) != 1 || got[0].Origin != "command" {
				t.Fatalf("after prune: %+v", got)
			}

			// Appends must still work after the file swap.
			if err := st.AppendEvent(ctx, Event{At: time.Now(), Origin: "trigger"}); err != nil {
				t.Fatalf("AppendEvent after prune: %v", err)
			}
		})
	}
}

func TestPruneSubSecondBoundary(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openDriver(t, driver)
			ctx := context.Background()

			base := time.Now().Add(-time.Hour).Truncate(time.Second)
			for _, off := range []time.Duration{0, 500 * time.Millisecond, 900 * time.Millisecond} {
				if err := st.AppendEvent(ctx, Event{At: base.Add(off), Origin: "trigger"}); err != nil {
					t.Fatalf("AppendEvent: %v", err)
				}
			}

			// Cutoff lands between events in the same second: only the one
			// strictly older goes; the one exactly at the cutoff stays.
			n, err := st.Prune(ctx, base.Add(500*time.Millisecond))
			if err != nil {
				t.Fatalf("Prune: %v", err)
			}
			if n != 1 {
				t.Fatalf("pruned = %d, want 1", n)
			}

			got, err := st.RecentEvents(ctx, 10)
			if err != nil {
				t.Fatalf("RecentEvents: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("len = %d, want 2: %+v", len(got), got)
			}
			if got[1].At.UnixMilli() != base.Add(500*time.Millisecond).UnixMilli() {
				t.Fatalf("oldest kept = %v, want cutoff event", got[1].At)
			}
		})
	}
}
