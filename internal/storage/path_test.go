package storage

import (
	"testing"
	"time"
)

func TestBuildResultArchivePath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 23, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := BuildResultArchivePath("primary", "b1f4c2d0-1111-4c4c-9a9a-000000000001", ts)
	if err != nil {
		t.Fatalf("BuildResultArchivePath() error = %v", err)
	}
	want := "results/primary/date=2026-02-20/b1f4c2d0-1111-4c4c-9a9a-000000000001-1771560300000.parquet"
	if key != want {
		t.Fatalf("BuildResultArchivePath() = %q, want %q", key, want)
	}
}

func TestBuildResultArchivePathRejectsInvalidComponents(t *testing.T) {
	if _, err := BuildResultArchivePath("../etc", "s-1", time.Now()); err == nil {
		t.Fatal("expected invalid target name error")
	}
	if _, err := BuildResultArchivePath("primary", "", time.Now()); err == nil {
		t.Fatal("expected invalid session id error")
	}
}
