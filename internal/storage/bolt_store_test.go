package storage

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/samvad-hq/portaldb-go/internal/domain"
)

func TestBoltJournalRecordsNewestFirst(t *testing.T) {
	j, err := openBolt(filepath.Join(t.TempDir(), "nested", "journal.db"), normalizeOptions(Options{}))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer j.Close()

	for _, p := range []string{"/a", "/b", "/c"} {
		if err := j.Record(domain.Call{Method: "GET", Path: p, Status: 200}); err != nil {
			t.Fatalf("Record %s: %v", p, err)
		}
	}

	got, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Path != "/c" || got[1].Path != "/b" {
		t.Fatalf("unexpected recent calls %#v", got)
	}

	all, err := j.Recent(0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all 3 calls, got %d err=%v", len(all), err)
	}
}

func TestBoltJournalExpiresEntries(t *testing.T) {
	opts := Options{
		EntryTTL:        time.Minute,
		CleanupInterval: time.Minute,
	}
	j, err := openBolt(filepath.Join(t.TempDir(), "journal.db"), opts)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer j.Close()

	base := time.Now()
	j.now = func() time.Time { return base }
	if err := j.Record(domain.Call{Path: "/old"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(domain.Call{Path: "/old2"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Fast-forward past the TTL; expired entries are hidden before cleanup runs.
	j.now = func() time.Time { return base.Add(2 * time.Minute) }
	got, err := j.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected expired entries hidden, got %#v", got)
	}

	if err := j.Record(domain.Call{Path: "/new"}); err != nil {
		t.Fatalf("Record after expiry: %v", err)
	}

	var stored int
	if err := j.db.View(func(tx *bolt.Tx) error {
		stored = tx.Bucket([]byte(callBucket)).Stats().KeyN
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if stored != 1 {
		t.Fatalf("expected cleanup to leave 1 entry, found %d", stored)
	}

	got, err = j.Recent(0)
	if err != nil || len(got) != 1 || got[0].Path != "/new" {
		t.Fatalf("unexpected calls after cleanup %#v err=%v", got, err)
	}
}

func TestNewJournalSupportsNoop(t *testing.T) {
	j, err := NewJournal("none", "", Options{})
	if err != nil {
		t.Fatalf("NewJournal none: %v", err)
	}
	if err := j.Record(domain.Call{ID: "x"}); err != nil {
		t.Fatalf("noop journal Record: %v", err)
	}
	calls, err := j.Recent(10)
	if err != nil || calls != nil {
		t.Fatalf("noop journal Recent = %v, %v", calls, err)
	}
}

func TestNewJournalRejectsBadConfig(t *testing.T) {
	if _, err := NewJournal("bbolt", " ", Options{}); err == nil {
		t.Fatalf("expected error for missing bbolt path")
	}
	if _, err := NewJournal("redis", "x", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
