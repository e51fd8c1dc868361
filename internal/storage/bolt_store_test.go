package storage

import (
	"errors"
	"testing"
	"time"
)

func TestBoltStoreRecordsAndListsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	storeRaw, err := openBolt(dir+"/failures.db", normalizeOptions(Options{}))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	base := time.Now()
	for i, msg := range []string{"first", "second", "third"} {
		err := store.RecordFailure(Failure{
			At:       base.Add(time.Duration(i) * time.Millisecond),
			Endpoint: "localhost:8000",
			Kind:     "dns",
			Message:  msg,
		})
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	got, err := store.RecentFailures(2)
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	if len(got) != 2 || got[0].Message != "third" || got[1].Message != "second" {
		t.Fatalf("unexpected failures %#v", got)
	}

	all, err := store.RecentFailures(0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 failures, got %d err=%v", len(all), err)
	}
}

func TestBoltStoreKeepsSameInstantFailures(t *testing.T) {
	storeRaw, err := openBolt(t.TempDir()+"/failures.db", normalizeOptions(Options{}))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	at := time.Now()
	for i := 0; i < 3; i++ {
		if err := store.RecordFailure(Failure{At: at, Message: "x"}); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	all, err := store.RecentFailures(0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 failures, got %d err=%v", len(all), err)
	}
}

func TestBoltStoreExpiresFailures(t *testing.T) {
	opts := Options{
		FailureTTL:      time.Second,
		CleanupInterval: time.Second,
	}
	storeRaw, err := openBolt(t.TempDir()+"/failures.db", opts)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	now := time.Now()
	store.now = func() time.Time { return now }
	if err := store.RecordFailure(Failure{Message: "old"}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	got, err := store.RecentFailures(0)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected recorded failure, got %d err=%v", len(got), err)
	}
	if got[0].At.IsZero() {
		t.Fatalf("expected At to be stamped")
	}

	// Fast-forward past the TTL and the cleanup cadence.
	now = now.Add(3 * time.Second)
	got, err = store.RecentFailures(0)
	if err != nil {
		t.Fatalf("RecentFailures after expiry: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected entry to expire, got %#v", got)
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if err := store.RecordFailure(Failure{Message: "x"}); err != nil {
		t.Fatalf("noop store RecordFailure: %v", err)
	}
	if got, _ := store.RecentFailures(10); len(got) != 0 {
		t.Fatalf("noop store returned failures")
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStore("redis", "", Options{}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := NewStore("bbolt", " ", Options{}); err == nil {
		t.Fatalf("expected error for empty bbolt path")
	}
}
