package discovery

import (
	"errors"
	"testing"
	"time"
)

func TestDirectoryUpsertAndGet(t *testing.T) {
	dir := NewDirectory(DefaultDirectoryConfig())
	now := time.Now().UTC()
	desc := validDescriptor()
	desc.LastSeen = time.Time{}

	if err := dir.Upsert(desc, now); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := dir.Get(desc.PeerID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastSeen.Equal(now) {
		t.Fatalf("LastSeen = %v, want stamped %v", got.LastSeen, now)
	}
}

func TestDirectoryUpsertRejectsInvalid(t *testing.T) {
	dir := NewDirectory(DefaultDirectoryConfig())
	desc := validDescriptor()
	desc.Host = ""
	if err := dir.Upsert(desc, time.Now()); !errors.Is(err, ErrInvalidHost) {
		t.Fatalf("Upsert() error = %v, want ErrInvalidHost", err)
	}
}

func TestDirectoryGetMissingReturnsErrPeerNotFound(t *testing.T) {
	dir := NewDirectory(DefaultDirectoryConfig())
	if _, err := dir.Get("NOSUCHPEER"); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("Get() error = %v, want ErrPeerNotFound", err)
	}
}

func TestDirectoryTouchRefreshesLastSeen(t *testing.T) {
	dir := NewDirectory(DefaultDirectoryConfig())
	desc := validDescriptor()
	t0 := time.Now().UTC()
	if err := dir.Upsert(desc, t0); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	t1 := t0.Add(5 * time.Second)
	if err := dir.Touch(desc.PeerID, t1); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, err := dir.Get(desc.PeerID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastSeen.Equal(t1) {
		t.Fatalf("LastSeen = %v, want %v", got.LastSeen, t1)
	}
}

func TestDirectoryTouchUnknownPeerErrors(t *testing.T) {
	dir := NewDirectory(DefaultDirectoryConfig())
	if err := dir.Touch("NOSUCHPEER", time.Now()); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("Touch() error = %v, want ErrPeerNotFound", err)
	}
}

func TestDirectoryPruneRemovesStalePeers(t *testing.T) {
	dir := NewDirectory(DirectoryConfig{PeerExpiry: 10 * time.Second})
	fresh := validDescriptor()
	fresh.PeerID = "2B3C4D5E6F"
	stale := validDescriptor()
	stale.PeerID = "5E6F2B3C4D"

	now := time.Now().UTC()
	if err := dir.Upsert(fresh, now); err != nil {
		t.Fatalf("Upsert fresh: %v", err)
	}
	if err := dir.Upsert(stale, now.Add(-20*time.Second)); err != nil {
		t.Fatalf("Upsert stale: %v", err)
	}

	removed := dir.Prune(now)
	if len(removed) != 1 || removed[0] != stale.PeerID {
		t.Fatalf("Prune() = %v, want [%s]", removed, stale.PeerID)
	}

	if _, err := dir.Get(stale.PeerID); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("stale peer should have been pruned, Get() error = %v", err)
	}
	if _, err := dir.Get(fresh.PeerID); err != nil {
		t.Fatalf("fresh peer should survive Prune: %v", err)
	}
}

func TestDirectoryListReturnsAllPeers(t *testing.T) {
	dir := NewDirectory(DefaultDirectoryConfig())
	a := validDescriptor()
	a.PeerID = "2B3C4D5E6F"
	b := validDescriptor()
	b.PeerID = "5E6F2B3C4D"

	now := time.Now()
	if err := dir.Upsert(a, now); err != nil {
		t.Fatalf("Upsert a: %v", err)
	}
	if err := dir.Upsert(b, now); err != nil {
		t.Fatalf("Upsert b: %v", err)
	}

	list := dir.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d peers, want 2", len(list))
	}
}
