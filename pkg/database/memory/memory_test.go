package memory

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"context"
	"lukechampine.com/frand"

	"oracle.mleku.dev/pkg/encoders/oraclemsg"
	"oracle.mleku.dev/pkg/interfaces/store"
	"oracle.mleku.dev/pkg/oracle"
)

func testAnnouncement(name string) *oraclemsg.Announcement {
	return &oraclemsg.Announcement{
		Signature: frand.Bytes(64),
		PublicKey: frand.Bytes(32),
		Event: oraclemsg.Event{
			Nonces:        [][]byte{frand.Bytes(32)},
			MaturityEpoch: 100,
			Descriptor:    &oraclemsg.Enum{Outcomes: []string{"a", "b"}},
			ID:            name,
		},
	}
}

func TestConcurrentIndexAllocation(t *testing.T) {
	s := New()
	c := context.Background()
	const workers = 64
	var wg sync.WaitGroup
	results := make(chan []uint32, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			indexes, err := s.NextNonceIndexes(c, 1)
			if err != nil {
				t.Error(err)
				return
			}
			results <- indexes
		}()
	}
	wg.Wait()
	close(results)
	seen := make(map[uint32]bool)
	for indexes := range results {
		for _, idx := range indexes {
			if seen[idx] {
				t.Fatalf("index %d returned twice", idx)
			}
			seen[idx] = true
		}
	}
	if len(seen) != workers {
		t.Fatalf("allocated %d indexes, want %d", len(seen), workers)
	}
	for i := uint32(0); i < workers; i++ {
		if !seen[i] {
			t.Errorf("index %d missing from 0..%d", i, workers)
		}
	}
}

func TestMultiIndexAllocationConsecutive(t *testing.T) {
	s := New()
	c := context.Background()
	a, err := s.NextNonceIndexes(c, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(a); i++ {
		if a[i] != a[i-1]+1 {
			t.Fatalf("indexes %v are not consecutive", a)
		}
	}
	b, err := s.NextNonceIndexes(c, 2)
	if err != nil {
		t.Fatal(err)
	}
	if b[0] != a[len(a)-1]+1 {
		t.Errorf("second allocation %v does not follow first %v", b, a)
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New()
	c := context.Background()
	ann := testAnnouncement("ev")
	id, err := s.SaveAnnouncement(c, ann, []uint32{0})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetEvent(c, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Announcement.Marshal(nil), ann.Marshal(nil)) {
		t.Error("announcement bytes changed through the store")
	}
	if got.Attested() {
		t.Error("fresh event reports attested")
	}
	byName, err := s.GetEventByEventId(c, "ev")
	if err != nil {
		t.Fatal(err)
	}
	if byName.ID != id {
		t.Errorf("lookup by name returned id %d, want %d", byName.ID, id)
	}
	if _, err = s.GetEvent(c, id+1); !errors.Is(err, oracle.ErrNotFound) {
		t.Errorf("missing id returned %v", err)
	}
	if _, err = s.GetEventByEventId(c, "nope"); !errors.Is(
		err, oracle.ErrNotFound,
	) {
		t.Errorf("missing name returned %v", err)
	}
}

func TestUniqueNames(t *testing.T) {
	s := New()
	c := context.Background()
	if _, err := s.SaveAnnouncement(
		c, testAnnouncement("dup"), []uint32{0},
	); err != nil {
		t.Fatal(err)
	}
	_, err := s.SaveAnnouncement(c, testAnnouncement("dup"), []uint32{1})
	if !errors.Is(err, oracle.ErrStorageFailure) {
		t.Errorf("duplicate name save returned %v", err)
	}
}

func TestSignatureStateMachine(t *testing.T) {
	s := New()
	c := context.Background()
	id, err := s.SaveAnnouncement(c, testAnnouncement("sm"), []uint32{5})
	if err != nil {
		t.Fatal(err)
	}
	// count mismatch
	_, err = s.SaveSignatures(c, id, []store.OutcomeSignature{
		{Outcome: "a", Signature: frand.Bytes(64)},
		{Outcome: "b", Signature: frand.Bytes(64)},
	})
	if !errors.Is(err, oracle.ErrInternal) {
		t.Errorf("count mismatch returned %v", err)
	}
	// unknown id
	_, err = s.SaveSignatures(c, id+9, []store.OutcomeSignature{
		{Outcome: "a", Signature: frand.Bytes(64)},
	})
	if !errors.Is(err, oracle.ErrNotFound) {
		t.Errorf("unknown id returned %v", err)
	}
	sig := frand.Bytes(64)
	ev, err := s.SaveSignatures(c, id, []store.OutcomeSignature{
		{Outcome: "a", Signature: sig},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Attested() || ev.Outcomes[0] != "a" ||
		!bytes.Equal(ev.Signatures[0], sig) {
		t.Error("saved signatures not reflected in returned event")
	}
	_, err = s.SaveSignatures(c, id, []store.OutcomeSignature{
		{Outcome: "b", Signature: frand.Bytes(64)},
	})
	if !errors.Is(err, oracle.ErrEventAlreadySigned) {
		t.Errorf("second save returned %v", err)
	}
}

func TestEventIDAttachment(t *testing.T) {
	s := New()
	c := context.Background()
	id, err := s.SaveAnnouncement(c, testAnnouncement("ids"), []uint32{0})
	if err != nil {
		t.Fatal(err)
	}
	annID := frand.Bytes(32)
	if err = s.AddAnnouncementEventId(c, id, annID); err != nil {
		t.Fatal(err)
	}
	// idempotent overwrite is allowed
	if err = s.AddAnnouncementEventId(c, id, annID); err != nil {
		t.Fatal(err)
	}
	attID := frand.Bytes(32)
	if err = s.AddAttestationEventId(c, id, attID); err != nil {
		t.Fatal(err)
	}
	ev, err := s.GetEvent(c, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ev.AnnouncementEventID, annID) ||
		!bytes.Equal(ev.AttestationEventID, attID) {
		t.Error("nostr event ids not persisted")
	}
	if err = s.AddAnnouncementEventId(
		c, id+1, annID,
	); !errors.Is(err, oracle.ErrNotFound) {
		t.Errorf("attach to missing event returned %v", err)
	}
}

func TestListOrder(t *testing.T) {
	s := New()
	c := context.Background()
	names := []string{"one", "two", "three"}
	for i, n := range names {
		if _, err := s.SaveAnnouncement(
			c, testAnnouncement(n), []uint32{uint32(i)},
		); err != nil {
			t.Fatal(err)
		}
	}
	evs, err := s.ListEvents(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != len(names) {
		t.Fatalf("listed %d events, want %d", len(evs), len(names))
	}
	for i, ev := range evs {
		if ev.ID != uint32(i+1) {
			t.Errorf("event %d has id %d, want %d", i, ev.ID, i+1)
		}
		if ev.Announcement.Event.ID != names[i] {
			t.Errorf("event %d is %q, want %q", i,
				ev.Announcement.Event.ID, names[i])
		}
	}
}
