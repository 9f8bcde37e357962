package database

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

func openTestDB(t *testing.T) (*D, string) {
	t.Helper()
	path := t.TempDir()
	d, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, path
}

func testAnnouncement(name string, nonces int) *oraclemsg.Announcement {
	ev := oraclemsg.Event{
		MaturityEpoch: 100,
		Descriptor:    &oraclemsg.Enum{Outcomes: []string{"a", "b"}},
		ID:            name,
	}
	for i := 0; i < nonces; i++ {
		ev.Nonces = append(ev.Nonces, frand.Bytes(32))
	}
	return &oraclemsg.Announcement{
		Signature: frand.Bytes(64),
		PublicKey: frand.Bytes(32),
		Event:     ev,
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := &record{
		announcement:        testAnnouncement("r", 2).Marshal(nil),
		indexes:             []uint32{3, 4},
		outcomes:            []string{"a", "b"},
		signatures:          [][]byte{frand.Bytes(64), frand.Bytes(64)},
		announcementEventID: frand.Bytes(32),
	}
	b := rec.marshal(nil)
	got := &record{}
	if err := got.unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.marshal(nil), b) {
		t.Error("record re-encode is not byte identical")
	}
	if len(got.indexes) != 2 || got.indexes[0] != 3 || got.indexes[1] != 4 {
		t.Errorf("indexes lost: %v", got.indexes)
	}
	if len(got.attestationEventID) != 0 {
		t.Error("absent attestation event id decoded as present")
	}
}

func TestSaveGetList(t *testing.T) {
	d, _ := openTestDB(t)
	c := context.Background()
	ann := testAnnouncement("first", 1)
	indexes, err := d.NextNonceIndexes(c, 1)
	if err != nil {
		t.Fatal(err)
	}
	id, err := d.SaveAnnouncement(c, ann, indexes)
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.GetEvent(c, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Announcement.Marshal(nil), ann.Marshal(nil)) {
		t.Error("announcement bytes changed through the store")
	}
	if len(got.Indexes) != 1 || got.Indexes[0] != indexes[0] {
		t.Errorf("indexes %v, want %v", got.Indexes, indexes)
	}
	byName, err := d.GetEventByEventId(c, "first")
	if err != nil {
		t.Fatal(err)
	}
	if byName.ID != id {
		t.Errorf("lookup by name gave id %d, want %d", byName.ID, id)
	}
	if _, err = d.GetEvent(c, 999); !errors.Is(err, oracle.ErrNotFound) {
		t.Errorf("missing event returned %v", err)
	}
	evs, err := d.ListEvents(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 {
		t.Fatalf("listed %d events", len(evs))
	}
}

func TestUniqueName(t *testing.T) {
	d, _ := openTestDB(t)
	c := context.Background()
	if _, err := d.SaveAnnouncement(
		c, testAnnouncement("dup", 1), []uint32{0},
	); err != nil {
		t.Fatal(err)
	}
	_, err := d.SaveAnnouncement(c, testAnnouncement("dup", 1), []uint32{1})
	if !errors.Is(err, oracle.ErrStorageFailure) {
		t.Errorf("duplicate name returned %v", err)
	}
}

func TestOneShotSigning(t *testing.T) {
	d, _ := openTestDB(t)
	c := context.Background()
	id, err := d.SaveAnnouncement(
		c, testAnnouncement("sign", 1), []uint32{7},
	)
	if err != nil {
		t.Fatal(err)
	}
	sig := frand.Bytes(64)
	ev, err := d.SaveSignatures(c, id, []store.OutcomeSignature{
		{Outcome: "a", Signature: sig},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Attested() || !bytes.Equal(ev.Signatures[0], sig) {
		t.Error("signatures not stored")
	}
	_, err = d.SaveSignatures(c, id, []store.OutcomeSignature{
		{Outcome: "b", Signature: frand.Bytes(64)},
	})
	if !errors.Is(err, oracle.ErrEventAlreadySigned) {
		t.Errorf("second signing returned %v", err)
	}
	_, err = d.SaveSignatures(c, id, []store.OutcomeSignature{
		{Outcome: "a", Signature: frand.Bytes(64)},
		{Outcome: "b", Signature: frand.Bytes(64)},
	})
	if !errors.Is(err, oracle.ErrEventAlreadySigned) {
		t.Errorf("post-terminal signing returned %v", err)
	}
}

func TestCounterSurvivesReopen(t *testing.T) {
	path := t.TempDir()
	d, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	c := context.Background()
	// two events, three indexes total
	idx1, err := d.NextNonceIndexes(c, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = d.SaveAnnouncement(
		c, testAnnouncement("one", 1), idx1,
	); err != nil {
		t.Fatal(err)
	}
	idx2, err := d.NextNonceIndexes(c, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = d.SaveAnnouncement(
		c, testAnnouncement("two", 2), idx2,
	); err != nil {
		t.Fatal(err)
	}
	if err = d.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	next, err := reopened.NextNonceIndexes(c, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := idx2[len(idx2)-1] + 1
	if next[0] != want {
		t.Errorf("counter resumed at %d, want %d", next[0], want)
	}
	// event ids also continue
	id, err := reopened.SaveAnnouncement(
		c, testAnnouncement("three", 1), next,
	)
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 {
		t.Errorf("event id resumed at %d, want 3", id)
	}
	evs, err := reopened.ListEvents(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 3 {
		t.Errorf("listed %d events after reopen", len(evs))
	}
	for i, ev := range evs {
		if ev.ID != uint32(i+1) {
			t.Errorf("list order broken: position %d has id %d", i, ev.ID)
		}
	}
}

func TestConcurrentAllocation(t *testing.T) {
	d, _ := openTestDB(t)
	c := context.Background()
	const workers = 64
	var wg sync.WaitGroup
	results := make(chan uint32, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			indexes, err := d.NextNonceIndexes(c, 1)
			if err != nil {
				t.Error(err)
				return
			}
			results <- indexes[0]
		}()
	}
	wg.Wait()
	close(results)
	seen := make(map[uint32]bool)
	for idx := range results {
		if seen[idx] {
			t.Fatalf("index %d allocated twice", idx)
		}
		seen[idx] = true
	}
	if len(seen) != workers {
		t.Fatalf("allocated %d indexes, want %d", len(seen), workers)
	}
}

func TestMetadataSingleton(t *testing.T) {
	d, _ := openTestDB(t)
	c := context.Background()
	m, err := d.GetMetadata(c)
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatal("fresh database has metadata")
	}
	pk := frand.Bytes(32)
	if err = d.UpsertMetadata(
		c, &Metadata{Pubkey: pk, Name: "test oracle"},
	); err != nil {
		t.Fatal(err)
	}
	if m, err = d.GetMetadata(c); err != nil {
		t.Fatal(err)
	}
	if m == nil || !bytes.Equal(m.Pubkey, pk) || m.Name != "test oracle" {
		t.Errorf("metadata round trip failed: %+v", m)
	}
	// upsert replaces
	if err = d.UpsertMetadata(
		c, &Metadata{Pubkey: pk, Name: "renamed"},
	); err != nil {
		t.Fatal(err)
	}
	if m, err = d.GetMetadata(c); err != nil {
		t.Fatal(err)
	}
	if m.Name != "renamed" {
		t.Error("upsert did not replace the metadata row")
	}
}
