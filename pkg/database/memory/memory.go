// Package memory is a Store kept entirely in process memory, for tests and
// for embedding the oracle where no durable backend is available. It
// enforces the same contract as the badger store: globally monotonic nonce
// indexes, unique event names, and one-shot signing.
package memory

import (
	"fmt"
	"sync"

	"context"
	"next.orly.dev/pkg/utils/atomic"

	"oracle.mleku.dev/pkg/encoders/oraclemsg"
	"oracle.mleku.dev/pkg/interfaces/store"
	"oracle.mleku.dev/pkg/oracle"
)

type record struct {
	id                  uint32
	announcement        []byte // TLV, decoded on read
	indexes             []uint32
	outcomes            []string
	signatures          [][]byte
	announcementEventID []byte
	attestationEventID  []byte
	name                string
}

// S is the in-memory store.
type S struct {
	mx      sync.Mutex
	counter atomic.Uint32 // next unallocated nonce index
	nextID  atomic.Uint32 // last assigned event id
	events  map[uint32]*record
	names   map[string]uint32
}

var _ store.I = &S{}

// New creates an empty in-memory store.
func New() (s *S) {
	return &S{
		events: make(map[uint32]*record),
		names:  make(map[string]uint32),
	}
}

// NextNonceIndexes allocates n consecutive indexes with fetch-add semantics;
// allocated indexes are never reissued.
func (s *S) NextNonceIndexes(c context.Context, n int) (
	indexes []uint32, err error,
) {
	end := s.counter.Add(uint32(n))
	start := end - uint32(n)
	indexes = make([]uint32, n)
	for i := range indexes {
		indexes[i] = start + uint32(i)
	}
	return
}

func (s *S) SaveAnnouncement(
	c context.Context, ann *oraclemsg.Announcement, indexes []uint32,
) (id uint32, err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	name := ann.Event.ID
	if _, exists := s.names[name]; exists {
		err = fmt.Errorf("%w: event name %q already stored",
			oracle.ErrStorageFailure, name)
		return
	}
	id = s.nextID.Inc()
	idx := make([]uint32, len(indexes))
	copy(idx, indexes)
	s.events[id] = &record{
		id:           id,
		announcement: ann.Marshal(nil),
		indexes:      idx,
		name:         name,
	}
	s.names[name] = id
	return
}

func (s *S) SaveSignatures(
	c context.Context, id uint32, sigs []store.OutcomeSignature,
) (ev *store.StoredEvent, err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	rec, ok := s.events[id]
	if !ok {
		err = oracle.ErrNotFound
		return
	}
	if len(rec.signatures) > 0 {
		err = oracle.ErrEventAlreadySigned
		return
	}
	if len(sigs) != len(rec.indexes) {
		err = fmt.Errorf("%w: %d signatures for %d nonces",
			oracle.ErrInternal, len(sigs), len(rec.indexes))
		return
	}
	rec.outcomes = make([]string, len(sigs))
	rec.signatures = make([][]byte, len(sigs))
	for i, sig := range sigs {
		rec.outcomes[i] = sig.Outcome
		rec.signatures[i] = append([]byte{}, sig.Signature...)
	}
	return s.materialize(rec)
}

func (s *S) GetEvent(c context.Context, id uint32) (
	ev *store.StoredEvent, err error,
) {
	s.mx.Lock()
	defer s.mx.Unlock()
	rec, ok := s.events[id]
	if !ok {
		err = oracle.ErrNotFound
		return
	}
	return s.materialize(rec)
}

func (s *S) GetEventByEventId(c context.Context, eventID string) (
	ev *store.StoredEvent, err error,
) {
	s.mx.Lock()
	defer s.mx.Unlock()
	id, ok := s.names[eventID]
	if !ok {
		err = oracle.ErrNotFound
		return
	}
	return s.materialize(s.events[id])
}

func (s *S) ListEvents(c context.Context) (evs []*store.StoredEvent, err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	for id := uint32(1); id <= s.nextID.Load(); id++ {
		rec, ok := s.events[id]
		if !ok {
			continue
		}
		var ev *store.StoredEvent
		if ev, err = s.materialize(rec); err != nil {
			return
		}
		evs = append(evs, ev)
	}
	return
}

func (s *S) AddAnnouncementEventId(
	c context.Context, id uint32, nostrID []byte,
) (err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	rec, ok := s.events[id]
	if !ok {
		return oracle.ErrNotFound
	}
	rec.announcementEventID = append([]byte{}, nostrID...)
	return
}

func (s *S) AddAttestationEventId(
	c context.Context, id uint32, nostrID []byte,
) (err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	rec, ok := s.events[id]
	if !ok {
		return oracle.ErrNotFound
	}
	rec.attestationEventID = append([]byte{}, nostrID...)
	return
}

// materialize builds a caller-owned StoredEvent snapshot from a record.
func (s *S) materialize(rec *record) (ev *store.StoredEvent, err error) {
	ann := &oraclemsg.Announcement{}
	if _, err = ann.Unmarshal(rec.announcement); err != nil {
		err = fmt.Errorf("%w: stored announcement corrupt: %s",
			oracle.ErrInternal, err.Error())
		return
	}
	ev = &store.StoredEvent{
		ID:           rec.id,
		Announcement: ann,
		Indexes:      append([]uint32{}, rec.indexes...),
	}
	for i := range rec.signatures {
		ev.Outcomes = append(ev.Outcomes, rec.outcomes[i])
		ev.Signatures = append(
			ev.Signatures, append([]byte{}, rec.signatures[i]...),
		)
	}
	if rec.announcementEventID != nil {
		ev.AnnouncementEventID = append([]byte{}, rec.announcementEventID...)
	}
	if rec.attestationEventID != nil {
		ev.AttestationEventID = append([]byte{}, rec.attestationEventID...)
	}
	return
}
