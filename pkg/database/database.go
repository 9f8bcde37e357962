// Package database is the badger-backed Store. Events live under a serial
// key, names index into the serial, and every nonce index saved with an
// announcement leaves a key behind so the monotonic allocator can be rebuilt
// on open. All writes
// happen inside badger transactions, so each Store operation is atomic.
package database

import (
	"encoding/binary"
	"fmt"

	"context"
	"github.com/dgraph-io/badger/v4"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"
	"next.orly.dev/pkg/utils/atomic"

	"oracle.mleku.dev/pkg/encoders/oraclemsg"
	"oracle.mleku.dev/pkg/interfaces/store"
	"oracle.mleku.dev/pkg/oracle"
)

var (
	prefixEvent = []byte("ev")
	prefixName  = []byte("nm")
	prefixNonce = []byte("nx")
	keyMetadata = []byte("md")
)

// D is the badger-backed store.
type D struct {
	*badger.DB
	counter atomic.Uint32 // next unallocated nonce index
	lastID  atomic.Uint32 // last assigned event id
}

var _ store.I = &D{}

// New opens (or creates) the database at path and rebuilds the in-memory
// counters: the nonce allocator resumes at one past the highest index ever
// persisted, and event ids continue from the highest stored id.
func New(path string) (d *D, err error) {
	var db *badger.DB
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if db, err = badger.Open(opts); chk.E(err) {
		return
	}
	d = &D{DB: db}
	if err = d.View(
		func(txn *badger.Txn) (err error) {
			if max, ok := maxKeySuffix(txn, prefixNonce); ok {
				d.counter.Store(max + 1)
			}
			if max, ok := maxKeySuffix(txn, prefixEvent); ok {
				d.lastID.Store(max)
			}
			return
		},
	); chk.E(err) {
		_ = db.Close()
		d = nil
		return
	}
	log.D.F("database open at %s, next nonce index %d, last event id %d",
		path, d.counter.Load(), d.lastID.Load())
	return
}

// maxKeySuffix scans a prefix whose keys end in a big-endian u32 and returns
// the largest one.
func maxKeySuffix(txn *badger.Txn, prefix []byte) (max uint32, ok bool) {
	it := txn.NewIterator(
		badger.IteratorOptions{Prefix: prefix, PrefetchValues: false},
	)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		k := it.Item().Key()
		if len(k) != len(prefix)+4 {
			continue
		}
		v := binary.BigEndian.Uint32(k[len(prefix):])
		if !ok || v > max {
			max, ok = v, true
		}
	}
	return
}

func eventKey(id uint32) (k []byte) {
	k = append(k, prefixEvent...)
	k = binary.BigEndian.AppendUint32(k, id)
	return
}

func nameKey(name string) (k []byte) {
	k = append(k, prefixName...)
	k = append(k, name...)
	return
}

func nonceKey(index uint32) (k []byte) {
	k = append(k, prefixNonce...)
	k = binary.BigEndian.AppendUint32(k, index)
	return
}

// NextNonceIndexes allocates n consecutive indexes from the atomic counter.
// The counter only moves forward; while this handle is open, indexes
// allocated here are burned whether or not an announcement is ever saved
// against them. Only saved indexes are persisted, so after a reopen the
// counter resumes at one past the highest saved index.
func (d *D) NextNonceIndexes(c context.Context, n int) (
	indexes []uint32, err error,
) {
	end := d.counter.Add(uint32(n))
	start := end - uint32(n)
	indexes = make([]uint32, n)
	for i := range indexes {
		indexes[i] = start + uint32(i)
	}
	return
}

func (d *D) SaveAnnouncement(
	c context.Context, ann *oraclemsg.Announcement, indexes []uint32,
) (id uint32, err error) {
	id = d.lastID.Inc()
	rec := &record{
		announcement: ann.Marshal(nil),
		indexes:      indexes,
	}
	name := ann.Event.ID
	err = d.Update(
		func(txn *badger.Txn) (err error) {
			if _, err = txn.Get(nameKey(name)); err == nil {
				return fmt.Errorf("%w: event name %q already stored",
					oracle.ErrStorageFailure, name)
			} else if err != badger.ErrKeyNotFound {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			if err = txn.Set(eventKey(id), rec.marshal(nil)); err != nil {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			idBytes := binary.BigEndian.AppendUint32(nil, id)
			if err = txn.Set(nameKey(name), idBytes); err != nil {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			for _, idx := range indexes {
				if err = txn.Set(nonceKey(idx), idBytes); err != nil {
					return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
						err.Error())
				}
			}
			return
		},
	)
	if chk.E(err) {
		id = 0
	}
	return
}

// getRecord loads and decodes one event inside a transaction.
func getRecord(txn *badger.Txn, id uint32) (rec *record, err error) {
	var item *badger.Item
	if item, err = txn.Get(eventKey(id)); err != nil {
		if err == badger.ErrKeyNotFound {
			err = oracle.ErrNotFound
		} else {
			err = fmt.Errorf("%w: %s", oracle.ErrStorageFailure, err.Error())
		}
		return
	}
	var val []byte
	if val, err = item.ValueCopy(nil); err != nil {
		err = fmt.Errorf("%w: %s", oracle.ErrStorageFailure, err.Error())
		return
	}
	rec = &record{}
	if err = rec.unmarshal(val); err != nil {
		err = fmt.Errorf("%w: %s", oracle.ErrInternal, err.Error())
		rec = nil
	}
	return
}

func (d *D) SaveSignatures(
	c context.Context, id uint32, sigs []store.OutcomeSignature,
) (ev *store.StoredEvent, err error) {
	err = d.Update(
		func(txn *badger.Txn) (err error) {
			var rec *record
			if rec, err = getRecord(txn, id); err != nil {
				return
			}
			if len(rec.signatures) > 0 {
				return oracle.ErrEventAlreadySigned
			}
			if len(sigs) != len(rec.indexes) {
				return fmt.Errorf("%w: %d signatures for %d nonces",
					oracle.ErrInternal, len(sigs), len(rec.indexes))
			}
			rec.outcomes = make([]string, len(sigs))
			rec.signatures = make([][]byte, len(sigs))
			for i, sig := range sigs {
				rec.outcomes[i] = sig.Outcome
				rec.signatures[i] = sig.Signature
			}
			if err = txn.Set(eventKey(id), rec.marshal(nil)); err != nil {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			ev, err = rec.materialize(id)
			return
		},
	)
	if err != nil {
		ev = nil
	}
	return
}

func (d *D) GetEvent(c context.Context, id uint32) (
	ev *store.StoredEvent, err error,
) {
	err = d.View(
		func(txn *badger.Txn) (err error) {
			var rec *record
			if rec, err = getRecord(txn, id); err != nil {
				return
			}
			ev, err = rec.materialize(id)
			return
		},
	)
	return
}

func (d *D) GetEventByEventId(c context.Context, eventID string) (
	ev *store.StoredEvent, err error,
) {
	err = d.View(
		func(txn *badger.Txn) (err error) {
			var item *badger.Item
			if item, err = txn.Get(nameKey(eventID)); err != nil {
				if err == badger.ErrKeyNotFound {
					err = oracle.ErrNotFound
				} else {
					err = fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
						err.Error())
				}
				return
			}
			var idBytes []byte
			if idBytes, err = item.ValueCopy(nil); err != nil {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			var rec *record
			id := binary.BigEndian.Uint32(idBytes)
			if rec, err = getRecord(txn, id); err != nil {
				return
			}
			ev, err = rec.materialize(id)
			return
		},
	)
	return
}

func (d *D) ListEvents(c context.Context) (evs []*store.StoredEvent, err error) {
	err = d.View(
		func(txn *badger.Txn) (err error) {
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixEvent})
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				k := item.Key()
				if len(k) != len(prefixEvent)+4 {
					continue
				}
				id := binary.BigEndian.Uint32(k[len(prefixEvent):])
				var val []byte
				if val, err = item.ValueCopy(nil); err != nil {
					return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
						err.Error())
				}
				rec := &record{}
				if err = rec.unmarshal(val); err != nil {
					return fmt.Errorf("%w: %s", oracle.ErrInternal,
						err.Error())
				}
				var ev *store.StoredEvent
				if ev, err = rec.materialize(id); err != nil {
					return
				}
				evs = append(evs, ev)
			}
			return
		},
	)
	if err != nil {
		evs = nil
	}
	return
}

func (d *D) addEventID(id uint32, nostrID []byte, attestation bool) (
	err error,
) {
	return d.Update(
		func(txn *badger.Txn) (err error) {
			var rec *record
			if rec, err = getRecord(txn, id); err != nil {
				return
			}
			if attestation {
				rec.attestationEventID = nostrID
			} else {
				rec.announcementEventID = nostrID
			}
			if err = txn.Set(eventKey(id), rec.marshal(nil)); err != nil {
				return fmt.Errorf("%w: %s", oracle.ErrStorageFailure,
					err.Error())
			}
			return
		},
	)
}

func (d *D) AddAnnouncementEventId(
	c context.Context, id uint32, nostrID []byte,
) (err error) {
	return d.addEventID(id, nostrID, false)
}

func (d *D) AddAttestationEventId(
	c context.Context, id uint32, nostrID []byte,
) (err error) {
	return d.addEventID(id, nostrID, true)
}
