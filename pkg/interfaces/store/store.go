// Package store defines the persistence capability the oracle is
// parameterised by: a mapping of event id to announcement, nonce indexes and
// eventual signatures, plus the globally monotonic nonce index allocator.
// The oracle knows nothing about the backing medium; implementations live in
// pkg/database (badger) and pkg/database/memory.
package store

import (
	"context"

	"oracle.mleku.dev/pkg/encoders/oraclemsg"
)

// OutcomeSignature pairs an outcome string with the signature that attests
// to it. Order is positional with respect to the event's nonces.
type OutcomeSignature struct {
	Outcome   string
	Signature []byte
}

// StoredEvent is the unit of persistence. It is created by SaveAnnouncement
// and afterwards only mutated to attach the announcement's Nostr event id,
// the attestation signatures, and the attestation's Nostr event id. Once
// Signatures is non-empty they never change again.
type StoredEvent struct {
	// ID is the store-assigned surrogate id.
	ID uint32

	// Announcement is the full signed announcement.
	Announcement *oraclemsg.Announcement

	// Indexes are the hardened derivation indexes of the event's nonces, in
	// nonce order.
	Indexes []uint32

	// Outcomes and Signatures are parallel to Indexes and empty until the
	// event is attested.
	Outcomes   []string
	Signatures [][]byte

	// AnnouncementEventID and AttestationEventID are the Nostr event ids
	// recorded after publication, purely informational.
	AnnouncementEventID []byte
	AttestationEventID  []byte
}

// Attested reports whether the event has been signed.
func (e *StoredEvent) Attested() (yes bool) { return len(e.Signatures) > 0 }

// I is the storage capability. All operations are logically atomic with
// respect to each other and may suspend; none of them retries internally.
type I interface {
	// NextNonceIndexes returns n strictly consecutive indexes, each greater
	// than every index returned before by this store handle and than every
	// index saved with an announcement. Concurrent calls never overlap.
	// Allocated indexes are never reissued while the store is open, even when
	// the caller subsequently fails; a persistent store rebuilds its counter
	// on open from the indexes saved with announcements, so indexes that were
	// allocated but never saved may be handed out again after a reopen.
	NextNonceIndexes(c context.Context, n int) (indexes []uint32, err error)

	// SaveAnnouncement atomically persists a new announcement together with
	// the indexes its nonces were derived from, and returns the assigned
	// event id. Not idempotent; callers must not blindly retry.
	SaveAnnouncement(
		c context.Context, ann *oraclemsg.Announcement, indexes []uint32,
	) (id uint32, err error)

	// SaveSignatures attaches the outcome signatures to an announced event,
	// positionally. Fails with oracle.ErrNotFound for an unknown id,
	// oracle.ErrEventAlreadySigned when any signature is already stored,
	// and oracle.ErrInternal on a count mismatch.
	SaveSignatures(
		c context.Context, id uint32, sigs []OutcomeSignature,
	) (ev *StoredEvent, err error)

	// GetEvent returns the stored event or oracle.ErrNotFound.
	GetEvent(c context.Context, id uint32) (ev *StoredEvent, err error)

	// GetEventByEventId looks an event up by its user-chosen name.
	GetEventByEventId(c context.Context, eventID string) (
		ev *StoredEvent, err error,
	)

	// ListEvents returns all stored events in id order.
	ListEvents(c context.Context) (evs []*StoredEvent, err error)

	// AddAnnouncementEventId records the Nostr event id of the published
	// announcement. Overwriting an existing value is permitted.
	AddAnnouncementEventId(c context.Context, id uint32, nostrID []byte) (err error)

	// AddAttestationEventId records the Nostr event id of the published
	// attestation. Overwriting an existing value is permitted.
	AddAttestationEventId(c context.Context, id uint32, nostrID []byte) (err error)
}
