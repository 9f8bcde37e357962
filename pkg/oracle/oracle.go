// Package oracle implements the announce/attest coordinator. An Oracle owns
// its key material and a storage handle; it allocates nonce indexes, signs
// announcements with the oracle key, and later signs exactly one attestation
// per event with the pre-committed nonces. Publication is not its concern:
// the Nostr side is injected at call sites so the cryptographic core stays
// free of I/O.
package oracle

import (
	"bytes"
	"fmt"

	"context"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/minio/sha256-simd"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"
	"next.orly.dev/pkg/crypto/p256k"
	"next.orly.dev/pkg/interfaces/signer"

	"oracle.mleku.dev/pkg/crypto/curve"
	"oracle.mleku.dev/pkg/crypto/keys"
	"oracle.mleku.dev/pkg/encoders/oraclemsg"
	"oracle.mleku.dev/pkg/interfaces/store"
)

// T is a DLC oracle bound to one signing key and one store.
type T struct {
	keys  *keys.K
	store store.I
}

// New builds an oracle from a raw signing key, deriving the nonce tree the
// canonical way (sha256 of the signing scalar seeding a fresh BIP-32
// master).
func New(st store.I, sec *btcec.PrivateKey) (o *T, err error) {
	var k *keys.K
	if k, err = keys.FromSigningKey(sec); chk.E(err) {
		return
	}
	o = &T{keys: k, store: st}
	return
}

// FromXpriv builds an oracle from a wallet root, using the legacy derivation
// scheme. A store written under one scheme must never be reopened under the
// other.
func FromXpriv(st store.I, xpriv *hdkeychain.ExtendedKey) (o *T, err error) {
	var k *keys.K
	if k, err = keys.FromRootXpriv(xpriv); chk.E(err) {
		return
	}
	o = &T{keys: k, store: st}
	return
}

// PublicKey returns the oracle's X-only public key.
func (o *T) PublicKey() (pub [32]byte) { return o.keys.Pub() }

// Store exposes the storage handle for read paths (listing, lookups).
func (o *T) Store() (st store.I) { return o.store }

// NostrSigner returns a signer over the oracle signing key, so the oracle's
// identity on the messaging overlay equals its cryptographic identity.
func (o *T) NostrSigner() (sign signer.I, err error) {
	s := &p256k.Signer{}
	if err = s.InitSec(o.keys.Sec().Serialize()); chk.E(err) {
		return
	}
	sign = s
	return
}

// announce allocates nonce indexes, composes and signs the event, persists
// the announcement, and returns the assigned id. Nonce indexes are consumed
// whether or not persistence succeeds; an index that was exposed to signing
// code is never handed out again.
func (o *T) announce(
	c context.Context, eventID string, d oraclemsg.Descriptor, maturity uint32,
) (id uint32, ann *oraclemsg.Announcement, err error) {
	if eventID == "" {
		err = fmt.Errorf("%w: event id is empty", ErrInvalidArgument)
		return
	}
	if err = d.Validate(); err != nil {
		err = fmt.Errorf("%w: %s", ErrInvalidArgument, err.Error())
		return
	}
	var indexes []uint32
	if indexes, err = o.store.NextNonceIndexes(c, d.NumNonces()); err != nil {
		return
	}
	nonces := make([][]byte, len(indexes))
	for i, idx := range indexes {
		var pub [32]byte
		if pub, err = o.keys.NoncePublic(idx); chk.E(err) {
			err = fmt.Errorf("%w: nonce derivation: %s", ErrInternal,
				err.Error())
			return
		}
		nonces[i] = pub[:]
	}
	ev := oraclemsg.Event{
		Nonces:        nonces,
		MaturityEpoch: maturity,
		Descriptor:    d,
		ID:            eventID,
	}
	if err = ev.Validate(); err != nil {
		err = fmt.Errorf("%w: %s", ErrInvalidArgument, err.Error())
		return
	}
	pub := o.keys.Pub()
	ann = &oraclemsg.Announcement{PublicKey: pub[:], Event: ev}
	if ann.Signature, err = curve.SignDeterministic(
		ev.Hash(), o.keys.Sec(),
	); chk.E(err) {
		err = fmt.Errorf("%w: announcement signing: %s", ErrInternal,
			err.Error())
		return
	}
	var valid bool
	if valid, err = ann.Verify(); chk.E(err) || !valid {
		err = fmt.Errorf("%w: announcement failed self verification",
			ErrInternal)
		return
	}
	if id, err = o.store.SaveAnnouncement(c, ann, indexes); err != nil {
		return
	}
	log.I.F("announced event %s (id %d, %d nonces)", eventID, id,
		len(nonces))
	return
}

// CreateEnumEvent announces an event with one of a fixed set of string
// outcomes. Enum events commit to exactly one nonce.
func (o *T) CreateEnumEvent(
	c context.Context, eventID string, outcomes []string, maturity uint32,
) (id uint32, ann *oraclemsg.Announcement, err error) {
	return o.announce(c, eventID, &oraclemsg.Enum{Outcomes: outcomes},
		maturity)
}

// SignEnumEvent attests to an announced enum event. It re-derives the nonce
// secret from the stored index, signs sha256 of the outcome's UTF-8 bytes
// with that exact nonce, persists the result and returns the attestation.
// Signing is one-shot: any later call fails with ErrEventAlreadySigned.
func (o *T) SignEnumEvent(c context.Context, id uint32, outcome string) (
	att *oraclemsg.Attestation, err error,
) {
	var stored *store.StoredEvent
	if stored, err = o.store.GetEvent(c, id); err != nil {
		return
	}
	if stored.Attested() {
		err = ErrEventAlreadySigned
		return
	}
	d, ok := stored.Announcement.Event.Descriptor.(*oraclemsg.Enum)
	if !ok {
		err = fmt.Errorf("%w: event %d is not an enum event", ErrInternal, id)
		return
	}
	if len(stored.Indexes) != 1 {
		err = fmt.Errorf("%w: enum event %d has %d nonce indexes",
			ErrInternal, id, len(stored.Indexes))
		return
	}
	found := false
	for _, candidate := range d.Outcomes {
		if candidate == outcome {
			found = true
			break
		}
	}
	if !found {
		err = fmt.Errorf("%w: %q is not among the announced outcomes",
			ErrInvalidOutcome, outcome)
		return
	}
	msg := sha256.Sum256([]byte(outcome))
	var sig []byte
	if sig, err = o.signWithIndex(
		msg[:], stored.Indexes[0], stored.Announcement.Event.Nonces[0],
	); err != nil {
		return
	}
	if stored, err = o.store.SaveSignatures(
		c, id, []store.OutcomeSignature{{Outcome: outcome, Signature: sig}},
	); err != nil {
		return
	}
	pub := o.keys.Pub()
	att = &oraclemsg.Attestation{
		PublicKey:  pub[:],
		Outcomes:   []string{outcome},
		Signatures: [][]byte{sig},
	}
	log.I.F("attested event %s (id %d) with outcome %q",
		stored.Announcement.Event.ID, id, outcome)
	return
}

// signWithIndex re-derives the nonce secret at index, signs msg with it, and
// checks both the nonce commitment and the signature before returning.
func (o *T) signWithIndex(msg []byte, index uint32, committed []byte) (
	sig []byte, err error,
) {
	var nonce *btcec.PrivateKey
	if nonce, err = o.keys.NonceScalar(index); chk.E(err) {
		err = fmt.Errorf("%w: nonce re-derivation: %s", ErrInternal,
			err.Error())
		return
	}
	if sig, err = curve.SignWithNonce(msg, o.keys.Sec(), nonce); chk.E(err) {
		err = fmt.Errorf("%w: %s", ErrInternal, err.Error())
		return
	}
	// the R component must be the nonce the announcement committed to
	if !bytes.Equal(sig[:32], committed) {
		err = fmt.Errorf("%w: signature R does not match committed nonce",
			ErrInternal)
		return
	}
	pub := o.keys.Pub()
	var valid bool
	var verr error
	if valid, verr = curve.Verify(sig, msg, pub[:]); chk.E(verr) || !valid {
		err = fmt.Errorf("%w: attestation failed self verification",
			ErrInternal)
		return
	}
	return
}
