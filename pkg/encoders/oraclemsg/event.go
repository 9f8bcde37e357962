package oraclemsg

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"
	"lol.mleku.dev/errorf"

	"oracle.mleku.dev/pkg/encoders/bigsize"
)

// NonceLen is the serialised length of an X-only nonce point.
const NonceLen = 32

// Event is the thing an oracle commits to: an identifier, a maturity time,
// the outcome descriptor, and the nonce points that the eventual attestation
// signatures will reuse.
type Event struct {
	// Nonces holds the X-only public keys of the pre-committed nonces, in
	// signing order.
	Nonces [][]byte

	// MaturityEpoch is the unix time after which the oracle expects to
	// attest.
	MaturityEpoch uint32

	// Descriptor enumerates the outcome space.
	Descriptor Descriptor

	// ID is the user-chosen event name, unique per oracle.
	ID string
}

// Marshal appends the oracle_event TLV, type and length included.
func (e *Event) Marshal(dst []byte) (b []byte) {
	body := binary.BigEndian.AppendUint16(nil, uint16(len(e.Nonces)))
	for _, n := range e.Nonces {
		body = append(body, n...)
	}
	body = binary.BigEndian.AppendUint32(body, e.MaturityEpoch)
	body = e.Descriptor.Marshal(body)
	body = bigsize.AppendBytes(body, []byte(e.ID))
	b = bigsize.Append(dst, TypeEvent)
	b = bigsize.AppendBytes(b, body)
	return
}

// Unmarshal decodes an oracle_event TLV from the front of b and returns the
// remainder.
func (e *Event) Unmarshal(b []byte) (rem []byte, err error) {
	var typ uint64
	if typ, rem, err = bigsize.Read(b); err != nil {
		return
	}
	if typ != TypeEvent {
		err = errorf.E("expected oracle_event TLV type %d, got %d",
			TypeEvent, typ)
		return
	}
	var body []byte
	if body, rem, err = bigsize.ReadBytes(rem); err != nil {
		return
	}
	if len(body) < 2 {
		err = errorf.E("oracle_event body too short")
		return
	}
	nb := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	if len(body) < nb*NonceLen+4 {
		err = errorf.E("oracle_event truncated in nonces")
		return
	}
	e.Nonces = make([][]byte, nb)
	for i := 0; i < nb; i++ {
		e.Nonces[i] = make([]byte, NonceLen)
		copy(e.Nonces[i], body[:NonceLen])
		body = body[NonceLen:]
	}
	e.MaturityEpoch = binary.BigEndian.Uint32(body)
	body = body[4:]
	if e.Descriptor, body, err = readDescriptor(body); err != nil {
		return
	}
	var id []byte
	if id, body, err = bigsize.ReadBytes(body); err != nil {
		return
	}
	e.ID = string(id)
	if len(body) != 0 {
		err = errorf.E("oracle_event has %d trailing bytes", len(body))
	}
	return
}

// Validate checks the event invariants: at least one nonce, nonce count
// matching the descriptor, well formed nonces, a non-empty id, and a valid
// descriptor.
func (e *Event) Validate() (err error) {
	if e.ID == "" {
		return errorf.E("event id is empty")
	}
	if e.Descriptor == nil {
		return errorf.E("event has no descriptor")
	}
	if err = e.Descriptor.Validate(); err != nil {
		return
	}
	if len(e.Nonces) == 0 {
		return errorf.E("event has no nonces")
	}
	if len(e.Nonces) != e.Descriptor.NumNonces() {
		return errorf.E(
			"event has %d nonces, descriptor needs %d", len(e.Nonces),
			e.Descriptor.NumNonces(),
		)
	}
	for i, n := range e.Nonces {
		if len(n) != NonceLen {
			return errorf.E("nonce %d is %d bytes, want %d", i, len(n),
				NonceLen)
		}
	}
	return
}

// Hash is the SHA-256 of the encoded event, the message the announcement
// signature commits to.
func (e *Event) Hash() (h []byte) {
	sum := sha256.Sum256(e.Marshal(nil))
	h = sum[:]
	return
}
