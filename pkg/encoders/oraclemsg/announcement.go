package oraclemsg

import (
	"lol.mleku.dev/errorf"
	"next.orly.dev/pkg/encoders/hex"

	"oracle.mleku.dev/pkg/crypto/curve"
	"oracle.mleku.dev/pkg/encoders/bigsize"
)

const (
	// SignatureLen is the serialised length of a BIP-340 signature.
	SignatureLen = 64
	// PubKeyLen is the serialised length of an X-only public key.
	PubKeyLen = 32
)

// Announcement is the oracle's signed commitment to an event: a schnorr
// signature by the oracle key over the SHA-256 of the encoded event.
type Announcement struct {
	// Signature is the BIP-340 signature over Event.Hash().
	Signature []byte

	// PublicKey is the oracle's X-only public key.
	PublicKey []byte

	// Event is the committed oracle event.
	Event Event
}

// Marshal appends the oracle_announcement TLV, type and length included.
func (a *Announcement) Marshal(dst []byte) (b []byte) {
	body := make([]byte, 0, SignatureLen+PubKeyLen+128)
	body = append(body, a.Signature...)
	body = append(body, a.PublicKey...)
	body = a.Event.Marshal(body)
	b = bigsize.Append(dst, TypeAnnouncement)
	b = bigsize.AppendBytes(b, body)
	return
}

// Unmarshal decodes an oracle_announcement TLV from the front of b and
// returns the remainder.
func (a *Announcement) Unmarshal(b []byte) (rem []byte, err error) {
	var typ uint64
	if typ, rem, err = bigsize.Read(b); err != nil {
		return
	}
	if typ != TypeAnnouncement {
		err = errorf.E(
			"expected oracle_announcement TLV type %d, got %d",
			TypeAnnouncement, typ,
		)
		return
	}
	var body []byte
	if body, rem, err = bigsize.ReadBytes(rem); err != nil {
		return
	}
	if len(body) < SignatureLen+PubKeyLen {
		err = errorf.E("oracle_announcement body too short")
		return
	}
	a.Signature = make([]byte, SignatureLen)
	copy(a.Signature, body)
	body = body[SignatureLen:]
	a.PublicKey = make([]byte, PubKeyLen)
	copy(a.PublicKey, body)
	body = body[PubKeyLen:]
	if body, err = a.Event.Unmarshal(body); err != nil {
		return
	}
	if len(body) != 0 {
		err = errorf.E(
			"oracle_announcement has %d trailing bytes", len(body),
		)
	}
	return
}

// Validate checks the structural invariants and the event's.
func (a *Announcement) Validate() (err error) {
	if len(a.Signature) != SignatureLen {
		return errorf.E(
			"announcement signature is %d bytes, want %d", len(a.Signature),
			SignatureLen,
		)
	}
	if len(a.PublicKey) != PubKeyLen {
		return errorf.E(
			"announcement pubkey is %d bytes, want %d", len(a.PublicKey),
			PubKeyLen,
		)
	}
	return a.Event.Validate()
}

// Verify reports whether the announcement signature is a valid schnorr
// signature over the event hash by the announcement's public key, after
// structural validation.
func (a *Announcement) Verify() (valid bool, err error) {
	if err = a.Validate(); err != nil {
		return
	}
	return curve.Verify(a.Signature, a.Event.Hash(), a.PublicKey)
}

// MarshalHex returns the TLV encoding as a hex string.
func (a *Announcement) MarshalHex() (s string) {
	return hex.Enc(a.Marshal(nil))
}

// AnnouncementFromHex decodes a hex TLV announcement.
func AnnouncementFromHex(s string) (a *Announcement, err error) {
	var b []byte
	if b, err = hex.Dec(s); err != nil {
		return
	}
	a = &Announcement{}
	var rem []byte
	if rem, err = a.Unmarshal(b); err != nil {
		return
	}
	if len(rem) != 0 {
		err = errorf.E("announcement hex has %d trailing bytes", len(rem))
		a = nil
	}
	return
}
