package oraclemsg

import (
	"bytes"
	"encoding/binary"

	"lol.mleku.dev/errorf"
	"next.orly.dev/pkg/encoders/hex"

	"oracle.mleku.dev/pkg/encoders/bigsize"
)

// Attestation reveals an event's outcome: one schnorr signature per nonce,
// each signature's first 32 bytes being the pre-committed nonce point from
// the announcement.
type Attestation struct {
	// PublicKey is the oracle's X-only public key.
	PublicKey []byte

	// Outcomes are the outcome strings, one per signature, in nonce order.
	Outcomes []string

	// Signatures are the BIP-340 signatures over sha256 of each outcome's
	// UTF-8 bytes.
	Signatures [][]byte
}

// Marshal appends the oracle_attestation TLV, type and length included.
func (a *Attestation) Marshal(dst []byte) (b []byte) {
	body := make([]byte, 0, PubKeyLen+len(a.Signatures)*SignatureLen+64)
	body = append(body, a.PublicKey...)
	body = binary.BigEndian.AppendUint16(body, uint16(len(a.Signatures)))
	for _, sig := range a.Signatures {
		body = append(body, sig...)
	}
	for _, o := range a.Outcomes {
		body = bigsize.AppendBytes(body, []byte(o))
	}
	b = bigsize.Append(dst, TypeAttestation)
	b = bigsize.AppendBytes(b, body)
	return
}

// Unmarshal decodes an oracle_attestation TLV from the front of b and
// returns the remainder.
func (a *Attestation) Unmarshal(b []byte) (rem []byte, err error) {
	var typ uint64
	if typ, rem, err = bigsize.Read(b); err != nil {
		return
	}
	if typ != TypeAttestation {
		err = errorf.E(
			"expected oracle_attestation TLV type %d, got %d",
			TypeAttestation, typ,
		)
		return
	}
	var body []byte
	if body, rem, err = bigsize.ReadBytes(rem); err != nil {
		return
	}
	if len(body) < PubKeyLen+2 {
		err = errorf.E("oracle_attestation body too short")
		return
	}
	a.PublicKey = make([]byte, PubKeyLen)
	copy(a.PublicKey, body)
	body = body[PubKeyLen:]
	nb := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	if len(body) < nb*SignatureLen {
		err = errorf.E("oracle_attestation truncated in signatures")
		return
	}
	a.Signatures = make([][]byte, nb)
	for i := 0; i < nb; i++ {
		a.Signatures[i] = make([]byte, SignatureLen)
		copy(a.Signatures[i], body[:SignatureLen])
		body = body[SignatureLen:]
	}
	a.Outcomes = make([]string, 0, nb)
	for i := 0; i < nb; i++ {
		var o []byte
		if o, body, err = bigsize.ReadBytes(body); err != nil {
			return
		}
		a.Outcomes = append(a.Outcomes, string(o))
	}
	if len(body) != 0 {
		err = errorf.E(
			"oracle_attestation has %d trailing bytes", len(body),
		)
	}
	return
}

// Validate checks the structural invariants: equal non-zero outcome and
// signature counts, 64 byte signatures and a 32 byte public key.
func (a *Attestation) Validate() (err error) {
	if len(a.PublicKey) != PubKeyLen {
		return errorf.E(
			"attestation pubkey is %d bytes, want %d", len(a.PublicKey),
			PubKeyLen,
		)
	}
	if len(a.Signatures) == 0 {
		return errorf.E("attestation has no signatures")
	}
	if len(a.Signatures) != len(a.Outcomes) {
		return errorf.E(
			"attestation has %d signatures but %d outcomes",
			len(a.Signatures), len(a.Outcomes),
		)
	}
	for i, sig := range a.Signatures {
		if len(sig) != SignatureLen {
			return errorf.E(
				"attestation signature %d is %d bytes, want %d", i, len(sig),
				SignatureLen,
			)
		}
	}
	return
}

// CommitsTo reports whether each signature's R component equals the
// corresponding announcement nonce, the property DLC counterparties depend
// on to recover the attested secret.
func (a *Attestation) CommitsTo(e *Event) (ok bool) {
	if len(a.Signatures) != len(e.Nonces) {
		return
	}
	for i, sig := range a.Signatures {
		if len(sig) != SignatureLen ||
			!bytes.Equal(sig[:NonceLen], e.Nonces[i]) {
			return
		}
	}
	ok = true
	return
}

// MarshalHex returns the TLV encoding as a hex string.
func (a *Attestation) MarshalHex() (s string) {
	return hex.Enc(a.Marshal(nil))
}

// AttestationFromHex decodes a hex TLV attestation.
func AttestationFromHex(s string) (a *Attestation, err error) {
	var b []byte
	if b, err = hex.Dec(s); err != nil {
		return
	}
	a = &Attestation{}
	var rem []byte
	if rem, err = a.Unmarshal(b); err != nil {
		return
	}
	if len(rem) != 0 {
		err = errorf.E("attestation hex has %d trailing bytes", len(rem))
		a = nil
	}
	return
}
