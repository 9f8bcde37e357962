// Package curve wraps the btcec secp256k1 implementation with the operations
// the oracle needs: X-only public keys with BIP-340 parity handling,
// deterministic schnorr signing and verifying, and a signing primitive that
// accepts an externally chosen nonce, which no stock BIP-340 API exposes.
package curve

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/errorf"
)

// challengePrefix is sha256("BIP0340/challenge") twice over, the fixed prefix
// of every BIP-340 challenge hash.
var challengePrefix [64]byte

func init() {
	tag := sha256.Sum256([]byte("BIP0340/challenge"))
	copy(challengePrefix[:32], tag[:])
	copy(challengePrefix[32:], tag[:])
}

// XOnly returns the 32 byte X-only public key of a secret key.
func XOnly(sec *btcec.PrivateKey) (pub [32]byte) {
	copy(pub[:], schnorr.SerializePubKey(sec.PubKey()))
	return
}

// evenKey returns the X-only public key of sec together with the scalar that
// produces it with an even Y coordinate, negating the secret when the point's
// Y is odd, per the BIP-340 convention.
func evenKey(sec *btcec.PrivateKey) (pub [32]byte, k btcec.ModNScalar) {
	k = sec.Key
	pk := sec.PubKey()
	if pk.SerializeCompressed()[0] == 0x03 {
		k.Negate()
		pk = (&btcec.PrivateKey{Key: k}).PubKey()
	}
	copy(pub[:], schnorr.SerializePubKey(pk))
	return
}

// SignDeterministic produces a BIP-340 signature over a 32 byte message hash
// with no auxiliary randomness, so the same key and message always yield the
// same signature bytes.
func SignDeterministic(msg []byte, sec *btcec.PrivateKey) (
	sig []byte, err error,
) {
	if len(msg) != 32 {
		err = errorf.E("message must be 32 bytes, got %d", len(msg))
		return
	}
	var s *schnorr.Signature
	if s, err = schnorr.Sign(sec, msg); chk.E(err) {
		return
	}
	sig = s.Serialize()
	return
}

// Verify reports whether sig is a valid BIP-340 signature over the 32 byte
// msg by the X-only public key pub.
func Verify(sig, msg, pub []byte) (valid bool, err error) {
	if len(msg) != 32 {
		err = errorf.E("message must be 32 bytes, got %d", len(msg))
		return
	}
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pub); chk.E(err) {
		return
	}
	var s *schnorr.Signature
	if s, err = schnorr.ParseSignature(sig); chk.E(err) {
		return
	}
	valid = s.Verify(msg, pk)
	return
}

// SignWithNonce computes a BIP-340 signature over msg using the given nonce
// secret instead of deriving one from the message. Both scalars are
// normalised to their even-Y form, then
//
//	e = sha256(challengePrefix || R || P || msg)
//	s = k + x*e mod n
//
// and the signature is R || s. The first 32 bytes of the result are exactly
// the X-only serialisation of the nonce point, which is what lets a verifier
// who holds the announcement recover the committed secret from the
// attestation.
func SignWithNonce(msg []byte, sec, nonce *btcec.PrivateKey) (
	sig []byte, err error,
) {
	if sec.Key.IsZero() || nonce.Key.IsZero() {
		err = errorf.E("zero scalar in nonce or signing key")
		return
	}
	rx, k := evenKey(nonce)
	px, x := evenKey(sec)
	m := make([]byte, 0, 64+32+32+len(msg))
	m = append(m, challengePrefix[:]...)
	m = append(m, rx[:]...)
	m = append(m, px[:]...)
	m = append(m, msg...)
	e := sha256.Sum256(m)
	var ev btcec.ModNScalar
	ev.SetByteSlice(e[:])
	s := new(btcec.ModNScalar).Mul2(&x, &ev).Add(&k)
	if s.IsZero() {
		err = errorf.E("signature scalar is zero")
		return
	}
	sb := s.Bytes()
	sig = make([]byte, 0, 64)
	sig = append(sig, rx[:]...)
	sig = append(sig, sb[:]...)
	return
}
