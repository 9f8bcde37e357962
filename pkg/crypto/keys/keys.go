// Package keys derives the oracle's key material: a single signing key and a
// BIP-32 tree of nonce secrets that can be re-derived from a u32 index at
// attestation time, so no nonce secret ever needs to be stored.
package keys

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/minio/sha256-simd"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/errorf"
)

// m/86'/0'/0'/0/0, the first taproot key of a standard wallet.
var signingKeyPath = []uint32{
	hdkeychain.HardenedKeyStart + 86,
	hdkeychain.HardenedKeyStart,
	hdkeychain.HardenedKeyStart,
	0,
	0,
}

// m/585'/0'/0', the legacy nonce root used when the oracle is constructed
// from a wallet xpriv.
var legacyNoncePath = []uint32{
	hdkeychain.HardenedKeyStart + 585,
	hdkeychain.HardenedKeyStart,
	hdkeychain.HardenedKeyStart,
}

// K holds the oracle signing key and the master of the nonce tree. The two
// are domain separated: the canonical construction hashes the signing scalar
// to seed an independent BIP-32 master rather than deriving the nonce tree
// on a sibling path.
type K struct {
	sec         *btcec.PrivateKey
	pub         [32]byte
	nonceMaster *hdkeychain.ExtendedKey
}

// FromSigningKey is the canonical constructor: the nonce master is a fresh
// BIP-32 master keyed by sha256 of the signing scalar on mainnet parameters.
// A given signing key always produces the same nonce tree.
func FromSigningKey(sec *btcec.PrivateKey) (k *K, err error) {
	if sec == nil || sec.Key.IsZero() {
		err = errorf.E("signing key is zero")
		return
	}
	seed := sha256.Sum256(sec.Serialize())
	var master *hdkeychain.ExtendedKey
	if master, err = hdkeychain.NewMaster(
		seed[:], &chaincfg.MainNetParams,
	); chk.E(err) {
		return
	}
	k = &K{sec: sec, nonceMaster: master}
	copy(k.pub[:], schnorrPub(sec))
	return
}

// FromRootXpriv is the legacy constructor: the signing key is derived at
// m/86'/0'/0'/0/0 and the nonce master at m/585'/0'/0' of the supplied root.
// The two constructors produce different nonce trees for the same signing
// key, and persistence carries no marker of which was used, so a deployment
// must never migrate between them.
func FromRootXpriv(xpriv *hdkeychain.ExtendedKey) (k *K, err error) {
	var sec *btcec.PrivateKey
	signing := xpriv
	for _, i := range signingKeyPath {
		if signing, err = signing.Derive(i); chk.E(err) {
			return
		}
	}
	if sec, err = signing.ECPrivKey(); chk.E(err) {
		return
	}
	nonceMaster := xpriv
	for _, i := range legacyNoncePath {
		if nonceMaster, err = nonceMaster.Derive(i); chk.E(err) {
			return
		}
	}
	k = &K{sec: sec, nonceMaster: nonceMaster}
	copy(k.pub[:], schnorrPub(sec))
	return
}

// Sec returns the oracle signing key.
func (k *K) Sec() *btcec.PrivateKey { return k.sec }

// Pub returns the X-only public key of the signing key.
func (k *K) Pub() (pub [32]byte) { return k.pub }

// NonceScalar derives the nonce secret at the hardened child index of the
// nonce master. The derivation is deterministic, so the same index yields
// the same secret across restarts.
func (k *K) NonceScalar(index uint32) (sec *btcec.PrivateKey, err error) {
	var child *hdkeychain.ExtendedKey
	if child, err = k.nonceMaster.Derive(
		hdkeychain.HardenedKeyStart + index,
	); chk.E(err) {
		return
	}
	if sec, err = child.ECPrivKey(); chk.E(err) {
		return
	}
	return
}

// NoncePublic derives the X-only public key of the nonce at index.
func (k *K) NoncePublic(index uint32) (pub [32]byte, err error) {
	var sec *btcec.PrivateKey
	if sec, err = k.NonceScalar(index); err != nil {
		return
	}
	copy(pub[:], schnorrPub(sec))
	return
}

func schnorrPub(sec *btcec.PrivateKey) []byte {
	return schnorr.SerializePubKey(sec.PubKey())
}
