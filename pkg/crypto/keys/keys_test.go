package keys

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"lukechampine.com/frand"
)

func testKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	sec, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{1}, 32))
	return sec
}

func TestNonceScalarDeterministic(t *testing.T) {
	a, err := FromSigningKey(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	// a second instance built from the same signing key simulates a restart
	b, err := FromSigningKey(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, idx := range []uint32{0, 1, 7, 1000, 1 << 20} {
		sa, err := a.NonceScalar(idx)
		if err != nil {
			t.Fatalf("NonceScalar(%d): %v", idx, err)
		}
		sb, err := b.NonceScalar(idx)
		if err != nil {
			t.Fatalf("NonceScalar(%d): %v", idx, err)
		}
		if !bytes.Equal(sa.Serialize(), sb.Serialize()) {
			t.Errorf("index %d derived different scalars across instances", idx)
		}
	}
}

func TestNonceScalarsDistinct(t *testing.T) {
	k, err := FromSigningKey(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[[32]byte]uint32)
	for idx := uint32(0); idx < 64; idx++ {
		pub, err := k.NoncePublic(idx)
		if err != nil {
			t.Fatal(err)
		}
		if prev, ok := seen[pub]; ok {
			t.Fatalf("indexes %d and %d derived the same nonce", prev, idx)
		}
		seen[pub] = idx
	}
}

func TestFromSigningKeyRejectsZero(t *testing.T) {
	zero, _ := btcec.PrivKeyFromBytes(make([]byte, 32))
	if _, err := FromSigningKey(zero); err == nil {
		t.Error("FromSigningKey accepted a zero scalar")
	}
	if _, err := FromSigningKey(nil); err == nil {
		t.Error("FromSigningKey accepted a nil key")
	}
}

func TestConstructorsDiverge(t *testing.T) {
	seed := frand.Bytes(32)
	root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	legacy, err := FromRootXpriv(root)
	if err != nil {
		t.Fatal(err)
	}
	// rebuilding from the signing key that FromRootXpriv derived must give
	// the same signing identity but a different nonce tree
	canonical, err := FromSigningKey(legacy.Sec())
	if err != nil {
		t.Fatal(err)
	}
	lp, cp := legacy.Pub(), canonical.Pub()
	if !bytes.Equal(lp[:], cp[:]) {
		t.Fatal("signing identity changed between constructors")
	}
	ln, err := legacy.NonceScalar(0)
	if err != nil {
		t.Fatal(err)
	}
	cn, err := canonical.NonceScalar(0)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ln.Serialize(), cn.Serialize()) {
		t.Error("legacy and canonical nonce trees unexpectedly coincide")
	}
}

func TestFromRootXprivDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{42}, 32)
	a, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	b, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	ka, err := FromRootXpriv(a)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := FromRootXpriv(b)
	if err != nil {
		t.Fatal(err)
	}
	pa, pb := ka.Pub(), kb.Pub()
	if !bytes.Equal(pa[:], pb[:]) {
		t.Error("signing key derivation is not deterministic")
	}
	na, err := ka.NonceScalar(3)
	if err != nil {
		t.Fatal(err)
	}
	nb, err := kb.NonceScalar(3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(na.Serialize(), nb.Serialize()) {
		t.Error("legacy nonce derivation is not deterministic")
	}
}
