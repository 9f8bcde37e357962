package publish

import (
	"bytes"
	"encoding/base64"
	"testing"

	"lukechampine.com/frand"
	"next.orly.dev/pkg/crypto/p256k"
	"next.orly.dev/pkg/encoders/hex"

	"next.orly.dev/pkg/encoders/tag"

	"oracle.mleku.dev/pkg/encoders/oraclemsg"
)

func tagsToStrings(tags *tag.S) (out [][]string) {
	for _, t := range *tags {
		row := make([]string, 0, len(t.T))
		for _, f := range t.T {
			row = append(row, string(f))
		}
		out = append(out, row)
	}
	return
}

func testSigner(t *testing.T) *p256k.Signer {
	t.Helper()
	s := &p256k.Signer{}
	if err := s.Generate(); err != nil {
		t.Fatal(err)
	}
	return s
}

func testAnnouncement() *oraclemsg.Announcement {
	return &oraclemsg.Announcement{
		Signature: frand.Bytes(64),
		PublicKey: frand.Bytes(32),
		Event: oraclemsg.Event{
			Nonces:        [][]byte{frand.Bytes(32)},
			MaturityEpoch: 100,
			Descriptor:    &oraclemsg.Enum{Outcomes: []string{"a", "b"}},
			ID:            "test",
		},
	}
}

func TestAnnouncementEvent(t *testing.T) {
	s := testSigner(t)
	ann := testAnnouncement()
	relays := []string{"wss://relay.damus.io", "wss://nos.lol"}
	ev, err := AnnouncementEvent(s, ann, relays)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != 88 {
		t.Errorf("announcement event kind %d, want 88", ev.Kind)
	}
	if !bytes.Equal(ev.Pubkey, s.Pub()) {
		t.Error("event pubkey is not the oracle signer's")
	}
	valid, err := ev.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Error("announcement event signature invalid")
	}
	decoded, err := base64.StdEncoding.DecodeString(string(ev.Content))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, ann.Marshal(nil)) {
		t.Error("event content does not decode to the announcement TLV")
	}
	tgs := tagsToStrings(ev.Tags)
	if len(tgs) != 1 || len(tgs[0]) != 3 || tgs[0][0] != "relays" ||
		tgs[0][1] != relays[0] || tgs[0][2] != relays[1] {
		t.Fatalf("unexpected tags on announcement event: %v", tgs)
	}
}

func TestAttestationEvent(t *testing.T) {
	s := testSigner(t)
	att := &oraclemsg.Attestation{
		PublicKey:  frand.Bytes(32),
		Outcomes:   []string{"a"},
		Signatures: [][]byte{frand.Bytes(64)},
	}
	annEventID := frand.Bytes(32)
	ev, err := AttestationEvent(s, att, annEventID)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != 89 {
		t.Errorf("attestation event kind %d, want 89", ev.Kind)
	}
	valid, err := ev.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Error("attestation event signature invalid")
	}
	decoded, err := base64.StdEncoding.DecodeString(string(ev.Content))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, att.Marshal(nil)) {
		t.Error("event content does not decode to the attestation TLV")
	}
	tgs := tagsToStrings(ev.Tags)
	if len(tgs) != 1 || len(tgs[0]) != 2 || tgs[0][0] != "e" ||
		tgs[0][1] != hex.Enc(annEventID) {
		t.Fatalf("unexpected tags on attestation event: %v", tgs)
	}
}
