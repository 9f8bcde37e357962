// Package publish formats oracle announcements and attestations as Nostr
// events and transmits them to the configured relays. Publication is a side
// effect sink: it never sits on the cryptographic path, and failures are
// logged and swallowed rather than rolled back into storage.
package publish

import (
	"encoding/base64"
	"time"

	"context"
	"next.orly.dev/pkg/encoders/event"
	"next.orly.dev/pkg/encoders/hex"
	"next.orly.dev/pkg/encoders/kind"

	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"
	"next.orly.dev/pkg/encoders/tag"
	"next.orly.dev/pkg/encoders/timestamp"
	"next.orly.dev/pkg/interfaces/signer"
	"next.orly.dev/pkg/protocol/ws"

	"oracle.mleku.dev/pkg/encoders/oraclemsg"
)

// Nostr event kinds for oracle messages.
var (
	KindAnnouncement = kind.New(88)
	KindAttestation  = kind.New(89)
)

// AnnouncementEvent builds and signs a kind 88 event whose content is the
// base64 of the announcement TLV, tagged with the relays it is sent to.
func AnnouncementEvent(
	sign signer.I, ann *oraclemsg.Announcement, relays []string,
) (ev *event.E, err error) {
	relayTagFields := make([]any, 0, len(relays)+1)
	relayTagFields = append(relayTagFields, "relays")
	for _, r := range relays {
		relayTagFields = append(relayTagFields, r)
	}
	ev = &event.E{
		Kind:      KindAnnouncement.ToU16(),
		CreatedAt: timestamp.FromUnix(time.Now().Unix()).I64(),
		Tags: tag.NewS(
			tag.NewFromAny(relayTagFields...),
		),
		Content: []byte(
			base64.StdEncoding.EncodeToString(ann.Marshal(nil)),
		),
	}
	if err = ev.Sign(sign); chk.E(err) {
		ev = nil
	}
	return
}

// AttestationEvent builds and signs a kind 89 event whose content is the
// base64 of the attestation TLV, tagged with the id of the announcement
// event it resolves.
func AttestationEvent(
	sign signer.I, att *oraclemsg.Attestation, announcementEventID []byte,
) (ev *event.E, err error) {
	ev = &event.E{
		Kind:      KindAttestation.ToU16(),
		CreatedAt: timestamp.FromUnix(time.Now().Unix()).I64(),
		Tags: tag.NewS(
			tag.NewFromAny("e", hex.Enc(announcementEventID)),
		),
		Content: []byte(
			base64.StdEncoding.EncodeToString(att.Marshal(nil)),
		),
	}
	if err = ev.Sign(sign); chk.E(err) {
		ev = nil
	}
	return
}

// P sends events to a fixed relay set, best effort.
type P struct {
	Relays []string
}

// New creates a publisher for the given relay URLs.
func New(relays []string) (p *P) { return &P{Relays: relays} }

// Send transmits ev to every configured relay, and reports whether at least
// one accepted it. Failures are logged, never returned: a publish problem
// must not unwind the storage mutation that preceded it.
func (p *P) Send(c context.Context, ev *event.E) (ok bool) {
	for _, url := range p.Relays {
		var err error
		var rl *ws.Client
		if rl, err = ws.RelayConnect(c, url); chk.E(err) {
			continue
		}
		if err = rl.Publish(c, ev); chk.E(err) {
			rl.Close()
			continue
		}
		rl.Close()
		ok = true
	}
	if !ok {
		log.W.F("event %x was not accepted by any of %d relays", ev.ID,
			len(p.Relays))
	}
	return
}
