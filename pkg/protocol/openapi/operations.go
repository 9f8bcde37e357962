package openapi

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"lol.mleku.dev/chk"
	"lol.mleku.dev/log"
	"next.orly.dev/pkg/encoders/hex"

	"oracle.mleku.dev/pkg/encoders/oraclemsg"
	"oracle.mleku.dev/pkg/interfaces/store"
	"oracle.mleku.dev/pkg/protocol/publish"
)

// storedEventJSON is the JSON rendering of a stored event for list-events.
type storedEventJSON struct {
	ID                  uint32   `json:"id"`
	EventID             string   `json:"event_id"`
	Announcement        string   `json:"announcement" doc:"hex encoded announcement TLV"`
	Indexes             []uint32 `json:"indexes"`
	Outcomes            []string `json:"outcomes,omitempty"`
	Signatures          []string `json:"signatures,omitempty"`
	AnnouncementEventID string   `json:"announcement_event_id,omitempty"`
	AttestationEventID  string   `json:"attestation_event_id,omitempty"`
}

func toJSON(ev *store.StoredEvent) (j *storedEventJSON) {
	j = &storedEventJSON{
		ID:           ev.ID,
		EventID:      ev.Announcement.Event.ID,
		Announcement: ev.Announcement.MarshalHex(),
		Indexes:      ev.Indexes,
		Outcomes:     ev.Outcomes,
	}
	for _, sig := range ev.Signatures {
		j.Signatures = append(j.Signatures, hex.Enc(sig))
	}
	if len(ev.AnnouncementEventID) > 0 {
		j.AnnouncementEventID = hex.Enc(ev.AnnouncementEventID)
	}
	if len(ev.AttestationEventID) > 0 {
		j.AttestationEventID = hex.Enc(ev.AttestationEventID)
	}
	return
}

// attestationOf rebuilds the attestation of a signed stored event.
func attestationOf(ev *store.StoredEvent) (att *oraclemsg.Attestation) {
	att = &oraclemsg.Attestation{
		PublicKey:  ev.Announcement.PublicKey,
		Outcomes:   ev.Outcomes,
		Signatures: ev.Signatures,
	}
	return
}

type hexOutput struct {
	Body string
}

func (x *Operations) RegisterHealthCheck(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health-check",
		Summary:     "Liveness probe",
	}, func(c context.Context, input *struct{}) (out *struct{ Body any }, err error) {
		out = &struct{ Body any }{}
		return
	})
}

func (x *Operations) RegisterPubkey(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "pubkey",
		Method:      http.MethodGet,
		Path:        "/pubkey",
		Summary:     "The oracle's X-only public key, hex encoded",
	}, func(c context.Context, input *struct{}) (out *hexOutput, err error) {
		pub := x.Oracle.PublicKey()
		out = &hexOutput{Body: hex.Enc(pub[:])}
		return
	})
}

func (x *Operations) RegisterListEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/list-events",
		Summary:     "All stored events, as JSON records or hex TLV announcements",
	}, func(c context.Context, input *struct {
		Format string `query:"format" doc:"json, hex or tlv" default:"json"`
	}) (out *struct{ Body any }, err error) {
		switch input.Format {
		case "", "json", "hex", "tlv":
		default:
			err = huma.Error400BadRequest(
				"format must be json, hex or tlv",
			)
			return
		}
		var evs []*store.StoredEvent
		if evs, err = x.Oracle.Store().ListEvents(c); err != nil {
			err = httpError(err)
			return
		}
		out = &struct{ Body any }{}
		switch input.Format {
		case "hex", "tlv":
			hexes := make([]string, 0, len(evs))
			for _, ev := range evs {
				hexes = append(hexes, ev.Announcement.MarshalHex())
			}
			out.Body = hexes
		default:
			list := make([]*storedEventJSON, 0, len(evs))
			for _, ev := range evs {
				list = append(list, toJSON(ev))
			}
			out.Body = list
		}
		return
	})
}

func (x *Operations) RegisterAnnouncement(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "announcement",
		Method:      http.MethodGet,
		Path:        "/announcement/{event_id}",
		Summary:     "The hex TLV announcement of a named event",
	}, func(c context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (out *hexOutput, err error) {
		var ev *store.StoredEvent
		if ev, err = x.Oracle.Store().GetEventByEventId(
			c, input.EventID,
		); err != nil {
			err = httpError(err)
			return
		}
		out = &hexOutput{Body: ev.Announcement.MarshalHex()}
		return
	})
}

func (x *Operations) RegisterAttestation(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "attestation",
		Method:      http.MethodGet,
		Path:        "/attestation/{event_id}",
		Summary:     "The hex TLV attestation of a named event, once signed",
	}, func(c context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (out *hexOutput, err error) {
		var ev *store.StoredEvent
		if ev, err = x.Oracle.Store().GetEventByEventId(
			c, input.EventID,
		); err != nil {
			err = httpError(err)
			return
		}
		if !ev.Attested() {
			err = huma.Error404NotFound("event is not yet attested")
			return
		}
		out = &hexOutput{Body: attestationOf(ev).MarshalHex()}
		return
	})
}

func (x *Operations) RegisterCreateEnum(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "create-enum",
		Method:      http.MethodPost,
		Path:        "/create-enum",
		Summary:     "Announce an event with an enumerated outcome set",
	}, func(c context.Context, input *struct {
		Body struct {
			EventID            string   `json:"event_id"`
			Outcomes           []string `json:"outcomes"`
			EventMaturityEpoch uint32   `json:"event_maturity_epoch"`
		}
	}) (out *hexOutput, err error) {
		if err = checkMaturity(input.Body.EventMaturityEpoch); err != nil {
			return
		}
		var id uint32
		var ann *oraclemsg.Announcement
		if id, ann, err = x.Oracle.CreateEnumEvent(
			c, input.Body.EventID, input.Body.Outcomes,
			input.Body.EventMaturityEpoch,
		); err != nil {
			err = httpError(err)
			return
		}
		x.publishAnnouncement(c, id, ann)
		out = &hexOutput{Body: ann.MarshalHex()}
		return
	})
}

func (x *Operations) RegisterSignEnum(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "sign-enum",
		Method:      http.MethodPost,
		Path:        "/sign-enum",
		Summary:     "Attest to an announced enum event",
	}, func(c context.Context, input *struct {
		Body struct {
			ID      uint32 `json:"id"`
			Outcome string `json:"outcome"`
		}
	}) (out *hexOutput, err error) {
		var att *oraclemsg.Attestation
		if att, err = x.Oracle.SignEnumEvent(
			c, input.Body.ID, input.Body.Outcome,
		); err != nil {
			err = httpError(err)
			return
		}
		x.publishAttestation(c, input.Body.ID, att)
		out = &hexOutput{Body: att.MarshalHex()}
		return
	})
}

func (x *Operations) RegisterCreateNumeric(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "create-numeric",
		Method:      http.MethodPost,
		Path:        "/create-numeric",
		Summary:     "Announce an event with a digit decomposed numeric outcome",
	}, func(c context.Context, input *struct {
		Body struct {
			EventID            string `json:"event_id"`
			NumDigits          uint16 `json:"num_digits"`
			IsSigned           bool   `json:"is_signed"`
			Unit               string `json:"unit"`
			Precision          int32  `json:"precision"`
			EventMaturityEpoch uint32 `json:"event_maturity_epoch"`
		}
	}) (out *hexOutput, err error) {
		if err = checkMaturity(input.Body.EventMaturityEpoch); err != nil {
			return
		}
		var id uint32
		var ann *oraclemsg.Announcement
		if id, ann, err = x.Oracle.CreateNumericEvent(
			c, input.Body.EventID, input.Body.NumDigits,
			input.Body.IsSigned, input.Body.Unit, input.Body.Precision,
			input.Body.EventMaturityEpoch,
		); err != nil {
			err = httpError(err)
			return
		}
		x.publishAnnouncement(c, id, ann)
		out = &hexOutput{Body: ann.MarshalHex()}
		return
	})
}

func (x *Operations) RegisterSignNumeric(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "sign-numeric",
		Method:      http.MethodPost,
		Path:        "/sign-numeric",
		Summary:     "Attest to an announced numeric event",
	}, func(c context.Context, input *struct {
		Body struct {
			ID      uint32 `json:"id"`
			Outcome int64  `json:"outcome"`
		}
	}) (out *hexOutput, err error) {
		var att *oraclemsg.Attestation
		if att, err = x.Oracle.SignNumericEvent(
			c, input.Body.ID, input.Body.Outcome,
		); err != nil {
			err = httpError(err)
			return
		}
		x.publishAttestation(c, input.Body.ID, att)
		out = &hexOutput{Body: att.MarshalHex()}
		return
	})
}

func checkMaturity(epoch uint32) (err error) {
	if int64(epoch) < time.Now().Unix() {
		err = huma.Error400BadRequest("event maturity is in the past")
	}
	return
}

// publishAnnouncement sends the announcement to the relays and records the
// resulting Nostr event id. Failures are logged and otherwise ignored: the
// announcement is already durable.
func (x *Operations) publishAnnouncement(
	c context.Context, id uint32, ann *oraclemsg.Announcement,
) {
	if x.Publisher == nil {
		return
	}
	sign, err := x.Oracle.NostrSigner()
	if chk.E(err) {
		return
	}
	ev, err := publish.AnnouncementEvent(sign, ann, x.Publisher.Relays)
	if chk.E(err) {
		return
	}
	if !x.Publisher.Send(c, ev) {
		return
	}
	if err = x.Oracle.Store().AddAnnouncementEventId(
		c, id, ev.ID,
	); chk.E(err) {
		return
	}
	log.D.F("published announcement %s as nostr event %x",
		ann.Event.ID, ev.ID)
}

// publishAttestation sends the attestation with an e tag carrying the
// announcement's recorded Nostr event id; the tag value is empty when no id
// was recorded.
func (x *Operations) publishAttestation(
	c context.Context, id uint32, att *oraclemsg.Attestation,
) {
	if x.Publisher == nil {
		return
	}
	stored, err := x.Oracle.Store().GetEvent(c, id)
	if chk.E(err) {
		return
	}
	sign, err := x.Oracle.NostrSigner()
	if chk.E(err) {
		return
	}
	ev, err := publish.AttestationEvent(
		sign, att, stored.AnnouncementEventID,
	)
	if chk.E(err) {
		return
	}
	if !x.Publisher.Send(c, ev) {
		return
	}
	if err = x.Oracle.Store().AddAttestationEventId(
		c, id, ev.ID,
	); chk.E(err) {
		return
	}
	log.D.F("published attestation for %s as nostr event %x",
		stored.Announcement.Event.ID, ev.ID)
}
