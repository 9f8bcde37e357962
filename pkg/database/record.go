package database

import (
	"lol.mleku.dev/errorf"

	"oracle.mleku.dev/pkg/encoders/bigsize"
	"oracle.mleku.dev/pkg/encoders/oraclemsg"
	"oracle.mleku.dev/pkg/interfaces/store"
)

// record is the value stored under an event key: the announcement TLV
// followed by the nonce indexes, the outcome/signature pairs, and the two
// optional Nostr event ids, all length prefixed with BigSize.
type record struct {
	announcement        []byte
	indexes             []uint32
	outcomes            []string
	signatures          [][]byte
	announcementEventID []byte
	attestationEventID  []byte
}

func (r *record) marshal(dst []byte) (b []byte) {
	b = bigsize.AppendBytes(dst, r.announcement)
	b = bigsize.Append(b, uint64(len(r.indexes)))
	for _, idx := range r.indexes {
		b = bigsize.Append(b, uint64(idx))
	}
	b = bigsize.Append(b, uint64(len(r.signatures)))
	for i := range r.signatures {
		b = bigsize.AppendBytes(b, []byte(r.outcomes[i]))
		b = bigsize.AppendBytes(b, r.signatures[i])
	}
	b = bigsize.AppendBytes(b, r.announcementEventID)
	b = bigsize.AppendBytes(b, r.attestationEventID)
	return
}

func (r *record) unmarshal(b []byte) (err error) {
	if r.announcement, b, err = bigsize.ReadBytes(b); err != nil {
		return
	}
	var n uint64
	if n, b, err = bigsize.Read(b); err != nil {
		return
	}
	r.indexes = make([]uint32, n)
	for i := range r.indexes {
		var idx uint64
		if idx, b, err = bigsize.Read(b); err != nil {
			return
		}
		r.indexes[i] = uint32(idx)
	}
	if n, b, err = bigsize.Read(b); err != nil {
		return
	}
	r.outcomes = make([]string, 0, n)
	r.signatures = make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		var o, sig []byte
		if o, b, err = bigsize.ReadBytes(b); err != nil {
			return
		}
		if sig, b, err = bigsize.ReadBytes(b); err != nil {
			return
		}
		r.outcomes = append(r.outcomes, string(o))
		r.signatures = append(r.signatures, sig)
	}
	if r.announcementEventID, b, err = bigsize.ReadBytes(b); err != nil {
		return
	}
	if r.attestationEventID, b, err = bigsize.ReadBytes(b); err != nil {
		return
	}
	if len(b) != 0 {
		err = errorf.E("event record has %d trailing bytes", len(b))
	}
	return
}

// materialize decodes the announcement and builds a caller-owned
// StoredEvent.
func (r *record) materialize(id uint32) (ev *store.StoredEvent, err error) {
	ann := &oraclemsg.Announcement{}
	if _, err = ann.Unmarshal(r.announcement); err != nil {
		return
	}
	ev = &store.StoredEvent{
		ID:           id,
		Announcement: ann,
		Indexes:      r.indexes,
		Outcomes:     r.outcomes,
		Signatures:   r.signatures,
	}
	if len(r.announcementEventID) > 0 {
		ev.AnnouncementEventID = r.announcementEventID
	}
	if len(r.attestationEventID) > 0 {
		ev.AttestationEventID = r.attestationEventID
	}
	return
}
