// Package oraclemsg implements the DLC oracle message TLV formats:
// event descriptors, oracle events, announcements and attestations. The
// encodings are canonical byte-for-byte, because announcement signatures
// commit to the SHA-256 of the encoded event and third party DLC verifiers
// parse these exact bytes. Hex is the interchange form at the HTTP and
// storage boundaries.
package oraclemsg

import (
	"encoding/binary"

	"lol.mleku.dev/errorf"

	"oracle.mleku.dev/pkg/encoders/bigsize"
)

// TLV type numbers from the DLC messaging specification.
const (
	TypeEnumDescriptor  = 55302
	TypeDigitDescriptor = 55306
	TypeEvent           = 55330
	TypeAnnouncement    = 55332
	TypeAttestation     = 55400
)

// Descriptor describes the outcome space of an oracle event and therefore
// how many nonces the event commits to.
type Descriptor interface {
	// Marshal appends the descriptor's full TLV, type and length included.
	Marshal(dst []byte) (b []byte)
	// NumNonces is the number of nonce points an event with this descriptor
	// carries.
	NumNonces() (n int)
	// Validate checks the descriptor's internal invariants.
	Validate() (err error)
}

// Enum is the descriptor of an event with one of a fixed set of string
// outcomes. It commits to exactly one nonce.
type Enum struct {
	Outcomes []string
}

var _ Descriptor = &Enum{}

func (d *Enum) Marshal(dst []byte) (b []byte) {
	body := binary.BigEndian.AppendUint16(nil, uint16(len(d.Outcomes)))
	for _, o := range d.Outcomes {
		body = bigsize.AppendBytes(body, []byte(o))
	}
	b = bigsize.Append(dst, TypeEnumDescriptor)
	b = bigsize.AppendBytes(b, body)
	return
}

func (d *Enum) NumNonces() (n int) { return 1 }

func (d *Enum) Validate() (err error) {
	if len(d.Outcomes) == 0 {
		return errorf.E("enum descriptor has no outcomes")
	}
	seen := make(map[string]struct{}, len(d.Outcomes))
	for _, o := range d.Outcomes {
		if _, ok := seen[o]; ok {
			return errorf.E("enum descriptor repeats outcome %q", o)
		}
		seen[o] = struct{}{}
	}
	return
}

func (d *Enum) unmarshalBody(body []byte) (err error) {
	if len(body) < 2 {
		return errorf.E("enum descriptor body too short")
	}
	n := binary.BigEndian.Uint16(body)
	body = body[2:]
	d.Outcomes = make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		var o []byte
		if o, body, err = bigsize.ReadBytes(body); err != nil {
			return
		}
		d.Outcomes = append(d.Outcomes, string(o))
	}
	if len(body) != 0 {
		return errorf.E(
			"enum descriptor has %d trailing bytes", len(body),
		)
	}
	return
}

// Digit is the descriptor of a numeric event whose outcome is revealed one
// digit at a time in the given base, most significant digit first, with an
// extra sign nonce when IsSigned is set.
type Digit struct {
	Base      uint16
	IsSigned  bool
	Unit      string
	Precision int32
	NbDigits  uint16
}

var _ Descriptor = &Digit{}

func (d *Digit) Marshal(dst []byte) (b []byte) {
	body := binary.BigEndian.AppendUint16(nil, d.Base)
	if d.IsSigned {
		body = append(body, 1)
	} else {
		body = append(body, 0)
	}
	body = bigsize.AppendBytes(body, []byte(d.Unit))
	body = binary.BigEndian.AppendUint32(body, uint32(d.Precision))
	body = binary.BigEndian.AppendUint16(body, d.NbDigits)
	b = bigsize.Append(dst, TypeDigitDescriptor)
	b = bigsize.AppendBytes(b, body)
	return
}

func (d *Digit) NumNonces() (n int) {
	n = int(d.NbDigits)
	if d.IsSigned {
		n++
	}
	return
}

func (d *Digit) Validate() (err error) {
	if d.Base < 2 {
		return errorf.E("digit descriptor base %d below 2", d.Base)
	}
	if d.NbDigits == 0 {
		return errorf.E("digit descriptor has zero digits")
	}
	return
}

func (d *Digit) unmarshalBody(body []byte) (err error) {
	if len(body) < 3 {
		return errorf.E("digit descriptor body too short")
	}
	d.Base = binary.BigEndian.Uint16(body)
	switch body[2] {
	case 0:
		d.IsSigned = false
	case 1:
		d.IsSigned = true
	default:
		return errorf.E("digit descriptor sign byte %d", body[2])
	}
	body = body[3:]
	var unit []byte
	if unit, body, err = bigsize.ReadBytes(body); err != nil {
		return
	}
	d.Unit = string(unit)
	if len(body) != 6 {
		return errorf.E(
			"digit descriptor tail is %d bytes, want 6", len(body),
		)
	}
	d.Precision = int32(binary.BigEndian.Uint32(body))
	d.NbDigits = binary.BigEndian.Uint16(body[4:])
	return
}

// readDescriptor decodes one descriptor TLV from the front of b.
func readDescriptor(b []byte) (d Descriptor, rem []byte, err error) {
	var typ uint64
	if typ, rem, err = bigsize.Read(b); err != nil {
		return
	}
	var body []byte
	if body, rem, err = bigsize.ReadBytes(rem); err != nil {
		return
	}
	switch typ {
	case TypeEnumDescriptor:
		e := &Enum{}
		if err = e.unmarshalBody(body); err != nil {
			return
		}
		d = e
	case TypeDigitDescriptor:
		dd := &Digit{}
		if err = dd.unmarshalBody(body); err != nil {
			return
		}
		d = dd
	default:
		err = errorf.E("unknown event descriptor TLV type %d", typ)
	}
	return
}
