package oracle

import (
	"fmt"
	"strconv"

	"context"
	"github.com/minio/sha256-simd"
	"lol.mleku.dev/log"

	"oracle.mleku.dev/pkg/encoders/oraclemsg"
	"oracle.mleku.dev/pkg/interfaces/store"
)

// numericBase is the digit base numeric events decompose outcomes in.
const numericBase = 2

// CreateNumericEvent announces an event whose outcome is an integer revealed
// digit by digit in base 2, most significant first. Signed events commit to
// one extra nonce for the sign symbol.
func (o *T) CreateNumericEvent(
	c context.Context, eventID string, numDigits uint16, isSigned bool,
	unit string, precision int32, maturity uint32,
) (id uint32, ann *oraclemsg.Announcement, err error) {
	d := &oraclemsg.Digit{
		Base:      numericBase,
		IsSigned:  isSigned,
		Unit:      unit,
		Precision: precision,
		NbDigits:  numDigits,
	}
	return o.announce(c, eventID, d, maturity)
}

// SignNumericEvent attests to an announced numeric event, decomposing the
// outcome into per-digit outcome strings and signing each with its
// pre-committed nonce. Like enum signing it is one-shot.
func (o *T) SignNumericEvent(c context.Context, id uint32, outcome int64) (
	att *oraclemsg.Attestation, err error,
) {
	var stored *store.StoredEvent
	if stored, err = o.store.GetEvent(c, id); err != nil {
		return
	}
	if stored.Attested() {
		err = ErrEventAlreadySigned
		return
	}
	d, ok := stored.Announcement.Event.Descriptor.(*oraclemsg.Digit)
	if !ok {
		err = fmt.Errorf("%w: event %d is not a numeric event", ErrInternal,
			id)
		return
	}
	if len(stored.Indexes) != d.NumNonces() {
		err = fmt.Errorf("%w: numeric event %d has %d nonce indexes, want %d",
			ErrInternal, id, len(stored.Indexes), d.NumNonces())
		return
	}
	var outcomes []string
	if outcomes, err = decompose(outcome, d); err != nil {
		return
	}
	sigs := make([]store.OutcomeSignature, len(outcomes))
	for i, out := range outcomes {
		msg := sha256.Sum256([]byte(out))
		var sig []byte
		if sig, err = o.signWithIndex(
			msg[:], stored.Indexes[i], stored.Announcement.Event.Nonces[i],
		); err != nil {
			return
		}
		sigs[i] = store.OutcomeSignature{Outcome: out, Signature: sig}
	}
	if stored, err = o.store.SaveSignatures(c, id, sigs); err != nil {
		return
	}
	pub := o.keys.Pub()
	att = &oraclemsg.Attestation{PublicKey: pub[:]}
	att.Outcomes = make([]string, len(sigs))
	att.Signatures = make([][]byte, len(sigs))
	for i, s := range sigs {
		att.Outcomes[i] = s.Outcome
		att.Signatures[i] = s.Signature
	}
	log.I.F("attested numeric event %s (id %d) with outcome %d",
		stored.Announcement.Event.ID, id, outcome)
	return
}

// decompose renders an integer outcome as the per-nonce outcome strings: the
// sign symbol first when the descriptor is signed, then one digit per nonce,
// most significant first. Out of range magnitudes and negative outcomes on
// unsigned events are the caller's error.
func decompose(outcome int64, d *oraclemsg.Digit) (
	outcomes []string, err error,
) {
	if d.Base != numericBase {
		err = fmt.Errorf("%w: unsupported digit base %d", ErrInternal, d.Base)
		return
	}
	if outcome < 0 && !d.IsSigned {
		err = fmt.Errorf(
			"%w: negative outcome %d on an unsigned event", ErrInvalidOutcome,
			outcome,
		)
		return
	}
	mag := uint64(outcome)
	if outcome < 0 {
		mag = uint64(-outcome)
	}
	if d.NbDigits < 64 && mag >= uint64(1)<<d.NbDigits {
		err = fmt.Errorf(
			"%w: outcome %d does not fit in %d base-%d digits",
			ErrInvalidOutcome, outcome, d.NbDigits, d.Base,
		)
		return
	}
	outcomes = make([]string, 0, d.NumNonces())
	if d.IsSigned {
		if outcome < 0 {
			outcomes = append(outcomes, "-")
		} else {
			outcomes = append(outcomes, "+")
		}
	}
	for i := int(d.NbDigits) - 1; i >= 0; i-- {
		digit := (mag >> uint(i)) & 1
		outcomes = append(outcomes, strconv.FormatUint(digit, 10))
	}
	return
}
