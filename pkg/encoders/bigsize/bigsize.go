// Package bigsize implements the lightning BigSize variable length integer
// encoding used by the DLC TLV message formats. Values below 0xfd occupy a
// single byte; larger values get a one byte discriminant followed by the
// big-endian value in 2, 4 or 8 bytes. Decoding rejects non-minimal
// encodings so that every value has exactly one valid byte form.
package bigsize

import (
	"encoding/binary"

	"lol.mleku.dev/errorf"
)

// Append encodes v in BigSize form and appends it to dst.
func Append(dst []byte, v uint64) (b []byte) {
	b = dst
	switch {
	case v < 0xfd:
		b = append(b, byte(v))
	case v <= 0xffff:
		b = append(b, 0xfd)
		b = binary.BigEndian.AppendUint16(b, uint16(v))
	case v <= 0xffffffff:
		b = append(b, 0xfe)
		b = binary.BigEndian.AppendUint32(b, uint32(v))
	default:
		b = append(b, 0xff)
		b = binary.BigEndian.AppendUint64(b, v)
	}
	return
}

// Length returns the number of bytes Append will use for v.
func Length(v uint64) (n int) {
	switch {
	case v < 0xfd:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// Read decodes a BigSize value from the front of b and returns the value and
// the remainder of the buffer.
func Read(b []byte) (v uint64, rem []byte, err error) {
	if len(b) < 1 {
		err = errorf.E("bigsize: empty buffer")
		return
	}
	d := b[0]
	rem = b[1:]
	switch d {
	case 0xfd:
		if len(rem) < 2 {
			err = errorf.E("bigsize: truncated u16")
			return
		}
		v = uint64(binary.BigEndian.Uint16(rem))
		rem = rem[2:]
		if v < 0xfd {
			err = errorf.E("bigsize: non-minimal u16 encoding of %d", v)
		}
	case 0xfe:
		if len(rem) < 4 {
			err = errorf.E("bigsize: truncated u32")
			return
		}
		v = uint64(binary.BigEndian.Uint32(rem))
		rem = rem[4:]
		if v <= 0xffff {
			err = errorf.E("bigsize: non-minimal u32 encoding of %d", v)
		}
	case 0xff:
		if len(rem) < 8 {
			err = errorf.E("bigsize: truncated u64")
			return
		}
		v = binary.BigEndian.Uint64(rem)
		rem = rem[8:]
		if v <= 0xffffffff {
			err = errorf.E("bigsize: non-minimal u64 encoding of %d", v)
		}
	default:
		v = uint64(d)
	}
	return
}

// AppendBytes appends a BigSize length prefix followed by the raw bytes.
func AppendBytes(dst, b []byte) (out []byte) {
	out = Append(dst, uint64(len(b)))
	out = append(out, b...)
	return
}

// ReadBytes decodes a BigSize length prefix and returns that many bytes from
// the front of b, copied into a fresh slice.
func ReadBytes(b []byte) (val, rem []byte, err error) {
	var l uint64
	if l, rem, err = Read(b); err != nil {
		return
	}
	if uint64(len(rem)) < l {
		err = errorf.E(
			"bigsize: length prefix %d exceeds remaining %d bytes", l,
			len(rem),
		)
		return
	}
	val = make([]byte, l)
	copy(val, rem[:l])
	rem = rem[l:]
	return
}
