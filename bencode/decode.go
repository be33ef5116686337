package bencode

import (
	"bufio"
	"errors"
	"io"
	"math"
)

// ErrMalformed is returned for a structurally invalid Bencode value (bad
// digit, missing terminator, truncated string, etc). It is always wrapped
// in a *ProtocolError by the Decoder.
var ErrMalformed = errors.New("bencode: malformed value")

// Decoder reads a stream of Bencode values from an underlying reader.
type Decoder struct {
	r      *bufio.Reader
	offset int64
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	d.offset++
	return b, nil
}

func (d *Decoder) unreadByte() {
	_ = d.r.UnreadByte()
	d.offset--
}

// Decode reads and returns exactly one top-level Bencode value (an int64,
// []byte, List or Dict). io.EOF is returned if the stream is exhausted
// before any value begins.
func (d *Decoder) Decode() (any, error) {
	start := d.offset
	v, err := d.decodeValue()
	if err != nil {
		if errors.Is(err, io.EOF) && d.offset == start {
			return nil, io.EOF
		}
		return nil, &ProtocolError{Offset: d.offset, Err: err}
	}
	return v, nil
}

func (d *Decoder) decodeValue() (any, error) {
	b, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch {
	case b == 'i':
		return d.decodeInt()
	case b == 'l':
		return d.decodeList()
	case b == 'd':
		return d.decodeDict()
	case b >= '0' && b <= '9':
		d.unreadByte()
		return d.decodeString()
	default:
		return nil, errMalformedAt(b)
	}
}

func errMalformedAt(b byte) error {
	return ErrMalformed
}

// decodeInt parses the digits after the leading 'i' of an "i<dec>e" token.
// Leading zeros are forbidden except for the literal "i0e"; "-0" is
// forbidden;
func (d *Decoder) decodeInt() (int64, error) {
	var (
		neg      bool
		digits   []byte
		sawDigit bool
	)

	b, err := d.readByte()
	if err != nil {
		return 0, io.ErrUnexpectedEOF
	}
	if b == '-' {
		neg = true
		b, err = d.readByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
	}

	for b != 'e' {
		if b < '0' || b > '9' {
			return 0, ErrMalformed
		}
		digits = append(digits, b)
		sawDigit = true
		b, err = d.readByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
	}

	if !sawDigit {
		return 0, ErrMalformed
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, ErrMalformed // leading zero
	}
	if neg && digits[0] == '0' {
		return 0, ErrMalformed // "-0"
	}

	var n int64
	for _, c := range digits {
		digit := int64(c - '0')
		if n > (math.MaxInt64-digit)/10 {
			return 0, ErrMalformed // overflow
		}
		n = n*10 + digit
	}
	if neg {
		n = -n
	}
	return n, nil
}

// decodeString parses a "<len>:<bytes>" byte-string. The content is
// returned as a raw []byte and is never interpreted as UTF-8 here: that
// conversion is the message-layer adapter's job.
func (d *Decoder) decodeString() ([]byte, error) {
	length, err := d.decodeLength()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(d.r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		d.offset += int64(length)
	}
	return buf, nil
}

// decodeLength reads the non-negative decimal length prefix up to the ':'.
func (d *Decoder) decodeLength() (int, error) {
	var digits []byte
	for {
		b, err := d.readByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
		if b == ':' {
			break
		}
		if b < '0' || b > '9' {
			return 0, ErrMalformed
		}
		digits = append(digits, b)
	}
	if len(digits) == 0 {
		return 0, ErrMalformed
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, ErrMalformed // leading zero length
	}

	var n int
	for _, c := range digits {
		digit := int(c - '0')
		if n > (math.MaxInt-digit)/10 {
			return 0, ErrMalformed
		}
		n = n*10 + digit
	}
	return n, nil
}

func (d *Decoder) decodeList() (List, error) {
	list := List{}
	for {
		b, err := d.readByte()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if b == 'e' {
			return list, nil
		}
		d.unreadByte()

		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}

func (d *Decoder) decodeDict() (Dict, error) {
	dict := Dict{}
	for {
		b, err := d.readByte()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if b == 'e' {
			return dict, nil
		}
		d.unreadByte()

		keyBytes, err := d.decodeString()
		if err != nil {
			return nil, err
		}

		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		// Read order is not validated("On read, key order is
		// not validated"); last value wins on a duplicate key.
		dict[string(keyBytes)] = v
	}
}
