// Package bencode implements the Bencode wire format used to frame nREPL
// messages: integers, binary-safe byte-strings, lists and dictionaries with
// lexicographically sorted keys.
package bencode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ProtocolError is returned for any malformed Bencode grammar. Transports
// treat it as fatal for the connection.
type ProtocolError struct {
	Offset int64
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("bencode: protocol error at offset %d: %v", e.Offset, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protoErr(offset int64, format string, args ...any) error {
	return &ProtocolError{Offset: offset, Err: fmt.Errorf(format, args...)}
}

// Dict is a decoded Bencode dictionary. Values are one of int64, []byte,
// List, Dict or RawMessage.
type Dict map[string]any

// List is a decoded Bencode list.
type List []any

// RawMessage is an escape hatch holding already-bencoded bytes. Middleware
// that wants to forward a sub-document unmodified can store a RawMessage in
// a Dict and Encode will emit it byte-for-byte rather than re-encoding it.
type RawMessage []byte

// Marshal encodes v (a Dict, List, int64, []byte, string, RawMessage, or
// bool) and returns the Bencode bytes.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a single top-level Bencode value from b.
func Unmarshal(b []byte) (any, error) {
	return NewDecoder(bytes.NewReader(b)).Decode()
}

// Encoder writes Bencode values to an underlying writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v to the underlying writer. No buffering or flushing is
// required on the caller's part: unlike the Decoder, Encode always consumes
// v completely in one call.
func (e *Encoder) Encode(v any) error {
	return encodeValue(e.w, v)
}

func encodeValue(w io.Writer, v any) error {
	switch x := v.(type) {
	case RawMessage:
		_, err := w.Write(x)
		return err
	case int64:
		return encodeInt(w, x)
	case int:
		return encodeInt(w, int64(x))
	case uint64:
		return encodeInt(w, int64(x))
	case string:
		return encodeBytes(w, []byte(x))
	case []byte:
		return encodeBytes(w, x)
	case bool:
		if x {
			return encodeInt(w, 1)
		}
		return encodeInt(w, 0)
	case List:
		return encodeList(w, []any(x))
	case []any:
		return encodeList(w, x)
	case []string:
		l := make([]any, len(x))
		for i, s := range x {
			l[i] = s
		}
		return encodeList(w, l)
	case Dict:
		return encodeDict(w, map[string]any(x))
	case map[string]any:
		return encodeDict(w, x)
	default:
		return fmt.Errorf("bencode: unsupported type %T", v)
	}
}

func encodeInt(w io.Writer, n int64) error {
	_, err := fmt.Fprintf(w, "i%de", n)
	return err
}

func encodeBytes(w io.Writer, b []byte) error {
	if _, err := fmt.Fprintf(w, "%d:", len(b)); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func encodeList(w io.Writer, l []any) error {
	if _, err := io.WriteString(w, "l"); err != nil {
		return err
	}
	for _, item := range l {
		if err := encodeValue(w, item); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "e")
	return err
}

// encodeDict writes keys in strictly ascending unsigned-byte order, which
// readers of the format require for canonical encoding.
func encodeDict(w io.Writer, d map[string]any) error {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sortRawBytes(keys)

	if _, err := io.WriteString(w, "d"); err != nil {
		return err
	}
	for _, k := range keys {
		if err := encodeBytes(w, []byte(k)); err != nil {
			return err
		}
		if err := encodeValue(w, d[k]); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "e")
	return err
}

// sortRawBytes sorts keys by unsigned byte comparison of their raw
// sequence, which is what Go's default string comparison already does for
// byte slices reinterpreted as strings.
func sortRawBytes(keys []string) {
	// insertion sort is fine; dictionaries in practice are small (message
	// maps), and this keeps the unsigned-byte comparison explicit and easy
	// to audit.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && bytes.Compare([]byte(keys[j-1]), []byte(keys[j])) > 0; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

var errNotADict = errors.New("bencode: value is not a dictionary")

// AsDict type-asserts v as a Dict, accepting the map[string]any alias too.
func AsDict(v any) (Dict, error) {
	switch x := v.(type) {
	case Dict:
		return x, nil
	case map[string]any:
		return Dict(x), nil
	default:
		return nil, errNotADict
	}
}
