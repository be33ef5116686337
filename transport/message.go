package transport

import (
	"nrepl.dev/nrepl/bencode"
)

// unencodedKey is the message field listing which other fields must be
// preserved as raw bytes rather than converted to UTF-8 text.
const unencodedKey = "-unencoded"

// Message is a decoded nREPL wire message: a mapping from string keys to
// values drawn from {string, int64, []byte, []any, Message}. It is the
// message-layer representation after the Bencode<->text adapter has run.
//
// A Message is never mutated in place once it has left the decoder:
// middleware that wants to change one constructs a derived copy (see
// Clone) and passes that downward.
type Message map[string]any

// Op returns the request's "op" field, or "" if absent.
func (m Message) Op() string { return m.GetString("op") }

// ID returns the request's correlation "id", or "" if absent.
func (m Message) ID() string { return m.GetString("id") }

// Session returns the "session" field, or "" if absent.
func (m Message) Session() string { return m.GetString("session") }

// GetString returns key as a string, converting from []byte if needed.
func (m Message) GetString(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// GetBytes returns key as raw bytes, for fields carried via -unencoded.
func (m Message) GetBytes(key string) []byte {
	switch v := m[key].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// GetStrings returns key as a slice of strings (used for "status" sets and
// similar list fields). Accepts both []any (the shape produced by decoding
// off the wire) and []string (the shape handlers construct in-process,
// e.g. when driving a Conn directly over a PipeTransport with no
// encode/decode pass in between).
func (m Message) GetStrings(key string) []string {
	switch raw := m[key].(type) {
	case []string:
		out := make([]string, len(raw))
		copy(out, raw)
		return out
	case []any:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			switch x := v.(type) {
			case string:
				out = append(out, x)
			case []byte:
				out = append(out, string(x))
			}
		}
		return out
	default:
		return nil
	}
}

// HasStatus reports whether the "status" set contains tag.
func (m Message) HasStatus(tag string) bool {
	for _, s := range m.GetStrings("status") {
		if s == tag {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy of m, suitable for a middleware to enrich
// (e.g. with ":session") before passing it downward without mutating the
// message the caller still holds a reference to.
func (m Message) Clone() Message {
	out := make(Message, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// With returns a derived copy of m with key set to value.
func (m Message) With(key string, value any) Message {
	out := m.Clone()
	out[key] = value
	return out
}

// decodeMessage converts a decoded bencode.Dict into a Message, converting
// byte-string leaves to Go strings except for any keys listed in the
// incoming "-unencoded" list, which are kept as raw []byte.
func decodeMessage(dict bencode.Dict) Message {
	raw := map[string]struct{}{}
	var ue []any
	switch l := dict[unencodedKey].(type) {
	case bencode.List:
		ue = l
	case []any:
		ue = l
	}
	for _, v := range ue {
		if b, ok := v.([]byte); ok {
			raw[string(b)] = struct{}{}
		}
	}

	msg := make(Message, len(dict))
	for k, v := range dict {
		if _, keep := raw[k]; keep {
			msg[k] = toRawLeaf(v)
			continue
		}
		msg[k] = textify(v)
	}
	return msg
}

// textify recursively converts []byte leaves to string, per the message
// layer's adapter convention, leaving ints/lists/dicts structurally intact.
func textify(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case bencode.List:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = textify(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = textify(e)
		}
		return out
	case bencode.Dict:
		return decodeMessage(x)
	case map[string]any:
		return decodeMessage(x)
	default:
		return v
	}
}

// toRawLeaf leaves []byte values untouched (no UTF-8 interpretation) while
// still recursing into compound structures.
func toRawLeaf(v any) any {
	switch x := v.(type) {
	case []byte:
		return x
	case bencode.List:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toRawLeaf(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toRawLeaf(e)
		}
		return out
	default:
		return v
	}
}

// encodeMessage converts a Message back into a value accepted by the
// Bencode encoder. No special treatment is required on encode: strings and
// []byte are both accepted directly by the codec.
func encodeMessage(msg Message) bencode.Dict {
	dict := make(bencode.Dict, len(msg))
	for k, v := range msg {
		dict[k] = encodeValue(v)
	}
	return dict
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case Message:
		return encodeMessage(x)
	case []any:
		out := make(bencode.List, len(x))
		for i, e := range x {
			out[i] = encodeValue(e)
		}
		return out
	case []string:
		out := make(bencode.List, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
