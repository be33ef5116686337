package client

// Code is the payload of an eval op: either a raw source string or a
// sequence of already-split forms. A small marker interface selecting the
// wire field to set rather than a full value hierarchy.
type Code interface {
	field() (string, any)
}

// StringCode sends source as a single unparsed "code" field; the server
// splits it into forms itself.
type StringCode string

func (c StringCode) field() (string, any) { return "code", string(c) }

// FormsCode sends a pre-split list of forms, bypassing the server's own
// form splitter.
type FormsCode []string

func (c FormsCode) field() (string, any) {
	out := make([]any, len(c))
	for i, f := range c {
		out[i] = f
	}
	return "forms", out
}
