package token

// Value carries the literal payload of a scanned token alongside its
// position. Raw is the exact source slice (borrowed from the scanner's
// source buffer — see §5 lifetime rule: callers that need the value to
// outlive the buffer must copy it, which is exactly what string/identifier
// interning does at compile time).
type Value struct {
	Raw   string
	Pos   Pos
	Int   int64
	Float float64
	// String holds the decoded content for STRING/FSTRING tokens (escapes
	// resolved, quotes stripped) and the human message for ERROR tokens.
	String string
}

// Literal renders the display form of val for the given token kind, used by
// the "tokenize" CLI subcommand and diagnostics.
func (t Token) Literal(val Value) string {
	switch t {
	case IDENT:
		return val.Raw
	case STRING, FSTRING:
		return val.String
	case ERROR:
		return val.String
	case INT, FLOAT:
		return val.Raw
	}
	return ""
}
