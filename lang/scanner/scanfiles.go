package scanner

import (
	"fmt"
	"os"

	"github.com/toi-lang/toi/lang/token"
)

// TokenAndValue pairs a scanned token with its payload, mirroring the
// teacher's scanner.TokenAndValue shape.
type TokenAndValue struct {
	Token token.Token
	Value token.Value
}

// ScanFile tokenizes a single source file to EOF, collecting every lexical
// error into a single combined error (or nil if there were none).
func ScanFile(fs *token.FileSet, filename string) ([]TokenAndValue, *token.File, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, err
	}

	file := fs.AddFile(filename, len(b))
	var errs []string
	s := New(file, b, func(pos token.Position, msg string) {
		errs = append(errs, fmt.Sprintf("%s Error: %s", pos, msg))
	})

	var toks []TokenAndValue
	var v token.Value
	for {
		tok := s.Scan(&v)
		toks = append(toks, TokenAndValue{Token: tok, Value: v})
		if tok == token.EOF {
			break
		}
	}

	if len(errs) == 0 {
		return toks, file, nil
	}
	combined := errs[0]
	for _, e := range errs[1:] {
		combined += "\n" + e
	}
	return toks, file, fmt.Errorf("%s", combined)
}
