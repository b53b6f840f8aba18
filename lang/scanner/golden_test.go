package scanner

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/toi-lang/toi/internal/filetest"
	"github.com/toi-lang/toi/lang/token"
)

var updateGolden = flag.Bool("scanner.update-golden", false, "update scanner token-dump golden files")

// TestGoldenTokenDumps re-lexes every ".toi" fixture under testdata/golden
// and diffs its full token stream against a checked-in ".want" dump using
// internal/filetest, the teacher's own golden-file harness — catching any
// accidental change to what the scanner emits for plain operators and for
// table literals' "=" entries (§4.3.5).
func TestGoldenTokenDumps(t *testing.T) {
	const dir = "testdata/golden"
	for _, fi := range filetest.SourceFiles(t, dir, ".toi") {
		fi := fi
		t.Run(fi.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(dir, fi.Name()))
			if err != nil {
				t.Fatal(err)
			}

			fs := token.NewFileSet()
			file := fs.AddFile(fi.Name(), len(src))
			var buf bytes.Buffer
			s := New(file, src, func(pos token.Position, msg string) {
				fmt.Fprintf(&buf, "error %s %q\n", pos, msg)
			})
			for {
				var v token.Value
				tok := s.Scan(&v)
				lit := v.Raw
				if v.String != "" {
					lit = v.String
				}
				fmt.Fprintf(&buf, "%s %q\n", tok, lit)
				if tok == token.EOF {
					break
				}
			}

			filetest.DiffOutput(t, fi, buf.String(), dir, updateGolden)
		})
	}
}
