// Package filetest is a golden-file diff helper for disassembler tests,
// adapted from the teacher's file of the same name: same update-flag and
// diff-on-mismatch mechanics, trimmed to the one shape this repo's tests
// need (a single output blob compared against a golden file).
package filetest

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/diff"
)

var testUpdateGolden = flag.Bool("test.update-golden", false, "If set, updates every golden file with the actual output instead of comparing.")

// EabFiles returns the .eab source files in dir, sorted by name.
func EabFiles(t *testing.T, dir string) []string {
	t.Helper()

	dents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, dent := range dents {
		if dent.Type().IsRegular() && filepath.Ext(dent.Name()) == ".eab" {
			names = append(names, dent.Name())
		}
	}
	return names
}

// DiffGolden compares output against resultDir/name+".want", failing the
// test and printing a readable diff on mismatch. With -test.update-golden it
// writes output as the new golden file instead.
func DiffGolden(t *testing.T, name, output, resultDir string) {
	t.Helper()

	goldFile := filepath.Join(resultDir, name+".want")
	if *testUpdateGolden {
		if err := os.WriteFile(goldFile, []byte(output), 0o600); err != nil {
			t.Fatal(err)
		}
		return
	}

	wantb, err := os.ReadFile(goldFile)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	want := string(wantb)
	if patch := diff.Diff(want, output); patch != "" {
		t.Errorf("diff disassembly for %s:\n%s\n", name, patch)
	}
}
