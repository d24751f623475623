package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestDump(t *testing.T) {
	var out bytes.Buffer
	src := []byte("import { a } from './a';\nexport const b = a;\n")
	if err := dump(&out, "main.ts", src); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	for _, want := range []string{"import_statement (parent=program)", "=== imports ===", "=== exports ===", "=== usages ===", `"./a"`} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestDumpRejectsOtherFiles(t *testing.T) {
	var out bytes.Buffer
	if err := dump(&out, "notes.md", []byte("# hi\n")); err == nil {
		t.Error("expected an error for a non-source file")
	}
}
