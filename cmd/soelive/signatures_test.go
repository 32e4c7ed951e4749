package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/soelive/internal/report"
)

func writePNG(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := append([]byte("\x89PNG\r\n\x1a\n"), 0, 0, 0, 13)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSignatureFlags_Repeatable(t *testing.T) {
	t.Parallel()

	var sigs signatureFlags
	fs := flag.NewFlagSet("soelive", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&sigs, "sign", "")

	err := fs.Parse([]string{
		"-sign", "responsible=" + writePNG(t, "resp.png"),
		"-sign", "SOE=" + writePNG(t, "soe.png"),
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, role := range []report.SignatureRole{report.RoleResponsible, report.RoleSOE} {
		if got := sigs.data.Get(role); !strings.HasPrefix(got, "data:image/png;base64,") {
			t.Errorf("signature %s = %q, want a PNG data URL", role, got)
		}
	}
	if got := sigs.data.Get(report.RoleCoord); got != "" {
		t.Errorf("coord signature = %q, want empty", got)
	}
	if got := sigs.String(); got != "responsible,soe" {
		t.Errorf("String() = %q, want responsible,soe", got)
	}
}

func TestSignatureFlags_Errors(t *testing.T) {
	t.Parallel()

	notPNG := filepath.Join(t.TempDir(), "sig.jpg")
	if err := os.WriteFile(notPNG, []byte("\xff\xd8\xff\xe0"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		value string
	}{
		{"no separator", "responsible"},
		{"no path", "responsible="},
		{"unknown role", "principal=" + writePNG(t, "p.png")},
		{"missing file", "coord=" + filepath.Join(t.TempDir(), "missing.png")},
		{"not a png", "aee=" + notPNG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var sigs signatureFlags
			if err := sigs.Set(tt.value); err == nil {
				t.Errorf("Set(%q) = nil, want error", tt.value)
			}
			if got := sigs.data.Signed(); len(got) != 0 {
				t.Errorf("Signed() = %v after failed Set, want none", got)
			}
		})
	}
}
