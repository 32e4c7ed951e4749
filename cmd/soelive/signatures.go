package main

import (
	"fmt"
	"strings"

	"github.com/MrWong99/soelive/internal/report"
)

// signatureFlags collects repeated -sign role=path.png values.
type signatureFlags struct {
	data report.SignatureData
}

func (f *signatureFlags) String() string {
	if f == nil {
		return ""
	}
	roles := f.data.Signed()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

func (f *signatureFlags) Set(v string) error {
	name, path, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return fmt.Errorf("want role=path.png, got %q", v)
	}
	role, err := report.ParseSignatureRole(name)
	if err != nil {
		return err
	}
	img, err := report.LoadSignature(strings.TrimSpace(path))
	if err != nil {
		return err
	}
	f.data.Set(role, img)
	return nil
}
