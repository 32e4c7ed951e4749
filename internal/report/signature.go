package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const pngDataURLPrefix = "data:image/png;base64,"

// maxSignatureSize bounds a signature image file.
const maxSignatureSize = 2 << 20

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// printOrder is the order of the signature lines on the printed form.
var printOrder = []SignatureRole{RoleResponsible, RoleCoord, RoleSOE, RoleAEE, RoleIntegral}

// Label is the caption printed next to the signature line.
func (r SignatureRole) Label() string {
	switch r {
	case RoleResponsible:
		return "Responsável"
	case RoleSOE:
		return "SOE"
	case RoleCoord:
		return "Coordenação"
	case RoleAEE:
		return "AEE"
	case RoleIntegral:
		return "Integral"
	}
	return string(r)
}

// ParseSignatureRole accepts a role name in any case.
func ParseSignatureRole(s string) (SignatureRole, error) {
	role := SignatureRole(strings.ToLower(strings.TrimSpace(s)))
	for _, r := range printOrder {
		if r == role {
			return role, nil
		}
	}
	return "", fmt.Errorf("report: unknown signature role %q (want responsible, soe, coord, aee or integral)", s)
}

// LoadSignature reads a PNG image and returns it as a data URL ready for
// [SignatureData.Set].
func LoadSignature(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("report: read signature: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSignatureSize+1))
	if err != nil {
		return "", fmt.Errorf("report: read signature: %w", err)
	}
	name := filepath.Base(path)
	if len(data) > maxSignatureSize {
		return "", fmt.Errorf("report: signature %s is larger than %d bytes", name, maxSignatureSize)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		return "", fmt.Errorf("report: signature %s is not a PNG image", name)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(data), nil
}
