package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadAttendance loads meeting data from path. Files ending in .json use the
// camelCase keys of the export format; anything else is decoded as YAML with
// snake_case keys. Unknown keys are rejected.
func ReadAttendance(path string) (AttendanceData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AttendanceData{}, fmt.Errorf("report: read attendance: %w", err)
	}

	var a AttendanceData
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&a)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&a)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return AttendanceData{}, fmt.Errorf("report: decode attendance %s: %w", filepath.Base(path), err)
	}
	return a, nil
}
