// Package report holds the attendance report domain: the meeting metadata
// collected by staff, the formal text produced by a refinement model, the
// signatures and the finished [Report] that is persisted and exported.
//
// Refinement backends live in sub-packages (gemini, openai) and are combined
// with [NewFallbackRefiner].
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/soelive/pkg/memory"
)

var (
	// ErrEmptyResponse is returned when a refinement model answers with no
	// usable content.
	ErrEmptyResponse = errors.New("report: empty model response")

	// ErrInvalidAttendance is wrapped by [Validate] failures.
	ErrInvalidAttendance = errors.New("report: invalid attendance data")
)

// Defaults for a new attendance record.
const (
	DefaultRequestedBy = "Escola"
	DefaultReason      = "Acompanhamento Pedagógico"
)

// AttendanceData is what staff record about one support meeting.
type AttendanceData struct {
	StudentName     string `json:"studentName" yaml:"student_name"`
	ClassName       string `json:"className" yaml:"class_name"`
	ResponsibleName string `json:"responsibleName" yaml:"responsible_name"`
	Phone           string `json:"phone" yaml:"phone"`
	RequestedBy     string `json:"requestedBy" yaml:"requested_by"`
	Reason          string `json:"reason" yaml:"reason"`
	RoughNotes      string `json:"roughNotes" yaml:"rough_notes"`
	Date            string `json:"date" yaml:"date"`
	Time            string `json:"time" yaml:"time"`
}

// NewAttendance returns a record with the default requester and reason and
// the date (YYYY-MM-DD) and time (HH:MM) taken from now.
func NewAttendance(now time.Time) AttendanceData {
	return AttendanceData{
		RequestedBy: DefaultRequestedBy,
		Reason:      DefaultReason,
		Date:        now.Format(time.DateOnly),
		Time:        now.Format("15:04"),
	}
}

// FillDefaults sets empty requester, reason, date and time as
// [NewAttendance] would.
func (a *AttendanceData) FillDefaults(now time.Time) {
	d := NewAttendance(now)
	if a.RequestedBy == "" {
		a.RequestedBy = d.RequestedBy
	}
	if a.Reason == "" {
		a.Reason = d.Reason
	}
	if a.Date == "" {
		a.Date = d.Date
	}
	if a.Time == "" {
		a.Time = d.Time
	}
}

// Validate reports whether a can be refined: a student name and non-blank
// notes are required.
func Validate(a AttendanceData) error {
	var errs []error
	if strings.TrimSpace(a.StudentName) == "" {
		errs = append(errs, fmt.Errorf("%w: student name is required", ErrInvalidAttendance))
	}
	if strings.TrimSpace(a.RoughNotes) == "" {
		errs = append(errs, fmt.Errorf("%w: notes are empty", ErrInvalidAttendance))
	}
	return errors.Join(errs...)
}

// InsertNotes appends transcribed speech to the existing notes, on a new
// line when notes already exist. Blank speech leaves the notes untouched.
func InsertNotes(existing, speech string) string {
	speech = strings.TrimSpace(speech)
	switch {
	case speech == "":
		return existing
	case existing == "":
		return speech
	default:
		return existing + "\n" + speech
	}
}

// RefinedContent is the formal rewrite produced by a [Refiner].
type RefinedContent struct {
	FormalReport string   `json:"formalReport"`
	Agreements   []string `json:"agreements"`
}

// ParseRefined decodes a model answer into RefinedContent. The report text
// is required; a missing agreement list is treated as empty. Markdown code
// fences around the JSON are tolerated.
func ParseRefined(raw string) (*RefinedContent, error) {
	raw = stripFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil, ErrEmptyResponse
	}
	var rc RefinedContent
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return nil, fmt.Errorf("report: decode refined content: %w", err)
	}
	if strings.TrimSpace(rc.FormalReport) == "" {
		return nil, fmt.Errorf("%w: formalReport missing", ErrEmptyResponse)
	}
	if rc.Agreements == nil {
		rc.Agreements = []string{}
	}
	return &rc, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Refiner turns rough meeting notes into formal report text.
//
// Implementations must be safe for concurrent use.
type Refiner interface {
	Refine(ctx context.Context, a AttendanceData) (*RefinedContent, error)
}

// SignatureRole names a signature slot on the printed report.
type SignatureRole string

const (
	RoleResponsible SignatureRole = "responsible"
	RoleSOE         SignatureRole = "soe"
	RoleCoord       SignatureRole = "coord"
	RoleAEE         SignatureRole = "aee"
	RoleIntegral    SignatureRole = "integral"
)

// SignatureData holds one PNG data URL per role. Empty means unsigned.
type SignatureData struct {
	Responsible string `json:"responsible,omitempty"`
	SOE         string `json:"soe,omitempty"`
	Coord       string `json:"coord,omitempty"`
	AEE         string `json:"aee,omitempty"`
	Integral    string `json:"integral,omitempty"`
}

// Set stores img for role. It reports false for an unknown role.
func (s *SignatureData) Set(role SignatureRole, img string) bool {
	switch role {
	case RoleResponsible:
		s.Responsible = img
	case RoleSOE:
		s.SOE = img
	case RoleCoord:
		s.Coord = img
	case RoleAEE:
		s.AEE = img
	case RoleIntegral:
		s.Integral = img
	default:
		return false
	}
	return true
}

// Get returns the image stored for role, or "".
func (s SignatureData) Get(role SignatureRole) string {
	switch role {
	case RoleResponsible:
		return s.Responsible
	case RoleSOE:
		return s.SOE
	case RoleCoord:
		return s.Coord
	case RoleAEE:
		return s.AEE
	case RoleIntegral:
		return s.Integral
	}
	return ""
}

// Signed lists the roles that carry a signature, in form order.
func (s SignatureData) Signed() []SignatureRole {
	var out []SignatureRole
	for _, role := range printOrder {
		if s.Get(role) != "" {
			out = append(out, role)
		}
	}
	return out
}

// Report is a finished attendance record.
type Report struct {
	ID         string                   `json:"id"`
	SessionID  string                   `json:"sessionId,omitempty"`
	Attendance AttendanceData           `json:"attendance"`
	Refined    *RefinedContent          `json:"refined,omitempty"`
	Signatures SignatureData            `json:"signatures"`
	Transcript []memory.TranscriptEntry `json:"transcript,omitempty"`
	CreatedAt  time.Time                `json:"createdAt"`
}

// New returns a Report with a fresh ID.
func New(a AttendanceData, now time.Time) *Report {
	return &Report{
		ID:         uuid.NewString(),
		Attendance: a,
		CreatedAt:  now.UTC(),
	}
}

// Stored converts r into the persistence form.
func (r *Report) Stored() (memory.StoredReport, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return memory.StoredReport{}, fmt.Errorf("report: encode %s: %w", r.ID, err)
	}
	return memory.StoredReport{
		ID:          r.ID,
		SessionID:   r.SessionID,
		StudentName: r.Attendance.StudentName,
		Body:        body,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// Save persists r in store.
func Save(ctx context.Context, store memory.ReportStore, r *Report) error {
	sr, err := r.Stored()
	if err != nil {
		return err
	}
	if err := store.SaveReport(ctx, sr); err != nil {
		return fmt.Errorf("report: save %s: %w", r.ID, err)
	}
	return nil
}

// Load fetches and decodes the report with the given ID.
func Load(ctx context.Context, store memory.ReportStore, id string) (*Report, error) {
	sr, err := store.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("report: load %s: %w", id, err)
	}
	var r Report
	if err := json.Unmarshal(sr.Body, &r); err != nil {
		return nil, fmt.Errorf("report: decode %s: %w", id, err)
	}
	return &r, nil
}
