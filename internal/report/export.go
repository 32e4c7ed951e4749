package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/russross/blackfriday/v2"
)

// WriteJSON writes r to <dir>/<id>.json, creating dir if needed, and
// returns the file path. The file is written to a temporary name first and
// renamed into place.
func WriteJSON(dir string, r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: encode %s: %w", r.ID, err)
	}
	return writeAtomic(dir, r.ID+".json", append(data, '\n'))
}

//go:embed templates/report.html.tmpl
var printTemplateText string

var printTemplate = template.Must(template.New("report").Parse(printTemplateText))

// WriteHTML writes a printable form of r to <dir>/<id>.html and returns the
// file path. Open it in a browser and print, or save it as PDF from there.
// now stamps the footer.
func WriteHTML(dir string, r *Report, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, newPrintView(r, now)); err != nil {
		return "", fmt.Errorf("report: render %s: %w", r.ID, err)
	}
	return writeAtomic(dir, r.ID+".html", buf.Bytes())
}

type checkbox struct {
	Label   string
	Checked bool
}

type signatureLine struct {
	Label string
	Image template.URL
}

type printView struct {
	A          AttendanceData
	Date       string
	Requested  []checkbox
	Reasons    []checkbox
	Refined    bool
	Formal     template.HTML
	Agreements []string
	Notes      string
	Signatures []signatureLine
	Generated  string
}

func newPrintView(r *Report, now time.Time) printView {
	a := r.Attendance
	v := printView{
		A:         a,
		Date:      a.Date,
		Notes:     a.RoughNotes,
		Generated: now.Format("02/01/2006 15:04"),
	}
	if d, err := time.Parse(time.DateOnly, a.Date); err == nil {
		v.Date = d.Format("02/01/2006")
	}
	for _, o := range []struct{ label, key string }{
		{"Pais / Responsáveis", "Pais"},
		{"Educador(a)", "Educador"},
		{"Orientador(a) Educacional", "Orientador"},
		{"Direção Pedagógica", "Direção"},
		{"Outros", "Outros"},
	} {
		v.Requested = append(v.Requested, checkbox{o.label, strings.Contains(a.RequestedBy, o.key)})
	}
	for _, o := range []struct{ label, key string }{
		{"Acompanhamento Pedagógico", "Acompanhamento"},
		{"Ocorrência Disciplinar", "Disciplinar"},
		{"Coordenação Pedagógica", "Coordenação"},
	} {
		v.Reasons = append(v.Reasons, checkbox{o.label, strings.Contains(a.Reason, o.key)})
	}
	if r.Refined != nil {
		v.Refined = true
		v.Formal = renderMarkdown(r.Refined.FormalReport)
		v.Agreements = r.Refined.Agreements
	}
	for i, role := range printOrder {
		line := signatureLine{Label: fmt.Sprintf("%d. %s", i+1, role.Label())}
		if img := r.Signatures.Get(role); strings.HasPrefix(img, pngDataURLPrefix) {
			line.Image = template.URL(img)
		}
		v.Signatures = append(v.Signatures, line)
	}
	return v
}

// renderMarkdown formats model text. Raw HTML in it is dropped.
func renderMarkdown(text string) template.HTML {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.SkipHTML | blackfriday.Safelink,
	})
	out := blackfriday.Run([]byte(text),
		blackfriday.WithRenderer(renderer),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.HardLineBreak|blackfriday.NoEmptyLineBeforeBlock),
	)
	return template.HTML(out)
}

func writeAtomic(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create %q: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("report: write %q: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("report: write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("report: write %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("report: write %q: %w", path, err)
	}
	return path, nil
}
