// Package report renders reminder workflow runs as PDF documents.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"dental-recall/internal/crew"
)

var ErrNoFont = errors.New("no usable TTF font found")

// fallbackFonts are the usual DejaVu locations on Alpine and Debian images.
var fallbackFonts = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

type Renderer struct {
	fontPaths []string
}

// NewRenderer tries fontPath first, then the fallback locations.
func NewRenderer(fontPath string) *Renderer {
	var paths []string
	if fontPath != "" {
		paths = append(paths, fontPath)
	}
	return &Renderer{fontPaths: append(paths, fallbackFonts...)}
}

func (r *Renderer) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range r.fontPaths {
		err := pdf.AddTTFFont("DejaVu", path)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %w", ErrNoFont, lastErr)
}

// Render lays out one run: inputs summary, compliance decision, reminder
// text, delivery outcome and each stage output.
func (r *Renderer) Render(res *crew.Result) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := r.loadFont(&pdf); err != nil {
		return nil, err
	}
	w := &writer{pdf: &pdf}

	w.heading(20, "Dental Reminder Report")
	w.br(30)

	w.font(12)
	w.line(fmt.Sprintf("Run: %s", res.RunID))
	if res.ReplayOf != "" {
		w.line(fmt.Sprintf("Replay of: %s", res.ReplayOf))
	}
	w.line(fmt.Sprintf("Generated: %s", time.Now().UTC().Format("2006-01-02 15:04 MST")))
	w.line(fmt.Sprintf("Appointment: %s (%s)", orDash(res.Inputs.Get(crew.InputAppointmentID)), crew.ReminderKind(res.Inputs.Get(crew.InputReminderType))))
	w.line(fmt.Sprintf("Status: %s", res.Status))
	w.br(10)

	w.heading(14, "Compliance")
	w.font(11)
	switch {
	case res.Compliance == nil:
		w.line("- Not checked.")
	case res.Compliance.Approved:
		w.line("- Approved, no violations.")
	default:
		for _, v := range res.Compliance.Violations {
			w.para(fmt.Sprintf("- [%s] %s", v.Rule, v.Detail))
		}
	}
	w.br(10)

	if res.Reminder != nil {
		w.heading(14, "Reminder")
		w.font(11)
		w.para(res.Reminder.Body)
		w.br(10)
	}

	if d := res.Delivery; d != nil {
		w.heading(14, "Delivery")
		w.font(11)
		w.line(fmt.Sprintf("Status: %s", d.Status))
		w.line(fmt.Sprintf("Appointment at: %s", d.AppointmentAt.Format(time.RFC3339)))
		w.line(fmt.Sprintf("Send at: %s", d.SendAt.Format(time.RFC3339)))
		if d.MessageSID != "" {
			w.line(fmt.Sprintf("Message: %s", d.MessageSID))
		}
		if d.Reason != "" {
			w.line(fmt.Sprintf("Reason: %s", d.Reason))
		}
		w.br(10)
	}

	w.heading(14, "Stages")
	for _, s := range res.Stages {
		w.font(11)
		w.para(fmt.Sprintf("%s (%s): %s", s.Task, s.Role, s.Output))
		if s.Notes != "" {
			w.font(9)
			w.para("Notes: " + s.Notes)
		}
		w.br(5)
	}

	if res.Error != "" {
		w.br(10)
		w.heading(12, "Error")
		w.font(11)
		w.para(res.Error)
	}

	if w.err != nil {
		return nil, w.err
	}
	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// writer keeps the first layout error so Render reads top to bottom.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

const (
	textWidth  = 500
	pageBottom = 780
)

func (w *writer) font(size float64) {
	if w.err == nil {
		w.err = w.pdf.SetFont("DejaVu", "", size)
	}
}

func (w *writer) heading(size float64, text string) {
	w.font(size)
	w.line(text)
}

func (w *writer) line(text string) {
	if w.err != nil {
		return
	}
	if w.pdf.GetY() > pageBottom {
		w.pdf.AddPage()
	}
	w.err = w.pdf.Cell(nil, text)
	w.pdf.Br(15)
}

func (w *writer) para(text string) {
	if w.err != nil {
		return
	}
	lines, err := w.pdf.SplitText(strings.TrimSpace(text), textWidth)
	if err != nil {
		w.err = err
		return
	}
	for _, l := range lines {
		w.line(l)
	}
}

func (w *writer) br(h float64) {
	w.pdf.Br(h)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
