package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/soaringjerry/Previsit/internal/models"
	"github.com/soaringjerry/Previsit/internal/services"
)

const (
	utf8Family = "report"
	lineHeight = 6.0
	pageWidth  = 180.0
)

// Renderer writes a submission as an A4 PDF. Without a TrueType font only
// Latin-1 text renders; set FontPath to a Unicode font for other scripts.
type Renderer struct {
	FontPath string
}

func New(fontPath string) (*Renderer, error) {
	if fontPath != "" {
		if _, err := os.Stat(fontPath); err != nil {
			return nil, fmt.Errorf("report font: %w", err)
		}
	}
	return &Renderer{FontPath: fontPath}, nil
}

type page struct {
	pdf    *fpdf.Fpdf
	family string
	tr     func(string) string
}

func (p *page) font(style string, size float64) { p.pdf.SetFont(p.family, style, size) }

func (p *page) heading(text string) {
	p.pdf.Ln(3)
	p.font("B", 13)
	p.pdf.SetFillColor(232, 240, 250)
	p.pdf.CellFormat(pageWidth, 8, p.tr(text), "", 1, "L", true, 0, "")
	p.pdf.Ln(1)
}

func (p *page) field(label, value string) {
	p.font("B", 10)
	p.pdf.CellFormat(35, lineHeight, p.tr(label), "", 0, "L", false, 0, "")
	p.font("", 10)
	p.pdf.MultiCell(pageWidth-35, lineHeight, p.tr(value), "", "L", false)
}

// Render writes the report for sub to w.
func (r *Renderer) Render(w io.Writer, sub *models.Submission) error {
	if sub == nil {
		return errors.New("report: nil submission")
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetCreationDate(sub.SubmittedAt)

	p := &page{pdf: pdf, family: "Helvetica", tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if r.FontPath != "" {
		pdf.AddUTF8Font(utf8Family, "", r.FontPath)
		pdf.AddUTF8Font(utf8Family, "B", r.FontPath)
		p.family = utf8Family
		p.tr = func(s string) string { return s }
	}
	pdf.SetTitle("Pre-visit survey: "+sub.Subject.Name, true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		p.font("", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 5, fmt.Sprintf("%s  |  page %d/{nb}", sub.ID, pdf.PageNo()), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()

	p.font("B", 16)
	pdf.CellFormat(pageWidth, 10, p.tr("Pediatric Pre-Visit Survey"), "", 1, "C", false, 0, "")
	p.font("", 9)
	pdf.CellFormat(pageWidth, 5, p.tr("Submitted "+sub.SubmittedAt.Format("2006-01-02 15:04:05")), "", 1, "C", false, 0, "")

	s := sub.Subject
	p.heading("Child")
	p.field("Name", s.Name)
	p.field("Gender", s.Gender)
	p.field("Date of birth", s.DOB)
	p.field("Age", fmt.Sprintf("%d months (%d days)", s.MonthsOld, s.DaysOld))
	p.field("Age group", s.AgeGroup)
	if sub.Attachment != nil {
		p.field("Attachment", *sub.Attachment)
	}

	p.heading("AI Analysis")
	p.font("", 10)
	summary := strings.TrimSpace(sub.AISummary)
	if summary == "" {
		summary = "Not available."
	}
	pdf.MultiCell(pageWidth, lineHeight, p.tr(summary), "", "L", false)

	p.heading("Responses")
	if len(sub.Responses) == 0 {
		p.font("", 10)
		pdf.MultiCell(pageWidth, lineHeight, p.tr("No questions were answered."), "", "L", false)
	}
	category := ""
	for i, rec := range sub.Responses {
		if rec.Category != category {
			category = rec.Category
			p.font("B", 11)
			pdf.SetTextColor(40, 80, 140)
			pdf.CellFormat(pageWidth, 7, p.tr(category), "B", 1, "L", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
		}
		p.font("B", 10)
		pdf.MultiCell(pageWidth, lineHeight, p.tr(fmt.Sprintf("%d. %s", i+1, rec.Text)), "", "L", false)
		p.font("", 10)
		pdf.MultiCell(pageWidth, lineHeight, p.tr(rec.Answer.String()), "", "L", false)
		pdf.Ln(1)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

var _ services.ReportRenderer = (*Renderer)(nil)
