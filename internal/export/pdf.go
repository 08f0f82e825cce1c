package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/sjawhar/pitchspeak/internal/estimate"
)

const (
	pageMargin = 20.0
	lineHeight = 7.0
	bodyWidth  = 170.0
	labelWidth = 32.0
)

var (
	primaryColor = [3]int{41, 128, 185}
	textColor    = [3]int{44, 62, 80}
)

// RenderPDF lays out an estimation report.
func RenderPDF(result estimate.Result, generatedAt time.Time) ([]byte, error) {
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.SetTitle("Project Estimation Report", true)
	doc.SetCreator("pitchspeak", true)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.AddPage()

	heading(doc, 24, "Project Estimation Report")
	doc.Ln(4)

	body(doc, 10)
	doc.Cell(bodyWidth, lineHeight, tr("Generated on: "+generatedAt.Format("January 2, 2006")))
	doc.Ln(12)

	heading(doc, 16, "Project Overview")
	body(doc, 11)
	doc.MultiCell(bodyWidth, lineHeight, tr(result.ProjectSummary), "", "L", false)
	doc.Ln(6)

	heading(doc, 16, "Estimation Details")
	body(doc, 11)
	field(doc, tr, "Complexity:", result.Estimation.Complexity)
	field(doc, tr, "Timeframe:", result.Estimation.Timeframe)
	if strings.TrimSpace(result.Estimation.Cost) != "" {
		field(doc, tr, "Estimated Cost:", result.Estimation.Cost)
	}
	doc.Ln(4)

	doc.SetFont("Helvetica", "B", 11)
	doc.Cell(bodyWidth, lineHeight, "Key Features:")
	doc.Ln(lineHeight)
	doc.SetFont("Helvetica", "", 11)
	for i, feature := range result.Estimation.Features {
		doc.SetX(pageMargin + 5)
		doc.MultiCell(bodyWidth-5, lineHeight, tr(fmt.Sprintf("%d. %s", i+1, feature)), "", "L", false)
	}
	doc.Ln(8)

	heading(doc, 16, "Detailed Summary")
	body(doc, 11)
	doc.MultiCell(bodyWidth, lineHeight, tr(result.FullSummary), "", "L", false)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// PDFFilename is the attachment name used for downloads and email.
func PDFFilename(generatedAt time.Time) string {
	return fmt.Sprintf("project-estimation-%d.pdf", generatedAt.UnixMilli())
}

func heading(doc *fpdf.Fpdf, size float64, text string) {
	doc.SetFont("Helvetica", "", size)
	doc.SetTextColor(primaryColor[0], primaryColor[1], primaryColor[2])
	doc.Cell(bodyWidth, size*0.5, text)
	doc.Ln(size*0.5 + 2)
}

func body(doc *fpdf.Fpdf, size float64) {
	doc.SetFont("Helvetica", "", size)
	doc.SetTextColor(textColor[0], textColor[1], textColor[2])
}

func field(doc *fpdf.Fpdf, tr func(string) string, label, value string) {
	doc.SetFont("Helvetica", "B", 11)
	doc.Cell(labelWidth, lineHeight, label)
	doc.SetFont("Helvetica", "", 11)
	doc.MultiCell(bodyWidth-labelWidth, lineHeight, tr(value), "", "L", false)
}
