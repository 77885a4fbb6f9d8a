package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"CyberHygiene/internal/model"
	"CyberHygiene/internal/utils"
)

const tableLineHeight = 6

// PDFRenderer 与 HTML 相同的章节顺序和占位符
type PDFRenderer struct {
	dir    string
	now    func() time.Time
	logger *utils.Logger
}

func NewPDFRenderer(dir string) *PDFRenderer {
	return &PDFRenderer{
		dir:    dir,
		now:    time.Now,
		logger: utils.NewLogger("report"),
	}
}

func (p *PDFRenderer) Bytes(r *model.AuditReport) ([]byte, error) {
	v := buildView(r, timestampOf(r, p.now))

	pdf := gofpdf.New("P", "mm", "A4", "")
	// 核心字体只覆盖 cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 12, "Cyber Hygiene Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 7, tr("Target: "+v.Target), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Generated: "+v.Timestamp, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	var ports []string
	for _, op := range v.OpenPorts {
		line := strconv.Itoa(op.Port)
		if op.Service != "" {
			line += " (" + op.Service + ")"
		}
		ports = append(ports, line)
	}
	var failing []string
	for _, f := range v.Failing {
		failing = append(failing, f.Password+": "+f.Failures)
	}
	var notes []string
	for _, n := range v.Notes {
		notes = append(notes, n.Check+": "+n.Message)
	}

	pdfList(pdf, tr, "Open Ports", ports)
	pdfList(pdf, tr, "Weak Passwords", v.Weak)
	pdfList(pdf, tr, "Passwords Not Meeting Criteria", failing)
	pdfList(pdf, tr, "Firewall Status", []string{v.Firewall})
	pdfList(pdf, tr, "Malware Scan - Malicious", v.Malicious)
	pdfList(pdf, tr, "Malware Scan - Suspicious", v.Suspicious)

	var installed [][]string
	for _, s := range v.Installed {
		installed = append(installed, []string{s.Name, s.Version})
	}
	pdfTable(pdf, tr, "Installed Software", []string{"Name", "Version"}, []float64{120, 60}, installed)

	var outdated [][]string
	for _, o := range v.Outdated {
		outdated = append(outdated, []string{o.Name, o.InstalledVersion, o.LatestVersion})
	}
	pdfTable(pdf, tr, "Outdated Software", []string{"Name", "Installed Version", "Latest Version"},
		[]float64{80, 50, 50}, outdated)

	pdfList(pdf, tr, "Audit Notes", notes)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("生成 PDF 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *PDFRenderer) Render(r *model.AuditReport) (string, error) {
	data, err := p.Bytes(r)
	if err != nil {
		return "", err
	}

	path, err := writeReport(p.dir, FileName(r.Target, timestampOf(r, p.now), "pdf"), data)
	if err != nil {
		return "", err
	}

	p.logger.Info("PDF 报告已生成: %s", path)
	return path, nil
}

func pdfSection(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
}

func pdfNone(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 7, noneFound, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func pdfList(pdf *gofpdf.Fpdf, tr func(string) string, title string, items []string) {
	pdfSection(pdf, title)
	if len(items) == 0 {
		pdfNone(pdf)
		return
	}

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(60, 60, 60)
	for _, item := range items {
		pdf.MultiCell(0, 6, tr("- "+item), "", "L", false)
	}
	pdf.Ln(2)
}

func pdfTable(pdf *gofpdf.Fpdf, tr func(string) string, title string, header []string, widths []float64, rows [][]string) {
	pdfSection(pdf, title)
	if len(rows) == 0 {
		pdfNone(pdf)
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(0, 0, 0)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	_, pageH := pdf.GetPageSize()
	left, _, _, bottom := pdf.GetMargins()
	for _, row := range rows {
		cells := make([][]string, len(row))
		lines := 1
		for i, cell := range row {
			cells[i] = wrapCell(pdf, tr(cell), widths[i])
			if len(cells[i]) > lines {
				lines = len(cells[i])
			}
		}

		h := float64(lines) * tableLineHeight
		if pdf.GetY()+h > pageH-bottom {
			pdf.AddPage()
		}

		x, y := pdf.GetXY()
		for i := range row {
			pdf.Rect(x, y, widths[i], h, "D")
			for k, line := range cells[i] {
				pdf.SetXY(x, y+float64(k)*tableLineHeight)
				pdf.CellFormat(widths[i], tableLineHeight, line, "", 0, "L", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(left, y+h)
	}
	pdf.Ln(3)
}

// wrapCell 按当前字体把单元格文本折成不超过 width 的多行
func wrapCell(pdf *gofpdf.Fpdf, text string, width float64) []string {
	var lines []string
	for _, l := range pdf.SplitLines([]byte(text), width) {
		lines = append(lines, string(l))
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}
