package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CyberHygiene/internal/model"
)

var fixedTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func portsWithOpen(open ...int) *model.PortScanResult {
	r := model.NewPortScanResult(1, 1024)
	for p := 1; p <= 1024; p++ {
		r.Set(p, model.PortClosed)
	}
	for _, p := range open {
		r.Set(p, model.PortOpen)
	}
	return r
}

func emptyReport() *model.AuditReport {
	return &model.AuditReport{
		Target:      "127.0.0.1",
		GeneratedAt: fixedTime,
		Ports:       portsWithOpen(),
		Firewall:    model.FirewallState{Status: model.FirewallEnabled},
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "cyber_hygiene_report_127.0.0.1_20240309_140507.html",
		FileName("127.0.0.1", fixedTime, "html"))
	assert.Equal(t, "cyber_hygiene_report_fe80__1_20240309_140507.pdf",
		FileName("fe80::1", fixedTime, "pdf"))
	assert.Equal(t, "cyber_hygiene_report_unknown_20240309_140507.html",
		FileName(" ", fixedTime, "html"))
}

func TestHTMLEmptySectionsShowPlaceholder(t *testing.T) {
	data, err := NewHTMLRenderer(t.TempDir()).Bytes(emptyReport())
	require.NoError(t, err)
	html := string(data)

	assert.Equal(t, 8, strings.Count(html, `<p class="none">None found</p>`))
	assert.Contains(t, html, `<meta charset="utf-8">`)
	assert.Contains(t, html, "Enabled")
	assert.NotContains(t, html, "<link")
	assert.NotContains(t, html, "<script")
}

func TestHTMLSectionOrderAndPorts(t *testing.T) {
	r := emptyReport()
	r.Ports = portsWithOpen(80, 22)

	data, err := NewHTMLRenderer(t.TempDir()).Bytes(r)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "<li>22 (SSH)</li>")
	assert.Contains(t, html, "<li>80 (HTTP)</li>")
	assert.Less(t, strings.Index(html, "<li>22"), strings.Index(html, "<li>80"))

	sections := []string{
		"Target:", "Generated:", "Open Ports", "Weak Passwords", "Passwords Not Meeting Criteria",
		"Firewall Status", "Malware Scan", "Installed Software", "Outdated Software", "Audit Notes",
	}
	last := -1
	for _, s := range sections {
		i := strings.Index(html, s)
		require.Greater(t, i, last, s)
		last = i
	}
}

func TestHTMLEscapesScanDerivedData(t *testing.T) {
	r := emptyReport()
	r.Passwords = []model.PasswordFinding{
		{Password: "<script>alert(1)</script>", Failures: []string{"Missing numeric digit"}, Weak: true},
	}
	r.Installed = []model.SoftwareEntry{{Name: `<img src=x onerror="x()">`, Version: "1.0"}}
	r.Malware = model.MalwareFinding{Suspicious: []string{"/tmp/a&b<c>.sh"}}

	data, err := NewHTMLRenderer(t.TempDir()).Bytes(r)
	require.NoError(t, err)
	html := string(data)

	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<img")
	assert.Contains(t, html, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, html, "/tmp/a&amp;b&lt;c&gt;.sh")
}

func TestHTMLFailSoftFindingsStillRender(t *testing.T) {
	r := emptyReport()
	r.Firewall = model.FirewallState{Status: model.FirewallUnknown, Reason: "ufw 未安装"}
	r.Notes = []model.Note{{Check: model.CheckMalware, Message: "目录不存在: /nope"}}

	data, err := NewHTMLRenderer(t.TempDir()).Bytes(r)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "Unknown: ufw 未安装")
	assert.Contains(t, html, "<strong>malware</strong>: 目录不存在: /nope")
	assert.Equal(t, 7, strings.Count(html, "None found"))
}

func TestRenderCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")

	path, err := NewHTMLRenderer(dir).Render(emptyReport())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cyber_hygiene_report_127.0.0.1_20240309_140507.html"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRenderWriteFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewHTMLRenderer(filepath.Join(blocker, "reports")).Render(emptyReport())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReportWrite))
}

func TestPDFRender(t *testing.T) {
	r := emptyReport()
	r.Ports = portsWithOpen(443)
	r.Outdated = []model.OutdatedEntry{{Name: "nginx", InstalledVersion: "1.18.0", LatestVersion: "2.0+ (Latest Version)"}}

	path, err := NewPDFRenderer(t.TempDir()).Render(r)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pdf"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestRenderDoesNotOverwriteSameSecondReport(t *testing.T) {
	dir := t.TempDir()
	h := NewHTMLRenderer(dir)

	first, err := h.Render(emptyReport())
	require.NoError(t, err)
	second, err := h.Render(emptyReport())
	require.NoError(t, err)
	third, err := h.Render(emptyReport())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "cyber_hygiene_report_127.0.0.1_20240309_140507.html"), first)
	assert.Equal(t, filepath.Join(dir, "cyber_hygiene_report_127.0.0.1_20240309_140507_1.html"), second)
	assert.Equal(t, filepath.Join(dir, "cyber_hygiene_report_127.0.0.1_20240309_140507_2.html"), third)
	for _, p := range []string{first, second, third} {
		assert.FileExists(t, p)
	}
}

func TestWrapCellSplitsLongText(t *testing.T) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	long := strings.Repeat("libreoffice-common-extension ", 10)
	lines := wrapCell(pdf, long, 80)
	assert.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.LessOrEqual(t, pdf.GetStringWidth(l), 80.0)
	}

	assert.Equal(t, []string{"nginx"}, wrapCell(pdf, "nginx", 80))
	assert.Equal(t, []string{""}, wrapCell(pdf, "", 80))
}

func TestPDFRenderLongSoftwareNames(t *testing.T) {
	r := emptyReport()
	for i := 0; i < 60; i++ {
		r.Installed = append(r.Installed, model.SoftwareEntry{
			Name:    strings.Repeat("very-long-package-name-", 8),
			Version: "1:2.34.0-0ubuntu1~22.04.1+esm1",
		})
	}

	path, err := NewPDFRenderer(t.TempDir()).Render(r)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestNewRendererByFormat(t *testing.T) {
	r, err := New("HTML", "out")
	require.NoError(t, err)
	assert.IsType(t, &HTMLRenderer{}, r)

	r, err = New("pdf", "out")
	require.NoError(t, err)
	assert.IsType(t, &PDFRenderer{}, r)

	_, err = New("docx", "out")
	assert.Error(t, err)
}
