package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"CyberHygiene/internal/model"
	"CyberHygiene/internal/utils"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Cyber Hygiene Report - {{.Target}}</title>
<style>
body { font-family: Arial, Helvetica, sans-serif; margin: 2em; color: #222; }
h1 { color: #003366; }
h2 { color: #003366; border-bottom: 1px solid #ccc; padding-bottom: 4px; }
table { border-collapse: collapse; margin-bottom: 1em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
th { background: #f0f0f0; }
.none { color: #777; font-style: italic; }
.malicious { color: #b00020; }
.suspicious { color: #b36b00; }
</style>
</head>
<body>
<h1>Cyber Hygiene Report</h1>
<p><strong>Target:</strong> {{.Target}}</p>
<p><strong>Generated:</strong> {{.Timestamp}}</p>

<h2>Open Ports</h2>
{{- if .OpenPorts}}
<ul>
{{- range .OpenPorts}}
<li>{{.Port}}{{if .Service}} ({{.Service}}){{end}}</li>
{{- end}}
</ul>
{{- else}}
<p class="none">None found</p>
{{- end}}

<h2>Weak Passwords</h2>
{{- if .Weak}}
<ul>
{{- range .Weak}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- else}}
<p class="none">None found</p>
{{- end}}

<h2>Passwords Not Meeting Criteria</h2>
{{- if .Failing}}
<ul>
{{- range .Failing}}
<li>{{.Password}}: {{.Failures}}</li>
{{- end}}
</ul>
{{- else}}
<p class="none">None found</p>
{{- end}}

<h2>Firewall Status</h2>
<p>{{.Firewall}}</p>

<h2>Malware Scan</h2>
<h3>Malicious</h3>
{{- if .Malicious}}
<ul>
{{- range .Malicious}}
<li class="malicious">{{.}}</li>
{{- end}}
</ul>
{{- else}}
<p class="none">None found</p>
{{- end}}
<h3>Suspicious</h3>
{{- if .Suspicious}}
<ul>
{{- range .Suspicious}}
<li class="suspicious">{{.}}</li>
{{- end}}
</ul>
{{- else}}
<p class="none">None found</p>
{{- end}}

<h2>Installed Software</h2>
{{- if .Installed}}
<table>
<tr><th>Name</th><th>Version</th></tr>
{{- range .Installed}}
<tr><td>{{.Name}}</td><td>{{.Version}}</td></tr>
{{- end}}
</table>
{{- else}}
<p class="none">None found</p>
{{- end}}

<h2>Outdated Software</h2>
{{- if .Outdated}}
<table>
<tr><th>Name</th><th>Installed Version</th><th>Latest Version</th></tr>
{{- range .Outdated}}
<tr><td>{{.Name}}</td><td>{{.InstalledVersion}}</td><td>{{.LatestVersion}}</td></tr>
{{- end}}
</table>
{{- else}}
<p class="none">None found</p>
{{- end}}

<h2>Audit Notes</h2>
{{- if .Notes}}
<ul>
{{- range .Notes}}
<li><strong>{{.Check}}</strong>: {{.Message}}</li>
{{- end}}
</ul>
{{- else}}
<p class="none">None found</p>
{{- end}}
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// HTMLRenderer 生成自包含的 HTML 报告，所有字段经过上下文转义
type HTMLRenderer struct {
	dir    string
	now    func() time.Time
	logger *utils.Logger
}

func NewHTMLRenderer(dir string) *HTMLRenderer {
	return &HTMLRenderer{
		dir:    dir,
		now:    time.Now,
		logger: utils.NewLogger("report"),
	}
}

// Bytes 只生成内容，不写文件
func (h *HTMLRenderer) Bytes(r *model.AuditReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, buildView(r, timestampOf(r, h.now))); err != nil {
		return nil, fmt.Errorf("渲染 HTML 报告失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (h *HTMLRenderer) Render(r *model.AuditReport) (string, error) {
	data, err := h.Bytes(r)
	if err != nil {
		return "", err
	}

	path, err := writeReport(h.dir, FileName(r.Target, timestampOf(r, h.now), "html"), data)
	if err != nil {
		return "", err
	}

	h.logger.Info("HTML 报告已生成: %s", path)
	return path, nil
}
