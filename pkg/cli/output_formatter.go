package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"CyberHygiene/internal/audit"
	"CyberHygiene/internal/model"
)

type OutputFormatter struct {
	format string
}

func NewOutputFormatter(format string) *OutputFormatter {
	return &OutputFormatter{format: format}
}

// summary JSON 输出结构，不包含密码明文
type summary struct {
	RunID          string       `json:"run_id"`
	State          string       `json:"state"`
	Target         string       `json:"target"`
	ReportPath     string       `json:"report_path,omitempty"`
	OpenPorts      []int        `json:"open_ports"`
	WeakPasswords  int          `json:"weak_passwords"`
	FailedCriteria int          `json:"failed_criteria"`
	Firewall       string       `json:"firewall"`
	Malicious      int          `json:"malicious_files"`
	Suspicious     int          `json:"suspicious_files"`
	InstalledCount int          `json:"installed_software"`
	OutdatedCount  int          `json:"outdated_software"`
	Notes          []model.Note `json:"notes,omitempty"`
	Error          string       `json:"error,omitempty"`
}

func buildSummary(out audit.Outcome) summary {
	s := summary{
		RunID:      out.RunID,
		State:      out.State.String(),
		ReportPath: out.ReportPath,
		OpenPorts:  []int{},
	}
	if out.Err != nil {
		s.Error = out.Err.Error()
	}

	r := out.Report
	if r == nil {
		return s
	}
	s.Target = r.Target
	if open := r.Ports.Open(); open != nil {
		s.OpenPorts = open
	}
	s.WeakPasswords = len(r.WeakPasswords())
	s.FailedCriteria = len(r.FailingPasswords())
	s.Firewall = r.Firewall.String()
	s.Malicious = len(r.Malware.Malicious)
	s.Suspicious = len(r.Malware.Suspicious)
	s.InstalledCount = len(r.Installed)
	s.OutdatedCount = len(r.Outdated)
	s.Notes = r.Notes
	return s
}

func (of *OutputFormatter) PrintOutcome(w io.Writer, out audit.Outcome) error {
	s := buildSummary(out)

	if strings.ToLower(of.format) == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	_, err := io.WriteString(w, of.formatText(s))
	return err
}

func (of *OutputFormatter) formatText(s summary) string {
	var builder strings.Builder

	builder.WriteString("\n网络安全卫生审计\n")
	builder.WriteString(strings.Repeat("═", 60) + "\n")
	builder.WriteString(fmt.Sprintf("目标: %s\n", s.Target))
	builder.WriteString(fmt.Sprintf("运行: %s (%s)\n\n", s.RunID, s.State))

	w := tabwriter.NewWriter(&builder, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "检查项\t结果")
	fmt.Fprintf(w, "开放端口\t%s\n", formatPorts(s.OpenPorts))
	fmt.Fprintf(w, "弱密码\t%d\n", s.WeakPasswords)
	fmt.Fprintf(w, "不合规密码\t%d\n", s.FailedCriteria)
	fmt.Fprintf(w, "防火墙\t%s\n", s.Firewall)
	fmt.Fprintf(w, "恶意/可疑文件\t%d / %d\n", s.Malicious, s.Suspicious)
	fmt.Fprintf(w, "已安装/过期软件\t%d / %d\n", s.InstalledCount, s.OutdatedCount)
	w.Flush()

	if len(s.Notes) > 0 {
		builder.WriteString("\n说明:\n")
		for _, n := range s.Notes {
			builder.WriteString(fmt.Sprintf("  [%s] %s\n", n.Check, n.Message))
		}
	}

	builder.WriteString(strings.Repeat("─", 60) + "\n")
	if s.ReportPath != "" {
		builder.WriteString(fmt.Sprintf("报告: %s\n", s.ReportPath))
	}
	if s.Error != "" {
		builder.WriteString(fmt.Sprintf("错误: %s\n", s.Error))
	}
	return builder.String()
}

func formatPorts(ports []int) string {
	if len(ports) == 0 {
		return "无"
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		if name := model.ServiceName(p); name != "" {
			parts = append(parts, fmt.Sprintf("%d/%s", p, strings.ToLower(name)))
		} else {
			parts = append(parts, fmt.Sprintf("%d", p))
		}
	}
	return strings.Join(parts, ", ")
}
