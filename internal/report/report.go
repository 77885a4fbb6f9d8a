package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"CyberHygiene/internal/model"
)

var ErrReportWrite = errors.New("写入报告失败")

const (
	filePrefix      = "cyber_hygiene_report"
	maxNameAttempts = 1000
	fileTimeLayout  = "20060102_150405"
	displayTimeFmt  = "2006-01-02 15:04:05"
	noneFound       = "None found"
	defaultDirPerm  = 0755
	defaultFilePerm = 0644
)

// Renderer 把审计结果写成文件并返回路径
type Renderer interface {
	Render(report *model.AuditReport) (string, error)
}

// New 按格式创建渲染器，支持 html 和 pdf
func New(format, dir string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "html":
		return NewHTMLRenderer(dir), nil
	case "pdf":
		return NewPDFRenderer(dir), nil
	default:
		return nil, fmt.Errorf("不支持的报告格式: %s", format)
	}
}

var unsafeHostChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeHost(host string) string {
	s := unsafeHostChars.ReplaceAllString(strings.TrimSpace(host), "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// FileName cyber_hygiene_report_<host>_<YYYYMMDD_HHMMSS>.<ext>
func FileName(host string, at time.Time, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", filePrefix, sanitizeHost(host), at.Format(fileTimeLayout), ext)
}

func writeReport(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", fmt.Errorf("%w: 创建目录 %s: %v", ErrReportWrite, dir, err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n < maxNameAttempts; n++ {
		candidate := name
		if n > 0 {
			// 同一秒内的重复报告追加序号, 不覆盖已有文件
			candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePerm)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrReportWrite, path, err)
		}

		_, werr := f.Write(data)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(path)
			return "", fmt.Errorf("%w: %s: %v", ErrReportWrite, path, werr)
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: %s 的可用文件名已用尽", ErrReportWrite, name)
}

type portView struct {
	Port    int
	Service string
}

type failureView struct {
	Password string
	Failures string
}

// view 渲染用的扁平数据，HTML 和 PDF 共用
type view struct {
	Target     string
	Timestamp  string
	OpenPorts  []portView
	Weak       []string
	Failing    []failureView
	Firewall   string
	Malicious  []string
	Suspicious []string
	Installed  []model.SoftwareEntry
	Outdated   []model.OutdatedEntry
	Notes      []model.Note
}

func buildView(r *model.AuditReport, at time.Time) view {
	v := view{
		Target:     r.Target,
		Timestamp:  at.Format(displayTimeFmt),
		Weak:       r.WeakPasswords(),
		Firewall:   r.Firewall.String(),
		Malicious:  r.Malware.Malicious,
		Suspicious: r.Malware.Suspicious,
		Installed:  r.Installed,
		Outdated:   r.Outdated,
		Notes:      r.Notes,
	}

	for _, port := range r.Ports.Open() {
		v.OpenPorts = append(v.OpenPorts, portView{Port: port, Service: model.ServiceName(port)})
	}
	for _, p := range r.FailingPasswords() {
		v.Failing = append(v.Failing, failureView{Password: p.Password, Failures: strings.Join(p.Failures, ", ")})
	}
	return v
}

// timestampOf 报告时间以 GeneratedAt 为准，缺失时取当前时间
func timestampOf(r *model.AuditReport, now func() time.Time) time.Time {
	if !r.GeneratedAt.IsZero() {
		return r.GeneratedAt
	}
	return now()
}
