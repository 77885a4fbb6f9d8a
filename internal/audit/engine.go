package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"CyberHygiene/internal/mailer"
	"CyberHygiene/internal/model"
	"CyberHygiene/internal/password"
	"CyberHygiene/internal/telemetry"
	"CyberHygiene/internal/utils"
)

type PortScanner interface {
	Scan(ctx context.Context, host string) *model.PortScanResult
}

type FirewallChecker interface {
	Check(ctx context.Context) model.FirewallState
}

type MalwareScanner interface {
	Scan(ctx context.Context, dir string) (model.MalwareFinding, error)
}

type SoftwareLister interface {
	ListInstalled(ctx context.Context) ([]model.SoftwareEntry, error)
}

type OutdatedChecker interface {
	FindOutdated(ctx context.Context, installed []model.SoftwareEntry) ([]model.OutdatedEntry, error)
}

// DirectoryPrompter 未指定扫描目录时向用户询问
type DirectoryPrompter interface {
	PromptDirectory(ctx context.Context) (string, error)
}

type Renderer interface {
	Render(report *model.AuditReport) (string, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg mailer.Message) error
}

// Collaborators 引擎依赖的各个检查实现，nil 表示该检查不可用
type Collaborators struct {
	Ports      PortScanner
	Firewall   FirewallChecker
	Malware    MalwareScanner
	Software   SoftwareLister
	Outdated   OutdatedChecker
	Prompter   DirectoryPrompter
	Renderer   Renderer
	Dispatcher Dispatcher
}

type Settings struct {
	WeakListPath string
}

// Request 一次审计的输入
type Request struct {
	Host          string
	ScanDirectory string
	Passwords     []string
}

type Engine struct {
	settings Settings
	c        Collaborators
	metrics  *telemetry.Metrics
	now      func() time.Time
	logger   *utils.Logger
}

type Option func(*Engine)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(settings Settings, c Collaborators, opts ...Option) *Engine {
	e := &Engine{
		settings: settings,
		c:        c,
		now:      time.Now,
		logger:   utils.NewLogger("audit"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// checkResult 每个检查项只写自己的结果，汇总时按固定顺序合并
type checkResult struct {
	notes []model.Note
}

func (r *checkResult) note(check, format string, args ...interface{}) {
	r.notes = append(r.notes, model.Note{Check: check, Message: fmt.Sprintf(format, args...)})
}

// Aggregate 并发执行五项检查，全部完成后返回
// 任何一项失败都只留下空结果和一条说明，不影响其他检查
func (e *Engine) Aggregate(ctx context.Context, req Request) *model.AuditReport {
	return e.aggregate(ctx, req, e.logger)
}

func (e *Engine) aggregate(ctx context.Context, req Request, logger *utils.Logger) *model.AuditReport {
	report := &model.AuditReport{
		Target:      req.Host,
		GeneratedAt: e.now(),
		Firewall:    model.FirewallState{Status: model.FirewallUnknown},
	}

	checks := []struct {
		name string
		run  func(context.Context, *model.AuditReport, *checkResult)
	}{
		{model.CheckPorts, func(ctx context.Context, r *model.AuditReport, res *checkResult) { e.checkPorts(ctx, req.Host, r, res) }},
		{model.CheckPasswords, func(_ context.Context, r *model.AuditReport, res *checkResult) { e.checkPasswords(req.Passwords, r, res, logger) }},
		{model.CheckFirewall, e.checkFirewall},
		{model.CheckMalware, func(ctx context.Context, r *model.AuditReport, res *checkResult) { e.checkMalware(ctx, req.ScanDirectory, r, res) }},
		{model.CheckSoftware, e.checkSoftware},
	}
	results := make([]checkResult, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("检查项 %s 发生 panic: %v", check.name, rec)
					results[i].note(check.name, "检查异常终止: %v", rec)
				}
			}()
			start := time.Now()
			check.run(ctx, report, &results[i])
			logger.Debug("检查项 %s 完成, 耗时 %v", check.name, time.Since(start).Round(time.Millisecond))
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		report.Notes = append(report.Notes, res.notes...)
	}
	model.SortNotes(report.Notes)

	for _, n := range report.Notes {
		logger.Warn("[%s] %s", n.Check, n.Message)
		if e.metrics != nil {
			e.metrics.CheckFailures.WithLabelValues(n.Check).Inc()
		}
	}
	if report.Ports == nil {
		report.Ports = model.NewPortScanResult(1, 0)
	}
	return report
}

func (e *Engine) checkPorts(ctx context.Context, host string, r *model.AuditReport, res *checkResult) {
	if e.c.Ports == nil {
		res.note(model.CheckPorts, "端口扫描器未配置")
		return
	}
	if host == "" {
		res.note(model.CheckPorts, "未指定扫描目标")
		return
	}
	ports := e.c.Ports.Scan(ctx, host)
	if ports == nil {
		res.note(model.CheckPorts, "端口扫描没有返回结果")
		return
	}
	r.Ports = ports

	// 未探测或探测失败的端口不能当作"没有开放端口"
	if undetermined := ports.Count(model.PortError); undetermined > 0 {
		if err := ctx.Err(); err != nil {
			res.note(model.CheckPorts, "扫描被中断, %d/%d 个端口未确定: %v", undetermined, ports.Len(), err)
		} else {
			res.note(model.CheckPorts, "%d/%d 个端口未确定", undetermined, ports.Len())
		}
	}
}

func (e *Engine) checkPasswords(passwords []string, r *model.AuditReport, res *checkResult, logger *utils.Logger) {
	weak, err := password.LoadWeakSet(e.settings.WeakListPath)
	if err != nil {
		if errors.Is(err, password.ErrWordListMissing) {
			logger.Warn("弱密码表不存在, 仅检查密码规则: %v", err)
		}
		res.note(model.CheckPasswords, "弱密码表不可用: %v", err)
	}
	if len(passwords) == 0 {
		res.note(model.CheckPasswords, "没有提供待检查的密码")
	}
	r.Passwords = password.EvaluateAll(passwords, weak)
}

func (e *Engine) checkFirewall(ctx context.Context, r *model.AuditReport, res *checkResult) {
	if e.c.Firewall == nil {
		res.note(model.CheckFirewall, "防火墙检查未配置")
		return
	}
	r.Firewall = e.c.Firewall.Check(ctx)
}

func (e *Engine) checkMalware(ctx context.Context, dir string, r *model.AuditReport, res *checkResult) {
	if e.c.Malware == nil {
		res.note(model.CheckMalware, "恶意软件扫描器未配置")
		return
	}

	if dir == "" {
		if e.c.Prompter == nil {
			res.note(model.CheckMalware, "未指定扫描目录")
			return
		}
		prompted, err := e.c.Prompter.PromptDirectory(ctx)
		if err != nil {
			res.note(model.CheckMalware, "获取扫描目录失败: %v", err)
			return
		}
		dir = prompted
	}

	finding, err := e.c.Malware.Scan(ctx, dir)
	if err != nil {
		res.note(model.CheckMalware, "恶意软件扫描失败: %v", err)
		return
	}
	r.Malware = finding
}

func (e *Engine) checkSoftware(ctx context.Context, r *model.AuditReport, res *checkResult) {
	if e.c.Software == nil {
		res.note(model.CheckSoftware, "软件清单未配置")
		return
	}

	installed, err := e.c.Software.ListInstalled(ctx)
	if err != nil {
		res.note(model.CheckSoftware, "获取已安装软件失败: %v", err)
		return
	}
	r.Installed = installed

	if e.c.Outdated == nil {
		res.note(model.CheckSoftware, "过期检查未配置")
		return
	}
	outdated, err := e.c.Outdated.FindOutdated(ctx, installed)
	if err != nil {
		res.note(model.CheckSoftware, "过期软件检查失败: %v", err)
		return
	}
	r.Outdated = outdated
}
