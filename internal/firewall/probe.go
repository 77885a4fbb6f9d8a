package firewall

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"CyberHygiene/internal/model"
	"CyberHygiene/internal/utils"
)

const DefaultTimeout = 15 * time.Second

// Command 查询防火墙状态的系统命令及其"已启用"标记
type Command struct {
	Name   string
	Args   []string
	Marker string
}

// Commands 各操作系统对应的查询命令
var Commands = map[string]Command{
	"windows": {Name: "netsh", Args: []string{"advfirewall", "show", "allprofiles"}, Marker: "State ON"},
	"linux":   {Name: "ufw", Args: []string{"status"}, Marker: "Status: active"},
	"darwin":  {Name: "/usr/libexec/ApplicationFirewall/socketfilterfw", Args: []string{"--getglobalstate"}, Marker: "enabled"},
}

type Probe struct {
	command   Command
	supported bool
	goos      string
	runner    utils.CommandRunner
	timeout   time.Duration
	logger    *utils.Logger
}

// NewProbe 按当前操作系统选择查询命令
func NewProbe(runner utils.CommandRunner, timeout time.Duration) *Probe {
	return NewProbeFor(runtime.GOOS, runner, timeout)
}

func NewProbeFor(goos string, runner utils.CommandRunner, timeout time.Duration) *Probe {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmd, ok := Commands[goos]
	return &Probe{
		command:   cmd,
		supported: ok,
		goos:      goos,
		runner:    runner,
		timeout:   timeout,
		logger:    utils.NewLogger("firewall"),
	}
}

// Check 标记存在为 Enabled，有输出但无标记为 Disabled，命令本身失败为 Unknown
func (p *Probe) Check(ctx context.Context) model.FirewallState {
	if !p.supported {
		return unknown("不支持的操作系统: %s", p.goos)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, p.command.Name, p.command.Args...)
	if err != nil {
		var execErr *exec.Error
		switch {
		case errors.As(err, &execErr):
			return unknown("找不到命令 %s: %v", p.command.Name, execErr.Err)
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return unknown("%s 执行超时 (%v)", p.command.Name, p.timeout)
		default:
			return unknown("%s 执行失败: %v", p.command.Name, err)
		}
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return unknown("%s 没有输出", p.command.Name)
	}

	// netsh 用空格对齐列, 比较前折叠空白
	if strings.Contains(collapseSpace(text), collapseSpace(p.command.Marker)) {
		p.logger.Debug("防火墙已启用 (%s)", p.command.Name)
		return model.FirewallState{Status: model.FirewallEnabled}
	}
	return model.FirewallState{Status: model.FirewallDisabled}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func unknown(format string, args ...interface{}) model.FirewallState {
	return model.FirewallState{Status: model.FirewallUnknown, Reason: fmt.Sprintf(format, args...)}
}
