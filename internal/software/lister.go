package software

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"CyberHygiene/internal/model"
	"CyberHygiene/internal/utils"
)

const DefaultCommandTimeout = 15 * time.Second

// listCommand 一条清单命令及其输出解析器
type listCommand struct {
	name  string
	args  []string
	parse func([]byte) []model.SoftwareEntry
}

// 各平台按顺序尝试，第一条成功的命令生效
var listCommands = map[string][]listCommand{
	"linux": {
		{name: "dpkg-query", args: []string{"-W", "-f=${Package}\t${Version}\n"}, parse: parseTabbed},
		{name: "rpm", args: []string{"-qa", "--queryformat", "%{NAME}\t%{VERSION}-%{RELEASE}\n"}, parse: parseTabbed},
	},
	"windows": {
		{
			name: "powershell",
			args: []string{"-NoProfile", "-Command",
				`Get-ItemProperty HKLM:\Software\Microsoft\Windows\CurrentVersion\Uninstall\* | ` +
					`Where-Object { $_.DisplayName } | ` +
					`ForEach-Object { "$($_.DisplayName)` + "`t" + `$($_.DisplayVersion)" }`},
			parse: parseWindows,
		},
	},
	"darwin": {
		{name: "brew", args: []string{"list", "--versions"}, parse: parseBrew},
	},
}

// CommandLister 通过系统包管理器列出已安装软件
type CommandLister struct {
	goos     string
	runner   utils.CommandRunner
	timeout  time.Duration
	commands []listCommand
	logger   *utils.Logger
}

func NewCommandLister(runner utils.CommandRunner, timeout time.Duration) *CommandLister {
	return NewCommandListerFor(runtime.GOOS, runner, timeout)
}

func NewCommandListerFor(goos string, runner utils.CommandRunner, timeout time.Duration) *CommandLister {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &CommandLister{
		goos:     goos,
		runner:   runner,
		timeout:  timeout,
		commands: listCommands[goos],
		logger:   utils.NewLogger("software"),
	}
}

// ListInstalled 返回按名称排序的软件清单
func (l *CommandLister) ListInstalled(ctx context.Context) ([]model.SoftwareEntry, error) {
	if len(l.commands) == 0 {
		return nil, fmt.Errorf("不支持在 %s 上列出软件", l.goos)
	}

	var lastErr error
	for _, cmd := range l.commands {
		cmdCtx, cancel := context.WithTimeout(ctx, l.timeout)
		out, err := l.runner.Run(cmdCtx, cmd.name, cmd.args...)
		cancel()
		if err != nil {
			l.logger.Debug("%s 执行失败: %v", cmd.name, err)
			lastErr = fmt.Errorf("%s: %w", cmd.name, err)
			continue
		}

		entries := cmd.parse(out)
		sort.SliceStable(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
		})
		l.logger.Info("通过 %s 发现 %d 个已安装软件", cmd.name, len(entries))
		return entries, nil
	}

	return nil, fmt.Errorf("无法获取已安装软件列表: %w", lastErr)
}

// parseTabbed 解析 "名称\t版本" 格式
func parseTabbed(out []byte) []model.SoftwareEntry {
	var entries []model.SoftwareEntry
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, version, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		name, version = strings.TrimSpace(name), strings.TrimSpace(version)
		if name == "" || version == "" {
			continue
		}
		entries = append(entries, model.SoftwareEntry{Name: name, Version: version})
	}
	return entries
}

var nameVersionLine = regexp.MustCompile(`^(.+?)\s+([\d\.]+)$`)

// parseWindows 优先按制表符拆分，否则按 "名称 版本" 匹配
func parseWindows(out []byte) []model.SoftwareEntry {
	var entries []model.SoftwareEntry
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if name, version, ok := strings.Cut(line, "\t"); ok {
			name, version = strings.TrimSpace(name), strings.TrimSpace(version)
			if name != "" && version != "" {
				entries = append(entries, model.SoftwareEntry{Name: name, Version: version})
			}
			continue
		}
		if m := nameVersionLine.FindStringSubmatch(line); m != nil {
			entries = append(entries, model.SoftwareEntry{Name: m[1], Version: m[2]})
		}
	}
	return entries
}

// parseBrew "名称 版本1 版本2"，取最后一个版本
func parseBrew(out []byte) []model.SoftwareEntry {
	var entries []model.SoftwareEntry
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, model.SoftwareEntry{Name: fields[0], Version: fields[len(fields)-1]})
	}
	return entries
}
