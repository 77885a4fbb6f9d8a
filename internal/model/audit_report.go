package model

import (
	"encoding/json"
	"sort"
	"time"
)

// PortState 单个端口的探测结果
type PortState string

const (
	PortOpen   PortState = "Open"
	PortClosed PortState = "Closed"
	PortError  PortState = "Error"
)

// PortScanResult 端口范围内每个端口恰好一条记录，返回后只读
type PortScanResult struct {
	start  int
	states []PortState
}

// NewPortScanResult 按范围预分配存储，所有端口初始为 Error
// 并发探测时每个协程只写自己的下标，不需要加锁
func NewPortScanResult(start, end int) *PortScanResult {
	if end < start {
		end = start - 1
	}
	states := make([]PortState, end-start+1)
	for i := range states {
		states[i] = PortError
	}
	return &PortScanResult{start: start, states: states}
}

// Set 只允许在扫描协调器内部调用
func (r *PortScanResult) Set(port int, state PortState) {
	if i := port - r.start; i >= 0 && i < len(r.states) {
		r.states[i] = state
	}
}

func (r *PortScanResult) State(port int) (PortState, bool) {
	if r == nil {
		return "", false
	}
	i := port - r.start
	if i < 0 || i >= len(r.states) {
		return "", false
	}
	return r.states[i], true
}

func (r *PortScanResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.states)
}

// Ports 按端口号升序返回全部端口
func (r *PortScanResult) Ports() []int {
	ports := make([]int, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		ports = append(ports, r.start+i)
	}
	return ports
}

// Open 按端口号升序返回开放端口
func (r *PortScanResult) Open() []int {
	var open []int
	for i := 0; i < r.Len(); i++ {
		if r.states[i] == PortOpen {
			open = append(open, r.start+i)
		}
	}
	return open
}

// MarshalJSON 只输出开放端口列表和各状态计数
func (r *PortScanResult) MarshalJSON() ([]byte, error) {
	open := r.Open()
	if open == nil {
		open = []int{}
	}
	return json.Marshal(struct {
		Scanned int   `json:"scanned"`
		Open    []int `json:"open"`
		Closed  int   `json:"closed"`
		Errors  int   `json:"errors"`
	}{r.Len(), open, r.Count(PortClosed), r.Count(PortError)})
}

func (r *PortScanResult) Count(state PortState) int {
	n := 0
	for i := 0; i < r.Len(); i++ {
		if r.states[i] == state {
			n++
		}
	}
	return n
}

// PasswordFinding 单个密码的检查结果，Failures 顺序固定: 长度、大写、小写、数字、特殊字符
type PasswordFinding struct {
	Password string   `json:"password"`
	Failures []string `json:"failures"`
	Weak     bool     `json:"weak"`
}

// Compliant 没有任何失败项且不在弱密码表中
func (p PasswordFinding) Compliant() bool {
	return len(p.Failures) == 0 && !p.Weak
}

// FirewallStatus 防火墙启用状态
type FirewallStatus string

const (
	FirewallEnabled  FirewallStatus = "Enabled"
	FirewallDisabled FirewallStatus = "Disabled"
	FirewallUnknown  FirewallStatus = "Unknown"
)

// FirewallState Unknown 时 Reason 携带诊断信息
type FirewallState struct {
	Status FirewallStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

func (f FirewallState) String() string {
	if f.Status == FirewallUnknown && f.Reason != "" {
		return string(f.Status) + ": " + f.Reason
	}
	return string(f.Status)
}

// MalwareFinding 外部恶意软件扫描器的结果，原样渲染
type MalwareFinding struct {
	Malicious  []string `json:"malicious"`
	Suspicious []string `json:"suspicious"`
}

func (m MalwareFinding) Empty() bool {
	return len(m.Malicious) == 0 && len(m.Suspicious) == 0
}

// SoftwareEntry 已安装软件
type SoftwareEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OutdatedEntry 过期软件
type OutdatedEntry struct {
	Name             string `json:"name"`
	InstalledVersion string `json:"installed_version"`
	LatestVersion    string `json:"latest_version"`
}

// 检查项名称，同时决定 Notes 的输出顺序
const (
	CheckPorts     = "ports"
	CheckPasswords = "passwords"
	CheckFirewall  = "firewall"
	CheckMalware   = "malware"
	CheckSoftware  = "software"
)

var checkOrder = map[string]int{
	CheckPorts:     0,
	CheckPasswords: 1,
	CheckFirewall:  2,
	CheckMalware:   3,
	CheckSoftware:  4,
}

// Note 某个检查项降级时记录的说明
type Note struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// SortNotes 按固定检查顺序排序，同一检查项内保持原顺序
func SortNotes(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return checkOrder[notes[i].Check] < checkOrder[notes[j].Check]
	})
}

// AuditReport 一次审计的聚合结果
type AuditReport struct {
	Target      string            `json:"target"`
	GeneratedAt time.Time         `json:"generated_at"`
	Ports       *PortScanResult   `json:"ports"`
	Passwords   []PasswordFinding `json:"passwords"`
	Firewall    FirewallState     `json:"firewall"`
	Malware     MalwareFinding    `json:"malware"`
	Installed   []SoftwareEntry   `json:"installed_software"`
	Outdated    []OutdatedEntry   `json:"outdated_software"`
	Notes       []Note            `json:"notes,omitempty"`
	ReportPath  string            `json:"report_path,omitempty"`
}

// WeakPasswords 在弱密码表中的密码，保持输入顺序
func (r *AuditReport) WeakPasswords() []string {
	var weak []string
	for _, p := range r.Passwords {
		if p.Weak {
			weak = append(weak, p.Password)
		}
	}
	return weak
}

// FailingPasswords 至少有一项规则不满足的密码
func (r *AuditReport) FailingPasswords() []PasswordFinding {
	var failing []PasswordFinding
	for _, p := range r.Passwords {
		if len(p.Failures) > 0 {
			failing = append(failing, p)
		}
	}
	return failing
}
