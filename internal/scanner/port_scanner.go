package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"CyberHygiene/internal/model"
	"CyberHygiene/internal/telemetry"
	"CyberHygiene/internal/utils"
)

const (
	DefaultStartPort   = 1
	DefaultEndPort     = 1024
	DefaultConcurrency = 100
	DefaultTimeout     = time.Second
)

// Dialer 建立 TCP 连接, *net.Dialer 满足该接口
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type PortScanner struct {
	timeout time.Duration
	threads int
	start   int
	end     int
	dialer  Dialer
	logger  *utils.Logger
	metrics *telemetry.Metrics
	verbose bool
}

type Option func(*PortScanner)

func WithDialer(d Dialer) Option {
	return func(ps *PortScanner) { ps.dialer = d }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(ps *PortScanner) { ps.metrics = m }
}

// WithPortRange 覆盖默认的 1-1024 范围
func WithPortRange(start, end int) Option {
	return func(ps *PortScanner) {
		ps.start = start
		ps.end = end
	}
}

func NewPortScanner(timeout time.Duration, threads int, verbose bool, opts ...Option) *PortScanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if threads <= 0 {
		threads = DefaultConcurrency
	}

	ps := &PortScanner{
		timeout: timeout,
		threads: threads,
		start:   DefaultStartPort,
		end:     DefaultEndPort,
		logger:  utils.NewLogger("scanner"),
		verbose: verbose,
	}
	ps.dialer = &net.Dialer{Timeout: timeout}

	for _, opt := range opts {
		opt(ps)
	}
	return ps
}

// Range 返回扫描的端口范围（闭区间）
func (ps *PortScanner) Range() (int, int) {
	return ps.start, ps.end
}

// Concurrency 同时在途的最大探测数
func (ps *PortScanner) Concurrency() int {
	return ps.threads
}

// ParsePortRange 解析 "起始-结束" 格式的端口范围，空字符串返回默认范围
func ParsePortRange(portRange string) (int, int, error) {
	portRange = strings.TrimSpace(portRange)
	if portRange == "" {
		return DefaultStartPort, DefaultEndPort, nil
	}

	parts := strings.Split(portRange, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("无效的端口范围 %q, 格式应为 起始-结束", portRange)
	}

	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("无效的起始端口: %s", parts[0])
	}

	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("无效的结束端口: %s", parts[1])
	}

	if start > end {
		return 0, 0, fmt.Errorf("起始端口不能大于结束端口: %s", portRange)
	}
	if start < 1 || end > 65535 {
		return 0, 0, fmt.Errorf("端口范围必须在 1-65535 之间: %s", portRange)
	}

	return start, end, nil
}

// ProbePort 探测单个端口，所有失败都折叠为三种状态之一
func (ps *PortScanner) ProbePort(ctx context.Context, host string, port int) (state model.PortState) {
	defer func() {
		if r := recover(); r != nil {
			ps.logger.Error("探测端口 %d 时发生 panic: %v", port, r)
			state = model.PortError
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := ps.dialer.DialContext(probeCtx, "tcp", address)
	if err != nil {
		state = classifyDialError(err)
		if ps.verbose {
			ps.logger.Debug("端口 %d 连接失败 (%s): %v", port, state, err)
		}
		return state
	}
	conn.Close()

	if ps.verbose {
		ps.logger.Debug("端口 %d 开放", port)
	}
	return model.PortOpen
}

// 只有明确的连接拒绝算作 Closed，超时、解析失败、权限问题都是 Error
func classifyDialError(err error) model.PortState {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.PortClosed
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "actively refused") {
		return model.PortClosed
	}
	return model.PortError
}

// Scan 按批次扫描整个端口范围，每批最多 threads 个探测，整批完成后才开始下一批
// ctx 取消后不再启动新的批次，未探测的端口保持 Error
func (ps *PortScanner) Scan(ctx context.Context, host string) *model.PortScanResult {
	result := model.NewPortScanResult(ps.start, ps.end)
	sem := semaphore.NewWeighted(int64(ps.threads))

	startTime := time.Now()
	ps.logger.Info("开始扫描 %s 端口 %d-%d, 并发数 %d", host, ps.start, ps.end, ps.threads)

	for batchStart := ps.start; batchStart <= ps.end; batchStart += ps.threads {
		if err := ctx.Err(); err != nil {
			ps.logger.Warn("扫描在端口 %d 前中止: %v", batchStart, err)
			break
		}

		batchEnd := batchStart + ps.threads - 1
		if batchEnd > ps.end {
			batchEnd = ps.end
		}

		var wg sync.WaitGroup
		for port := batchStart; port <= batchEnd; port++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}

			wg.Add(1)
			go func(port int) {
				defer wg.Done()
				defer sem.Release(1)

				state := ps.ProbePort(ctx, host, port)
				result.Set(port, state)
				if ps.metrics != nil {
					ps.metrics.PortProbes.WithLabelValues(string(state)).Inc()
				}
			}(port)
		}
		wg.Wait()
	}

	if ps.metrics != nil {
		ps.metrics.OpenPorts.Set(float64(result.Count(model.PortOpen)))
	}

	ps.logger.Info("扫描完成，开放 %d, 关闭 %d, 错误 %d, 耗时 %v",
		result.Count(model.PortOpen), result.Count(model.PortClosed), result.Count(model.PortError),
		time.Since(startTime).Round(time.Millisecond))

	return result
}
