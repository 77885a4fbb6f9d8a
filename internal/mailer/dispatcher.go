package mailer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wneessen/go-mail"

	"CyberHygiene/internal/telemetry"
	"CyberHygiene/internal/utils"
)

const (
	DefaultHost    = "smtp.gmail.com"
	DefaultPort    = 465
	DefaultTimeout = 30 * time.Second

	DefaultBody = "Please find the attached cyber hygiene report."
)

// DefaultSubject 默认邮件主题
func DefaultSubject(host string) string {
	return "Cyber Hygiene Report for " + host
}

// Stage 投递失败发生的阶段
type Stage string

const (
	StageAttachment Stage = "attachment"
	StageCompose    Stage = "compose"
	StageConnect    Stage = "connect"
	StageSend       Stage = "send"
)

type DispatchError struct {
	Stage Stage
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("邮件投递失败 (%s): %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

type Message struct {
	From           string
	Password       string
	To             string
	Subject        string
	Body           string
	AttachmentPath string
}

// Transport SMTP 会话, *mail.Client 满足该接口
type Transport interface {
	DialWithContext(ctx context.Context) error
	Send(messages ...*mail.Msg) error
	Close() error
}

// TransportFactory 按账号创建会话
type TransportFactory func(host string, port int, username, password string, timeout time.Duration) (Transport, error)

// NewSMTPTransport 隐式 TLS + PLAIN 认证
func NewSMTPTransport(host string, port int, username, password string, timeout time.Duration) (Transport, error) {
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username),
		mail.WithPassword(password),
		mail.WithTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type Dispatcher struct {
	host         string
	port         int
	timeout      time.Duration
	newTransport TransportFactory
	metrics      *telemetry.Metrics
	logger       *utils.Logger
}

type Option func(*Dispatcher)

func WithTransportFactory(f TransportFactory) Option {
	return func(d *Dispatcher) { d.newTransport = f }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

func NewDispatcher(host string, port int, opts ...Option) *Dispatcher {
	if host == "" {
		host = DefaultHost
	}
	if port <= 0 {
		port = DefaultPort
	}

	d := &Dispatcher{
		host:         host,
		port:         port,
		timeout:      DefaultTimeout,
		newTransport: NewSMTPTransport,
		logger:       utils.NewLogger("mailer"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Build 读取附件并组装邮件，不修改报告文件
func (d *Dispatcher) Build(msg Message) (*mail.Msg, error) {
	data, err := os.ReadFile(msg.AttachmentPath)
	if err != nil {
		return nil, &DispatchError{Stage: StageAttachment, Err: err}
	}

	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, &DispatchError{Stage: StageCompose, Err: fmt.Errorf("无效的发件人: %w", err)}
	}
	if err := m.To(msg.To); err != nil {
		return nil, &DispatchError{Stage: StageCompose, Err: fmt.Errorf("无效的收件人: %w", err)}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	name := filepath.Base(msg.AttachmentPath)
	if err := m.AttachReader(name, bytes.NewReader(data), mail.WithFileContentType(mail.TypeAppOctetStream)); err != nil {
		return nil, &DispatchError{Stage: StageAttachment, Err: err}
	}
	return m, nil
}

// Dispatch 只尝试一次，不重试
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (err error) {
	defer func() {
		if d.metrics == nil {
			return
		}
		result := "delivered"
		if err != nil {
			result = "failed"
		}
		d.metrics.Dispatches.WithLabelValues(result).Inc()
	}()

	m, err := d.Build(msg)
	if err != nil {
		return err
	}

	client, err := d.newTransport(d.host, d.port, msg.From, msg.Password, d.timeout)
	if err != nil {
		return &DispatchError{Stage: StageConnect, Err: err}
	}

	d.logger.Info("连接 %s:%d 发送报告给 %s", d.host, d.port, msg.To)
	if err := client.DialWithContext(ctx); err != nil {
		return &DispatchError{Stage: StageConnect, Err: err}
	}
	defer client.Close()

	if err := client.Send(m); err != nil {
		return &DispatchError{Stage: StageSend, Err: err}
	}

	d.logger.Info("报告已发送给 %s", msg.To)
	return nil
}
