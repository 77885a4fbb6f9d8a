package mailer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"CyberHygiene/internal/telemetry"
)

type fakeTransport struct {
	dialErr error
	sendErr error
	sent    []*mail.Msg
	closed  bool

	host     string
	port     int
	username string
	password string
}

func (f *fakeTransport) DialWithContext(context.Context) error { return f.dialErr }

func (f *fakeTransport) Send(msgs ...*mail.Msg) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) factory(host string, port int, username, password string, _ time.Duration) (Transport, error) {
	f.host, f.port, f.username, f.password = host, port, username, password
	return f, nil
}

func writeAttachment(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cyber_hygiene_report_127.0.0.1_20240309_140507.html")
	require.NoError(t, os.WriteFile(path, []byte("<html>report</html>"), 0644))
	return path
}

func testMessage(path string) Message {
	return Message{
		From:           "audit@example.com",
		Password:       "app-password",
		To:             "ops@example.com",
		Subject:        DefaultSubject("127.0.0.1"),
		Body:           DefaultBody,
		AttachmentPath: path,
	}
}

func TestDispatchDelivers(t *testing.T) {
	path := writeAttachment(t)
	ft := &fakeTransport{}
	m := telemetry.NewMetrics()
	d := NewDispatcher("", 0, WithTransportFactory(ft.factory), WithMetrics(m))

	require.NoError(t, d.Dispatch(context.Background(), testMessage(path)))

	assert.Equal(t, "smtp.gmail.com", ft.host)
	assert.Equal(t, 465, ft.port)
	assert.Equal(t, "audit@example.com", ft.username)
	assert.Equal(t, "app-password", ft.password)
	assert.True(t, ft.closed)
	require.Len(t, ft.sent, 1)

	var buf bytes.Buffer
	_, err := ft.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Cyber Hygiene Report for 127.0.0.1")
	assert.Contains(t, raw, "Please find the attached cyber hygiene report.")
	assert.Contains(t, raw, "application/octet-stream")
	assert.Contains(t, raw, `filename="cyber_hygiene_report_127.0.0.1_20240309_140507.html"`)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("delivered")))
}

func TestDispatchMissingAttachment(t *testing.T) {
	path := writeAttachment(t)
	require.NoError(t, os.Remove(path))

	ft := &fakeTransport{}
	m := telemetry.NewMetrics()
	d := NewDispatcher("", 0, WithTransportFactory(ft.factory), WithMetrics(m))

	err := d.Dispatch(context.Background(), testMessage(path))
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, StageAttachment, de.Stage)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Empty(t, ft.sent)
	assert.Empty(t, ft.host, "no connection attempted")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("failed")))
}

func TestDispatchConnectFailure(t *testing.T) {
	path := writeAttachment(t)
	ft := &fakeTransport{dialErr: errors.New("535 authentication failed")}
	d := NewDispatcher("smtp.example.com", 465, WithTransportFactory(ft.factory))

	err := d.Dispatch(context.Background(), testMessage(path))
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, StageConnect, de.Stage)

	// 报告文件保持不变
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "<html>report</html>", string(data))
}

func TestDispatchSendFailure(t *testing.T) {
	path := writeAttachment(t)
	ft := &fakeTransport{sendErr: errors.New("552 message too large")}
	d := NewDispatcher("", 0, WithTransportFactory(ft.factory))

	err := d.Dispatch(context.Background(), testMessage(path))
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, StageSend, de.Stage)
	assert.True(t, ft.closed)
}

func TestBuildRejectsBadAddress(t *testing.T) {
	path := writeAttachment(t)
	msg := testMessage(path)
	msg.To = "not an address"

	_, err := NewDispatcher("", 0).Build(msg)
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, StageCompose, de.Stage)
}
