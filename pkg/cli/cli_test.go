package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CyberHygiene/internal/audit"
	"CyberHygiene/internal/catalog"
	"CyberHygiene/internal/config"
	"CyberHygiene/internal/model"
)

func TestExtractHostname(t *testing.T) {
	cases := map[string]string{
		"192.168.1.1":                "192.168.1.1",
		"https://example.com:8443/x": "example.com",
		"example.com/path":           "example.com",
		"  localhost ":               "localhost",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractHostname(in), in)
	}
}

func TestApplyFlagsOnlyOverridesChanged(t *testing.T) {
	cmd := newAuditCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--target", "10.0.0.9", "--to", "ops@example.com"}))

	cfg := config.Default()
	cfg.ReportDir = "from-config"
	opts := &AuditOptions{Target: "10.0.0.9", To: "ops@example.com"}
	applyFlags(cmd, opts, cfg)

	assert.Equal(t, "10.0.0.9", cfg.Target)
	assert.Equal(t, "ops@example.com", cfg.Mail.Recipient)
	assert.Equal(t, "from-config", cfg.ReportDir)
}

func TestCollectPasswords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwords.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc\n\nPassw0rd!\n"), 0644))

	got, err := collectPasswords(path, []string{"inline"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"inline", "abc", "Passw0rd!"}, got)

	missing := filepath.Join(t.TempDir(), "missing.txt")
	got, err = collectPasswords(missing, []string{"inline"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"inline"}, got)

	_, err = collectPasswords(missing, nil, true)
	assert.Error(t, err)
}

func TestDirectoryPromptReasksUntilValid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	in := strings.NewReader("\n/definitely/not/here\n" + file + "\n" + dir + "\n")
	var out bytes.Buffer
	got, err := NewDirectoryPrompt(in, &out).PromptDirectory(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.Equal(t, 4, strings.Count(out.String(), "请输入要扫描恶意软件的目录"))
	assert.Equal(t, 2, strings.Count(out.String(), "请重新输入"))
}

func TestDirectoryPromptEOF(t *testing.T) {
	var out bytes.Buffer
	_, err := NewDirectoryPrompt(strings.NewReader("/nope"), &out).PromptDirectory(context.Background())
	assert.True(t, errors.Is(err, ErrNoInput))
}

func TestDirectoryPromptLastLineWithoutNewline(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	got, err := NewDirectoryPrompt(strings.NewReader(dir), &out).PromptDirectory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestDirectoryPromptHonoursCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := NewDirectoryPrompt(pr, &out).PromptDirectory(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("PromptDirectory 未响应取消")
	}
}

func TestPromptSecretKeepsSpaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("  pass word \r\n"), 0600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out bytes.Buffer
	got, err := PromptSecret(f, &out, "SMTP 密码: ")
	require.NoError(t, err)
	assert.Equal(t, "  pass word ", got)
	assert.Contains(t, out.String(), "SMTP 密码")
}

func TestPromptSecretEmptyLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = PromptSecret(f, io.Discard, "")
	assert.True(t, errors.Is(err, ErrNoInput))
}

func sampleOutcome() audit.Outcome {
	ports := model.NewPortScanResult(1, 1024)
	ports.Set(22, model.PortOpen)
	ports.Set(8081, model.PortOpen)
	ports.Set(80, model.PortOpen)
	return audit.Outcome{
		RunID:      "run-1",
		State:      model.StateRendered,
		ReportPath: "reports/cyber_hygiene_report_127.0.0.1_20240309_140507.html",
		Report: &model.AuditReport{
			Target:    "127.0.0.1",
			Ports:     ports,
			Passwords: []model.PasswordFinding{{Password: "abc", Failures: []string{"Too short"}, Weak: true}},
			Firewall:  model.FirewallState{Status: model.FirewallDisabled},
			Notes:     []model.Note{{Check: model.CheckMalware, Message: "未指定扫描目录"}},
		},
	}
}

func TestPrintOutcomeText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewOutputFormatter("text").PrintOutcome(&buf, sampleOutcome()))
	out := buf.String()

	assert.Contains(t, out, "目标: 127.0.0.1")
	assert.Contains(t, out, "22/ssh, 80/http")
	assert.Contains(t, out, "Disabled")
	assert.Contains(t, out, "[malware] 未指定扫描目录")
	assert.Contains(t, out, "cyber_hygiene_report_127.0.0.1_20240309_140507.html")
	assert.NotContains(t, out, "abc")
}

func TestPrintOutcomeJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewOutputFormatter("json").PrintOutcome(&buf, sampleOutcome()))

	var s summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &s))
	assert.Equal(t, "Rendered", s.State)
	assert.Equal(t, []int{22, 80}, s.OpenPorts)
	assert.Equal(t, 1, s.WeakPasswords)
	assert.Equal(t, 1, s.FailedCriteria)
	assert.NotContains(t, buf.String(), `"abc"`)
}

func TestPrintOutcomeWithoutReport(t *testing.T) {
	var buf bytes.Buffer
	out := audit.Outcome{RunID: "run-2", State: model.StateAggregated, Err: errors.New("写入报告失败")}
	require.NoError(t, NewOutputFormatter("json").PrintOutcome(&buf, out))
	assert.Contains(t, buf.String(), "写入报告失败")
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "cyberhygiene "+Version+"\n", buf.String())
}

func TestCatalogImportCommand(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "catalog.yaml")
	dbPath := filepath.Join(dir, "catalog.db")
	require.NoError(t, os.WriteFile(yamlPath, []byte("products:\n  - name: openssl\n    latest: 3.3.2\n"), 0644))

	root := NewRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"catalog", "import", yamlPath, "--db", dbPath})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "导入 1 条")

	cat, err := catalog.Open(dbPath)
	require.NoError(t, err)
	defer cat.Close()
	latest, ok, err := cat.Latest("openssl")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3.3.2", latest)
}

func TestAuditNoMailEndToEnd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	weak := filepath.Join(dir, "weak.txt")
	require.NoError(t, os.WriteFile(weak, []byte("abc\n"), 0644))
	reports := filepath.Join(dir, "reports")

	root := NewRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"audit",
		"--target", "127.0.0.1",
		"--dir", dir,
		"--password", "abc",
		"--passwords-file", "",
		"--weak-list", weak,
		"--report-dir", reports,
		"--no-mail", "--json",
	})
	t.Setenv("CYBERHYGIENE_PORT_RANGE", "1-20")
	t.Setenv("CYBERHYGIENE_PROBE_TIMEOUT", "200ms")
	t.Setenv("CYBERHYGIENE_CATALOG_PATH", "")

	require.NoError(t, root.Execute())

	var s summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &s))
	assert.Equal(t, "Rendered", s.State)
	assert.Equal(t, 1, s.WeakPasswords)
	require.NotEmpty(t, s.ReportPath)
	assert.FileExists(t, s.ReportPath)
	assert.True(t, strings.HasPrefix(filepath.Base(s.ReportPath), "cyber_hygiene_report_127.0.0.1_"))
}
