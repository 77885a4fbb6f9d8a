package malware

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"CyberHygiene/internal/model"
	"CyberHygiene/internal/utils"
)

// ErrNotDirectory 扫描路径不存在或不是目录
var ErrNotDirectory = errors.New("scan path is not a directory")

const (
	defaultMaxFileSize = 50 << 20
	contentWindow      = 1 << 20
)

type severity int

const (
	suspicious severity = iota + 1
	malicious
)

type signature struct {
	pattern  *regexp.Regexp
	severity severity
	detail   string
}

var signatures = []signature{
	{regexp.MustCompile(`X5O!P%@AP\[4\\PZX54\(P\^\)7CC\)7\}\$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!\$H\+H\*`), malicious, "EICAR test signature"},

	// 反弹 shell
	{regexp.MustCompile(`bash\s+-i\s+>&\s*/dev/tcp/`), malicious, "bash reverse shell"},
	{regexp.MustCompile(`mkfifo\s+/tmp/\S+.*\bnc\b`), malicious, "named pipe reverse shell"},
	{regexp.MustCompile(`\bnc(at)?\s+(-\w+\s+)*-e\s+/bin/(ba)?sh`), malicious, "netcat shell"},

	// 挖矿
	{regexp.MustCompile(`(?i)xmrig|cpuminer|minerd|stratum\+tcp://`), malicious, "cryptocurrency miner"},

	// 下载执行
	{regexp.MustCompile(`(curl|wget)\s[^|\n]*\|\s*(ba)?sh`), suspicious, "download piped to shell"},
	{regexp.MustCompile(`(?i)powershell(\.exe)?\s+.*-enc(odedcommand)?\s`), suspicious, "encoded PowerShell command"},
	{regexp.MustCompile(`base64\s+(-d|--decode).*\|\s*(ba)?sh`), suspicious, "base64 payload piped to shell"},

	// 持久化与凭据
	{regexp.MustCompile(`cat\s+/etc/shadow`), suspicious, "reads password hashes"},
	{regexp.MustCompile(`chmod\s+u\+s`), suspicious, "sets SUID bit"},
	{regexp.MustCompile(`pastebin\.com/raw|transfer\.sh|ngrok\.io`), suspicious, "paste or tunnel service"},
}

var executableExt = map[string]bool{
	".exe": true, ".scr": true, ".bat": true, ".cmd": true, ".com": true,
	".vbs": true, ".js": true, ".jar": true, ".ps1": true, ".msi": true,
}

var skipDirs = map[string]bool{".git": true, "node_modules": true, "__pycache__": true}

// HeuristicScanner 基于已知恶意哈希和内容特征的目录扫描器
type HeuristicScanner struct {
	hashes      map[string]struct{}
	maxFileSize int64
	logger      *utils.Logger
}

func NewHeuristicScanner(knownBadHashes []string) *HeuristicScanner {
	hashes := make(map[string]struct{}, len(knownBadHashes))
	for _, h := range knownBadHashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hashes[h] = struct{}{}
		}
	}
	return &HeuristicScanner{
		hashes:      hashes,
		maxFileSize: defaultMaxFileSize,
		logger:      utils.NewLogger("malware"),
	}
}

// LoadHashList 每行一个 SHA-256，允许 "哈希 文件名" 格式和 # 注释
func LoadHashList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开哈希列表 %s 失败: %w", path, err)
	}
	defer f.Close()

	var hashes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields[0]) == sha256.Size*2 {
			hashes = append(hashes, strings.ToLower(fields[0]))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("读取哈希列表 %s 失败: %w", path, err)
	}
	return hashes, nil
}

// Scan 遍历目录，路径按字典序输出，同一文件只归入一个类别
func (s *HeuristicScanner) Scan(ctx context.Context, dir string) (model.MalwareFinding, error) {
	finding := model.MalwareFinding{Malicious: []string{}, Suspicious: []string{}}

	info, err := os.Stat(dir)
	if err != nil {
		return finding, fmt.Errorf("%w: %s: %v", ErrNotDirectory, dir, err)
	}
	if !info.IsDir() {
		return finding, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	scanned := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.Debug("跳过无法访问的路径 %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		scanned++
		switch s.classify(path) {
		case malicious:
			finding.Malicious = append(finding.Malicious, path)
		case suspicious:
			finding.Suspicious = append(finding.Suspicious, path)
		}
		return nil
	})
	if err != nil {
		return finding, fmt.Errorf("扫描目录 %s 中断: %w", dir, err)
	}

	s.logger.Info("扫描 %d 个文件，恶意 %d，可疑 %d", scanned, len(finding.Malicious), len(finding.Suspicious))
	return finding, nil
}

func (s *HeuristicScanner) classify(path string) severity {
	var level severity
	if hasDoubleExtension(filepath.Base(path)) {
		level = suspicious
	}

	f, err := os.Open(path)
	if err != nil {
		return level
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() > s.maxFileSize {
		return level
	}

	h := sha256.New()
	head := &limitedBuffer{limit: contentWindow}
	if _, err := io.Copy(io.MultiWriter(h, head), f); err != nil {
		return level
	}

	if _, bad := s.hashes[hex.EncodeToString(h.Sum(nil))]; bad {
		return malicious
	}

	for _, sig := range signatures {
		if sig.severity > level && sig.pattern.Match(head.buf) {
			s.logger.Debug("%s 命中特征: %s", path, sig.detail)
			level = sig.severity
		}
	}
	return level
}

// e.g. "invoice.pdf.exe"
func hasDoubleExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if !executableExt[ext] {
		return false
	}
	inner := filepath.Ext(strings.TrimSuffix(name, filepath.Ext(name)))
	return inner != "" && !executableExt[strings.ToLower(inner)]
}

// limitedBuffer 只保留前 limit 字节，写入永不失败
type limitedBuffer struct {
	buf   []byte
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.buf = append(b.buf, p[:room]...)
	}
	return len(p), nil
}
