package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/term"
)

var ErrNoInput = errors.New("没有更多输入")

// DirectoryPrompt 交互式询问扫描目录，直到输入一个存在的目录
type DirectoryPrompt struct {
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan inputLine
}

type inputLine struct {
	text string
	err  error
}

func NewDirectoryPrompt(in io.Reader, out io.Writer) *DirectoryPrompt {
	return &DirectoryPrompt{in: bufio.NewReader(in), out: out, lines: make(chan inputLine)}
}

// readLines 后台逐行读取, 读到错误后关闭通道
func (p *DirectoryPrompt) readLines() {
	defer close(p.lines)
	for {
		text, err := p.in.ReadString('\n')
		p.lines <- inputLine{text: text, err: err}
		if err != nil {
			return
		}
	}
}

func (p *DirectoryPrompt) PromptDirectory(ctx context.Context) (string, error) {
	p.once.Do(func() { go p.readLines() })

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		fmt.Fprint(p.out, "请输入要扫描恶意软件的目录: ")

		var line inputLine
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return "", ctx.Err()
		case l, ok := <-p.lines:
			if !ok {
				return "", ErrNoInput
			}
			line = l
		}

		dir := expandHome(strings.TrimSpace(line.text))
		if dir != "" {
			info, statErr := os.Stat(dir)
			if statErr == nil && info.IsDir() {
				return dir, nil
			}
			fmt.Fprintf(p.out, "目录 %s 不存在或不是目录, 请重新输入\n", dir)
		}

		if line.err != nil {
			if errors.Is(line.err, io.EOF) {
				return "", ErrNoInput
			}
			return "", line.err
		}
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// PromptSecret 终端中不回显输入，否则按行读取
func PromptSecret(in *os.File, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	if isTerminal(in) {
		secret, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("读取密码失败: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	// 只去掉行尾换行, 密码中的空格保留
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", ErrNoInput
	}
	return secret, nil
}
