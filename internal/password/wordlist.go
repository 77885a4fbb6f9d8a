package password

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrWordListMissing 词表文件不存在，调用方记录警告后继续
var ErrWordListMissing = errors.New("word list not found")

// LoadWeakSet 每行一个弱密码，忽略空行
func LoadWeakSet(path string) (WeakSet, error) {
	words, err := readLines(path)
	if err != nil {
		return WeakSet{}, err
	}
	return NewWeakSet(words...), nil
}

// LoadPasswords 读取待检查的密码列表，保持文件顺序
func LoadPasswords(path string) ([]string, error) {
	return readLines(path)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrWordListMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("打开词表 %s 失败: %w", path, err)
	}
	defer f.Close()

	lines, err := parseLines(f)
	if err != nil {
		return nil, fmt.Errorf("读取词表 %s 失败: %w", path, err)
	}
	return lines, nil
}

func parseLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}
