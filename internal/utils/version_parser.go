package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

var (
	versionCore  = regexp.MustCompile(`\d+(\.\d+)*`)
	numericPart  = regexp.MustCompile(`\d+`)
	epochPrefix  = regexp.MustCompile(`^\d+:`)
	debianSuffix = regexp.MustCompile(`[-~+].*$`)
)

// VersionParser 版本号解析器
type VersionParser struct{}

func NewVersionParser() *VersionParser {
	return &VersionParser{}
}

// NormalizeVersion 标准化版本号
// "v1.2.3" -> "1.2.3", "1:2.34-0ubuntu3" -> "2.34", "Version 10.0" -> "10.0"
func (vp *VersionParser) NormalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	version = strings.TrimPrefix(strings.TrimPrefix(version, "version"), "Version")
	version = strings.TrimLeft(version, "vV ")

	// dpkg 风格的 epoch 和修订号
	version = epochPrefix.ReplaceAllString(version, "")
	version = debianSuffix.ReplaceAllString(version, "")

	if match := versionCore.FindString(version); match != "" {
		return match
	}
	return version
}

// Major 返回主版本号，无法解析时 ok=false
func (vp *VersionParser) Major(version string) (int, bool) {
	normalized := vp.NormalizeVersion(version)
	first := strings.SplitN(normalized, ".", 2)[0]
	n, err := strconv.Atoi(first)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CompareVersions 比较版本号, v1>v2 返回1, 相等返回0, 小于返回-1
// 缺失的段按 0 处理, "1.2" 与 "1.2.0" 相等
func (vp *VersionParser) CompareVersions(v1, v2 string) int {
	a, errA := version.NewVersion(vp.NormalizeVersion(v1))
	b, errB := version.NewVersion(vp.NormalizeVersion(v2))
	if errA == nil && errB == nil {
		return a.Compare(b)
	}
	return compareSegments(vp.segments(v1), vp.segments(v2))
}

// compareSegments 逐段比较, 用于 go-version 无法解析的版本串
func compareSegments(a, b []int) int {
	for len(a) < len(b) {
		a = append(a, 0)
	}
	for len(b) < len(a) {
		b = append(b, 0)
	}

	for i := range a {
		switch {
		case a[i] > b[i]:
			return 1
		case a[i] < b[i]:
			return -1
		}
	}
	return 0
}

func (vp *VersionParser) segments(version string) []int {
	fields := strings.Split(vp.NormalizeVersion(version), ".")
	nums := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(numericPart.FindString(f))
		if err != nil {
			n = 0
		}
		nums = append(nums, n)
	}
	return nums
}
