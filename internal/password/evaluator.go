package password

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"CyberHygiene/internal/model"
)

const MinLength = 8

// SpecialCharacters 满足特殊字符规则的字符集
const SpecialCharacters = "!@#$%^&*()-_=+[]{}|;:'\",.<>?/`~"

// 失败标签，顺序与规则检查顺序一致
const (
	LabelTooShort       = "Too short"
	LabelMissingUpper   = "Missing uppercase letter"
	LabelMissingLower   = "Missing lowercase letter"
	LabelMissingDigit   = "Missing numeric digit"
	LabelMissingSpecial = "Missing special character"
)

// WeakSet 弱密码表，精确匹配，空表合法
type WeakSet map[string]struct{}

func NewWeakSet(words ...string) WeakSet {
	set := make(WeakSet, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func (s WeakSet) Contains(pwd string) bool {
	_, ok := s[pwd]
	return ok
}

type rule struct {
	label string
	pass  func(string) bool
}

var rules = []rule{
	{LabelTooShort, func(p string) bool { return utf8.RuneCountInString(p) >= MinLength }},
	{LabelMissingUpper, func(p string) bool { return strings.IndexFunc(p, unicode.IsUpper) >= 0 }},
	{LabelMissingLower, func(p string) bool { return strings.IndexFunc(p, unicode.IsLower) >= 0 }},
	{LabelMissingDigit, func(p string) bool { return strings.IndexFunc(p, unicode.IsDigit) >= 0 }},
	{LabelMissingSpecial, func(p string) bool { return strings.ContainsAny(p, SpecialCharacters) }},
}

// Evaluate 纯函数，相同输入总是得到相同的标签顺序
func Evaluate(pwd string, weak WeakSet) model.PasswordFinding {
	finding := model.PasswordFinding{
		Password: pwd,
		Failures: []string{},
		Weak:     weak.Contains(pwd),
	}
	for _, r := range rules {
		if !r.pass(pwd) {
			finding.Failures = append(finding.Failures, r.label)
		}
	}
	return finding
}

// EvaluateAll 保持输入顺序
func EvaluateAll(passwords []string, weak WeakSet) []model.PasswordFinding {
	findings := make([]model.PasswordFinding, 0, len(passwords))
	for _, p := range passwords {
		findings = append(findings, Evaluate(p, weak))
	}
	return findings
}
