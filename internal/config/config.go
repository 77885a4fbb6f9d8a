package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "CYBERHYGIENE_"

type MailConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Sender    string `yaml:"sender"`
	Password  string `yaml:"password"`
	Recipient string `yaml:"recipient"`
}

type Config struct {
	Target            string        `yaml:"target"`
	ScanDirectory     string        `yaml:"scan_directory"`
	PortRange         string        `yaml:"port_range"`
	Concurrency       int           `yaml:"concurrency"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	WeakPasswordsFile string        `yaml:"weak_passwords_file"`
	PasswordsFile     string        `yaml:"passwords_file"`
	ReportDir         string        `yaml:"report_dir"`
	ReportFormat      string        `yaml:"report_format"`
	CatalogPath       string        `yaml:"catalog_path"`
	MalwareHashList   string        `yaml:"malware_hash_list"`
	MinMajorVersion   int           `yaml:"min_major_version"`
	MetricsTextfile   string        `yaml:"metrics_textfile"`
	LogLevel          string        `yaml:"log_level"`
	Mail              MailConfig    `yaml:"mail"`
}

func Default() *Config {
	return &Config{
		Target:            "127.0.0.1",
		PortRange:         "1-1024",
		Concurrency:       100,
		ProbeTimeout:      time.Second,
		CommandTimeout:    15 * time.Second,
		WeakPasswordsFile: filepath.Join("data", "weak_passwords.txt"),
		PasswordsFile:     filepath.Join("data", "passwords_to_check.txt"),
		ReportDir:         "reports",
		ReportFormat:      "html",
		CatalogPath:       filepath.Join("data", "catalog.db"),
		MinMajorVersion:   2,
		LogLevel:          "info",
		Mail: MailConfig{
			Host: "smtp.gmail.com",
			Port: 465,
		},
	}
}

// DefaultPath ~/.cyberhygiene/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cyberhygiene", "config.yaml"), nil
}

// Load 读取配置文件并应用环境变量，path 为空时使用默认路径
// 文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
	case err != nil:
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"TARGET":              &c.Target,
		"SCAN_DIRECTORY":      &c.ScanDirectory,
		"PORT_RANGE":          &c.PortRange,
		"WEAK_PASSWORDS_FILE": &c.WeakPasswordsFile,
		"PASSWORDS_FILE":      &c.PasswordsFile,
		"REPORT_DIR":          &c.ReportDir,
		"REPORT_FORMAT":       &c.ReportFormat,
		"CATALOG_PATH":        &c.CatalogPath,
		"MALWARE_HASH_LIST":   &c.MalwareHashList,
		"METRICS_TEXTFILE":    &c.MetricsTextfile,
		"LOG_LEVEL":           &c.LogLevel,
		"MAIL_HOST":           &c.Mail.Host,
		"MAIL_SENDER":         &c.Mail.Sender,
		"MAIL_PASSWORD":       &c.Mail.Password,
		"MAIL_RECIPIENT":      &c.Mail.Recipient,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CONCURRENCY":       &c.Concurrency,
		"MIN_MAJOR_VERSION": &c.MinMajorVersion,
		"MAIL_PORT":         &c.Mail.Port,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("环境变量 %s%s 不是整数: %q", EnvPrefix, key, v)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"PROBE_TIMEOUT":   &c.ProbeTimeout,
		"COMMAND_TIMEOUT": &c.CommandTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("环境变量 %s%s 不是有效时长: %q", EnvPrefix, key, v)
			}
			*dst = d
		}
	}
	return nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency 必须大于 0, 当前为 %d", c.Concurrency)
	}
	if c.ProbeTimeout <= 0 || c.CommandTimeout <= 0 {
		return fmt.Errorf("超时时间必须大于 0")
	}
	switch strings.ToLower(c.ReportFormat) {
	case "html", "pdf":
	default:
		return fmt.Errorf("不支持的报告格式: %s", c.ReportFormat)
	}
	if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("无效的邮件端口: %d", c.Mail.Port)
	}
	return nil
}
