package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"CyberHygiene/internal/audit"
	"CyberHygiene/internal/catalog"
	"CyberHygiene/internal/config"
	"CyberHygiene/internal/firewall"
	"CyberHygiene/internal/mailer"
	"CyberHygiene/internal/malware"
	"CyberHygiene/internal/password"
	"CyberHygiene/internal/report"
	"CyberHygiene/internal/scanner"
	"CyberHygiene/internal/software"
	"CyberHygiene/internal/telemetry"
	"CyberHygiene/internal/utils"
)

var Version = "1.0.0"

// AuditOptions audit 子命令的参数，只有显式设置的参数才覆盖配置文件
type AuditOptions struct {
	ConfigPath    string
	Target        string
	Directory     string
	PasswordsFile string
	Passwords     []string
	WeakList      string
	ReportDir     string
	Format        string
	NoMail        bool
	To            string
	From          string
	JSON          bool
	Verbose       bool
}

func NewRootCommand() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "cyberhygiene",
		Short:         "主机网络安全卫生审计工具",
		Long:          "扫描端口, 检查密码强度, 防火墙, 恶意软件和过期软件, 生成 HTML 报告并通过邮件发送",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				utils.SetLevel("debug")
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "显示调试日志")

	root.AddCommand(newAuditCommand(), newCatalogCommand(), newVersionCommand())
	return root
}

// Execute 供 main 调用
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func newAuditCommand() *cobra.Command {
	opts := &AuditOptions{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "执行一次完整审计",
		Example: `  cyberhygiene audit --target 192.168.1.10 --dir ~/Downloads --no-mail
  cyberhygiene audit --passwords-file data/passwords_to_check.txt --to ops@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigPath, "config", "", "配置文件路径 (默认 ~/.cyberhygiene/config.yaml)")
	f.StringVar(&opts.Target, "target", "", "目标IP地址或域名")
	f.StringVar(&opts.Directory, "dir", "", "恶意软件扫描目录")
	f.StringVar(&opts.PasswordsFile, "passwords-file", "", "待检查的密码列表文件")
	f.StringArrayVar(&opts.Passwords, "password", nil, "待检查的密码, 可重复")
	f.StringVar(&opts.WeakList, "weak-list", "", "弱密码表文件")
	f.StringVar(&opts.ReportDir, "report-dir", "", "报告输出目录")
	f.StringVar(&opts.Format, "format", "", "报告格式 (html, pdf)")
	f.BoolVar(&opts.NoMail, "no-mail", false, "只生成报告, 不发送邮件")
	f.StringVar(&opts.To, "to", "", "收件人地址")
	f.StringVar(&opts.From, "from", "", "发件人地址")
	f.BoolVar(&opts.JSON, "json", false, "以 JSON 输出审计摘要")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "显示每个端口的探测结果")
	return cmd
}

// applyFlags 命令行参数优先于配置文件和环境变量
func applyFlags(cmd *cobra.Command, opts *AuditOptions, cfg *config.Config) {
	set := func(name string, dst *string, value string) {
		if cmd.Flags().Changed(name) {
			*dst = value
		}
	}
	set("target", &cfg.Target, opts.Target)
	set("dir", &cfg.ScanDirectory, opts.Directory)
	set("passwords-file", &cfg.PasswordsFile, opts.PasswordsFile)
	set("weak-list", &cfg.WeakPasswordsFile, opts.WeakList)
	set("report-dir", &cfg.ReportDir, opts.ReportDir)
	set("format", &cfg.ReportFormat, opts.Format)
	set("to", &cfg.Mail.Recipient, opts.To)
	set("from", &cfg.Mail.Sender, opts.From)
}

func runAudit(cmd *cobra.Command, opts *AuditOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, opts, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cmd.Flags().Changed("debug") {
		utils.SetLevel(cfg.LogLevel)
	}
	logger := utils.NewLogger("cli")

	host := extractHostname(cfg.Target)
	if host == "" {
		return errors.New("必须指定目标地址")
	}

	passwords, err := collectPasswords(cfg.PasswordsFile, opts.Passwords, cmd.Flags().Changed("passwords-file"))
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics()
	collab, cleanup, err := buildCollaborators(cfg, metrics, opts.Verbose)
	if err != nil {
		return err
	}
	defer cleanup()

	var msg *mailer.Message
	if !opts.NoMail {
		msg, err = buildMessage(cfg)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := audit.NewEngine(audit.Settings{WeakListPath: cfg.WeakPasswordsFile}, collab, audit.WithMetrics(metrics))
	outcome := engine.Run(ctx, audit.Request{
		Host:          host,
		ScanDirectory: cfg.ScanDirectory,
		Passwords:     passwords,
	}, msg)

	format := "text"
	if opts.JSON {
		format = "json"
	}
	if err := NewOutputFormatter(format).PrintOutcome(cmd.OutOrStdout(), outcome); err != nil {
		logger.Error("输出摘要失败: %v", err)
	}

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("写入指标文件失败: %v", err)
		}
	}

	return outcome.Err
}

// collectPasswords 合并 --password 和密码文件，文件只有在显式指定时缺失才报错
func collectPasswords(path string, inline []string, explicit bool) ([]string, error) {
	passwords := append([]string{}, inline...)
	if path == "" {
		return passwords, nil
	}

	fromFile, err := password.LoadPasswords(path)
	if err != nil {
		if errors.Is(err, password.ErrWordListMissing) && !explicit {
			utils.NewLogger("cli").Warn("密码文件 %s 不存在, 跳过", path)
			return passwords, nil
		}
		return nil, err
	}
	return append(passwords, fromFile...), nil
}

func buildCollaborators(cfg *config.Config, metrics *telemetry.Metrics, verbose bool) (audit.Collaborators, func(), error) {
	cleanup := func() {}

	start, end, err := scanner.ParsePortRange(cfg.PortRange)
	if err != nil {
		return audit.Collaborators{}, cleanup, err
	}

	var hashes []string
	if cfg.MalwareHashList != "" {
		hashes, err = malware.LoadHashList(cfg.MalwareHashList)
		if err != nil {
			return audit.Collaborators{}, cleanup, err
		}
	}

	renderer, err := report.New(cfg.ReportFormat, cfg.ReportDir)
	if err != nil {
		return audit.Collaborators{}, cleanup, err
	}

	var outdated audit.OutdatedChecker = software.NewBaselineChecker(cfg.MinMajorVersion)
	if cfg.CatalogPath != "" {
		if _, statErr := os.Stat(cfg.CatalogPath); statErr == nil {
			cat, err := catalog.Open(cfg.CatalogPath)
			if err != nil {
				return audit.Collaborators{}, cleanup, err
			}
			cleanup = func() { cat.Close() }
			outdated = software.NewCatalogChecker(cat, cfg.MinMajorVersion)
		}
	}

	collab := audit.Collaborators{
		Ports: scanner.NewPortScanner(cfg.ProbeTimeout, cfg.Concurrency, verbose,
			scanner.WithPortRange(start, end), scanner.WithMetrics(metrics)),
		Firewall:   firewall.NewProbe(nil, cfg.CommandTimeout),
		Malware:    malware.NewHeuristicScanner(hashes),
		Software:   software.NewCommandLister(nil, cfg.CommandTimeout),
		Outdated:   outdated,
		Renderer:   renderer,
		Dispatcher: mailer.NewDispatcher(cfg.Mail.Host, cfg.Mail.Port, mailer.WithMetrics(metrics)),
	}
	if isTerminal(os.Stdin) {
		collab.Prompter = NewDirectoryPrompt(os.Stdin, os.Stdout)
	}
	return collab, cleanup, nil
}

func buildMessage(cfg *config.Config) (*mailer.Message, error) {
	if cfg.Mail.Sender == "" || cfg.Mail.Recipient == "" {
		return nil, errors.New("发送邮件需要发件人和收件人 (--from/--to 或配置 mail.sender/mail.recipient), 或使用 --no-mail")
	}

	secret := cfg.Mail.Password
	if secret == "" {
		if !isTerminal(os.Stdin) {
			return nil, errors.New("未配置邮件密码 (CYBERHYGIENE_MAIL_PASSWORD)")
		}
		var err error
		secret, err = PromptSecret(os.Stdin, os.Stdout, fmt.Sprintf("%s 的邮箱密码: ", cfg.Mail.Sender))
		if err != nil {
			return nil, err
		}
	}

	return &mailer.Message{
		From:     cfg.Mail.Sender,
		Password: secret,
		To:       cfg.Mail.Recipient,
	}, nil
}

func newCatalogCommand() *cobra.Command {
	var configPath, dbPath string

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "管理推荐版本目录",
	}

	importCmd := &cobra.Command{
		Use:   "import <yaml>",
		Short: "从 YAML 文件导入推荐版本",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				dbPath = cfg.CatalogPath
			}

			cat, err := catalog.Open(dbPath)
			if err != nil {
				return err
			}
			defer cat.Close()

			n, err := cat.ImportYAML(args[0])
			if err != nil {
				return err
			}
			total, err := cat.Count()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "导入 %d 条, 目录共 %d 条 (%s)\n", n, total, cat.Path())
			return nil
		},
	}
	importCmd.Flags().StringVar(&configPath, "config", "", "配置文件路径")
	importCmd.Flags().StringVar(&dbPath, "db", "", "目录数据库路径 (默认取配置 catalog_path)")

	catalogCmd.AddCommand(importCmd)
	return catalogCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cyberhygiene %s\n", Version)
		},
	}
}

// extractHostname 从 URL 或 host/path 中提取主机名
func extractHostname(target string) string {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "://") {
		parsedURL, err := url.Parse(target)
		if err == nil && parsedURL.Hostname() != "" {
			return parsedURL.Hostname()
		}
	}

	if idx := strings.Index(target, "/"); idx != -1 {
		return target[:idx]
	}
	return target
}
