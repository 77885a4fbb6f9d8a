package software

import (
	"context"
	"fmt"

	"CyberHygiene/internal/model"
	"CyberHygiene/internal/utils"
)

const DefaultMinMajor = 2

// VersionSource 推荐版本来源，*catalog.Catalog 满足该接口
type VersionSource interface {
	Latest(product string) (string, bool, error)
}

// BaselineChecker 主版本号低于 MinMajor 视为过期
type BaselineChecker struct {
	MinMajor int
	parser   *utils.VersionParser
}

func NewBaselineChecker(minMajor int) *BaselineChecker {
	if minMajor <= 0 {
		minMajor = DefaultMinMajor
	}
	return &BaselineChecker{MinMajor: minMajor, parser: utils.NewVersionParser()}
}

func (b *BaselineChecker) recommended() string {
	return fmt.Sprintf("%d.0+ (Latest Version)", b.MinMajor)
}

func (b *BaselineChecker) check(entry model.SoftwareEntry) (model.OutdatedEntry, bool) {
	major, ok := b.parser.Major(entry.Version)
	if !ok || major >= b.MinMajor {
		return model.OutdatedEntry{}, false
	}
	return model.OutdatedEntry{
		Name:             entry.Name,
		InstalledVersion: entry.Version,
		LatestVersion:    b.recommended(),
	}, true
}

func (b *BaselineChecker) FindOutdated(ctx context.Context, installed []model.SoftwareEntry) ([]model.OutdatedEntry, error) {
	var outdated []model.OutdatedEntry
	for _, entry := range installed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if o, ok := b.check(entry); ok {
			outdated = append(outdated, o)
		}
	}
	return outdated, nil
}

// CatalogChecker 先查目录，目录中没有的软件退回到主版本基线
type CatalogChecker struct {
	source   VersionSource
	baseline *BaselineChecker
	parser   *utils.VersionParser
	logger   *utils.Logger
}

func NewCatalogChecker(source VersionSource, minMajor int) *CatalogChecker {
	return &CatalogChecker{
		source:   source,
		baseline: NewBaselineChecker(minMajor),
		parser:   utils.NewVersionParser(),
		logger:   utils.NewLogger("software"),
	}
}

// FindOutdated 保持输入顺序，目录查询出错时整体失败
func (c *CatalogChecker) FindOutdated(ctx context.Context, installed []model.SoftwareEntry) ([]model.OutdatedEntry, error) {
	var outdated []model.OutdatedEntry
	for _, entry := range installed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		latest, found, err := c.source.Latest(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("查询 %s 推荐版本失败: %w", entry.Name, err)
		}

		if !found {
			if o, ok := c.baseline.check(entry); ok {
				outdated = append(outdated, o)
			}
			continue
		}

		if c.parser.CompareVersions(entry.Version, latest) < 0 {
			c.logger.Debug("%s %s 低于推荐版本 %s", entry.Name, entry.Version, latest)
			outdated = append(outdated, model.OutdatedEntry{
				Name:             entry.Name,
				InstalledVersion: entry.Version,
				LatestVersion:    latest,
			})
		}
	}
	return outdated, nil
}
