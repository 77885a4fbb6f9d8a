package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"CyberHygiene/internal/utils"
)

// Entry 某个软件的推荐版本
type Entry struct {
	Product       string `yaml:"name"`
	Vendor        string `yaml:"vendor,omitempty"`
	LatestVersion string `yaml:"latest"`
}

// Catalog 推荐版本目录，只作为参考数据，审计结果不会写回
type Catalog struct {
	db     *sql.DB
	path   string
	logger *utils.Logger
}

func Open(dbPath string) (*Catalog, error) {
	logger := utils.NewLogger("catalog")

	// 确保目录存在
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建目录目录 %s 失败: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库 %s 失败: %w", dbPath, err)
	}

	c := &Catalog{
		db:     db,
		path:   dbPath,
		logger: logger,
	}

	if err := c.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}

	return c, nil
}

func (c *Catalog) initTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS software_catalog (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product TEXT UNIQUE NOT NULL,
		vendor TEXT,
		latest_version TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS import_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		source TEXT,
		records INTEGER
	);
	`

	_, err := c.db.Exec(schema)
	return err
}

func normalizeProduct(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Upsert 在一个事务中写入多条记录
func (c *Catalog) Upsert(entries []Entry) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		product := normalizeProduct(e.Product)
		if product == "" || strings.TrimSpace(e.LatestVersion) == "" {
			return fmt.Errorf("目录条目缺少名称或版本: %+v", e)
		}
		_, err = tx.Exec(`
			INSERT INTO software_catalog (product, vendor, latest_version, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(product) DO UPDATE SET
				vendor = excluded.vendor,
				latest_version = excluded.latest_version,
				updated_at = CURRENT_TIMESTAMP`,
			product, e.Vendor, strings.TrimSpace(e.LatestVersion),
		)
		if err != nil {
			return fmt.Errorf("写入 %s 失败: %w", product, err)
		}
	}

	return tx.Commit()
}

// Latest 查询推荐版本，名称大小写不敏感
func (c *Catalog) Latest(product string) (string, bool, error) {
	var version string
	err := c.db.QueryRow(
		"SELECT latest_version FROM software_catalog WHERE product = ?",
		normalizeProduct(product),
	).Scan(&version)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return version, true, nil
}

// Count 目录中的软件数量
func (c *Catalog) Count() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM software_catalog").Scan(&count)
	return count, err
}

func (c *Catalog) recordImport(source string, records int) {
	if _, err := c.db.Exec(
		"INSERT INTO import_history (source, records) VALUES (?, ?)", source, records,
	); err != nil {
		c.logger.Error("记录导入历史失败: %v", err)
	}
}

func (c *Catalog) Path() string {
	return c.path
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
