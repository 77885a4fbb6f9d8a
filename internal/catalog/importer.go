package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile 导入文件格式:
//
//	products:
//	  - name: openssl
//	    vendor: OpenSSL
//	    latest: 3.3.2
type catalogFile struct {
	Products []Entry `yaml:"products"`
}

// ImportYAML 从 YAML 文件批量导入推荐版本，返回导入条数
func (c *Catalog) ImportYAML(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("读取目录文件 %s 失败: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("解析目录文件 %s 失败: %w", path, err)
	}
	if len(file.Products) == 0 {
		return 0, fmt.Errorf("目录文件 %s 中没有 products 条目", path)
	}

	if err := c.Upsert(file.Products); err != nil {
		return 0, err
	}

	c.recordImport(path, len(file.Products))
	c.logger.Info("从 %s 导入 %d 条推荐版本", path, len(file.Products))
	return len(file.Products), nil
}
