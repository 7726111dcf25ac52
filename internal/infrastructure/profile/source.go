// Package profile 提供角色档案数据源加载功能
// 档案在进程启动时加载一次，此后只读；数据不合法时快速失败，
// 绝不注册残缺的角色。
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"mare-review-api/internal/config"
	"mare-review-api/internal/domain/entity"
)

// 限制档案文档体积，防御异常数据源
const maxProfileDocumentSize = 8 << 20

// profileDoc 档案数据源中单个角色的原始形态
type profileDoc struct {
	Profile string   `json:"profile"`
	Quotes  []string `json:"quotes"`
}

// Load 从配置的数据源加载全部角色档案。
// Path 优先于 URL；返回结果按名称排序，保证注册顺序确定。
func Load(ctx context.Context, cfg config.ProfilesConfig) ([]entity.PersonaProfile, error) {
	raw, err := fetch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse 解析并校验档案文档
func Parse(raw []byte) ([]entity.PersonaProfile, error) {
	var docs map[string]profileDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse profiles document: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("profiles document contains no personas")
	}

	profiles := make([]entity.PersonaProfile, 0, len(docs))
	for name, doc := range docs {
		p := entity.PersonaProfile{
			Name:        strings.TrimSpace(name),
			Description: doc.Profile,
			Quotes:      doc.Quotes,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid persona profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

func fetch(ctx context.Context, cfg config.ProfilesConfig) ([]byte, error) {
	if path := strings.TrimSpace(cfg.Path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read profiles file %s: %w", path, err)
		}
		return raw, nil
	}

	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("profiles source not configured: need url or path")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profiles request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profiles from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profiles source returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles response: %w", err)
	}
	return raw, nil
}
