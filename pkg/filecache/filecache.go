// Package filecache 负责取回任务引用的文件并按内容校验和缓存。
// 同一个 sha256 只取一次：磁盘上按 <cache>/<sha256>/<filename> 存放，
// 内存索引记录已验证过的路径，singleflight 合并并发的同文件下载。
package filecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"example.com/BoltServer/pkg/models"
	"example.com/BoltServer/pkg/utils/concurrent"
)

// Cache 文件取回缓存
type Cache struct {
	dir    string
	base   *url.URL
	client *http.Client
	sf     singleflight.Group
	// sha256 -> 已验证的本地路径
	index *concurrent.Map[string, string]
}

// New 创建缓存；baseURL 是文件服务器地址，所有 FileRef 的 URI 都相对于它
func New(dir, baseURL string) (*Cache, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "boltserver-cache")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	var base *url.URL
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid file server url: %w", err)
		}
		base = parsed
	}
	return &Cache{
		dir:    dir,
		base:   base,
		client: &http.Client{Timeout: 60 * time.Second},
		index:  concurrent.NewMap[string, string](concurrent.HashString),
	}, nil
}

// Fetch 返回文件的本地路径，必要时先下载
// 返回的文件内容保证与 ref.SHA256 一致
func (c *Cache) Fetch(ctx context.Context, ref models.FileRef) (string, error) {
	if ref.SHA256 == "" {
		return "", fmt.Errorf("file %q has no checksum", ref.Filename)
	}
	if path, ok := c.index.Get(ref.SHA256); ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		// 缓存文件被外部清掉了，重新走下载
		c.index.Remove(ref.SHA256)
	}

	v, err, _ := c.sf.Do(ref.SHA256, func() (any, error) {
		return c.fetch(ctx, ref)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) fetch(ctx context.Context, ref models.FileRef) (string, error) {
	local := filepath.Join(c.dir, ref.SHA256, filepath.Base(ref.Filename))

	// 磁盘上可能已经有上次进程留下的副本，校验通过就直接用
	if sum, err := fileChecksum(local); err == nil && strings.EqualFold(sum, ref.SHA256) {
		c.index.Set(ref.SHA256, local)
		return local, nil
	}

	if c.base == nil {
		return "", fmt.Errorf("no file server configured, cannot retrieve %q", ref.Filename)
	}

	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + "/" + strings.TrimLeft(ref.URI.Path, "/")
	if len(ref.URI.Params) > 0 {
		q := target.Query()
		for k, val := range ref.URI.Params {
			q.Set(k, val)
		}
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve %q: %w", ref.Filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to retrieve %q: file server returned %s", ref.Filename, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o700); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %q: %w", ref.Filename, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(sum, ref.SHA256) {
		return "", fmt.Errorf("checksum mismatch for %q: want %s got %s", ref.Filename, ref.SHA256, sum)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return "", err
	}
	c.index.Set(ref.SHA256, local)
	return local, nil
}

// Size 已索引的文件数，只给日志和测试用
func (c *Cache) Size() int {
	return c.index.Count()
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
