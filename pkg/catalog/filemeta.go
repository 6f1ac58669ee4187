package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// FileMeta 单个文件/目录的元数据
type FileMeta struct {
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	Type         string `json:"type"` // file | directory | link
	Checksum     string `json:"checksum,omitempty"`
	Owner        string `json:"owner"`
	Group        string `json:"group"`
	Size         int64  `json:"size"`
}

// FileMetadata 返回模块 files 目录下某个路径的元数据
// 目录会递归展开；路径不得越出模块目录
func (c *Catalog) FileMetadata(env, module, rel string) ([]FileMeta, error) {
	moduleDir := filepath.Join(c.envRoot, env, "modules", module)
	root := filepath.Join(moduleDir, "files", filepath.FromSlash(rel))

	// 防目录穿越：规范化之后必须仍在模块目录下
	cleaned, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	base, err := filepath.Abs(moduleDir)
	if err != nil {
		return nil, err
	}
	if cleaned != base && !strings.HasPrefix(cleaned, base+string(filepath.Separator)) {
		return nil, fmt.Errorf("path escapes module: %w", ErrNotFound)
	}

	info, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s in module %s: %w", rel, module, ErrNotFound)
		}
		return nil, err
	}

	if !info.IsDir() {
		meta, err := statMeta(root, rel, info)
		if err != nil {
			return nil, err
		}
		return []FileMeta{meta}, nil
	}

	metas := make([]FileMeta, 0)
	err = filepath.Walk(root, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if relPath == "." {
			relPath = ""
		}
		meta, err := statMeta(p, filepath.ToSlash(filepath.Join(rel, relPath)), fi)
		if err != nil {
			return err
		}
		metas = append(metas, meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].RelativePath < metas[j].RelativePath })
	return metas, nil
}

func statMeta(path, rel string, info os.FileInfo) (FileMeta, error) {
	meta := FileMeta{
		Path:         path,
		RelativePath: rel,
		Size:         info.Size(),
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		meta.Type = "link"
	case info.IsDir():
		meta.Type = "directory"
	default:
		meta.Type = "file"
		sum, err := checksumFile(path)
		if err != nil {
			return meta, err
		}
		meta.Checksum = sum
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		meta.Owner = lookupUID(st.Uid)
		meta.Group = lookupGID(st.Gid)
	}
	return meta, nil
}

func checksumFile(path string) (string, error) {
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

// 查不到名字时退回数字 id，总比空着强
func lookupUID(uid uint32) string {
	if u, err := user.LookupId(strconv.Itoa(int(uid))); err == nil {
		return u.Username
	}
	return strconv.Itoa(int(uid))
}

func lookupGID(gid uint32) string {
	if g, err := user.LookupGroupId(strconv.Itoa(int(gid))); err == nil {
		return g.Name
	}
	return strconv.Itoa(int(gid))
}
