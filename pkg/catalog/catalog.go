// Package catalog 是静态目录协作层：枚举 environments 目录树里的
// 任务和计划、读取元数据、按项目配置计算允许清单。
// 纯只读遍历，不参与调度核心。
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound 模块/任务/计划不存在
var ErrNotFound = errors.New("not found")

// Catalog 目录树访问器
type Catalog struct {
	envRoot  string
	projRoot string
}

// New 创建目录访问器
func New(envRoot, projRoot string) *Catalog {
	return &Catalog{envRoot: envRoot, projRoot: projRoot}
}

// Entry 列表响应里的一项；Allowed 只在项目作用域下出现
type Entry struct {
	Name    string `json:"name"`
	Allowed *bool  `json:"allowed,omitempty"`
}

// ListTasks 枚举环境下所有任务，名字形如 module::task
// 入口文件叫 init 的任务按惯例用模块名本身命名
func (c *Catalog) ListTasks(env string) ([]Entry, error) {
	return c.list(env, "tasks", ".json")
}

// ListPlans 枚举环境下所有计划
func (c *Catalog) ListPlans(env string) ([]Entry, error) {
	return c.list(env, "plans", ".yaml")
}

func (c *Catalog) list(env, kind, ext string) ([]Entry, error) {
	modulesDir := filepath.Join(c.envRoot, env, "modules")
	modules, err := os.ReadDir(modulesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("environment %q: %w", env, ErrNotFound)
		}
		return nil, err
	}

	entries := make([]Entry, 0)
	for _, mod := range modules {
		if !mod.IsDir() {
			continue
		}
		items, err := os.ReadDir(filepath.Join(modulesDir, mod.Name(), kind))
		if err != nil {
			continue // 模块没有这一类条目
		}
		for _, item := range items {
			if item.IsDir() || !strings.HasSuffix(item.Name(), ext) {
				continue
			}
			base := strings.TrimSuffix(item.Name(), ext)
			name := mod.Name() + "::" + base
			if base == "init" {
				name = mod.Name()
			}
			entries = append(entries, Entry{Name: name})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// GetTask 读取任务元数据 (module/tasks/<task>.json)
func (c *Catalog) GetTask(env, module, task string) (map[string]any, error) {
	metaPath := filepath.Join(c.envRoot, env, "modules", module, "tasks", task+".json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("task %s::%s: %w", module, task, ErrNotFound)
		}
		return nil, err
	}
	metadata := map[string]any{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("invalid task metadata %s: %w", metaPath, err)
	}
	return map[string]any{
		"name":     taskName(module, task),
		"metadata": metadata,
	}, nil
}

// GetPlan 读取计划元数据 (module/plans/<plan>.yaml)
func (c *Catalog) GetPlan(env, module, plan string) (map[string]any, error) {
	metaPath := filepath.Join(c.envRoot, env, "modules", module, "plans", plan+".yaml")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plan %s::%s: %w", module, plan, ErrNotFound)
		}
		return nil, err
	}
	metadata := map[string]any{}
	if err := yaml.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("invalid plan metadata %s: %w", metaPath, err)
	}
	return map[string]any{
		"name":     taskName(module, plan),
		"metadata": metadata,
	}, nil
}

func taskName(module, item string) string {
	if item == "init" {
		return module
	}
	return module + "::" + item
}

// Project 项目配置，核心是名字允许清单
type Project struct {
	Name  string   `yaml:"name"`
	Tasks []string `yaml:"tasks"`
	Plans []string `yaml:"plans"`
}

// LoadProject 读取 <projects>/<name>/bolt-project.yaml
func (c *Catalog) LoadProject(name string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(c.projRoot, name, "bolt-project.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	p := &Project{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("invalid project config for %q: %w", name, err)
	}
	return p, nil
}

// TaskAllowed 名字是否命中任务允许清单 (glob 语义)
// 清单缺省 (nil) 表示全部允许；空清单表示全部拒绝
func (p *Project) TaskAllowed(name string) bool {
	return matchList(p.Tasks, name)
}

// PlanAllowed 名字是否命中计划允许清单
func (p *Project) PlanAllowed(name string) bool {
	return matchList(p.Plans, name)
}

func matchList(patterns []string, name string) bool {
	if patterns == nil {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
		if pattern == name {
			return true
		}
	}
	return false
}

// WithAllowed 给列表里的每一项标注 allowed
func WithAllowed(entries []Entry, allowed func(string) bool) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		ok := allowed(e.Name)
		e.Allowed = &ok
		out[i] = e
	}
	return out
}
