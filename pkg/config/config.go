// Package config 服务端配置：yaml 文件 + 默认值。
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 对应 boltserver.yaml 的顶层结构
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"loglevel"`

	// Concurrency 全服务同时在途的传输会话上限
	Concurrency uint `yaml:"concurrency"`

	// EnvironmentsDir 任务/计划目录树的根 (environments/<env>/modules/...)
	EnvironmentsDir string `yaml:"environments_dir"`
	// ProjectsDir 项目目录树的根，项目配置里带允许清单
	ProjectsDir string `yaml:"projects_dir"`

	// CacheDir 任务文件缓存目录
	CacheDir string `yaml:"cache_dir"`
	// FileServer 任务文件取回的基地址
	FileServer string `yaml:"file_server"`

	// ICMPProbe 连通性检查时附带一发 ICMP 作为诊断信息
	ICMPProbe bool `yaml:"icmp_probe"`
	// ConnectTimeout 目标未指定 connect-timeout 时的默认秒数
	ConnectTimeout int `yaml:"connect_timeout"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            62658,
		LogLevel:        "info",
		Concurrency:     100,
		EnvironmentsDir: "environments",
		ProjectsDir:     "projects",
		ConnectTimeout:  15,
	}
}

// Load 读取 yaml 配置；path 为空时直接返回默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Concurrency == 0 {
		c.Concurrency = Default().Concurrency
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = Default().ConnectTimeout
	}
	return nil
}
