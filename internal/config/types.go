package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：监听端口、日志、存储位置与离线地址方案。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	StoragePath        string   `mapstructure:"StoragePath"`
	DatabasePath       string   `mapstructure:"DatabasePath"`
	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
	DownloadTimeout    Duration `mapstructure:"DownloadTimeout"`
	OfflineScheme      string   `mapstructure:"OfflineScheme"`
	DefaultContentType string   `mapstructure:"DefaultContentType"`
	DefaultCover       string   `mapstructure:"DefaultCover"`
}

// ShellConfig 描述静态资源（播放器外壳）的上游与版本化清单。
// Manifest 内容每次变化都必须同时修改 Version，否则旧条目会一直保留。
type ShellConfig struct {
	Upstream         string   `mapstructure:"Upstream"`
	Version          string   `mapstructure:"Version"`
	Manifest         []string `mapstructure:"Manifest"`
	ExcludedSuffixes []string `mapstructure:"ExcludedSuffixes"`
}

// TrackConfig 是播放列表中的一首曲目，启动时载入为 PlaylistEntry。
type TrackConfig struct {
	Title  string `mapstructure:"Title"`
	Artist string `mapstructure:"Artist"`
	URL    string `mapstructure:"URL"`
	Cover  string `mapstructure:"Cover"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig  `mapstructure:",squash"`
	Shell  ShellConfig   `mapstructure:"Shell"`
	Tracks []TrackConfig `mapstructure:"Track"`
}

// EffectiveDatabasePath 返回 Blob Store 使用的 SQLite 文件路径，未配置时落在 StoragePath 下。
func (c *Config) EffectiveDatabasePath() string {
	if c.Global.DatabasePath != "" {
		return c.Global.DatabasePath
	}
	return filepath.Join(c.Global.StoragePath, "tracks.db")
}

// CacheStoragePath 返回缓存集合所在目录。
func (c *Config) CacheStoragePath() string {
	return filepath.Join(c.Global.StoragePath, "cache")
}
