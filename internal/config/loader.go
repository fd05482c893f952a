package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultOfflineScheme      = "offline"
	defaultContentType        = "audio/mpeg"
	defaultCover              = "/assets/default-cover.png"
	defaultShellVersion       = "v1"
	defaultUpstreamTimeoutSec = 30
)

var defaultExcludedSuffixes = []string{".mp3", ".wav", ".ogg", ".m4a", ".flac", ".aac", ".opus"}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyShellDefaults(&cfg.Shell)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析存储目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	if cfg.Global.DatabasePath != "" {
		absDB, err := filepath.Abs(cfg.Global.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析数据库路径: %w", err)
		}
		cfg.Global.DatabasePath = absDB
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("DatabasePath", "")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("DownloadTimeout", "0s")
	v.SetDefault("OfflineScheme", defaultOfflineScheme)
	v.SetDefault("DefaultContentType", defaultContentType)
	v.SetDefault("DefaultCover", defaultCover)
	v.SetDefault("Shell.Version", defaultShellVersion)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(defaultUpstreamTimeoutSec * time.Second)
	}
	if g.DownloadTimeout.DurationValue() < 0 {
		g.DownloadTimeout = Duration(0)
	}
	g.OfflineScheme = strings.ToLower(strings.TrimSpace(g.OfflineScheme))
	if g.OfflineScheme == "" {
		g.OfflineScheme = defaultOfflineScheme
	}
	if strings.TrimSpace(g.DefaultContentType) == "" {
		g.DefaultContentType = defaultContentType
	}
	if strings.TrimSpace(g.DefaultCover) == "" {
		g.DefaultCover = defaultCover
	}
}

func applyShellDefaults(s *ShellConfig) {
	s.Version = strings.TrimSpace(s.Version)
	if s.Version == "" {
		s.Version = defaultShellVersion
	}
	if len(s.ExcludedSuffixes) == 0 {
		s.ExcludedSuffixes = append([]string(nil), defaultExcludedSuffixes...)
	}
	for i, suffix := range s.ExcludedSuffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix != "" && !strings.HasPrefix(suffix, ".") {
			suffix = "." + suffix
		}
		s.ExcludedSuffixes[i] = suffix
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
