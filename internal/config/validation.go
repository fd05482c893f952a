package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.DownloadTimeout.DurationValue() < 0 {
		return newFieldError("Global.DownloadTimeout", "不能为负数")
	}
	if err := validateScheme(g.OfflineScheme); err != nil {
		return fmt.Errorf("Global.OfflineScheme: %w", err)
	}

	if err := validateUpstream(c.Shell.Upstream); err != nil {
		return fmt.Errorf("Shell.Upstream: %w", err)
	}
	if strings.TrimSpace(c.Shell.Version) == "" {
		return newFieldError("Shell.Version", "不能为空")
	}
	if strings.ContainsAny(c.Shell.Version, `/\ `) {
		return newFieldError("Shell.Version", "不允许包含路径分隔符或空格")
	}
	for _, entry := range c.Shell.Manifest {
		if strings.TrimSpace(entry) == "" {
			return newFieldError("Shell.Manifest", "不允许空路径")
		}
	}

	seenURLs := map[string]struct{}{}
	for i := range c.Tracks {
		track := &c.Tracks[i]
		track.URL = strings.TrimSpace(track.URL)
		if track.URL == "" {
			return newFieldError(trackField(i, "URL"), "不能为空")
		}
		if _, exists := seenURLs[track.URL]; exists {
			return newFieldError(trackField(i, "URL"), "重复")
		}
		seenURLs[track.URL] = struct{}{}
		if err := validateUpstream(track.URL); err != nil {
			return fmt.Errorf("%s: %w", trackField(i, "URL"), err)
		}
	}

	return nil
}

// validateScheme 要求离线地址方案不与常规网络协议冲突。
func validateScheme(scheme string) error {
	if scheme == "" {
		return errors.New("不能为空")
	}
	switch scheme {
	case "http", "https", "file", "data", "blob":
		return fmt.Errorf("不能使用保留协议: %s", scheme)
	}
	for i, r := range scheme {
		isAlpha := r >= 'a' && r <= 'z'
		if i == 0 && !isAlpha {
			return fmt.Errorf("必须以字母开头: %s", scheme)
		}
		if !isAlpha && !(r >= '0' && r <= '9') && r != '+' && r != '-' && r != '.' {
			return fmt.Errorf("包含非法字符: %s", scheme)
		}
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
