package config

import (
	"testing"
	"time"
)

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"

[Shell]
Upstream = "https://player.example.com"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsIntegerSeconds(t *testing.T) {
	cfg := `
StoragePath = "./data"
UpstreamTimeout = 45
DownloadTimeout = 600

[Shell]
Upstream = "https://player.example.com"
ExcludedSuffixes = ["MP3", ".flac"]
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.UpstreamTimeout.DurationValue() != 45*time.Second {
		t.Fatalf("整数秒应被解析为 45s，得到 %s", loaded.Global.UpstreamTimeout.DurationValue())
	}
	if loaded.Global.DownloadTimeout.DurationValue() != 10*time.Minute {
		t.Fatalf("DownloadTimeout 应为 10m，得到 %s", loaded.Global.DownloadTimeout.DurationValue())
	}
	if loaded.Shell.Version != "v1" {
		t.Fatalf("Shell.Version 应默认 v1，得到 %s", loaded.Shell.Version)
	}
	if got := loaded.Shell.ExcludedSuffixes; len(got) != 2 || got[0] != ".mp3" || got[1] != ".flac" {
		t.Fatalf("后缀应统一为小写并带点: %v", got)
	}
}
