package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/any-hub/music-hub/internal/config"
	"github.com/any-hub/music-hub/internal/logging"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("MUSIC_HUB_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOut.(*bytes.Buffer).String(), "music-hub") {
		t.Fatalf("version 输出应包含 music-hub 标识")
	}
}

func TestNewServicesInstallsCacheAndReconciles(t *testing.T) {
	shell := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/app.js":
			_, _ = w.Write([]byte("shell:" + r.URL.Path))
		default:
			http.NotFound(w, r)
		}
	}))
	defer shell.Close()

	dir := t.TempDir()
	configPath := writeConfigFile(t, fmt.Sprintf(`
ListenPort = 5000
LogLevel = "error"
StoragePath = "%s"

[Shell]
Upstream = "%s"
Version = "v2"
Manifest = ["/", "/app.js"]

[[Track]]
Title = "Night Drive"
URL = "%s/night-drive.mp3"
`, filepath.Join(dir, "storage"), shell.URL, shell.URL))

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	svc, err := newServices(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}
	defer svc.Close()

	if svc.playlist.Revision() != 1 {
		t.Fatalf("启动对账应渲染一次，得到 revision=%d", svc.playlist.Revision())
	}
	sets, err := svc.cache.Sets(context.Background())
	if err != nil {
		t.Fatalf("读取缓存集合失败: %v", err)
	}
	if len(sets) != 1 || sets[0] != "shell-v2" {
		t.Fatalf("期望仅保留 shell-v2，得到 %v", sets)
	}

	resp, err := svc.app.Test(httptest.NewRequest(http.MethodGet, "/-/playlist", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200，得到 %d", resp.StatusCode)
	}
}
