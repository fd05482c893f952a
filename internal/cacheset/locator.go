package cacheset

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/any-hub/music-hub/internal/cache"
)

// locatorPath 将请求 URL 映射为集合内的相对路径：<host>/<clean path>[/__qs/<sha1(query)>]。
// host 参与路径，避免不同来源的同名资源相互覆盖。
func locatorPath(u *url.URL) string {
	clean := path.Clean("/" + u.Path)
	host := strings.ToLower(u.Host)
	if host == "" {
		host = "_"
	}
	p := "/" + host + clean
	if u.RawQuery != "" {
		sum := sha1.Sum([]byte(u.RawQuery))
		p = fmt.Sprintf("%s/__qs/%s", p, hex.EncodeToString(sum[:]))
	}
	return p
}

func buildLocator(set string, u *url.URL) cache.Locator {
	return cache.Locator{Set: set, Path: locatorPath(u)}
}
