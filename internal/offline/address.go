// Package offline defines the reserved address scheme that points at tracks
// held in the blob store. An address has the form <scheme>://<trackId>; the
// authority is the literal blob store key and path, query and fragment carry
// no meaning.
package offline

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultScheme 是未配置 OfflineScheme 时使用的离线地址协议。
const DefaultScheme Scheme = "offline"

// ErrNotOfflineAddress 表示地址不属于当前离线协议。
var ErrNotOfflineAddress = errors.New("not an offline address")

// Scheme 是保留的离线地址协议名（不含冒号），始终为小写。
type Scheme string

// NewScheme 规范化协议名，空值回退 DefaultScheme。
func NewScheme(raw string) Scheme {
	normalized := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(raw), ":"))
	if normalized == "" {
		return DefaultScheme
	}
	return Scheme(normalized)
}

func (s Scheme) String() string {
	return string(s)
}

// Address 生成 <scheme>://<trackId>。
func (s Scheme) Address(trackID string) string {
	return fmt.Sprintf("%s://%s", s, trackID)
}

// Matches 判断 URL 是否使用当前协议。
func (s Scheme) Matches(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Scheme, string(s))
}

// TrackID 从已解析 URL 中取出 authority 作为曲目 id。
func (s Scheme) TrackID(u *url.URL) (string, error) {
	if !s.Matches(u) {
		return "", ErrNotOfflineAddress
	}
	id := u.Host
	if id == "" {
		// 兼容 scheme:id 的不透明写法
		id = strings.TrimPrefix(u.Opaque, "//")
	}
	if id == "" {
		return "", fmt.Errorf("%w: missing track id", ErrNotOfflineAddress)
	}
	return id, nil
}

// Parse 解析文本地址并返回曲目 id。
func (s Scheme) Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNotOfflineAddress
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotOfflineAddress, err)
	}
	return s.TrackID(u)
}
