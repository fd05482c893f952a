package cacheset

import "strings"

const setPrefix = "shell-"

// Version 是缓存集合的代际标签，每次部署改动 Manifest 时必须递增。
type Version string

// SetName 返回该版本对应的集合名称，例如 shell-v3。
func (v Version) SetName() string {
	return setPrefix + strings.TrimSpace(string(v))
}

// Owns 判断集合名称是否属于当前版本；其它名称在 Activate 时都会被删除。
func (v Version) Owns(set string) bool {
	return set == v.SetName()
}
