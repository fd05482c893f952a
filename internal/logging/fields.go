package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供路由类型/命中状态字段，供拦截层请求日志复用。
func RequestFields(route, method, target string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"route":     route,
		"method":    method,
		"target":    target,
		"cache_hit": cacheHit,
	}
}

// TrackFields 提供曲目级字段，供下载/删除/对账日志复用。
func TrackFields(action, sourceURL, trackID string) logrus.Fields {
	fields := logrus.Fields{
		"action":     action,
		"source_url": sourceURL,
	}
	if trackID != "" {
		fields["track_id"] = trackID
	}
	return fields
}
