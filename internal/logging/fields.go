package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// AssetFields 提供资源名/缓存文件/命中状态字段，供资源解析日志复用。
func AssetFields(asset, cacheFile string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"asset":      asset,
		"cache_file": cacheFile,
		"cache_hit":  cacheHit,
	}
}

// ChannelFields 描述一次方法通道调用，request_id 为空时省略。
func ChannelFields(channel, method, requestID string) logrus.Fields {
	fields := logrus.Fields{
		"channel": channel,
		"method":  method,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
