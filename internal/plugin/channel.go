package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MethodGetAssetFile 是唯一支持的方法名。
const MethodGetAssetFile = "getAssetFile"

// 错误码与宿主侧约定保持一致，CodeAssetNotFound 沿用既有的字符串。
const (
	CodeAssetNotFound   = "Asset not found"
	CodeInvalidArgument = "invalid_argument"
	CodeIOFailure       = "io_failure"
	CodeDetached        = "plugin_detached"
)

// MethodCall 是一次方法通道调用：方法名 + 原始 JSON 参数。
type MethodCall struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ChannelError 对应方法通道的错误结果。
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result 三选一：成功值、错误或未实现。
type Result struct {
	Value          any
	Error          *ChannelError
	NotImplemented bool
}

// Success 构造成功结果。
func Success(value any) Result {
	return Result{Value: value}
}

// Failure 构造错误结果。
func Failure(code, message string) Result {
	return Result{Error: &ChannelError{Code: code, Message: message}}
}

// GetAssetFileArgs 是 getAssetFile 的类型化参数。
type GetAssetFileArgs struct {
	AssetName string `json:"assetName"`
}

// decodeGetAssetFileArgs 接受裸字符串或 {"assetName": "..."} 两种写法，
// 其余形式（缺失、null、非字符串）一律视为参数错误。空串交由 Resolver 判定为未找到。
func decodeGetAssetFileArgs(raw json.RawMessage) (GetAssetFileArgs, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return GetAssetFileArgs{}, fmt.Errorf("assetName is required")
	}

	var args GetAssetFileArgs
	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &args.AssetName); err != nil {
			return GetAssetFileArgs{}, fmt.Errorf("decode asset name: %w", err)
		}
	case '{':
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return GetAssetFileArgs{}, fmt.Errorf("decode arguments: %w", err)
		}
		value, ok := payload["assetName"]
		if !ok {
			return GetAssetFileArgs{}, fmt.Errorf("assetName is required")
		}
		if err := json.Unmarshal(value, &args.AssetName); err != nil {
			return GetAssetFileArgs{}, fmt.Errorf("assetName must be a string")
		}
	default:
		return GetAssetFileArgs{}, fmt.Errorf("arguments must be a string or an object")
	}
	return args, nil
}
