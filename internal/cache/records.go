package cache

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedRecord 是所有 LineError 的底层错误，便于 errors.Is 判断。
var ErrMalformedRecord = errors.New("malformed cache record")

// Records 是记录文件的内存形式：资源名 → 最近访问时间（毫秒时间戳）。
type Records map[string]int64

// LineError 指出记录文件中无法解析的行。
type LineError struct {
	Line   int
	Text   string
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("cache record line %d: %s (%q)", e.Line, e.Reason, e.Text)
}

func (e *LineError) Unwrap() error {
	return ErrMalformedRecord
}

// Encode 按资源名排序输出 `name=millis` 行，行间以 `\n` 分隔，无结尾换行。
func (r Records) Encode() []byte {
	if len(r) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(strconv.FormatInt(r[key], 10))
	}
	return []byte(b.String())
}

// Decode 解析记录文件内容，跳过无法解析的行并逐行返回错误。空行会被忽略；
// 以最后一个 `=` 切分，因此资源名中允许出现 `=`。同名记录以后出现者为准。
func Decode(data []byte) (Records, []*LineError) {
	records := make(Records)
	if len(strings.TrimSpace(string(data))) == 0 {
		return records, nil
	}

	var errs []*LineError
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, '=')
		switch {
		case idx < 0:
			errs = append(errs, &LineError{Line: i + 1, Text: line, Reason: "missing '='"})
			continue
		case idx == 0:
			errs = append(errs, &LineError{Line: i + 1, Text: line, Reason: "empty asset name"})
			continue
		}
		millis, err := strconv.ParseInt(line[idx+1:], 10, 64)
		if err != nil {
			errs = append(errs, &LineError{Line: i + 1, Text: line, Reason: "invalid timestamp"})
			continue
		}
		records[line[:idx]] = millis
	}
	return records, errs
}

// DecodeStrict 与 Decode 相同，但遇到第一处格式错误即返回失败。
func DecodeStrict(data []byte) (Records, error) {
	records, errs := Decode(data)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return records, nil
}
