package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput 表示输入为空（游戏名/URL/HTML 为空白）。
	ErrEmptyInput = errors.New("输入为空")
	// ErrResolutionFailed 表示无法从链接或名称推导出 Backloggd URL（常见情况，不算故障）。
	ErrResolutionFailed = errors.New("无法从链接或游戏名解析出 Backloggd URL")
	// ErrNoMatch 表示身份匹配服务没有返回可用 URL。
	ErrNoMatch = errors.New("身份匹配服务未返回游戏 URL")
	// ErrParse 是所有 *ParseError 的哨兵（errors.Is 用）。
	ErrParse = errors.New("解析失败")
)

// TransportError 表示网络层失败（超时/DNS/TLS/连接中断等）。
type TransportError struct {
	URL   string
	Cause error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	return fmt.Sprintf("请求 %s 失败：%v", e.URL, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// HTTPStatusError 表示对端返回了非 2xx 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

const (
	// ParseEmpty：HTML 为空或只有空白。
	ParseEmpty = "empty"
	// ParseNotFound：结构化数据与可见元素都没有找到评分。
	ParseNotFound = "not_found"
)

// ParseError 表示页面中无法定位评分。
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	switch e.Reason {
	case ParseEmpty:
		return "HTML 为空"
	case ParseNotFound:
		return "页面 HTML 中未找到 Backloggd 聚合评分"
	default:
		return "解析失败：" + e.Reason
	}
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Kind 把错误归类为报告里的 error_code。
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		te *TransportError
		he *HTTPStatusError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCanceled
	case errors.Is(err, ErrEmptyInput):
		return ErrCodeEmptyInput
	case errors.Is(err, ErrResolutionFailed):
		return ErrCodeResolutionFailed
	case errors.As(err, &he):
		return ErrCodeHTTPStatus
	case errors.As(err, &te):
		return ErrCodeTransport
	case errors.Is(err, ErrParse):
		return ErrCodeParseFailed
	default:
		return ErrCodeTransport
	}
}
