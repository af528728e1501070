package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

func validateFormat(f string) error {
	switch f {
	case "auto", "table", "json":
		return nil
	default:
		return fmt.Errorf("参数错误：--format 只能是 auto、table 或 json，实际是 %q", f)
	}
}

// useJSON：stdout 不是终端时必须且仅输出一个 JSON 文档（日志/摘要走 stderr）。
func useJSON(format string, stdout io.Writer) bool {
	switch format {
	case "json":
		return true
	case "table":
		return false
	default:
		return !isTTY(stdout)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

// truncate 按字符（rune）截断，避免切断多字节字符。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
