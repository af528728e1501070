// Package library 读写游戏库 JSON 文件（宿主游戏数据库的本地替身）。
package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/infra/fsx"
)

// Game 是库中的一条记录：身份信息 + 宿主拥有的文本字段。
//
// 约束：记录里本包不认识的字段原样保留，Save 时写回。
type Game struct {
	domain.GameIdentity

	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`

	extra map[string]json.RawMessage
}

// Library 对应整个库文件。
type Library struct {
	Games []Game `json:"games"`

	extra map[string]json.RawMessage
}

var (
	gameKeys    = []string{"name", "links", "release_year", "library_id", "game_id", "description", "notes"}
	libraryKeys = []string{"games"}
)

// gameFields/libraryFields 去掉了方法集，避免 (Un)MarshalJSON 递归。
type (
	gameFields    Game
	libraryFields Library
)

func (g *Game) UnmarshalJSON(b []byte) error {
	var f gameFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	extra, err := unknownFields(b, gameKeys)
	if err != nil {
		return err
	}
	*g = Game(f)
	g.extra = extra
	return nil
}

func (g Game) MarshalJSON() ([]byte, error) {
	return withExtra(gameFields(g), g.extra)
}

func (l *Library) UnmarshalJSON(b []byte) error {
	var f libraryFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	extra, err := unknownFields(b, libraryKeys)
	if err != nil {
		return err
	}
	*l = Library(f)
	l.extra = extra
	return nil
}

func (l Library) MarshalJSON() ([]byte, error) {
	return withExtra(libraryFields(l), l.extra)
}

// unknownFields 返回对象中不属于 known 的字段（key 比较与 encoding/json 一样大小写不敏感）。
func unknownFields(b []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for k := range all {
		for _, kk := range known {
			if strings.EqualFold(k, kk) {
				delete(all, k)
				break
			}
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// withExtra 编码 v，再补上 extra 里的字段；已声明的字段优先。
func withExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := encode(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = raw
		}
	}
	return encode(merged)
}

// encode 与 json.Marshal 相同，但不转义 HTML（描述里常见 <br/>）。
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// LoadError 表示库文件无法读取或格式不合法。
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s：读取游戏库 %q 失败：%v", domain.ErrCodeLibraryInvalid, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load 读取 path 指向的游戏库。
func Load(path string) (*Library, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	var lib Library
	if err := json.Unmarshal(b, &lib); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &lib, nil
}

// Save 以原子替换方式写回 path（2 空格缩进，末尾换行）。
func Save(path string, lib *Library) error {
	if lib == nil {
		lib = &Library{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(lib); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, buf.Bytes())
}
