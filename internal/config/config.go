package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/John-Robertt/BLCS/internal/domain"
)

const (
	// FileName 是默认配置文件名；同目录下的 blcs.local.json5 会覆盖其中字段。
	FileName = "blcs.json5"

	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingLibrary 表示 rewrite 需要游戏库文件，但 CLI 与配置都没有给出。
	ErrCodeMissingLibrary = "config_missing_library"
)

const (
	DefaultConcurrency    = 4
	DefaultTimeoutSeconds = 20
)

// CLIArgs 保留“是否显式指定”的信息，保证覆盖优先级可实现：
// 例如 --write-description=false 必须能覆盖配置里的 true。
type CLIArgs struct {
	// ConfigPath 为空时尝试 <cwd>/blcs.json5（可选）；非空时文件必须存在。
	ConfigPath string

	Library string

	Apply    bool
	ApplySet bool

	Concurrency    int
	ConcurrencySet bool

	WriteDescription    bool
	WriteDescriptionSet bool

	WriteNotes    bool
	WriteNotesSet bool
}

// FileConfig 对应 blcs.json5 的解析结构（JSON5：允许注释与尾逗号）。
type FileConfig struct {
	Library          string       `json:"library"`
	Apply            *bool        `json:"apply"`
	Concurrency      int          `json:"concurrency"`
	WriteDescription *bool        `json:"write_description"`
	WriteNotes       *bool        `json:"write_notes"`
	Proxy            *ProxyConfig `json:"proxy"`
	SourceBaseURL    string       `json:"source_base_url"`
	IdentityBaseURL  string       `json:"identity_base_url"`
	IdentityPath     string       `json:"identity_path"`
	TimeoutSeconds   int          `json:"timeout_seconds"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的主配置文件（未读取任何文件时为空）。
	ConfigPath string

	// Library 是游戏库 JSON 的绝对路径（lookup 不需要，可为空）。
	Library string
	Apply   bool

	Concurrency      int
	WriteDescription bool
	WriteNotes       bool

	ProxyURL        string
	SourceBaseURL   string
	IdentityBaseURL string
	IdentityPath    string
	Timeout         time.Duration
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingLibrary:
		return fmt.Sprintf("%s：未指定游戏库文件（--library 或配置字段 library）", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件（及其 .local 覆盖），然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI > blcs.local.json5 > blcs.json5 > 默认值。
// 配置文件里的相对 library 路径以配置文件所在目录为基准；CLI 给出的以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	explicit := strings.TrimSpace(cli.ConfigPath) != ""
	if explicit {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
	}

	fc, exists, err := ReadFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if explicit && !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	eff, err := merge(cwdAbs, cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}
	if exists {
		eff.ConfigPath = cfgPath
	}
	return eff, nil
}

// RequireLibrary 校验 rewrite 所需的 library 字段。
func (c EffectiveConfig) RequireLibrary() error {
	if strings.TrimSpace(c.Library) == "" {
		return &Error{Code: ErrCodeMissingLibrary, Path: c.ConfigPath}
	}
	return nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	library := ""
	if strings.TrimSpace(cli.Library) != "" {
		library = absCleanFrom(cwdAbs, cli.Library)
	} else if strings.TrimSpace(fc.Library) != "" {
		library = absCleanFrom(filepath.Dir(cfgPath), fc.Library)
	}

	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	writeDesc := true
	if cli.WriteDescriptionSet {
		writeDesc = cli.WriteDescription
	} else if fc.WriteDescription != nil {
		writeDesc = *fc.WriteDescription
	}
	writeNotes := false
	if cli.WriteNotesSet {
		writeNotes = cli.WriteNotes
	} else if fc.WriteNotes != nil {
		writeNotes = *fc.WriteNotes
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	sourceBase, err := validateBaseURL("source_base_url", fc.SourceBaseURL)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	identityBase, err := validateBaseURL("identity_base_url", fc.IdentityBaseURL)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	timeout := fc.TimeoutSeconds
	if timeout == 0 {
		timeout = DefaultTimeoutSeconds
	}
	if timeout < 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("timeout_seconds 不能为负数：%d", timeout)}
	}

	return EffectiveConfig{
		Library:          library,
		Apply:            apply,
		Concurrency:      concurrency,
		WriteDescription: writeDesc,
		WriteNotes:       writeNotes,
		ProxyURL:         proxyURL,
		SourceBaseURL:    sourceBase,
		IdentityBaseURL:  identityBase,
		IdentityPath:     strings.TrimSpace(fc.IdentityPath),
		Timeout:          time.Duration(timeout) * time.Second,
	}, nil
}

func validateBaseURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return raw, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// LocalPath 返回 name 对应的 .local 覆盖文件路径：blcs.json5 => blcs.local.json5。
func LocalPath(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// ReadFileConfig 读取 path 及其 .local 覆盖文件，并把后者合并到前者之上。
// 返回值 exists 表示两者至少有一个存在（都不存在不算错误）。
func ReadFileConfig(path string) (fc FileConfig, exists bool, err error) {
	base, baseOK, err := readOne(path)
	if err != nil {
		return FileConfig{}, false, err
	}
	localPath := LocalPath(path)
	local, localOK, err := readOne(localPath)
	if err != nil {
		return FileConfig{}, false, fmt.Errorf("%s：%w", localPath, err)
	}
	if localOK {
		// WithoutDereference：local 里显式写的 false/0 指针也要覆盖 base。
		if err := mergo.Merge(&base, local, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return FileConfig{}, false, err
		}
		slog.Debug("合并本地覆盖配置", "local", localPath)
	}
	return base, baseOK || localOK, nil
}

func readOne(path string) (FileConfig, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	var fc FileConfig
	if len(strings.TrimSpace(string(b))) == 0 {
		return fc, true, nil
	}
	if err := json5.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
