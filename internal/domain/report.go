package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusUpdated    = "updated"
	StatusUnchanged  = "unchanged"
	StatusSkipped    = "skipped"
	StatusUnresolved = "unresolved"
	StatusFailed     = "failed"
)

const (
	ErrCodeEmptyInput       = "empty_input"
	ErrCodeResolutionFailed = "resolution_failed"
	ErrCodeTransport        = "transport_failed"
	ErrCodeHTTPStatus       = "http_status"
	ErrCodeParseFailed      = "parse_failed"
	ErrCodeNoRatingCount    = "no_rating_count"
	ErrCodeCanceled         = "canceled"
	ErrCodeConfigNotFound   = "config_not_found"
	ErrCodeConfigInvalid    = "config_invalid"
	ErrCodeLibraryInvalid   = "library_invalid"
	ErrCodeNoSelectedGames  = "no_selected_games"
	ErrCodeIOFailed         = "io_failed"
)

// RunReport 是 rewrite 的对外稳定输出（stdout JSON / --report 文件）。
type RunReport struct {
	Library string `json:"library"`
	DryRun  bool   `json:"dry_run"`

	WriteDescription bool `json:"write_description"`
	WriteNotes       bool `json:"write_notes"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Updated    int `json:"updated"`
	Unchanged  int `json:"unchanged"`
	Skipped    int `json:"skipped"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

type ItemResult struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`

	Score *int `json:"score,omitempty"`
	Count *int `json:"count,omitempty"`

	DescriptionChanged bool `json:"description_changed"`
	NotesChanged       bool `json:"notes_changed"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按输入顺序（Index）；Index<0 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Index
		b := r.Items[j].Index
		if a < 0 {
			return false
		}
		if b < 0 {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusUpdated:
			s.Updated++
		case StatusUnchanged:
			s.Unchanged++
		case StatusSkipped:
			s.Skipped++
		case StatusUnresolved:
			s.Unresolved++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
