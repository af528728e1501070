package domain

import "strings"

// Link 是宿主为游戏记录的外部链接（名称 + URL）。
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// GameIdentity 是调用方提供的游戏身份信息（只读输入）。
//
// 约束：
// - 核心流程不修改 GameIdentity（包括 Links 切片）
// - ReleaseYear/LibraryID/GameID 都是可选的；Name 为空时无法做任何解析
type GameIdentity struct {
	Name        string `json:"name"`
	Links       []Link `json:"links,omitempty"`
	ReleaseYear *int   `json:"release_year,omitempty"`
	// LibraryID 是宿主的库/插件 ID（例如 Steam 插件的 GUID）。
	LibraryID string `json:"library_id,omitempty"`
	// GameID 是库内部的不透明游戏 ID。
	GameID string `json:"game_id,omitempty"`
}

// DisplayName 返回用于日志/报告的名称（空名称返回 "<unnamed>"）。
func (g GameIdentity) DisplayName() string {
	n := strings.TrimSpace(g.Name)
	if n == "" {
		return "<unnamed>"
	}
	return n
}

// Year 返回发行年份；未知时为 0。
func (g GameIdentity) Year() int {
	if g.ReleaseYear == nil {
		return 0
	}
	return *g.ReleaseYear
}
