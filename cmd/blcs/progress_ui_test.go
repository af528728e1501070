package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/BLCS/internal/app/rewrite"
	"github.com/John-Robertt/BLCS/internal/domain"
)

func TestProgressUI_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)

	p.OnStart(rewrite.Options{LibraryPath: "/tmp/games.json", WriteDescription: true, WriteNotes: true, Concurrency: 2})
	p.OnPhaseDone("load", map[string]any{"games": 2}, time.Second)
	score, count := 88, 61732
	p.OnItemDone(1, 2, domain.ItemResult{Name: "Hades", Status: domain.StatusUpdated, Score: &score, Count: &count, DescriptionChanged: true}, 0)
	p.OnItemDone(2, 2, domain.ItemResult{Name: "???", Status: domain.StatusUnresolved, ErrorCode: domain.ErrCodeResolutionFailed, ErrorMsg: "无法解析"}, 0)

	out := buf.String()
	for _, want := range []string{
		"BLCS rewrite (dry-run)",
		"targets: description+notes",
		"读取: games=2",
		"[1/2] Hades UPDATED score=88 ratings=61,732 changed=description",
		"[2/2] ??? UNRESOLVED resolution_failed: 无法解析",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	if got := truncate("身份匹配服务未返回游戏", 6); got != "身份匹..." {
		t.Fatalf("截断不符：%q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("不应截断：%q", got)
	}
}
