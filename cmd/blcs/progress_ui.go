package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/BLCS/internal/app/rewrite"
	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/textmerge"
)

var _ rewrite.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的简洁进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr，不污染 stdout 的 JSON 输出
// - 事件驱动：rewrite 只发事件，CLI 决定如何展示
// - keepalive：长时间没有条目完成时定期输出一行（抓取是全局串行的，单条可能较慢）
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	changed int
	fail    int
	skip    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(opts rewrite.Options) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不写回游戏库)"
	if opts.Apply {
		mode = "apply"
		modeHint = ""
	}
	fmt.Fprintf(p.w, "[%s] BLCS rewrite (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  library: %s\n", opts.LibraryPath)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  targets: %s\n", targets(opts))
	fmt.Fprintf(p.w, "  concurrency: %d\n", opts.Concurrency)
	if len(opts.Games) > 0 {
		fmt.Fprintf(p.w, "  games: %s\n", strings.Join(opts.Games, ", "))
	}
	fmt.Fprintln(p.w)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "load":
		fmt.Fprintf(p.w, "读取: games=%d selected=%d (%s)\n", intField(fields, "games"), intField(fields, "selected"), formatShortDuration(dur))
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: workers=%d total_items=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "save":
		fmt.Fprintf(p.w, "写回: updated=%d (%s)\n", intField(fields, "updated"), formatShortDuration(dur))
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(done, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	p.total = total
	switch res.Status {
	case domain.StatusUpdated:
		p.changed++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped, domain.StatusUnresolved:
		p.skip++
	}

	switch res.Status {
	case domain.StatusUpdated, domain.StatusUnchanged:
		count := "-"
		if res.Count != nil {
			count = textmerge.FormatCount(*res.Count)
		}
		score := "-"
		if res.Score != nil {
			score = fmt.Sprint(*res.Score)
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s score=%s ratings=%s%s (%s)\n",
			done, total, truncate(res.Name, 60), strings.ToUpper(res.Status), score, count, changedNote(res), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			done, total, truncate(res.Name, 60), strings.ToUpper(res.Status), res.ErrorCode, truncate(res.ErrorMsg, 120), formatShortDuration(dur),
		)
	}
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免结束后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d updated=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.changed, p.fail, p.skip, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func targets(opts rewrite.Options) string {
	var xs []string
	if opts.WriteDescription {
		xs = append(xs, "description")
	}
	if opts.WriteNotes {
		xs = append(xs, "notes")
	}
	if len(xs) == 0 {
		return "none"
	}
	return strings.Join(xs, "+")
}

func changedNote(res domain.ItemResult) string {
	var xs []string
	if res.DescriptionChanged {
		xs = append(xs, "description")
	}
	if res.NotesChanged {
		xs = append(xs, "notes")
	}
	if len(xs) == 0 {
		return ""
	}
	return " changed=" + strings.Join(xs, ",")
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	default:
		return 0
	}
}
