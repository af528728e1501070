package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/library"
	"github.com/John-Robertt/BLCS/internal/provider"
)

var (
	// ErrNoDestination 表示 description 与 notes 都未开启。
	ErrNoDestination = errors.New("至少需要开启一个写入目标（description 和/或 notes）")
	// ErrEmptyLibrary 表示游戏库中没有任何游戏。
	ErrEmptyLibrary = errors.New("游戏库中没有游戏")
	// ErrNoSelectedGames 表示 Options.Games 没有匹配到库中的任何游戏。
	ErrNoSelectedGames = errors.New("没有找到所选的游戏")
)

// Options 是一次 rewrite 的输入。
type Options struct {
	LibraryPath string
	// Apply=false 时只计算结果，不写回游戏库。
	Apply bool

	WriteDescription bool
	WriteNotes       bool

	// Games 非空时只处理名称或 game_id 匹配其中之一的游戏（大小写不敏感）。
	Games []string

	Concurrency int
	Logger      *slog.Logger
}

// Execute 对游戏库中的每个游戏刷新顶部的 "Backloggd Ratings: N" 注记行。
func Execute(ctx context.Context, opts Options, svc provider.Lookuper) (domain.RunReport, error) {
	return ExecuteWithObserver(ctx, opts, svc, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 输出进度。
//
// 约束：
// - 前置条件不满足（没有写入目标、游戏库无法读取或为空、所选游戏不存在）时返回 error，不产生报告条目
// - 单个游戏失败只影响该条目；取消只在条目之间检查，已开始的条目会完成
// - 只有 Apply=true 且至少一个游戏有变化时才写回文件（原子替换）
func ExecuteWithObserver(ctx context.Context, opts Options, svc provider.Lookuper, obs Observer) (domain.RunReport, error) {
	started := time.Now().UTC()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rr := domain.RunReport{
		Library:          opts.LibraryPath,
		DryRun:           !opts.Apply,
		WriteDescription: opts.WriteDescription,
		WriteNotes:       opts.WriteNotes,
		StartedAt:        started,
	}

	if !opts.WriteDescription && !opts.WriteNotes {
		return rr, ErrNoDestination
	}
	if svc == nil {
		return rr, errors.New("评分服务为空")
	}

	if obs != nil {
		obs.OnStart(opts)
	}

	loadStarted := time.Now()
	lib, err := library.Load(opts.LibraryPath)
	if err != nil {
		return rr, err
	}
	if len(lib.Games) == 0 {
		return rr, fmt.Errorf("%w：%s", ErrEmptyLibrary, opts.LibraryPath)
	}
	selected := selectGames(lib.Games, opts.Games)
	if len(selected) == 0 {
		return rr, fmt.Errorf("%w：%s", ErrNoSelectedGames, strings.Join(opts.Games, ", "))
	}
	if obs != nil {
		obs.OnPhaseDone("load", map[string]any{
			"games":    len(lib.Games),
			"selected": len(selected),
		}, time.Since(loadStarted))
	}

	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(selected) {
		workers = len(selected)
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(selected),
		}, 0)
	}

	settings := provider.Settings{WriteDescription: opts.WriteDescription, WriteNotes: opts.WriteNotes}

	type execResult struct {
		out outcome
		dur time.Duration
	}

	jobs := make(chan int)
	results := make(chan execResult, len(selected))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				oneStarted := time.Now()
				var o outcome
				if err := ctx.Err(); err != nil {
					o = canceledItem(idx, lib.Games[idx], err)
				} else {
					o = execOne(ctx, idx, lib.Games[idx], svc, settings, logger)
				}
				results <- execResult{out: o, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, i := range selected {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	rr.Items = make([]domain.ItemResult, 0, len(selected))
	changed := 0
	done := 0
	for r := range results {
		done++
		rr.Items = append(rr.Items, r.out.res)
		if r.out.res.Status == domain.StatusUpdated {
			g := &lib.Games[r.out.res.Index]
			if r.out.res.DescriptionChanged {
				g.Description = r.out.description
			}
			if r.out.res.NotesChanged {
				g.Notes = r.out.notes
			}
			changed++
		}
		if obs != nil {
			obs.OnItemDone(done, len(selected), r.out.res, r.dur)
		}
	}

	if opts.Apply && changed > 0 {
		saveStarted := time.Now()
		if err := library.Save(opts.LibraryPath, lib); err != nil {
			rr.Items = append(rr.Items, domain.ItemResult{
				Index:     -1,
				Status:    domain.StatusFailed,
				ErrorCode: domain.ErrCodeIOFailed,
				ErrorMsg:  fmt.Sprintf("写回游戏库失败：%v", err),
			})
		} else if obs != nil {
			obs.OnPhaseDone("save", map[string]any{"updated": changed}, time.Since(saveStarted))
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr, nil
}

// outcome 是单个游戏的处理结果，以及（有变化时）新的文本。
type outcome struct {
	res         domain.ItemResult
	description string
	notes       string
}

func execOne(ctx context.Context, idx int, g library.Game, svc provider.Lookuper, settings provider.Settings, logger *slog.Logger) outcome {
	item := domain.ItemResult{
		Index: idx,
		Name:  g.DisplayName(),
	}

	p := provider.New(svc, provider.Request{
		Game:        g.GameIdentity,
		Description: g.Description,
		Notes:       g.Notes,
	}, settings, logger)

	item.URL = p.URL(ctx).String()
	rating, _, ok := p.Rating(ctx)
	if !ok {
		err := p.Err(ctx)
		item.ErrorCode = domain.Kind(err)
		item.ErrorMsg = errMsg(err)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// 在抓取闸门前等待时被取消：与条目之间的取消同样处理。
			item.Status = domain.StatusSkipped
		case errors.Is(err, domain.ErrResolutionFailed):
			item.Status = domain.StatusUnresolved
		default:
			item.Status = domain.StatusFailed
		}
		return outcome{res: item}
	}

	score, _ := p.CommunityScore(ctx)
	item.Score = &score
	item.Count = rating.Count

	if !rating.HasCount() {
		item.Status = domain.StatusSkipped
		item.ErrorCode = domain.ErrCodeNoRatingCount
		item.ErrorMsg = "评分页没有评分人数，无法生成注记行"
		return outcome{res: item}
	}

	out := outcome{}
	if desc, ok := p.Description(ctx); ok && desc != g.Description {
		item.DescriptionChanged = true
		out.description = desc
	}
	if notes, ok := p.Notes(ctx); ok && notes != g.Notes {
		item.NotesChanged = true
		out.notes = notes
	}

	item.Status = domain.StatusUnchanged
	if item.DescriptionChanged || item.NotesChanged {
		item.Status = domain.StatusUpdated
	}
	out.res = item
	return out
}

// selectGames 返回要处理的游戏下标（按库中顺序）；names 为空时返回全部。
func selectGames(games []library.Game, names []string) []int {
	var want []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			want = append(want, n)
		}
	}
	out := make([]int, 0, len(games))
	for i, g := range games {
		if len(want) == 0 || matchesAny(g, want) {
			out = append(out, i)
		}
	}
	return out
}

func matchesAny(g library.Game, want []string) bool {
	name := strings.TrimSpace(g.Name)
	id := strings.TrimSpace(g.GameID)
	for _, w := range want {
		if strings.EqualFold(name, w) || (id != "" && strings.EqualFold(id, w)) {
			return true
		}
	}
	return false
}

func canceledItem(idx int, g library.Game, err error) outcome {
	return outcome{res: domain.ItemResult{
		Index:     idx,
		Name:      g.DisplayName(),
		Status:    domain.StatusSkipped,
		ErrorCode: domain.ErrCodeCanceled,
		ErrorMsg:  errMsg(err),
	}}
}

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
