package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/BLCS/internal/config"
	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/provider"
	"github.com/John-Robertt/BLCS/internal/resolve"
	"github.com/John-Robertt/BLCS/internal/score"
	"github.com/John-Robertt/BLCS/internal/textmerge"
)

type lookupFlags struct {
	links   []string
	year    int
	format  string
	explain bool
}

// lookupResult 是 lookup 的 JSON 输出。
type lookupResult struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`

	Value       *float64 `json:"value,omitempty"`
	Count       *int     `json:"count,omitempty"`
	Score       *int     `json:"score,omitempty"`
	LinkLabel   string   `json:"link_label,omitempty"`
	RatingsLine string   `json:"ratings_line,omitempty"`

	Attempts []attemptView `json:"attempts,omitempty"`

	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

type attemptView struct {
	Stage string `json:"stage"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

func newLookupCmd(g *globalFlags) *cobra.Command {
	f := &lookupFlags{}
	cmd := &cobra.Command{
		Use:   "lookup [游戏名]",
		Short: "查询单个游戏的 Backloggd 社区评分",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runLookup(cmd, g, f, name)
		},
	}
	cmd.Flags().StringArrayVar(&f.links, "link", nil, "已知链接（可重复），例如 Backloggd 或 IGDB 游戏页")
	cmd.Flags().IntVar(&f.year, "year", 0, "发行年份（可选，用于身份匹配）")
	cmd.Flags().StringVar(&f.format, "format", "auto", "输出格式：auto|table|json（auto：stdout 是终端时用 table）")
	cmd.Flags().BoolVar(&f.explain, "explain", false, "同时输出 URL 解析链的每一步")
	return cmd
}

func runLookup(cmd *cobra.Command, g *globalFlags, f *lookupFlags, name string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if err := validateFormat(f.format); err != nil {
		return &exitError{code: 2, msg: err.Error()}
	}

	id := domain.GameIdentity{Name: strings.TrimSpace(name)}
	for _, l := range f.links {
		if strings.TrimSpace(l) != "" {
			id.Links = append(id.Links, domain.Link{URL: strings.TrimSpace(l)})
		}
	}
	if f.year > 0 {
		y := f.year
		id.ReleaseYear = &y
	}
	if id.Name == "" && len(id.Links) == 0 {
		return &exitError{code: 2, msg: "参数错误：需要游戏名或至少一个 --link"}
	}

	logger := newLogger(stderr, g.verbose)
	cwd, err := os.Getwd()
	if err != nil {
		return &exitError{code: 1, msg: fmt.Sprintf("读取当前目录失败：%v", err)}
	}
	eff, err := config.LoadEffective(cwd, config.CLIArgs{ConfigPath: g.configPath})
	if err != nil {
		return &exitError{code: 1, msg: err.Error()}
	}
	svcs, err := buildServices(eff, logger)
	if err != nil {
		return &exitError{code: 1, msg: fmt.Sprintf("初始化失败：%v", err)}
	}

	ctx := cmd.Context()
	res := lookupResult{Name: id.DisplayName()}
	if f.explain {
		_, attempts, _ := svcs.resolver.ResolveTrace(ctx, id)
		res.Attempts = attemptViews(attempts)
	}

	p := provider.New(svcs.score, provider.Request{Game: id}, provider.Settings{}, logger)
	rating, u, ok := p.Rating(ctx)
	if ok {
		v := rating.Value
		s := score.CommunityScore(v)
		res.URL = u.String()
		res.Value = &v
		res.Count = rating.Count
		res.Score = &s
		res.LinkLabel = score.LinkLabel(rating.Count)
		res.RatingsLine = textmerge.BuildLine(rating.Count)
	} else {
		err := p.Err(ctx)
		res.URL = p.URL(ctx).String()
		res.ErrorCode = domain.Kind(err)
		res.ErrorMsg = errString(err)
	}

	if useJSON(f.format, stdout) {
		if err := writeJSON(stdout, res); err != nil {
			return &exitError{code: 1, msg: fmt.Sprintf("输出 JSON 失败：%v", err)}
		}
	} else {
		renderLookupTable(stdout, res)
	}

	if !ok {
		return &exitError{code: 1}
	}
	return nil
}

func attemptViews(attempts []resolve.Attempt) []attemptView {
	out := make([]attemptView, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptView{Stage: a.Stage, URL: a.URL, Error: errString(a.Err)})
	}
	return out
}

func renderLookupTable(w io.Writer, res lookupResult) {
	t := newTable(w)
	t.AppendHeader(table.Row{"字段", "值"})
	t.AppendRow(table.Row{"game", res.Name})
	if res.URL != "" {
		t.AppendRow(table.Row{"url", res.URL})
	}
	if res.Value != nil {
		t.AppendRow(table.Row{"rating", strconv.FormatFloat(*res.Value, 'f', -1, 64) + " / 5"})
		t.AppendRow(table.Row{"score", *res.Score})
		count := "-"
		if res.Count != nil {
			count = textmerge.FormatCount(*res.Count)
		}
		t.AppendRow(table.Row{"ratings", count})
		t.AppendRow(table.Row{"link", res.LinkLabel})
	}
	if res.ErrorCode != "" {
		t.AppendRow(table.Row{"error", res.ErrorCode + ": " + res.ErrorMsg})
	}
	t.Render()

	if len(res.Attempts) > 0 {
		at := newTable(w)
		at.AppendHeader(table.Row{"#", "stage", "url", "error"})
		for i, a := range res.Attempts {
			at.AppendRow(table.Row{i + 1, a.Stage, a.URL, a.Error})
		}
		at.Render()
	}
}
