package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/BLCS/internal/app/rewrite"
	"github.com/John-Robertt/BLCS/internal/config"
	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/infra/fsx"
	"github.com/John-Robertt/BLCS/internal/library"
)

type rewriteFlags struct {
	library          string
	apply            bool
	writeDescription bool
	writeNotes       bool
	concurrency      int
	games            []string
	report           string
	format           string
}

func newRewriteCmd(g *globalFlags) *cobra.Command {
	f := &rewriteFlags{}
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "为游戏库中的每个游戏刷新 \"Backloggd Ratings: N\" 注记行（默认 dry-run）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.library, "library", "", "游戏库 JSON 文件（未指定则读配置字段 library）")
	fl.BoolVar(&f.apply, "apply", false, "写回游戏库（默认 dry-run）；支持 --apply=false 覆盖配置")
	fl.BoolVar(&f.writeDescription, "write-description", true, "把注记行写入描述")
	fl.BoolVar(&f.writeNotes, "write-notes", false, "把注记行写入备注")
	fl.IntVar(&f.concurrency, "concurrency", config.DefaultConcurrency, "并发处理的游戏数 [1,32]")
	fl.StringArrayVar(&f.games, "game", nil, "只处理名称或 game_id 匹配的游戏（可重复；默认处理全部）")
	fl.StringVar(&f.report, "report", "", "额外把 RunReport JSON 写到该文件")
	fl.StringVar(&f.format, "format", "auto", "输出格式：auto|table|json（auto：stdout 是终端时用 table）")
	return cmd
}

func runRewrite(cmd *cobra.Command, g *globalFlags, f *rewriteFlags) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if err := validateFormat(f.format); err != nil {
		return &exitError{code: 2, msg: err.Error()}
	}
	jsonOut := useJSON(f.format, stdout)

	fl := cmd.Flags()
	cli := config.CLIArgs{
		ConfigPath:          g.configPath,
		Library:             f.library,
		Apply:               f.apply,
		ApplySet:            fl.Changed("apply"),
		Concurrency:         f.concurrency,
		ConcurrencySet:      fl.Changed("concurrency"),
		WriteDescription:    f.writeDescription,
		WriteDescriptionSet: fl.Changed("write-description"),
		WriteNotes:          f.writeNotes,
		WriteNotesSet:       fl.Changed("write-notes"),
	}

	logger := newLogger(stderr, g.verbose)
	cwd, err := os.Getwd()
	if err != nil {
		return &exitError{code: 1, msg: fmt.Sprintf("读取当前目录失败：%v", err)}
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err == nil {
		err = eff.RequireLibrary()
	}
	if err != nil {
		rr := reportForError(eff, cli, err)
		emitReport(stdout, stderr, jsonOut, rr)
		return &exitError{code: 1}
	}

	svcs, err := buildServices(eff, logger)
	if err != nil {
		rr := reportForError(eff, cli, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: err})
		emitReport(stdout, stderr, jsonOut, rr)
		return &exitError{code: 1}
	}

	var obs rewrite.Observer
	if isTTY(stderr) {
		obs = newProgressUI(stderr)
	}

	rr, err := rewrite.ExecuteWithObserver(cmd.Context(), rewrite.Options{
		LibraryPath:      eff.Library,
		Apply:            eff.Apply,
		WriteDescription: eff.WriteDescription,
		WriteNotes:       eff.WriteNotes,
		Games:            f.games,
		Concurrency:      eff.Concurrency,
		Logger:           logger,
	}, svcs.score, obs)
	if err != nil {
		rr = reportForError(eff, cli, err)
	}

	if f.report != "" {
		if werr := writeReportFile(f.report, rr); werr != nil {
			fmt.Fprintf(stderr, "写入 report 失败：%v\n", werr)
			emitReport(stdout, stderr, jsonOut, rr)
			return &exitError{code: 1}
		}
	}

	emitReport(stdout, stderr, jsonOut, rr)
	if err != nil || rr.Summary.Failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

// reportForError 把前置条件失败包装成只含一条合成条目的报告（index=-1）。
func reportForError(eff config.EffectiveConfig, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	dryRun := !eff.Apply
	if eff.Library == "" {
		dryRun = !(cli.ApplySet && cli.Apply)
	}
	rr := domain.RunReport{
		Library:          eff.Library,
		DryRun:           dryRun,
		WriteDescription: eff.WriteDescription,
		WriteNotes:       eff.WriteNotes,
		StartedAt:        now,
		FinishedAt:       now,
		Items: []domain.ItemResult{{
			Index:     -1,
			Status:    domain.StatusFailed,
			ErrorCode: errorCode(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func errorCode(err error) string {
	if c := config.Code(err); c != "" {
		return c
	}
	var le *library.LoadError
	switch {
	case errors.As(err, &le), errors.Is(err, rewrite.ErrEmptyLibrary):
		return domain.ErrCodeLibraryInvalid
	case errors.Is(err, rewrite.ErrNoSelectedGames):
		return domain.ErrCodeNoSelectedGames
	case errors.Is(err, rewrite.ErrNoDestination):
		return domain.ErrCodeConfigInvalid
	default:
		return domain.Kind(err)
	}
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(path, b)
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	return fmt.Sprintf("完成：updated=%d unchanged=%d skipped=%d unresolved=%d failed=%d",
		s.Updated, s.Unchanged, s.Skipped, s.Unresolved, s.Failed)
}

func emitReport(stdout, stderr io.Writer, jsonOut bool, rr domain.RunReport) {
	if jsonOut {
		_ = writeJSON(stdout, rr)
		fmt.Fprintln(stderr, summaryLine(rr))
		return
	}

	fmt.Fprintln(stdout, summaryLine(rr))
	problems := newTable(stdout)
	problems.AppendHeader(table.Row{"#", "game", "status", "error"})
	n := 0
	for _, it := range rr.Items {
		if it.Status != domain.StatusFailed && it.Status != domain.StatusUnresolved {
			continue
		}
		idx := "-"
		if it.Index >= 0 {
			idx = fmt.Sprint(it.Index + 1)
		}
		problems.AppendRow(table.Row{idx, it.Name, it.Status, it.ErrorCode + ": " + truncate(it.ErrorMsg, 100)})
		n++
	}
	if n > 0 {
		problems.Render()
	}
}
