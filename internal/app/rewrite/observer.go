package rewrite

import (
	"time"

	"github.com/John-Robertt/BLCS/internal/domain"
)

// Observer 把“运行进度/阶段/条目结果”从执行流程中解耦出来。
//
// 约束：
// - rewrite 包只发事件，不做任何输出（stdout 留给 JSON 报告）
// - 实现必须并发安全：OnItemDone 可能来自多个 goroutine
type Observer interface {
	// OnStart 在开始时调用（读取游戏库之前）。
	OnStart(opts Options)
	// OnPhaseDone 在阶段结束/就绪时调用：load、exec、save。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在每个游戏处理完成时调用。
	OnItemDone(done, total int, res domain.ItemResult, dur time.Duration)
}
