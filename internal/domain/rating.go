package domain

import "math"

// AggregateRating 是 Backloggd 页面上的社区评分（0.0–5.0）与可选的评分人数。
//
// 约束：
// - 只由 rating.Parse 构造；构造后不修改
// - Count 为 nil 表示页面未提供人数（不是 0）
type AggregateRating struct {
	Value float64 `json:"value"`
	Count *int    `json:"count,omitempty"`
}

// NewAggregateRating 构造评分；count<0 视为未知。
func NewAggregateRating(value float64, count *int) AggregateRating {
	r := AggregateRating{Value: value}
	if count != nil && *count >= 0 {
		n := *count
		r.Count = &n
	}
	return r
}

func (r AggregateRating) HasCount() bool { return r.Count != nil }

// CommunityScore 把 0.0–5.0 映射到 0–100：value*20 后四舍五入（远离零），再截断到 [0,100]。
func (r AggregateRating) CommunityScore() int {
	mapped := int(math.Round(r.Value * 20))
	if mapped < 0 {
		return 0
	}
	if mapped > 100 {
		return 100
	}
	return mapped
}
