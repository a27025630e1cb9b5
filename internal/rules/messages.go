package rules

import (
	"fmt"
	"math"

	"PriceSentinel/internal/model"
)

func msgThresholdAbove(r *model.Rule, price float64) string {
	return fmt.Sprintf("📈 %s 价格突破 %.2f\n当前价格: %.2f", r.Symbol, r.Threshold, price)
}

func msgThresholdBelow(r *model.Rule, price float64) string {
	return fmt.Sprintf("📉 %s 价格跌破 %.2f\n当前价格: %.2f", r.Symbol, r.Threshold, price)
}

func msgVolatility(r *model.Rule, va *model.VolatilityAnalysis, price float64) string {
	direction, emoji := "上涨", "🚀"
	if va.ChangePercent < 0 {
		direction, emoji = "下跌", "💥"
	}
	return fmt.Sprintf("%s %s %d分钟内%s %.2f%%\n当前价格: %.2f\n区间最高: %.2f | 区间最低: %.2f\n变化速度: %.2f%%/分钟",
		emoji, r.Symbol, r.VolatilityWindow, direction, math.Abs(va.ChangePercent), price, va.High, va.Low, va.Speed)
}

func msgFibonacci(r *model.Rule, level, levelPrice, price float64) string {
	return fmt.Sprintf("📐 %s 触及斐波那契 %.1f%% 回撤位\n回撤位价格: %.2f\n当前价格: %.2f\n区间: %.2f → %.2f",
		r.Symbol, level*100, levelPrice, price, r.StartPrice, r.EndPrice)
}

func msgRangeTouch(r *model.Rule, side string, boundary, price float64) string {
	return fmt.Sprintf("📍 %s 触及区间%s %.2f\n当前价格: %.2f\n区间: %.2f - %.2f",
		r.Symbol, side, boundary, price, r.LowerPrice, r.UpperPrice)
}

func msgRangeBreakout(r *model.Rule, direction string, offset, price float64) string {
	return fmt.Sprintf("🚨 %s 向%s突破区间\n确认价位: %.2f\n当前价格: %.2f\n区间: %.2f - %.2f",
		r.Symbol, direction, offset, price, r.LowerPrice, r.UpperPrice)
}

// volumeNote renders the volume classification annotation. It decorates
// the message only; the classification never gates a trigger.
func volumeNote(vi *model.VolumeInfo) string {
	if vi == nil {
		return ""
	}
	label := "正常"
	switch vi.Level {
	case model.VolumeHigh:
		label = "放量"
	case model.VolumeLow:
		label = "缩量"
	}
	return fmt.Sprintf("\n成交量: %s (%.2fx)", label, vi.Ratio)
}
