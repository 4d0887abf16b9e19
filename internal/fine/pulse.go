package fine

import (
	"math"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
)

// pulseScore counts valid turnover pulses in the lookback window and
// converts the pattern into 0, 1 or 2 points. A pulse day is a bounded
// turnover spike with a contained same-day price move and confirming
// volume; it becomes valid only when the next few days hold the move
// inside a tight range without giving it back.
func pulseScore(frame *contracts.Frame, cfg strategyconfig.Pulse) (int, int) {
	pulses := findValidPulses(frame, cfg)
	count := len(pulses)
	if count < 2 {
		return 0, count
	}

	spaced := pulses[count-1]-pulses[0] >= cfg.MinSpacing
	recent := frame.Days()-1-pulses[count-1] < cfg.RecentWindow

	if spaced && recent {
		return 2, count
	}
	return 1, count
}

// findValidPulses returns the bar indices of valid pulses inside the
// lookback window, ascending. Days without a full average window before
// them or a full follow window after them cannot qualify.
func findValidPulses(frame *contracts.Frame, cfg strategyconfig.Pulse) []int {
	n := frame.Days()
	if n == 0 || len(frame.Turnover) != n {
		return nil
	}

	start := n - cfg.Lookback
	if start < cfg.AvgWindow {
		start = cfg.AvgWindow
	}

	var pulses []int
	for i := start; i < n; i++ {
		if !isSpikeDay(frame, i, cfg) {
			continue
		}
		if !holdsAfter(frame, i, cfg) {
			continue
		}
		pulses = append(pulses, i)
	}
	return pulses
}

// isSpikeDay checks the same-day pulse conditions at bar index i.
func isSpikeDay(frame *contracts.Frame, i int, cfg strategyconfig.Pulse) bool {
	avgTurnover := meanOf(frame.Turnover[i-cfg.AvgWindow : i])
	if avgTurnover <= 0 {
		return false
	}
	ratio := frame.Turnover[i] / avgTurnover
	if ratio < cfg.SpikeMin || ratio > cfg.SpikeMax {
		return false
	}

	prevClose := frame.Bars[i-1].Close
	if prevClose <= 0 {
		return false
	}
	if math.Abs(frame.Bars[i].Close/prevClose-1) > cfg.MaxDayMove {
		return false
	}

	var avgVolume float64
	for _, b := range frame.Bars[i-cfg.AvgWindow : i] {
		avgVolume += b.Volume
	}
	avgVolume /= float64(cfg.AvgWindow)
	if avgVolume <= 0 {
		return false
	}
	return frame.Bars[i].Volume >= cfg.VolumeConfirm*avgVolume
}

// holdsAfter checks the follow-through conditions after bar index i: the
// close at the end of the follow window has not dropped below the pulse
// day's close, and the post-pulse range stays bounded relative to it.
func holdsAfter(frame *contracts.Frame, i int, cfg strategyconfig.Pulse) bool {
	end := i + cfg.FollowDays
	if end >= frame.Days() {
		return false
	}

	pulseClose := frame.Bars[i].Close
	if pulseClose <= 0 {
		return false
	}
	if frame.Bars[end].Close < pulseClose {
		return false
	}

	lo, hi := pulseClose, pulseClose
	for _, b := range frame.Bars[i+1 : end+1] {
		if b.Close < lo {
			lo = b.Close
		}
		if b.Close > hi {
			hi = b.Close
		}
	}
	return (hi-lo)/pulseClose <= cfg.MaxPostRange
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
