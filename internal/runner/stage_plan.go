package runner

import (
	"math"
	"time"
)

type stagePlan struct {
	segments []stageSegment
	duration time.Duration
	final    int
	peak     int
}

type stageSegment struct {
	start    time.Duration
	duration time.Duration
	from     int
	to       int
}

// compileStagePlan turns stages into back-to-back segments. The first segment
// ramps from initial. Stages without a positive duration are skipped.
func compileStagePlan(initial int, stages []Stage) *stagePlan {
	if len(stages) == 0 {
		return nil
	}

	plan := &stagePlan{final: initial, peak: initial}
	var offset time.Duration
	from := initial
	for _, stage := range stages {
		if stage.Duration <= 0 {
			continue
		}
		to := stage.Target
		if to < 0 {
			to = 0
		}
		plan.segments = append(plan.segments, stageSegment{
			start:    offset,
			duration: stage.Duration,
			from:     from,
			to:       to,
		})
		if to > plan.peak {
			plan.peak = to
		}
		offset += stage.Duration
		from = to
	}

	if len(plan.segments) == 0 {
		return nil
	}
	plan.duration = offset
	plan.final = from
	return plan
}

// vusAt returns the interpolated virtual user count at elapsed. Once the plan
// is over it returns the final target and false.
func (p *stagePlan) vusAt(elapsed time.Duration) (int, bool) {
	if p == nil || len(p.segments) == 0 {
		return 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for _, seg := range p.segments {
		end := seg.start + seg.duration
		if elapsed < seg.start || elapsed >= end {
			continue
		}
		if seg.from == seg.to {
			return seg.from, true
		}
		progress := float64(elapsed-seg.start) / float64(seg.duration)
		if progress < 0 {
			progress = 0
		} else if progress > 1 {
			progress = 1
		}
		return seg.from + int(math.Round(float64(seg.to-seg.from)*progress)), true
	}
	return p.final, false
}

func (p *stagePlan) totalDuration() time.Duration {
	if p == nil {
		return 0
	}
	return p.duration
}
