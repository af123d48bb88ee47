package service

import (
	"math"
	"sync/atomic"
)

// Progress counts finished steps of one job and reports them as a percentage.
type Progress struct {
	done  atomic.Int64
	total int64
}

// NewProgress returns a Progress expecting total steps.
func NewProgress(total int) *Progress {
	return &Progress{total: int64(total)}
}

// Increment records one finished step and returns the new percentage.
func (p *Progress) Increment() int {
	return percent(p.done.Add(1), p.total)
}

// Percent returns round(100 * done / total). A job with no steps is 100% done.
func (p *Progress) Percent() int {
	return percent(p.done.Load(), p.total)
}

// Finished reports whether every expected step has been recorded.
func (p *Progress) Finished() bool {
	return p.done.Load() >= p.total
}

func percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	v := int(math.Round(100 * float64(done) / float64(total)))
	return min(max(v, 0), 100)
}
