package watch

import (
	"strings"
	"time"

	"github.com/mattjoyce/goon/internal/report"
)

// Ticker rotates once per worker tick. A frozen frame means the loop has
// stalled.
type Ticker struct {
	frames []string
	index  int
	ticks  uint64
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Advance() {
	t.index = (t.index + 1) % len(t.frames)
	t.ticks++
}

func (t Ticker) Current() string { return t.frames[t.index] }

func (t Ticker) Ticks() uint64 { return t.ticks }

const activityDots = 5

// Activity lights up when a tick processed events and fades one dot every
// two seconds after that.
type Activity struct {
	dots int
	last time.Time
}

func (a *Activity) Pulse(now time.Time) {
	a.dots = activityDots
	a.last = now
}

func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	faded := int(now.Sub(a.last) / (2 * time.Second))
	a.dots = max(activityDots-faded, 0)
}

func (a Activity) Dots() int { return a.dots }

func (a Activity) Last() time.Time { return a.last }

func (a Activity) Render(theme report.Theme) string {
	var b strings.Builder
	for i := range activityDots {
		if i < a.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}
