package link

import "time"

// Clock yields monotonic milliseconds since the Unix epoch.
type Clock interface {
	NowMillis() int64
}

// monoClock anchors wall time once and advances it with the monotonic reading,
// so wall clock jumps never move link timestamps backwards.
type monoClock struct {
	start time.Time
	base  int64
}

func newMonoClock() *monoClock {
	now := time.Now()

	return &monoClock{start: now, base: now.UnixMilli()}
}

func (c *monoClock) NowMillis() int64 {
	return c.base + time.Since(c.start).Milliseconds()
}
