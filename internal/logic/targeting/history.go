// Package targeting turns raw target reports into aim and fire decisions.
package targeting

// HistoryLen is the number of recent target positions kept for the stability
// check.
const HistoryLen = 6

type point struct{ x, y int }

// History is a fixed ring of the most recent target positions, in detector
// units. The zero value is empty and ready to use.
type History struct {
	points [HistoryLen]point
	next   int
	n      int
}

// Push records a position, evicting the oldest once the ring is full.
func (h *History) Push(x, y int) {
	h.points[h.next] = point{x, y}
	h.next = (h.next + 1) % HistoryLen
	if h.n < HistoryLen {
		h.n++
	}
}

// Len returns the number of recorded positions.
func (h *History) Len() int { return h.n }

// Full reports whether HistoryLen positions have been recorded.
func (h *History) Full() bool { return h.n == HistoryLen }

// Spans returns max-min of x and of y over the recorded positions. An empty
// history has zero spans.
func (h *History) Spans() (spanX, spanY int) {
	if h.n == 0 {
		return 0, 0
	}
	minX, maxX := h.points[0].x, h.points[0].x
	minY, maxY := h.points[0].y, h.points[0].y
	for _, p := range h.points[1:h.n] {
		minX, maxX = min(minX, p.x), max(maxX, p.x)
		minY, maxY = min(minY, p.y), max(maxY, p.y)
	}
	return maxX - minX, maxY - minY
}
