package ffmpeg

import (
	"regexp"
	"strconv"
)

// ffmpeg reports processed media time on stderr as "time=HH:MM:SS.cc".
var progressTimeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// parseProgressTime extracts the processed seconds from an ffmpeg stderr
// line. Returns false when the line carries no time field.
func parseProgressTime(line string) (float64, bool) {
	m := progressTimeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.ParseFloat(m[1], 64)
	min, _ := strconv.ParseFloat(m[2], 64)
	s, _ := strconv.ParseFloat(m[3], 64)
	return h*3600 + min*60 + s, true
}

// progressMapper maps processed seconds onto a bounded percent range. The
// heuristic is monotone: a lower reading never lowers the reported percent,
// and the result is clipped so it cannot claim completion before the tool
// exits.
type progressMapper struct {
	total float64 // media duration in seconds, <= 0 means unknown
	lo    int
	hi    int
	last  int
}

// newProgressMapper builds a mapper for the given duration and percent range.
func newProgressMapper(totalSeconds float64, lo, hi int) *progressMapper {
	return &progressMapper{total: totalSeconds, lo: lo, hi: hi, last: lo}
}

// Map converts processed seconds to a percent within [lo, hi].
func (m *progressMapper) Map(seconds float64) int {
	pct := m.lo
	if m.total > 0 {
		pct = m.lo + int(seconds/m.total*float64(m.hi-m.lo))
	}
	if pct > m.hi {
		pct = m.hi
	}
	if pct < m.last {
		pct = m.last
	}
	m.last = pct
	return pct
}
