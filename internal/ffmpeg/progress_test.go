package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgressTime(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    float64
		wantOK  bool
	}{
		{
			name:   "typical progress line",
			line:   "frame= 1234 fps= 30 q=28.0 size=    2048KiB time=00:01:30.50 bitrate= 185.4kbits/s speed=1.2x",
			want:   90.5,
			wantOK: true,
		},
		{
			name:   "hours component",
			line:   "time=01:02:03.00",
			want:   3723,
			wantOK: true,
		},
		{
			name:   "no fractional seconds",
			line:   "time=00:00:05",
			want:   5,
			wantOK: true,
		},
		{
			name:   "no time field",
			line:   "Stream mapping:",
			wantOK: false,
		},
		{
			name:   "negative placeholder ignored",
			line:   "size=       0KiB time=N/A bitrate=N/A",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseProgressTime(tt.line)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestProgressMapperMonotone(t *testing.T) {
	m := newProgressMapper(100, 80, 99)

	assert.Equal(t, 80, m.Map(0))
	assert.Equal(t, 89, m.Map(50))

	// A lower reading must not lower the reported percent.
	assert.Equal(t, 89, m.Map(10))

	// At and beyond the total the mapper clips below completion.
	assert.Equal(t, 99, m.Map(100))
	assert.Equal(t, 99, m.Map(500))
}

func TestProgressMapperUnknownDuration(t *testing.T) {
	m := newProgressMapper(0, 80, 99)

	// Without a known total, every reading holds the floor.
	assert.Equal(t, 80, m.Map(10))
	assert.Equal(t, 80, m.Map(9999))
}
