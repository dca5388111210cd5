package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectHWAccel(t *testing.T) {
	info := &BinaryInfo{
		Encoders: []string{"libx264", "h264_vaapi", "h264_nvenc"},
		HWAccels: []string{"vaapi", "cuda"},
	}

	t.Run("first supported method wins", func(t *testing.T) {
		hw := SelectHWAccel(info, []string{"videotoolbox", "vaapi", "cuda"})
		require.NotNil(t, hw)
		assert.Equal(t, "vaapi", hw.Method)
		assert.Equal(t, "h264_vaapi", hw.Encoder)
	})

	t.Run("method without encoder is skipped", func(t *testing.T) {
		noEnc := &BinaryInfo{
			Encoders: []string{"libx264"},
			HWAccels: []string{"vaapi"},
		}
		assert.Nil(t, SelectHWAccel(noEnc, []string{"vaapi"}))
	})

	t.Run("unknown method name is ignored", func(t *testing.T) {
		hw := SelectHWAccel(info, []string{"opencl", "cuda"})
		require.NotNil(t, hw)
		assert.Equal(t, "cuda", hw.Method)
		assert.Equal(t, "h264_nvenc", hw.Encoder)
	})

	t.Run("empty priority disables acceleration", func(t *testing.T) {
		assert.Nil(t, SelectHWAccel(info, nil))
	})

	t.Run("nil info", func(t *testing.T) {
		assert.Nil(t, SelectHWAccel(nil, []string{"vaapi"}))
	})
}
