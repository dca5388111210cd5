package ffmpeg

// HWAccel pairs a hardware acceleration method with its H.264 encoder.
type HWAccel struct {
	Method  string
	Encoder string
}

// h264Encoders maps hwaccel methods to their H.264 encoder names.
var h264Encoders = map[string]string{
	"videotoolbox": "h264_videotoolbox",
	"vaapi":        "h264_vaapi",
	"cuda":         "h264_nvenc",
	"nvenc":        "h264_nvenc",
	"qsv":          "h264_qsv",
}

// SelectHWAccel picks the first method from the priority list that the
// installed ffmpeg supports with a matching H.264 encoder. Returns nil when
// no accelerated path is usable; the caller falls back to software encoding.
func SelectHWAccel(info *BinaryInfo, priority []string) *HWAccel {
	if info == nil {
		return nil
	}
	for _, method := range priority {
		encoder, ok := h264Encoders[method]
		if !ok {
			continue
		}
		if info.HasHWAccel(method) && info.HasEncoder(encoder) {
			return &HWAccel{Method: method, Encoder: encoder}
		}
	}
	return nil
}
