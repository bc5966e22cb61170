package recompute_video_signals

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	types "github.com/yungbote/videocatalog-backend/internal/domain"
)

// DerivePlayback computes the denormalized playback fields of v. Numeric
// fields come from the raw metadata; a value that is missing, unparseable or
// not finite yields nil so the stored column is left as is.
func DerivePlayback(v *types.Video) types.PlaybackFields {
	if v == nil {
		return types.PlaybackFields{}
	}
	out := types.PlaybackFields{Src: firstNonBlank(v.Source, v.EmbedURL, v.Src)}
	meta := v.MetadataMap()
	if d, ok := finite(meta["duration"]); ok {
		out.Duration = &d
	}
	if w, ok := finite(meta["width"]); ok {
		n := int(math.Round(w))
		out.Width = &n
	}
	if h, ok := finite(meta["height"]); ok {
		n := int(math.Round(h))
		out.Height = &n
	}
	return out
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func finite(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
