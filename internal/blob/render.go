package blob

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	publicMarker = "/storage/v1/object/public/"
	renderMarker = "/storage/v1/render/image/public/"
)

// TransformOptions tune the image render endpoint of supabase-style
// storage gateways.
type TransformOptions struct {
	Width   int
	Height  int
	Quality int
	Resize  string // cover, contain or fill
}

// RenderURL rewrites a public object URL to its render-transform
// equivalent with the given options. URLs that are not public storage
// paths (including data: and blob: schemes) pass through unchanged;
// thumbnailing is best effort.
func RenderURL(src string, opts TransformOptions) string {
	if src == "" || strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "blob:") {
		return src
	}
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	switch {
	case strings.Contains(u.Path, renderMarker):
	case strings.Contains(u.Path, publicMarker):
		idx := strings.Index(u.Path, publicMarker)
		u.Path = renderMarker + u.Path[idx+len(publicMarker):]
	default:
		return src
	}
	q := u.Query()
	if opts.Width > 0 {
		q.Set("width", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		q.Set("height", strconv.Itoa(opts.Height))
	}
	if opts.Quality > 0 {
		q.Set("quality", strconv.Itoa(opts.Quality))
	}
	if opts.Resize != "" {
		q.Set("resize", opts.Resize)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ThumbURL is the standard small preview used by listing views.
func ThumbURL(src string, width int) string {
	if width < 1 {
		width = 160
	}
	return RenderURL(src, TransformOptions{Width: width, Quality: 45, Resize: "contain"})
}
