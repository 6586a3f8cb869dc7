package blob

import (
	"strings"
	"testing"
)

func TestRenderURLRewritesPublicPath(t *testing.T) {
	src := "https://proj.supabase.co/storage/v1/object/public/evidencias/u1/123_foto.jpg"
	got := RenderURL(src, TransformOptions{Width: 160, Quality: 45, Resize: "contain"})
	if !strings.Contains(got, "/storage/v1/render/image/public/evidencias/u1/123_foto.jpg") {
		t.Fatalf("path not rewritten: %s", got)
	}
	for _, param := range []string{"width=160", "quality=45", "resize=contain"} {
		if !strings.Contains(got, param) {
			t.Errorf("missing %s in %s", param, got)
		}
	}
}

func TestRenderURLAlreadyRenderPath(t *testing.T) {
	src := "https://proj.supabase.co/storage/v1/render/image/public/evidencias/a.jpg"
	got := RenderURL(src, TransformOptions{Width: 80})
	if !strings.Contains(got, "/storage/v1/render/image/public/evidencias/a.jpg") {
		t.Errorf("render path mangled: %s", got)
	}
	if !strings.Contains(got, "width=80") {
		t.Errorf("width not applied: %s", got)
	}
}

func TestRenderURLPassThrough(t *testing.T) {
	for _, src := range []string{
		"",
		"data:image/png;base64,AAAA",
		"blob:https://x/y",
		"https://example.com/plain.jpg",
	} {
		if got := RenderURL(src, TransformOptions{Width: 100}); got != src {
			t.Errorf("RenderURL(%q) = %q, want unchanged", src, got)
		}
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"foto de campo.jpg": "foto_de_campo.jpg",
		"../../etc/passwd":  "passwd",
		"señal#1.png":       "se_al_1.png",
		"":                  "archivo",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}
