package htmlutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"og title preferred", `<meta property="og:title" content="Jane Doe"><title>page</title>`, "Jane Doe"},
		{"title tag", `<title>Jane Doe (@janedoe)</title>`, "Jane Doe (@janedoe)"},
		{"h1 fallback", `<h1>Jane</h1>`, "Jane"},
		{"entities unescaped", `<title>Jane &amp; Co</title>`, "Jane & Co"},
		{"empty", `<body></body>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Title(tt.html); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescription(t *testing.T) {
	html := `<meta property="og:description" content="1,234 Followers. Fashion blogger.">`
	want := "1,234 Followers. Fashion blogger."
	if got := Description(html); got != want {
		t.Errorf("Description() = %q, want %q", got, want)
	}
}

func TestMetaProperty(t *testing.T) {
	html := `<meta property="og:image" content="https://cdn.example.com/a.jpg">`
	if got := MetaProperty(html, "og:image"); got != "https://cdn.example.com/a.jpg" {
		t.Errorf("MetaProperty() = %q", got)
	}
	if got := MetaProperty(html, "og:video"); got != "" {
		t.Errorf("MetaProperty(missing) = %q, want empty", got)
	}
}

func TestProfileUsernames(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		platform string
		want     []string
	}{
		{
			"direct links",
			`<a href="https://www.instagram.com/janedoe/">x</a> <a href="https://instagram.com/other_one">y</a>`,
			"instagram",
			[]string{"janedoe", "other_one"},
		},
		{
			"system paths skipped",
			`<a href="https://www.instagram.com/explore/">x</a> <a href="https://instagram.com/janedoe/">y</a>`,
			"instagram",
			[]string{"janedoe"},
		},
		{
			"redirect wrapper decoded",
			`<a href="https://duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.instagram.com%2Fwrapped.user%2F&amp;rut=abc">r</a>`,
			"instagram",
			[]string{"wrapped.user"},
		},
		{
			"tiktok at-handles",
			`<a href="https://www.tiktok.com/@dancer123">d</a>`,
			"tiktok",
			[]string{"dancer123"},
		},
		{
			"duplicates collapsed",
			`<a href="https://instagram.com/janedoe/">a</a><a href="https://instagram.com/JaneDoe/">b</a>`,
			"instagram",
			[]string{"janedoe"},
		},
		{
			"unknown platform",
			`<a href="https://instagram.com/janedoe/">a</a>`,
			"myspace",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProfileUsernames(tt.html, tt.platform)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ProfileUsernames() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnwrapRedirect(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
	}{
		{"uddg param", "https://duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa", "https://example.com/a"},
		{"q param", "https://r.example/redirect?q=https://example.com/b", "https://example.com/b"},
		{"not a wrapper", "https://example.com/plain", ""},
		{"non-url target", "https://r.example/redirect?q=hello", ""},
		{"garbage", "::notaurl::", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnwrapRedirect(tt.link); got != tt.want {
				t.Errorf("UnwrapRedirect(%q) = %q, want %q", tt.link, got, tt.want)
			}
		})
	}
}

func TestVisibleTextLength(t *testing.T) {
	full := `<html><body><script>var x=1;</script><p>Hello world, plenty of text here.</p></body></html>`
	empty := `<html><body><script>var x=1;</script></body></html>`
	if got := VisibleTextLength(full); got < 20 {
		t.Errorf("VisibleTextLength(full) = %d, want >= 20", got)
	}
	if got := VisibleTextLength(empty); got != 0 {
		t.Errorf("VisibleTextLength(empty) = %d, want 0", got)
	}
}
