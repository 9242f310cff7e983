package theme

import (
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestDetectTermProfileTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		term string
		want TermProfile
	}{
		{name: "xterm", term: "xterm", want: TermProfile{Colors: 16, IsTTY: true}},
		{name: "xterm-256color", term: "xterm-256color", want: TermProfile{Colors: 256, IsTTY: true}},
		{name: "screen", term: "screen", want: TermProfile{Colors: 8, IsTTY: true}},
		{name: "screen-256color", term: "screen-256color", want: TermProfile{Colors: 8, IsTTY: true}},
		{name: "vt100", term: "vt100", want: TermProfile{Colors: 0, IsTTY: true}},
		{name: "dumb", term: "dumb", want: TermProfile{}},
		{name: "empty", term: "", want: TermProfile{}},
		{name: "kitty truecolor", term: "xterm-kitty", want: TermProfile{Colors: 1 << 24, TrueColor: true, IsTTY: true}},
		{name: "unknown truecolor", term: "foo-truecolor", want: TermProfile{Colors: 1 << 24, TrueColor: true, IsTTY: true}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := detectTermProfile(tt.term)
			if got != tt.want {
				t.Fatalf("detectTermProfile(%q) = %+v, want %+v", tt.term, got, tt.want)
			}
		})
	}
}

func TestResolveImmutability(t *testing.T) {
	t.Parallel()

	first, err := Resolve(VariantAmber, "xterm-256color")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	first.Screen.Foreground = "#000000"

	second, err := Resolve(VariantAmber, "xterm-256color")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if second.Screen.Foreground != "#FFB000" {
		t.Fatalf("expected immutable palette, got %q", second.Screen.Foreground)
	}
}

func TestResolveColourTerminals(t *testing.T) {
	t.Parallel()

	for _, v := range []Variant{VariantAmber, VariantGreen, VariantPaper} {
		v := v
		t.Run(string(v), func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(v, "xterm")
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if got != palettes[v] {
				t.Fatalf("snapshot mismatch for %s:\n got=%+v\nwant=%+v", v, got, palettes[v])
			}
		})
	}
}

func TestResolveFallsBackToMono(t *testing.T) {
	t.Parallel()

	for _, term := range []string{"dumb", "vt100"} {
		got, err := Resolve(VariantGreen, term)
		if err != nil {
			t.Fatalf("Resolve(green, %q) unexpected error: %v", term, err)
		}
		if got != monoBundle() {
			t.Fatalf("expected mono bundle for %q", term)
		}
	}

	forced, err := ResolveWithDetector(VariantPaper, ResolveOptions{Term: "wezterm", ForceMono: true}, nil)
	if err != nil {
		t.Fatalf("ResolveWithDetector() unexpected error: %v", err)
	}
	if forced != monoBundle() {
		t.Fatal("force mono should return the mono bundle")
	}
}

func TestResolveUnknownVariant(t *testing.T) {
	t.Parallel()

	_, err := Resolve(Variant("mystery"), "xterm")
	if !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestParseVariant(t *testing.T) {
	t.Parallel()

	v, err := ParseVariant("  Green ")
	if err != nil || v != VariantGreen {
		t.Fatalf("ParseVariant() = %q, %v", v, err)
	}
	if _, err := ParseVariant("neon"); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestVariantCoverage(t *testing.T) {
	t.Parallel()

	if len(palettes) != len(Variants()) {
		t.Fatalf("variant coverage mismatch: palettes=%d variants=%d", len(palettes), len(Variants()))
	}
	for _, v := range Variants() {
		if _, ok := palettes[v]; !ok {
			t.Fatalf("missing palette for variant %q", v)
		}
	}
}

func TestRenderUsesRendererProfile(t *testing.T) {
	t.Parallel()

	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	styles := palettes[VariantAmber].Render(r)
	if got := styles.Screen.Render("abc"); got != "abc" {
		t.Fatalf("ascii profile should strip colour, got %q", got)
	}

	r.SetColorProfile(termenv.TrueColor)
	styles = palettes[VariantAmber].Render(r)
	if got := styles.Cursor.Render("x"); got == "x" {
		t.Fatal("truecolor profile should colour the cursor")
	}
}
