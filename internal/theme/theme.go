package theme

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Variant identifies a phosphor / paper palette.
type Variant string

const (
	VariantAmber Variant = "amber"
	VariantGreen Variant = "green"
	VariantPaper Variant = "paper"
	VariantMono  Variant = "mono"
)

// SemanticRoles defines stable colour slots shared by the screen surfaces.
type SemanticRoles struct {
	Primary string
	Accent  string
	Muted   string
	Border  string
}

// Style describes presentational attributes for a UI element.
type Style struct {
	Foreground string
	Background string
	Bold       bool
	Reverse    bool
}

// StyleSet covers every surface the terminal draws.
type StyleSet struct {
	Screen Style
	Cursor Style
	Track  Style
	Thumb  Style
	Status Style
}

// Bundle contains all display styles needed by the terminal screen.
type Bundle struct {
	StyleSet
	Roles SemanticRoles
}

// TermProfile describes terminal rendering capabilities derived from TERM.
type TermProfile struct {
	Colors    int
	TrueColor bool
	IsTTY     bool
}

// TermProfileDetector maps a TERM value to a terminal capability profile.
type TermProfileDetector func(term string) TermProfile

// ErrUnknownVariant is returned when a requested variant is not known.
var ErrUnknownVariant = errors.New("unknown theme variant")

var (
	termProfileCache sync.Map
	knownProfiles    = map[string]TermProfile{
		"dumb":           {Colors: 0, TrueColor: false, IsTTY: false},
		"ansi":           {Colors: 8, TrueColor: false, IsTTY: true},
		"linux":          {Colors: 16, TrueColor: false, IsTTY: true},
		"xterm":          {Colors: 16, TrueColor: false, IsTTY: true},
		"xterm-256color": {Colors: 256, TrueColor: false, IsTTY: true},
		"screen":         {Colors: 8, TrueColor: false, IsTTY: true},
		"tmux":           {Colors: 256, TrueColor: false, IsTTY: true},
		"vt100":          {Colors: 0, TrueColor: false, IsTTY: true},
		"xterm-kitty":    {Colors: 1 << 24, TrueColor: true, IsTTY: true},
		"wezterm":        {Colors: 1 << 24, TrueColor: true, IsTTY: true},
	}
)

var palettes = map[Variant]Bundle{
	VariantAmber: {
		StyleSet: StyleSet{
			Screen: Style{Foreground: "#FFB000", Background: "#1A1000"},
			Cursor: Style{Foreground: "#1A1000", Background: "#FFB000"},
			Track:  Style{Foreground: "#4D3500", Background: "#1A1000"},
			Thumb:  Style{Foreground: "#FFCC66", Background: "#1A1000", Bold: true},
			Status: Style{Foreground: "#CC8C00", Background: "#120B00"},
		},
		Roles: SemanticRoles{Primary: "#FFB000", Accent: "#FFCC66", Muted: "#4D3500", Border: "#805800"},
	},
	VariantGreen: {
		StyleSet: StyleSet{
			Screen: Style{Foreground: "#33FF66", Background: "#001A08"},
			Cursor: Style{Foreground: "#001A08", Background: "#33FF66"},
			Track:  Style{Foreground: "#0E4D1F", Background: "#001A08"},
			Thumb:  Style{Foreground: "#99FFB3", Background: "#001A08", Bold: true},
			Status: Style{Foreground: "#29CC52", Background: "#001205"},
		},
		Roles: SemanticRoles{Primary: "#33FF66", Accent: "#99FFB3", Muted: "#0E4D1F", Border: "#1A8033"},
	},
	VariantPaper: {
		StyleSet: StyleSet{
			Screen: Style{Foreground: "#2B2B2B", Background: "#F4EFE1"},
			Cursor: Style{Foreground: "#F4EFE1", Background: "#2B2B2B"},
			Track:  Style{Foreground: "#D6CFBC", Background: "#F4EFE1"},
			Thumb:  Style{Foreground: "#6B6455", Background: "#F4EFE1", Bold: true},
			Status: Style{Foreground: "#6B6455", Background: "#E8E1CE"},
		},
		Roles: SemanticRoles{Primary: "#2B2B2B", Accent: "#6B6455", Muted: "#D6CFBC", Border: "#A39C8A"},
	},
	VariantMono: monoBundle(),
}

var variants = [...]Variant{VariantAmber, VariantGreen, VariantPaper, VariantMono}

// Variants lists the known variants in display order.
func Variants() []Variant {
	return variants[:]
}

// ParseVariant normalizes a configured variant name.
func ParseVariant(name string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := palettes[v]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
	return v, nil
}

// Resolve resolves a concrete style bundle for a variant and TERM value.
// Terminals that cannot show colour get the mono bundle.
func Resolve(variant Variant, term string) (Bundle, error) {
	return resolveWith(variant, ResolveOptions{Term: term}, detectTermProfile)
}

// ResolveWithDetector resolves a bundle using a caller-provided TERM detector.
func ResolveWithDetector(variant Variant, opts ResolveOptions, detector TermProfileDetector) (Bundle, error) {
	if detector == nil {
		detector = detectTermProfile
	}
	return resolveWith(variant, opts, detector)
}

// DetectTermProfile maps TERM to a terminal capability profile.
func DetectTermProfile(term string) TermProfile {
	return detectTermProfile(term)
}

// ResolveOptions controls how a bundle is selected once a TERM profile exists.
type ResolveOptions struct {
	Term      string
	ForceMono bool
}

func resolveWith(variant Variant, opts ResolveOptions, detector TermProfileDetector) (Bundle, error) {
	bundle, _, err := resolveWithProfile(variant, opts, detector)
	return bundle, err
}

func resolveWithProfile(variant Variant, opts ResolveOptions, detector TermProfileDetector) (Bundle, TermProfile, error) {
	base, ok := palettes[variant]
	if !ok {
		return Bundle{}, TermProfile{}, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}

	term := strings.TrimSpace(opts.Term)
	if term == "" {
		term = os.Getenv("TERM")
	}

	profile := detector(term)
	if opts.ForceMono || !profile.IsTTY || profile.Colors == 0 {
		return monoBundle(), profile, nil
	}
	return base, profile, nil
}

func detectTermProfile(term string) TermProfile {
	norm := strings.ToLower(strings.TrimSpace(term))
	if cached, ok := termProfileCache.Load(norm); ok {
		return cached.(TermProfile)
	}

	profile := detectTermProfileUncached(norm)
	termProfileCache.Store(norm, profile)
	return profile
}

func detectTermProfileUncached(norm string) TermProfile {
	if norm == "" {
		return TermProfile{}
	}
	if p, ok := knownProfiles[norm]; ok {
		return p
	}

	profile := TermProfile{Colors: 16, IsTTY: true}
	if strings.Contains(norm, "truecolor") || strings.Contains(norm, "24bit") || strings.Contains(norm, "kitty") || strings.Contains(norm, "wezterm") {
		profile.TrueColor = true
		profile.Colors = 1 << 24
	}
	if strings.Contains(norm, "256") {
		profile.Colors = 256
	}
	if strings.Contains(norm, "screen") {
		profile.Colors = 8
	}
	if strings.Contains(norm, "dumb") {
		profile = TermProfile{}
	}
	return profile
}

// monoBundle draws with the terminal's own colours and marks the cursor and
// scroll thumb with reverse video.
func monoBundle() Bundle {
	return Bundle{
		StyleSet: StyleSet{
			Cursor: Style{Reverse: true},
			Thumb:  Style{Reverse: true},
			Status: Style{Bold: true},
		},
	}
}

// Styles is a Bundle bound to a renderer.
type Styles struct {
	Screen lipgloss.Style
	Cursor lipgloss.Style
	Track  lipgloss.Style
	Thumb  lipgloss.Style
	Status lipgloss.Style
	Frame  lipgloss.Style
}

// Render builds lipgloss styles for r. A nil renderer uses the default one.
func (b Bundle) Render(r *lipgloss.Renderer) Styles {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	frame := r.NewStyle().Border(lipgloss.RoundedBorder())
	if b.Roles.Border != "" {
		frame = frame.BorderForeground(lipgloss.Color(b.Roles.Border))
	}
	return Styles{
		Screen: b.Screen.lipgloss(r),
		Cursor: b.Cursor.lipgloss(r),
		Track:  b.Track.lipgloss(r),
		Thumb:  b.Thumb.lipgloss(r),
		Status: b.Status.lipgloss(r),
		Frame:  frame,
	}
}

func (s Style) lipgloss(r *lipgloss.Renderer) lipgloss.Style {
	st := r.NewStyle().Bold(s.Bold).Reverse(s.Reverse)
	if s.Foreground != "" {
		st = st.Foreground(lipgloss.Color(s.Foreground))
	}
	if s.Background != "" {
		st = st.Background(lipgloss.Color(s.Background))
	}
	return st
}
