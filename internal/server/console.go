package server

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	bm "github.com/charmbracelet/wish/bubbletea"

	"model100/internal/metrics"
	"model100/internal/router"
	"model100/internal/theme"
	"model100/internal/tui"
)

// ConsoleOptions configure the per-session terminal view.
type ConsoleOptions struct {
	Variant theme.Variant
	View    tui.Options
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

// ConsoleHandler gives every SSH session its own view of the shared engine.
// The view is styled for the client's TERM and detaches when the session
// context ends.
func ConsoleHandler(eng tui.Engine, opts ConsoleOptions) bm.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		pty, _, _ := s.Pty()
		bundle, err := theme.Resolve(opts.Variant, pty.Term)
		if err != nil {
			logger.Warn("theme fallback", "event", "theme_fallback", "variant", opts.Variant, "err", err)
			bundle, _ = theme.Resolve(theme.VariantMono, pty.Term)
		}

		view := opts.View
		view.Styles = bundle.Render(bm.MakeRenderer(s))
		model := tui.NewModel(eng, view)
		opts.Metrics.ConsoleAttached()

		md, _ := router.MetadataFrom(s.Context())
		logger.Info("console attached", "event", "console_attached", "session_id", md.SessionID, "remote_ip", md.RemoteIP, "term", pty.Term)
		go func() {
			<-s.Context().Done()
			model.Close()
			opts.Metrics.ConsoleDetached()
			logger.Info("console detached", "event", "console_detached", "session_id", md.SessionID)
		}()
		return model, tui.ProgramOptions()
	}
}
