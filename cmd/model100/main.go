package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"model100/internal/config"
	"model100/internal/editor"
	"model100/internal/httpapi"
	"model100/internal/ingest"
	"model100/internal/metrics"
	"model100/internal/playback"
	"model100/internal/responder"
	"model100/internal/serialport"
	"model100/internal/server"
	"model100/internal/theme"
	"model100/internal/tui"
)

const defaultLocalLogFile = "model100.log"

func main() {
	listPorts := flag.Bool("list-ports", false, "print the serial ports found on this machine and exit")
	logFile := flag.String("log-file", "", "write logs to this file (defaults to "+defaultLocalLogFile+" while the local terminal runs)")
	flag.Parse()

	if *listPorts {
		if err := printPorts(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logOut, closeLog, err := logDestination(*logFile, cfg.Terminal.LocalUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	logger, err := newLogger(logOut, cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("terminal stopped", "event", "shutdown_error", "err", err)
		closeLog()
		os.Exit(1)
	}
	logger.Info("terminal stopped", "event", "shutdown")
}

func printPorts(w io.Writer) error {
	ports, err := serialport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, err = fmt.Fprintln(w, "no serial ports found")
		return err
	}
	for _, p := range ports {
		if _, err := fmt.Fprintln(w, p); err != nil {
			return err
		}
	}
	return nil
}

// logDestination keeps logs off the screen when the local terminal owns it.
func logDestination(path string, localUI bool) (io.Writer, func(), error) {
	if path == "" && localUI {
		path = defaultLocalLogFile
	}
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func newLogger(w io.Writer, cfg config.Log) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	formatter := log.TextFormatter
	switch cfg.Format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		Prefix:          "model100",
	})
	log.SetDefault(logger)
	return logger, nil
}

// echoPrefix marks locally echoed replies so they read apart from the request.
const echoPrefix = "echo: "

// newResponder builds the chat client, or the local echo when no API key is
// set and the echo fallback is enabled.
func newResponder(cfg config.Assistant, logger *log.Logger) responder.Responder {
	if cfg.APIKey == "" {
		if cfg.EchoWhenUnconfigured {
			logger.Warn("assistant api key not set; echoing assistant lines locally", "event", "assistant_echo_fallback")
			return responder.Echo(echoPrefix)
		}
		logger.Warn("assistant api key not set; assistant lines will play the error reply", "event", "assistant_unconfigured")
	}
	return responder.NewChatClient(responder.ChatConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		SystemPrompt:      cfg.SystemPrompt,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger.With("component", "responder"),
	})
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	variant, err := theme.ParseVariant(cfg.Theme)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	port, err := serialport.Open(serialport.Config{
		Name:     cfg.Serial.Port,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		Loopback: cfg.Serial.Loopback,
	}, logger.With("component", "serial"))
	if err != nil {
		return err
	}
	defer port.Close()

	engine := editor.New(cfg.Terminal.Cols, cfg.Terminal.Rows,
		editor.WithOutbound(port),
		editor.WithLogger(logger.With("component", "editor")),
		editor.WithMetrics(m),
	)
	defer engine.Close()

	player := playback.NewPlayer(engine,
		playback.WithLogger(logger.With("component", "playback")),
		playback.WithMetrics(m),
	)
	defer player.StopAll()

	assistant := newResponder(cfg.Assistant, logger)

	machine := ingest.New(engine, assistant, player,
		ingest.WithProtocol(ingest.Protocol{
			EnterToken:       cfg.Protocol.EnterToken,
			ExitToken:        cfg.Protocol.ExitToken,
			EnterMessage:     cfg.Protocol.EnterMessage,
			ExitMessage:      cfg.Protocol.ExitMessage,
			WaitMessage:      cfg.Protocol.WaitMessage,
			ErrorReply:       cfg.Protocol.ErrorReply,
			PlaybackDelay:    cfg.Terminal.PlaybackDelay,
			ResponderTimeout: cfg.Assistant.Timeout,
		}),
		ingest.WithLogger(logger.With("component", "ingest")),
		ingest.WithMetrics(m),
	)
	defer machine.Wait()

	status := func() string { return machine.Mode().String() }
	view := tui.Options{Title: port.Name(), Blink: cfg.Terminal.BlinkInterval, Framed: true, Status: status}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A failed link stops ingestion only; local and remote editing go on.
		if err := machine.Run(gctx, port); err != nil {
			logger.Warn("serial ingestion halted", "event", "ingest_halted", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Closing the port is what unblocks the pending read.
		if err := port.Close(); err != nil {
			logger.Warn("close serial port", "event", "port_close_failed", "err", err)
		}
		return nil
	})

	if cfg.Terminal.LocalUI {
		g.Go(func() error {
			// Quitting the local terminal ends the whole process.
			defer cancel()
			local := view
			bundle, err := theme.Resolve(variant, os.Getenv("TERM"))
			if err != nil {
				return err
			}
			local.Styles = bundle.Render(nil)
			return tui.RunLocal(gctx, engine, local)
		})
	}

	if cfg.SSH.Enabled {
		sshLogger := logger.With("component", "ssh")
		console := server.ConsoleHandler(engine, server.ConsoleOptions{
			Variant: variant,
			View:    view,
			Metrics: m,
			Logger:  sshLogger,
		})
		runtime, err := server.New(cfg.SSH, server.DefaultChain(cfg.SSH, console, sshLogger), sshLogger)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return runtime.Run(gctx) })
	}

	if cfg.HTTP.Addr != "" {
		api := httpapi.NewHandler(engine, httpapi.Options{
			Mode:     status,
			Gatherer: reg,
			Logger:   logger.With("component", "http"),
		})
		g.Go(func() error {
			return httpapi.Serve(gctx, cfg.HTTP.Addr, api.Routes(), logger.With("component", "http"))
		})
	}

	logger.Info("terminal running",
		"event", "startup",
		"port", port.Name(),
		"cols", cfg.Terminal.Cols,
		"rows", cfg.Terminal.Rows,
		"local_ui", cfg.Terminal.LocalUI,
		"ssh", cfg.SSH.Enabled,
		"http", cfg.HTTP.Addr,
	)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
