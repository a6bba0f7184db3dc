package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/pawnlang/pawndbg/pkg/config"
	"github.com/pawnlang/pawndbg/pkg/debug"
	"github.com/pawnlang/pawndbg/pkg/logging"
	"github.com/pawnlang/pawndbg/pkg/metrics"
	"github.com/pawnlang/pawndbg/pkg/rsp"
	"github.com/pawnlang/pawndbg/pkg/tracing"
	"github.com/pawnlang/pawndbg/pkg/vm"
)

func runDebug(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if remote, _ := cmd.Flags().GetBool("remote"); remote && cfg.RemotePort == 0 {
		cfg.RemotePort = config.DefaultRemotePort
	}
	if port, _ := cmd.Flags().GetInt("remote-port"); port != 0 {
		cfg.RemotePort = port
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if traceOn, _ := cmd.Flags().GetBool("trace"); traceOn {
		cfg.Tracing.Enabled = true
	}

	format := logging.TextFormat
	if cfg.LogJSON {
		format = logging.JSONFormat
	}
	logger := logging.NewLogger(logging.LoggerConfig{
		MinLevel: logging.ParseLevel(cfg.LogLevel),
		Format:   format,
	})

	tp, err := tracing.InitTracing(&tracing.Config{
		ServiceName:  "pawndbg",
		ExporterType: cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.NewMetrics(metrics.DefaultConfig())
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.ErrorWithFields("metrics endpoint failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	if imagePath, _ := cmd.Flags().GetString("image"); imagePath != "" {
		stopWatch, err := watchImage(imagePath, logger)
		if err != nil {
			logger.WarnWithFields("cannot watch plugin binary", map[string]interface{}{
				"path": imagePath, "error": err.Error(),
			})
		} else {
			defer stopWatch()
		}
	}

	image, code, entry := buildDemoPlugin()
	ctx := vm.NewPluginContext(image, demoDataSize)

	dbg := debug.New(image, debug.Options{
		Logger:  logger,
		Metrics: m,
	})

	var remote *rsp.Server
	if cfg.RemotePort != 0 {
		session := rsp.NewSession()
		remote = rsp.NewServer(cfg.RemotePort, session, rsp.Options{
			Logger:  logger,
			Metrics: m,
		})
		if err := remote.Start(); err != nil {
			return err
		}
		defer remote.Stop()
		dbg.SetHandler(session)
	} else {
		console, closeConsole, err := newConsole(cfg)
		if err != nil {
			return err
		}
		defer closeConsole()
		dbg.SetHandler(console)
	}

	dbg.Activate()
	// Halt on the plugin's first debug point.
	dbg.SetRunmode(debug.Stepping)

	interp := vm.NewInterp(ctx, code)
	interp.SetDebugHook(dbg.OnBreak)
	if err := interp.Run(entry); err != nil {
		iter := vm.NewStackIterator([]vm.Frame{{Scripted: true, Cip: ctx.Cip(), Ctx: ctx}})
		dbg.ReportError(debug.ErrorReport{Message: err.Error(), Fatal: true}, ctx, iter)
	}
	return nil
}

// newConsole builds the local front-end on a readline prompt with
// persistent history.
func newConsole(cfg *config.Config) (*debug.Console, func(), error) {
	history := cfg.HistoryFile
	if !filepath.IsAbs(history) {
		if home, err := os.UserHomeDir(); err == nil {
			history = filepath.Join(home, history)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "(pawndbg) ",
		HistoryFile: history,
	})
	if err != nil {
		return nil, nil, err
	}

	console := debug.NewConsole(func() (string, error) {
		return rl.Readline()
	}, os.Stdout)
	return console, func() { rl.Close() }, nil
}

// watchImage warns when the plugin binary is recompiled while a debugging
// session is live; breakpoint addresses resolved against the old image are
// stale after that.
func watchImage(path string, logger *logging.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	abs, _ := filepath.Abs(path)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				evAbs, _ := filepath.Abs(ev.Name)
				if evAbs == abs && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logger.WarnWithFields("plugin binary changed on disk; breakpoint addresses may be stale", map[string]interface{}{
						"path": path,
					})
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return func() { watcher.Close() }, nil
}
