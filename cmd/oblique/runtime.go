package main

import (
	"fmt"
	"io"

	"github.com/spf13/viper"

	"oblique/internal/completion"
	"oblique/internal/config"
	"oblique/internal/logger"
	"oblique/internal/prompt"
	"oblique/internal/requestlog"
	"oblique/internal/services"
	"oblique/internal/shell"
	"oblique/pkg/obliquetypes"
)

// runtime is the wired process: settings, services and the terminal surface.
type runtime struct {
	Settings   config.Settings
	Registry   *services.Registry
	Generation *services.GenerationService
	Surface    *shell.TerminalSurface
	Transcript *shell.TranscriptSource

	requestLog *requestlog.FileLogger
}

func newRuntime(out io.Writer, plain bool) (*runtime, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := settings.RequireAPIKey(); err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(settings)
	if err != nil {
		return nil, err
	}

	transcript := shell.NewTranscriptSource()
	if settings.Transcript != "" {
		if transcript, err = shell.LoadTranscript(settings.Transcript); err != nil {
			return nil, err
		}
	}

	rt := &runtime{Settings: settings, Registry: services.NewRegistry(), Transcript: transcript}

	var reqLog obliquetypes.RequestLogger = requestlog.Nop{}
	if settings.RequestLog != "" {
		rt.requestLog = requestlog.NewFileLogger(requestlog.Options{
			Path:       settings.RequestLog,
			MaxSizeMB:  settings.RequestLogMaxMB,
			MaxBackups: settings.RequestLogMaxBackups,
		})
		reqLog = rt.requestLog
		if err := rt.Registry.RegisterService(rt.requestLog); err != nil {
			return nil, err
		}
	}

	var markdown *services.MarkdownService
	if !plain {
		markdown = services.NewMarkdownService("")
		if err := rt.Registry.RegisterService(markdown); err != nil {
			return nil, err
		}
	}
	rt.Surface = shell.NewTerminalSurface(out, markdown)

	formatter := prompt.NewFormatter(nil, 0)
	if settings.TokenBudget > 0 {
		counter, err := prompt.NewTiktokenCounter(prompt.DefaultEncoding)
		if err != nil {
			return nil, err
		}
		formatter = prompt.NewFormatter(counter, settings.TokenBudget)
	}

	rt.Generation = services.NewGenerationService(services.GenerationConfig{
		Profiles:       catalog.Profiles(),
		DefaultProfile: catalog.Default(),
		Surface:        rt.Surface,
		NewCompleter: services.ClientFactory(completion.Config{
			APIKey:     settings.APIKey,
			Title:      settings.Title,
			Limiter:    completion.NewLimiter(settings.RateLimit),
			RequestLog: reqLog,
		}, settings.DebugHTTP),
		Formatter:         formatter,
		HistoryLimit:      settings.HistoryLimit,
		MaxResponseTokens: settings.MaxResponseTokens,
		Candidates:        settings.Candidates,
		IdleTimeout:       settings.AgentIdleTimeout,
	})
	if err := rt.Registry.RegisterService(rt.Generation); err != nil {
		return nil, err
	}

	if err := rt.Registry.InitializeAll(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	logger.Info("Services initialized", "profile", catalog.Default(), "candidates", settings.Candidates)
	return rt, nil
}

// App builds the shell actions for a local user.
func (rt *runtime) App(name string) *shell.App {
	return shell.NewApp(shell.AppConfig{
		Service:      rt.Generation,
		Surface:      rt.Surface,
		Source:       rt.Transcript,
		UserID:       "local:" + name,
		UserName:     name,
		Scope:        "terminal",
		CopyOnCommit: true,
	})
}

// Close stops the agents and flushes the request log.
func (rt *runtime) Close() {
	if rt.Generation != nil {
		rt.Generation.Shutdown()
	}
	if rt.requestLog != nil {
		if err := rt.requestLog.Close(); err != nil {
			logger.Warn("Failed to close request log", "error", err)
		}
	}
}

func loadCatalog(settings config.Settings) (*config.Catalog, error) {
	catalog, err := config.LoadCatalog(settings.ProfilesFile)
	if err != nil {
		return nil, err
	}
	return catalog.WithDefault(settings.Profile)
}
