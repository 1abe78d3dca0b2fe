package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/goclaw/internal/channels/feishu"
	"github.com/nextlevelbuilder/goclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/goclaw/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/goclaw/internal/channels/zalo"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/runtime"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/store/file"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

// runGateway boots the gateway process: load config, wire providers, tools,
// channels and the runtime consumer loop, then block until an interrupt.
func runGateway() {
	log := newLogger()

	configPath := resolveConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	cfgWatcher, err := config.NewWatcher(configPath, cfg, log)
	if err != nil {
		log.Warn("config hot-reload disabled", "err", err)
	} else {
		defer cfgWatcher.Close()
	}

	msgBus := bus.New()

	providerRegistry := providers.NewRegistry()
	registerProviders(providerRegistry, cfg)
	if len(providerRegistry.Names()) == 0 {
		log.Warn("no providers configured; set at least one provider API key")
	}

	mgr := sessions.NewManager(cfg.Sessions.Storage)
	sessionStore := file.NewFileSessionStore(mgr)

	toolRegistry := buildToolRegistry(cfg, providerRegistry, sessionStore, msgBus, log)

	chanMgr := channels.NewManager(msgBus)
	registerChannels(chanMgr, cfg, msgBus, log)

	rt, err := runtime.New(runtime.Deps{
		Config:    cfg,
		Bus:       msgBus,
		Providers: providerRegistry,
		Tools:     toolRegistry,
		Sessions:  mgr,
		Log:       log,
	})
	if err != nil {
		log.Error("construct runtime", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := chanMgr.StartAll(ctx); err != nil {
		log.Error("start channels", "err", err)
		os.Exit(1)
	}
	rt.Start(ctx)

	log.Info("goclaw running", "providers", providerRegistry.Names(), "tools", toolRegistry.Count())
	<-ctx.Done()

	log.Info("shutting down")
	rt.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chanMgr.StopAll(shutdownCtx); err != nil {
		log.Warn("stop channels", "err", err)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// buildToolRegistry registers every built-in tool, wiring the ones that need
// shared state (session store, message bus, provider registry) via their
// setter methods before returning the populated registry.
func buildToolRegistry(cfg *config.Config, providerRegistry *providers.Registry, sessionStore *file.FileSessionStore, msgBus *bus.MessageBus, log *slog.Logger) *tools.Registry {
	reg := tools.NewRegistry()

	workspace := cfg.Agents.Defaults.Workspace
	restrict := cfg.Agents.Defaults.RestrictToWorkspace

	reg.Register(tools.NewReadFileTool(workspace, restrict))
	reg.Register(tools.NewExecTool(workspace, restrict))
	reg.Register(tools.NewCreateImageTool(providerRegistry))
	reg.Register(tools.NewReadImageTool(providerRegistry))

	reg.Register(tools.NewWebFetchTool(tools.WebFetchConfig{}))
	reg.Register(tools.NewWebSearchTool(tools.WebSearchConfig{
		BraveAPIKey:     cfg.Tools.Web.Brave.APIKey,
		BraveEnabled:    cfg.Tools.Web.Brave.Enabled,
		BraveMaxResults: cfg.Tools.Web.Brave.MaxResults,
		DDGEnabled:      cfg.Tools.Web.DuckDuckGo.Enabled,
		DDGMaxResults:   cfg.Tools.Web.DuckDuckGo.MaxResults,
	}))

	sessionsList := tools.NewSessionsListTool()
	sessionsList.SetSessionStore(sessionStore)
	reg.Register(sessionsList)

	sessionStatus := tools.NewSessionStatusTool()
	reg.Register(sessionStatus)

	sessionsHistory := tools.NewSessionsHistoryTool()
	sessionsHistory.SetSessionStore(sessionStore)
	reg.Register(sessionsHistory)

	sessionsSend := tools.NewSessionsSendTool()
	sessionsSend.SetSessionStore(sessionStore)
	sessionsSend.SetMessageBus(msgBus)
	reg.Register(sessionsSend)

	reg.Register(tools.NewHandoffTool())

	log.Info("tools registered", "count", reg.Count())
	return reg
}

// registerChannels constructs and registers every channel enabled in cfg.
// Pairing uses the file-backed store in standalone mode; a missing or
// disabled channel is simply skipped rather than treated as fatal, so one
// bad platform token doesn't take down the whole gateway.
func registerChannels(mgr *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus, log *slog.Logger) {
	pairingSvc := file.NewFilePairingStore()
	agentStore := file.NewFileAgentStore()

	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, msgBus, pairingSvc, agentStore)
		if err != nil {
			log.Error("init telegram channel", "err", err)
		} else {
			mgr.RegisterChannel("telegram", ch)
		}
	}

	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, msgBus, pairingSvc)
		if err != nil {
			log.Error("init discord channel", "err", err)
		} else {
			mgr.RegisterChannel("discord", ch)
		}
	}

	if cfg.Channels.WhatsApp.Enabled {
		ch, err := whatsapp.New(cfg.Channels.WhatsApp, msgBus, pairingSvc)
		if err != nil {
			log.Error("init whatsapp channel", "err", err)
		} else {
			mgr.RegisterChannel("whatsapp", ch)
		}
	}

	if cfg.Channels.Feishu.Enabled {
		ch, err := feishu.New(cfg.Channels.Feishu, msgBus, pairingSvc)
		if err != nil {
			log.Error("init feishu channel", "err", err)
		} else {
			mgr.RegisterChannel("feishu", ch)
		}
	}

	if cfg.Channels.Zalo.Enabled {
		ch, err := zalo.New(cfg.Channels.Zalo, msgBus, pairingSvc)
		if err != nil {
			log.Error("init zalo channel", "err", err)
		} else {
			mgr.RegisterChannel("zalo", ch)
		}
	}
}
