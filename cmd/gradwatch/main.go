package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"gradwatch/internal/bot"
	"gradwatch/internal/config"
	"gradwatch/internal/forum"
	"gradwatch/internal/notify"
	"gradwatch/internal/telegram"
	"gradwatch/internal/watermark"
	"gradwatch/pkg/logx"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		// A mis-deployed cron entry should be quiet, not a crash loop.
		var missing *config.MissingEnvError
		if errors.As(err, &missing) {
			logx.NewConsole("info").Info("missing key environment variables, nothing to do",
				logx.String("vars", missing.Error()))
			return
		}
		logx.NewConsole("info").Error("configuration invalid", logx.Err(err))
		return
	}

	tun := cfg.Tunables
	log, closeLog := logx.New(logx.Config{
		Level:   tun.Log.Level,
		Console: true,
		File:    logx.FileConfig{Enabled: tun.Log.File != "", Path: tun.Log.File},
	})
	defer closeLog()

	pacing := tun.Pacing()
	client := forum.NewClient(forum.Config{
		BaseURL:       tun.Forum.BaseURL,
		LegacyURL:     tun.Forum.LegacyURL,
		Token:         cfg.APIToken,
		DeviceID:      cfg.DeviceID,
		ForumID:       tun.Forum.ID,
		PageSize:      tun.Forum.PageSize,
		MaxDepth:      tun.Forum.MaxDepth,
		ListPaceMin:   pacing.ListMin,
		ListPaceMax:   pacing.ListMax,
		DetailPaceMin: pacing.DetailMin,
		DetailPaceMax: pacing.DetailMax,
	}, log.With(logx.String("component", "forum")))

	adapter, err := telegram.New(telegram.Config{
		Token:          cfg.BotToken,
		Chat:           cfg.ChatID,
		SendRatePerSec: tun.SendRatePerSec,
		SendPaceMin:    pacing.SendMin,
		SendPaceMax:    pacing.SendMax,
		MetaPaceMin:    pacing.MetaMin,
		MetaPaceMax:    pacing.MetaMax,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		log.Error("telegram setup failed", logx.Err(err))
		return
	}

	var store watermark.Store
	switch tun.Store.Kind {
	case "sqlite":
		st, err := watermark.OpenSQLite(tun.Store.Path, log)
		if err != nil {
			log.Error("watermark store setup failed", logx.Err(err))
			return
		}
		defer st.Close()
		store = st
	default:
		store = watermark.NewChatStore(adapter, log)
	}

	formatter, err := notify.NewFormatter(tun.Timezone)
	if err != nil {
		log.Error("formatter setup failed", logx.Err(err))
		return
	}

	details := client.ThreadDetails
	if tun.Details == "legacy" {
		details = client.ThreadDetailsLegacy
	}

	runner := bot.New(store, client, details, adapter, formatter, log)

	if tun.Schedule != "" {
		runScheduled(ctx, tun.Schedule, tun.Timezone, runner, log)
		return
	}

	if err := runner.Run(ctx); err != nil {
		log.Error("run failed", logx.Err(err))
	}
}

// runScheduled keeps the process alive and triggers a run per cron tick.
// Each tick is an independent run, same as an external scheduler invoking
// the one-shot mode.
func runScheduled(ctx context.Context, spec, tz string, runner *bot.Runner, log logx.Logger) {
	loc := time.Local
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	// A run that outlasts the interval must not overlap the next tick;
	// the skipped tick's threads are picked up by the one after it.
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, func() {
		if err := runner.Run(ctx); err != nil {
			log.Error("scheduled run failed", logx.Err(err))
		}
	}); err != nil {
		log.Error("invalid schedule", logx.String("spec", spec), logx.Err(err))
		return
	}

	log.Info("scheduler started", logx.String("spec", spec), logx.String("tz", loc.String()))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("scheduler stopped")
}
