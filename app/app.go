// Package app wires the request bot: commands, the two-step photo/description
// conversation, and the operator delivery pipeline.
package app

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/requestbot/archive"
	coreconfig "github.com/m3rciful/requestbot/core/config"
	tg "github.com/m3rciful/requestbot/core/telegram"
	"github.com/m3rciful/requestbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/requestbot/core/telegram/helpers"
	"github.com/m3rciful/requestbot/core/telegram/router"
	"github.com/m3rciful/requestbot/core/telegram/sender"
	"github.com/m3rciful/requestbot/delivery"
	"github.com/m3rciful/requestbot/session"
)

// App carries configuration and infrastructure for the request bot.
type App struct {
	cfg *coreconfig.Config
	db  *sqlx.DB
}

// New builds the application. db may be nil when the archive is disabled.
func New(cfg *coreconfig.Config, db *sqlx.DB) *App {
	return &App{cfg: cfg, db: db}
}

// CoreConfig exposes the embedded core configuration.
func (a *App) CoreConfig() *coreconfig.Config {
	return a.cfg
}

// TelegramRunOptions assembles registry, routes, middleware, and dispatcher.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	cfg := a.cfg

	budget := time.Duration(cfg.Delivery.BudgetSeconds) * time.Second
	dispatcher := sender.NewDispatcher(sender.Options{
		MaxDuration: budget,
	})

	bot := &Bot{
		sessions:   session.NewStore(time.Duration(cfg.Session.TTLMinutes) * time.Minute),
		dispatcher: dispatcher,
		watermark:  cfg.Session.SweepWatermark,
		budget:     budget,
	}
	if a.db != nil {
		bot.archive = archive.NewStore(a.db)
	}

	reg := tg.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     bot.HandleStart,
		Description: "оставить заявку на покупку техники",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     bot.HandleHelp,
		Description: "показать справку",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     bot.HandleCancel,
		Description: "отменить текущую заявку",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     bot.HandleStats,
		Description: "статистика заявок",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.SetTextFallback(bot.HandleUnknownText)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: cfg.Telegram.AdminID,
	})
	routes = append(routes, router.MessageRoutes(bot, reg, router.MessageOptions{
		UnknownDocument: bot.HandleDocument,
	})...)

	// Plain send, not a reply: the throttled message may already be gone.
	middlewares := tg.DefaultMiddlewares(cfg, func(c tele.Context) error {
		return tghelpers.SendText(c, textRateLimited)
	})

	return tg.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Dispatcher:  dispatcher,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			transport := newTelegramTransport(rt.Bot, cfg.Telegram.AdminID)
			bot.pipeline = delivery.NewPipeline(transport, delivery.Options{
				MaxRetries:   cfg.Delivery.MaxRetries,
				RetryBackoff: time.Duration(cfg.Delivery.RetryBackoffMS) * time.Millisecond,
			})
			return nil
		},
	}, nil
}
