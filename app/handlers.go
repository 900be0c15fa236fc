package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/requestbot/archive"
	"github.com/m3rciful/requestbot/core/logger"
	tghelpers "github.com/m3rciful/requestbot/core/telegram/helpers"
	"github.com/m3rciful/requestbot/core/telegram/sender"
	"github.com/m3rciful/requestbot/delivery"
	"github.com/m3rciful/requestbot/session"

	"log/slog"
)

const archiveTimeout = 5 * time.Second

// Bot holds the request-taking handlers and their collaborators.
type Bot struct {
	sessions   *session.Store
	dispatcher *sender.Dispatcher
	archive    *archive.Store

	pipeline *delivery.Pipeline

	watermark int
	budget    time.Duration

	sweeping atomic.Bool
}

// Active reports whether the user has an unfinished request session.
func (b *Bot) Active(userID int64) bool {
	return b.sessions.Active(userID)
}

// HandlePhoto starts a request session from an incoming photo.
func (b *Bot) HandlePhoto(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		return nil
	}
	from := c.Sender()

	err := b.sessions.Begin(from.ID, msg.Photo.FileID, from.FirstName, from.Username)
	if errors.Is(err, session.ErrAlreadyActive) {
		return tghelpers.ReplyText(c, textAlreadyActive)
	}
	if err != nil {
		return err
	}

	logger.Sessions.Debug("request started",
		slog.String("event", "session.begin"),
		slog.Int64("user_id", from.ID),
		slog.Int("session_size", b.sessions.Len()),
	)
	b.maybeSweep()

	return tghelpers.ReplyText(c, textPhotoReceived)
}

// HandleText completes the active session with the description, hands the
// snapshot to the delivery pipeline, and acknowledges the submitter. The
// acknowledgment does not depend on the delivery outcome.
func (b *Bot) HandleText(c tele.Context) error {
	userID := c.Sender().ID

	rec, err := b.sessions.Complete(userID, c.Text())
	if errors.Is(err, session.ErrNoActiveSession) {
		return tghelpers.ReplyText(c, textNoSession)
	}
	if err != nil {
		return err
	}
	b.sessions.Abandon(userID)

	logger.Sessions.Info("request completed",
		slog.String("event", "session.complete"),
		slog.Int64("user_id", userID),
		slog.Int("session_size", b.sessions.Len()),
	)

	b.enqueueDelivery(c, rec)
	return tghelpers.ReplyText(c, textSubmitted)
}

// HandleStart greets the user or reminds them about an unfinished request.
func (b *Bot) HandleStart(c tele.Context) error {
	if b.sessions.Active(c.Sender().ID) {
		return tghelpers.ReplyText(c, textAlreadyActive)
	}
	return tghelpers.ReplyText(c, textWelcome)
}

// HandleHelp shows command help.
func (b *Bot) HandleHelp(c tele.Context) error {
	return tghelpers.ReplyText(c, textHelp)
}

// HandleCancel abandons any active session.
func (b *Bot) HandleCancel(c tele.Context) error {
	b.sessions.Abandon(c.Sender().ID)
	return tghelpers.ReplyText(c, textCancelled)
}

// HandleStats reports session and archive counters to the operator.
func (b *Bot) HandleStats(c tele.Context) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Статистика\n\nАктивных заявок: %d\nОшибок отправки: %d",
		b.sessions.Len(), b.dispatcher.ErrorCount())

	if b.archive == nil {
		sb.WriteString("\n\n")
		sb.WriteString(textStatsDisabled)
		return tghelpers.ReplyText(c, sb.String())
	}

	ctx, cancel := context.WithTimeout(tghelpers.BuildContext(c), archiveTimeout)
	defer cancel()
	stats, err := b.archive.LoadStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(&sb, "\nДоставлено всего: %d\nБез фото: %d\nЗа 24 часа: %d",
		stats.Total, stats.Degraded, stats.Last24h)
	return tghelpers.ReplyText(c, sb.String())
}

// HandleUnknownText answers free text arriving outside a session.
func (b *Bot) HandleUnknownText(c tele.Context) error {
	return tghelpers.ReplyText(c, textNoSession)
}

// HandleDocument asks the user to resend an attachment as a photo.
func (b *Bot) HandleDocument(c tele.Context) error {
	return tghelpers.ReplyText(c, textDocumentNotPhoto)
}

func (b *Bot) enqueueDelivery(c tele.Context, rec session.Record) {
	ctx := tghelpers.BuildContext(c)
	err := b.dispatcher.EnqueueOnce(ctx, "delivery", "deliver", func(jobCtx context.Context) error {
		return b.runDelivery(jobCtx, rec)
	})
	if err == nil {
		return
	}

	logger.Delivery.Warn("delivery queue unavailable, running inline",
		slog.String("event", "delivery.enqueue"),
		slog.Int64("user_id", rec.UserID),
		slog.String("err", err.Error()),
	)
	go func() {
		budgetCtx, cancel := context.WithTimeout(context.Background(), b.budget)
		defer cancel()
		_ = b.runDelivery(budgetCtx, rec)
	}()
}

func (b *Bot) runDelivery(ctx context.Context, rec session.Record) error {
	out, err := b.pipeline.Deliver(ctx, rec)
	if err != nil {
		return err
	}
	if b.archive != nil {
		// Delivery already succeeded; archive on its own budget.
		actx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		_ = b.archive.Save(actx, rec, out)
	}
	return nil
}

func (b *Bot) maybeSweep() {
	if b.watermark <= 0 || b.sessions.Len() <= b.watermark {
		return
	}
	if !b.sweeping.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer b.sweeping.Store(false)
		evicted := b.sessions.Sweep(time.Now())
		if evicted > 0 {
			logger.Sessions.Info("expired sessions evicted",
				slog.String("event", "session.sweep"),
				slog.Int("evicted", evicted),
				slog.Int("session_size", b.sessions.Len()),
			)
		}
	}()
}
