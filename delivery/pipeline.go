// Package delivery forwards completed submissions to the operator,
// degrading through fallback tiers so the text never gets lost.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/m3rciful/requestbot/core/logger"
	"github.com/m3rciful/requestbot/core/telegram/netutil"
	"github.com/m3rciful/requestbot/session"

	"log/slog"
)

// Tier identifies a fallback level of the pipeline.
type Tier int

const (
	// TierImage is a native photo send with a caption.
	TierImage Tier = iota + 1
	// TierFile resends the same bytes as a generic document.
	TierFile
	// TierText is the guaranteed-minimum text-only send.
	TierText
)

func (t Tier) String() string {
	switch t {
	case TierImage:
		return "image"
	case TierFile:
		return "document"
	case TierText:
		return "text"
	default:
		return "unknown"
	}
}

// ErrTextSendFailed marks the only fatal delivery condition: even the
// text-only fallback could not reach the operator.
var ErrTextSendFailed = fmt.Errorf("delivery: text send failed")

// Outcome reports how far the pipeline had to degrade.
type Outcome struct {
	Tier                Tier
	AttachmentDelivered bool
	ImageAttempts       int
}

// Options tune the pipeline retry behaviour.
type Options struct {
	// MaxRetries bounds additional image-send attempts after the first.
	MaxRetries int
	// RetryBackoff is the linear backoff base between image attempts.
	RetryBackoff time.Duration
	// TextGrace budgets the text fallback once the caller's context has
	// already expired.
	TextGrace time.Duration
}

const (
	defaultMaxRetries   = 2
	defaultRetryBackoff = 2 * time.Second
	defaultTextGrace    = 10 * time.Second
)

// Pipeline delivers submissions over a Transport.
type Pipeline struct {
	transport Transport
	opts      Options

	sleep func(ctx context.Context, d time.Duration)
}

// NewPipeline constructs a pipeline with defaults applied for unset options.
func NewPipeline(t Transport, opts Options) *Pipeline {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.TextGrace <= 0 {
		opts.TextGrace = defaultTextGrace
	}
	return &Pipeline{
		transport: t,
		opts:      opts,
		sleep:     sleepCtx,
	}
}

// Deliver pushes the record to the operator, trying image, then document,
// then text-only. It always returns an Outcome; the error is non-nil only
// when the text-only fallback itself failed. Context expiry mid-pipeline
// skips the remaining attachment tiers and forces the text fallback on a
// short grace budget.
func (p *Pipeline) Deliver(ctx context.Context, rec session.Record) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	outcome := Outcome{Tier: TierText}

	data, err := p.transport.ResolveMedia(ctx, rec.MediaRef)
	if err != nil {
		logger.Delivery.Warn("media resolution failed",
			slog.String("event", "delivery.resolve"),
			slog.String("status", "fail"),
			slog.Int64("user_id", rec.UserID),
			slog.String("err", err.Error()),
		)
		return p.sendTextFallback(ctx, rec, outcome, start)
	}

	caption := FormatOperatorText(rec, false)
	attempts := p.opts.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		sendErr := p.transport.SendImage(ctx, data, caption)
		outcome.ImageAttempts = attempt
		if sendErr == nil {
			outcome.Tier = TierImage
			outcome.AttachmentDelivered = true
			p.logDelivered(rec, outcome, start)
			return outcome, nil
		}
		if netutil.Terminal(sendErr) {
			logger.Delivery.Warn("image rejected",
				slog.String("event", "delivery.send"),
				slog.String("tier", TierImage.String()),
				slog.String("status", "fail"),
				slog.Int64("user_id", rec.UserID),
				slog.Int("attempt", attempt),
				slog.String("err", sendErr.Error()),
			)
			break
		}
		logger.Delivery.Warn("image send failed",
			slog.String("event", "delivery.send"),
			slog.String("tier", TierImage.String()),
			slog.String("status", "fail"),
			slog.Int64("user_id", rec.UserID),
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			slog.String("err", sendErr.Error()),
		)
		if attempt < attempts {
			p.sleep(ctx, p.opts.RetryBackoff*time.Duration(attempt))
		}
	}

	if ctx.Err() == nil {
		if sendErr := p.transport.SendFile(ctx, data, FormatOperatorText(rec, true)); sendErr == nil {
			outcome.Tier = TierFile
			outcome.AttachmentDelivered = true
			p.logDelivered(rec, outcome, start)
			return outcome, nil
		} else {
			logger.Delivery.Warn("document send failed",
				slog.String("event", "delivery.send"),
				slog.String("tier", TierFile.String()),
				slog.String("status", "fail"),
				slog.Int64("user_id", rec.UserID),
				slog.String("err", sendErr.Error()),
			)
		}
	}

	return p.sendTextFallback(ctx, rec, outcome, start)
}

func (p *Pipeline) sendTextFallback(ctx context.Context, rec session.Record, outcome Outcome, start time.Time) (Outcome, error) {
	outcome.Tier = TierText
	outcome.AttachmentDelivered = false

	sendCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(context.Background(), p.opts.TextGrace)
		defer cancel()
	}

	if err := p.transport.SendText(sendCtx, FormatOperatorText(rec, true)); err != nil {
		logger.Delivery.Error("text send failed",
			slog.String("event", "delivery.send"),
			slog.String("tier", TierText.String()),
			slog.String("status", "fail"),
			slog.Int64("user_id", rec.UserID),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return outcome, fmt.Errorf("%w: %v", ErrTextSendFailed, err)
	}

	p.logDelivered(rec, outcome, start)
	return outcome, nil
}

func (p *Pipeline) logDelivered(rec session.Record, outcome Outcome, start time.Time) {
	result := "ok"
	if !outcome.AttachmentDelivered {
		result = "degraded"
	}
	logger.Delivery.Info("request delivered",
		slog.String("event", "delivery.done"),
		slog.String("tier", outcome.Tier.String()),
		slog.String("outcome", result),
		slog.Int64("user_id", rec.UserID),
		slog.Int("attempts", outcome.ImageAttempts),
		slog.Duration("duration", logger.Took(start)),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
