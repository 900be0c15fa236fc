package app

import (
	"bytes"
	"context"
	"fmt"
	"io"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/requestbot/delivery"
)

// maxMediaBytes caps a resolved photo. Telegram bot photos stay well
// under this; anything larger is treated as a resolution failure.
const maxMediaBytes = 20 << 20

// telegramTransport adapts a telebot instance to the delivery pipeline.
// All sends address the configured operator chat.
//
// Telebot calls carry no context; the context here gates entry only, the
// in-flight HTTP timeout comes from the bot's client.
type telegramTransport struct {
	bot      *tele.Bot
	operator tele.ChatID
}

func newTelegramTransport(bot *tele.Bot, operator int64) delivery.Transport {
	return &telegramTransport{
		bot:      bot,
		operator: tele.ChatID(operator),
	}
}

func (t *telegramTransport) ResolveMedia(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := t.bot.File(&tele.File{FileID: ref})
	if err != nil {
		return nil, fmt.Errorf("fetch file %s: %w", ref, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", ref, err)
	}
	if len(data) > maxMediaBytes {
		return nil, fmt.Errorf("file %s exceeds %d bytes", ref, maxMediaBytes)
	}
	return data, nil
}

func (t *telegramTransport) SendImage(ctx context.Context, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(data)),
		Caption: caption,
	}
	_, err := t.bot.Send(t.operator, photo)
	return err
}

func (t *telegramTransport) SendFile(ctx context.Context, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: "photo.jpg",
		Caption:  caption,
	}
	_, err := t.bot.Send(t.operator, doc)
	return err
}

func (t *telegramTransport) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := t.bot.Send(t.operator, text)
	return err
}
