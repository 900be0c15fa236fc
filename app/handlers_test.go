package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/requestbot/core/telegram/sender"
	"github.com/m3rciful/requestbot/delivery"
	"github.com/m3rciful/requestbot/session"
)

// testCtx stubs the handful of tele.Context methods the handlers touch.
type testCtx struct {
	tele.Context

	user *tele.User
	msg  *tele.Message

	mu      sync.Mutex
	store   map[string]any
	replies []string
}

func newTestCtx(user *tele.User, msg *tele.Message) *testCtx {
	return &testCtx{user: user, msg: msg, store: map[string]any{}}
}

func (c *testCtx) Update() tele.Update    { return tele.Update{ID: 1, Message: c.msg} }
func (c *testCtx) Sender() *tele.User     { return c.user }
func (c *testCtx) Chat() *tele.Chat       { return &tele.Chat{ID: c.user.ID} }
func (c *testCtx) Message() *tele.Message { return c.msg }

func (c *testCtx) Text() string {
	if c.msg != nil {
		return c.msg.Text
	}
	return ""
}

func (c *testCtx) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

func (c *testCtx) Set(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = val
}

func (c *testCtx) Reply(what any, opts ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, fmt.Sprint(what))
	return nil
}

func (c *testCtx) Send(what any, opts ...any) error {
	return c.Reply(what)
}

func (c *testCtx) lastReply() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return ""
	}
	return c.replies[len(c.replies)-1]
}

type recordingTransport struct {
	mu       sync.Mutex
	captions []string
}

func (r *recordingTransport) ResolveMedia(ctx context.Context, ref string) ([]byte, error) {
	return []byte("bytes"), nil
}

func (r *recordingTransport) SendImage(ctx context.Context, data []byte, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captions = append(r.captions, caption)
	return nil
}

func (r *recordingTransport) SendFile(ctx context.Context, data []byte, caption string) error {
	return nil
}

func (r *recordingTransport) SendText(ctx context.Context, text string) error {
	return nil
}

func (r *recordingTransport) imageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.captions)
}

func (r *recordingTransport) lastCaption() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.captions) == 0 {
		return ""
	}
	return r.captions[len(r.captions)-1]
}

func newTestBot(t *testing.T) (*Bot, *recordingTransport) {
	t.Helper()

	disp := sender.NewDispatcher(sender.Options{
		QueueSize:   8,
		Workers:     1,
		MaxDuration: time.Second,
	})
	t.Cleanup(disp.Close)

	transport := &recordingTransport{}
	b := &Bot{
		sessions:   session.NewStore(30 * time.Minute),
		dispatcher: disp,
		watermark:  64,
		budget:     time.Second,
		pipeline: delivery.NewPipeline(transport, delivery.Options{
			MaxRetries:   1,
			RetryBackoff: time.Millisecond,
		}),
	}
	return b, transport
}

func photoMessage(user *tele.User, fileID string) *tele.Message {
	return &tele.Message{
		Sender: user,
		Photo:  &tele.Photo{File: tele.File{FileID: fileID}},
	}
}

func TestPhotoThenDescription(t *testing.T) {
	b, transport := newTestBot(t)
	user := &tele.User{ID: 10, FirstName: "Ann", Username: "ann99"}

	photoCtx := newTestCtx(user, photoMessage(user, "file-1"))
	require.NoError(t, b.HandlePhoto(photoCtx))
	assert.Equal(t, textPhotoReceived, photoCtx.lastReply())
	assert.True(t, b.Active(user.ID))

	textCtx := newTestCtx(user, &tele.Message{Sender: user, Text: "fridge won't cool"})
	require.NoError(t, b.HandleText(textCtx))
	assert.Equal(t, textSubmitted, textCtx.lastReply())
	assert.False(t, b.Active(user.ID))

	assert.Eventually(t, func() bool {
		return transport.imageCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, transport.lastCaption(), "fridge won't cool")
	assert.Contains(t, transport.lastCaption(), "Ann")
}

func TestSecondPhotoRejected(t *testing.T) {
	b, _ := newTestBot(t)
	user := &tele.User{ID: 11, FirstName: "Bob"}

	require.NoError(t, b.HandlePhoto(newTestCtx(user, photoMessage(user, "file-1"))))

	second := newTestCtx(user, photoMessage(user, "file-2"))
	require.NoError(t, b.HandlePhoto(second))
	assert.Equal(t, textAlreadyActive, second.lastReply())
}

func TestDescriptionWithoutPhoto(t *testing.T) {
	b, transport := newTestBot(t)
	user := &tele.User{ID: 12}

	c := newTestCtx(user, &tele.Message{Sender: user, Text: "orphan"})
	require.NoError(t, b.HandleText(c))
	assert.Equal(t, textNoSession, c.lastReply())
	assert.Equal(t, 0, transport.imageCount())
}

func TestCancelClearsSession(t *testing.T) {
	b, _ := newTestBot(t)
	user := &tele.User{ID: 13}

	require.NoError(t, b.HandlePhoto(newTestCtx(user, photoMessage(user, "file-1"))))
	require.True(t, b.Active(user.ID))

	c := newTestCtx(user, &tele.Message{Sender: user, Text: "/cancel"})
	require.NoError(t, b.HandleCancel(c))
	assert.Equal(t, textCancelled, c.lastReply())
	assert.False(t, b.Active(user.ID))

	// A fresh photo starts over.
	fresh := newTestCtx(user, photoMessage(user, "file-3"))
	require.NoError(t, b.HandlePhoto(fresh))
	assert.Equal(t, textPhotoReceived, fresh.lastReply())
}

func TestStartWhileActive(t *testing.T) {
	b, _ := newTestBot(t)
	user := &tele.User{ID: 14}

	c := newTestCtx(user, &tele.Message{Sender: user, Text: "/start"})
	require.NoError(t, b.HandleStart(c))
	assert.Equal(t, textWelcome, c.lastReply())

	require.NoError(t, b.HandlePhoto(newTestCtx(user, photoMessage(user, "file-1"))))
	again := newTestCtx(user, &tele.Message{Sender: user, Text: "/start"})
	require.NoError(t, b.HandleStart(again))
	assert.Equal(t, textAlreadyActive, again.lastReply())
}

func TestDocumentPrompt(t *testing.T) {
	b, _ := newTestBot(t)
	user := &tele.User{ID: 15}

	c := newTestCtx(user, &tele.Message{Sender: user, Document: &tele.Document{}})
	require.NoError(t, b.HandleDocument(c))
	assert.Equal(t, textDocumentNotPhoto, c.lastReply())
}

func TestDeliveryRunsInlineWhenQueueFull(t *testing.T) {
	disp := sender.NewDispatcher(sender.Options{
		QueueSize:   1,
		Workers:     1,
		MaxDuration: time.Second,
	})
	t.Cleanup(disp.Close)

	transport := &recordingTransport{}
	b := &Bot{
		sessions:   session.NewStore(30 * time.Minute),
		dispatcher: disp,
		watermark:  64,
		budget:     time.Second,
		pipeline:   delivery.NewPipeline(transport, delivery.Options{}),
	}

	// Occupy the worker and the single queue slot so the next enqueue is refused.
	release := make(chan struct{})
	defer close(release)
	running := make(chan struct{})
	require.NoError(t, disp.EnqueueOnce(context.Background(), "test", "block", func(context.Context) error {
		close(running)
		<-release
		return nil
	}))
	<-running
	require.NoError(t, disp.EnqueueOnce(context.Background(), "test", "fill", func(context.Context) error {
		return nil
	}))

	user := &tele.User{ID: 17, FirstName: "Eve"}
	require.NoError(t, b.HandlePhoto(newTestCtx(user, photoMessage(user, "file-1"))))

	c := newTestCtx(user, &tele.Message{Sender: user, Text: "no power"})
	require.NoError(t, b.HandleText(c))
	assert.Equal(t, textSubmitted, c.lastReply())

	assert.Eventually(t, func() bool {
		return transport.imageCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, transport.lastCaption(), "no power")
}

func TestStatsWithoutArchive(t *testing.T) {
	b, _ := newTestBot(t)
	user := &tele.User{ID: 16}

	require.NoError(t, b.HandlePhoto(newTestCtx(user, photoMessage(user, "file-1"))))

	c := newTestCtx(user, &tele.Message{Sender: user, Text: "/stats"})
	require.NoError(t, b.HandleStats(c))
	assert.Contains(t, c.lastReply(), "Активных заявок: 1")
	assert.Contains(t, c.lastReply(), "Ошибок отправки: 0")
	assert.Contains(t, c.lastReply(), textStatsDisabled)
}
