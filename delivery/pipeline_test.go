package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/requestbot/session"
)

type fakeTransport struct {
	resolveErr error
	imageErrs  []error
	fileErr    error
	textErr    error

	resolveCalls int
	imageCalls   int
	fileCalls    int
	textCalls    int

	lastCaption string
	lastText    string
}

func (f *fakeTransport) ResolveMedia(ctx context.Context, ref string) ([]byte, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return []byte("jpeg-bytes"), nil
}

func (f *fakeTransport) SendImage(ctx context.Context, data []byte, caption string) error {
	f.imageCalls++
	f.lastCaption = caption
	if f.imageCalls <= len(f.imageErrs) {
		return f.imageErrs[f.imageCalls-1]
	}
	return nil
}

func (f *fakeTransport) SendFile(ctx context.Context, data []byte, caption string) error {
	f.fileCalls++
	f.lastCaption = caption
	return f.fileErr
}

func (f *fakeTransport) SendText(ctx context.Context, text string) error {
	f.textCalls++
	f.lastText = text
	return f.textErr
}

// floodErr carries a tele.FloodError for errors.As while providing a safe
// Error() (v4's FloodError.Error panics when its unexported inner error is
// nil, and tests cannot populate it).
type floodErr struct {
	flood tele.FloodError
}

func (f floodErr) Error() string { return "telegram: Too Many Requests (429)" }
func (f floodErr) Unwrap() error { return f.flood }

func newTestPipeline(t *fakeTransport, retries int) *Pipeline {
	p := NewPipeline(t, Options{
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
		TextGrace:    time.Second,
	})
	p.sleep = func(ctx context.Context, d time.Duration) {}
	return p
}

func testRecord() session.Record {
	return session.Record{
		UserID:      1,
		MediaRef:    "file-abc",
		DisplayName: "Ann",
		Handle:      "ann99",
		Description: "fridge won't cool",
		CreatedAt:   time.Now(),
	}
}

func TestDeliverImageFirstAttempt(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr, 2)

	out, err := p.Deliver(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, TierImage, out.Tier)
	assert.True(t, out.AttachmentDelivered)
	assert.Equal(t, 1, out.ImageAttempts)
	assert.Equal(t, 0, tr.fileCalls)
	assert.Equal(t, 0, tr.textCalls)
	assert.Contains(t, tr.lastCaption, "Ann")
	assert.Contains(t, tr.lastCaption, "@ann99")
	assert.Contains(t, tr.lastCaption, "fridge won't cool")
	assert.NotContains(t, tr.lastCaption, degradedNotice)
}

func TestDeliverResolveFailure(t *testing.T) {
	tr := &fakeTransport{resolveErr: errors.New("file not found")}
	p := newTestPipeline(tr, 2)

	out, err := p.Deliver(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, TierText, out.Tier)
	assert.False(t, out.AttachmentDelivered)
	assert.Equal(t, 0, tr.imageCalls)
	assert.Equal(t, 0, tr.fileCalls)
	assert.Equal(t, 1, tr.textCalls)
	assert.Contains(t, tr.lastText, degradedNotice)
	assert.Contains(t, tr.lastText, "fridge won't cool")
}

func TestDeliverRetriesThenDocument(t *testing.T) {
	transient := errors.New("read tcp: connection reset by peer")
	tr := &fakeTransport{imageErrs: []error{transient, transient, transient}}
	p := newTestPipeline(tr, 2)

	out, err := p.Deliver(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, TierFile, out.Tier)
	assert.True(t, out.AttachmentDelivered)
	assert.Equal(t, 3, tr.imageCalls)
	assert.Equal(t, 3, out.ImageAttempts)
	assert.Equal(t, 1, tr.fileCalls)
	assert.Equal(t, 0, tr.textCalls)
	assert.Contains(t, tr.lastCaption, degradedNotice)
}

func TestDeliverRetrySucceedsMidway(t *testing.T) {
	transient := errors.New("context deadline exceeded")
	tr := &fakeTransport{imageErrs: []error{transient}}
	p := newTestPipeline(tr, 2)

	out, err := p.Deliver(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, TierImage, out.Tier)
	assert.True(t, out.AttachmentDelivered)
	assert.Equal(t, 2, out.ImageAttempts)
	assert.Equal(t, 0, tr.fileCalls)
}

func TestDeliverTerminalErrorSkipsRetries(t *testing.T) {
	rejected := &tele.Error{Code: 400, Description: "PHOTO_INVALID_DIMENSIONS"}
	tr := &fakeTransport{imageErrs: []error{rejected, rejected, rejected}}
	p := newTestPipeline(tr, 2)

	out, err := p.Deliver(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, 1, tr.imageCalls)
	assert.Equal(t, TierFile, out.Tier)
	assert.True(t, out.AttachmentDelivered)
}

func TestDeliverAllAttachmentTiersFail(t *testing.T) {
	transient := errors.New("i/o timeout")
	tr := &fakeTransport{
		imageErrs: []error{transient, transient},
		fileErr:   &tele.Error{Code: 400, Description: "wrong file"},
	}
	p := newTestPipeline(tr, 1)

	out, err := p.Deliver(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, TierText, out.Tier)
	assert.False(t, out.AttachmentDelivered)
	assert.Equal(t, 2, tr.imageCalls)
	assert.Equal(t, 1, tr.fileCalls)
	assert.Equal(t, 1, tr.textCalls)
	assert.Contains(t, tr.lastText, degradedNotice)
}

func TestDeliverTextSendFailure(t *testing.T) {
	tr := &fakeTransport{
		resolveErr: errors.New("file expired"),
		textErr:    errors.New("connection refused"),
	}
	p := newTestPipeline(tr, 2)

	out, err := p.Deliver(context.Background(), testRecord())
	require.ErrorIs(t, err, ErrTextSendFailed)

	assert.Equal(t, TierText, out.Tier)
	assert.False(t, out.AttachmentDelivered)
}

func TestDeliverExpiredBudgetForcesTextOnly(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.Deliver(ctx, testRecord())
	require.NoError(t, err)

	assert.Equal(t, TierText, out.Tier)
	assert.False(t, out.AttachmentDelivered)
	assert.Equal(t, 0, tr.imageCalls)
	assert.Equal(t, 0, tr.fileCalls)
	assert.Equal(t, 1, tr.textCalls)
}

func TestDeliverFloodWaitIsRetried(t *testing.T) {
	// telebot v4 keeps FloodError's inner *Error unexported, so the fake
	// wraps the flood value and supplies the message itself.
	flood := floodErr{tele.FloodError{RetryAfter: 1}}
	tr := &fakeTransport{imageErrs: []error{flood}}
	p := newTestPipeline(tr, 2)

	out, err := p.Deliver(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, TierImage, out.Tier)
	assert.Equal(t, 2, out.ImageAttempts)
}
