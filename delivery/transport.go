package delivery

import "context"

// Transport sends a completed submission to the operator. Implementations
// address a single fixed recipient; the pipeline never chooses one.
//
// Errors returned by the Send methods are classified by the pipeline as
// transient or terminal via their HTTP status, so implementations should
// return transport errors unwrapped where possible.
type Transport interface {
	// ResolveMedia fetches the bytes behind a media reference.
	ResolveMedia(ctx context.Context, ref string) ([]byte, error)
	// SendImage delivers data as a native photo with a caption.
	SendImage(ctx context.Context, data []byte, caption string) error
	// SendFile delivers data as a generic document with a caption.
	SendFile(ctx context.Context, data []byte, caption string) error
	// SendText delivers a plain text message.
	SendText(ctx context.Context, text string) error
}
