// Package session tracks per-user in-flight photo submissions.
//
// A submission starts with a photo, is completed by a text description,
// and is then handed off for delivery. The store keeps at most one
// record per user and evicts unfinished records past their TTL, both
// lazily on access and proactively via Sweep.
package session

import (
	"errors"
	"time"
)

var (
	// ErrAlreadyActive is returned by Begin when the user already has an
	// unexpired submission in progress.
	ErrAlreadyActive = errors.New("session: submission already active")
	// ErrNoActiveSession is returned by Complete when the user has no
	// unexpired submission to attach a description to.
	ErrNoActiveSession = errors.New("session: no active submission")
)

// Record is a single in-flight submission. MediaRef is the transport's
// file identifier for the photo; bytes are fetched only at delivery time.
type Record struct {
	UserID      int64
	MediaRef    string
	DisplayName string
	Handle      string
	Description string
	CreatedAt   time.Time
}
