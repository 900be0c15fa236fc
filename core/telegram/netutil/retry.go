package netutil

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether a transport error is worth retrying.
// Transient dial/timeout failures from net/http, Telegram flood waits,
// and 5xx API responses are retryable; everything the API rejected
// outright (4xx) is not.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() || netErr.Temporary() {
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
		if nested, ok := opErr.Err.(net.Error); ok {
			if nested.Timeout() || nested.Temporary() {
				return true
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	switch status := HTTPStatus(err); {
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	}

	return false
}

// Terminal reports whether the transport rejected the request permanently.
// A terminal error must not be retried with the same payload; the caller
// should degrade to a different send method instead.
func Terminal(err error) bool {
	if err == nil {
		return false
	}
	status := HTTPStatus(err)
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

// HTTPStatus extracts an HTTP-equivalent status code from a Telegram API error.
// It returns 0 when the error carries no status information.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}

	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	// Telebot formats some errors as "... (400)" without a typed wrapper.
	msg := err.Error()
	if msg == "" {
		return 0
	}
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		codeStr := strings.TrimSpace(msg[lastOpen+1 : lastClose])
		if code, convErr := strconv.Atoi(codeStr); convErr == nil {
			return code
		}
	}

	return 0
}
