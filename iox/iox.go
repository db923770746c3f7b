// Package iox holds small cleanup helpers shared by the server, adapters
// and CLI.
package iox

import (
	"errors"
	"io"
)

// DiscardClose closes c and drops the error. For defers on read paths
// where a close failure changes nothing:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc adapts c for t.Cleanup.
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and drops its error, e.g. iox.DiscardErr(logger.Sync).
func DiscardErr(fn func() error) { _ = fn() }

// CloseAll closes every closer in order, even after a failure, and
// returns the joined errors. Nil closers are skipped.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
