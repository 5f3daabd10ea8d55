// Package provider wraps the external AI service behind adapters that never
// fail structurally: embedding failures yield a random fallback vector and
// completion failures yield a fixed user-facing message.
package provider

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/pkg/resilience"
)

// Classify maps a provider call error to an error kind. Timeouts are checked
// before connection errors since a dial timeout is both.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.KindTimeout
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return domain.KindConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.KindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.KindConnection
	}
	return domain.KindGeneric
}
