package provider

import (
    "context"
    "errors"
    "fmt"
    "net"
)

// Error taxonomy shared by all providers. Single-item operations wrap these
// with symbol context and propagate; batch operations log and skip.
var (
    ErrNotFound    = errors.New("not found")
    ErrUnsupported = errors.New("unsupported")
    ErrUpstream    = errors.New("upstream error")
    ErrTimeout     = errors.New("upstream timeout")
)

// NotFound tags ErrNotFound with the symbol that was looked up.
func NotFound(symbol string) error {
    return fmt.Errorf("symbol %q: %w", symbol, ErrNotFound)
}

// Unsupported reports a capability the provider does not implement.
func Unsupported(name, op string) error {
    return fmt.Errorf("%s: %s: %w", name, op, ErrUnsupported)
}

// Upstream wraps a non-2xx response or malformed payload from a source.
func Upstream(name string, err error) error {
    return fmt.Errorf("%s: %v: %w", name, err, ErrUpstream)
}

// FromStatus maps an upstream HTTP status to the taxonomy.
// 404 means the instrument does not exist; anything else non-2xx is an
// upstream failure the caller may retry.
func FromStatus(name, symbol string, status int) error {
    if status == 404 { return NotFound(symbol) }
    return fmt.Errorf("%s: status %d: %w", name, status, ErrUpstream)
}

// WrapTransport classifies a transport-level error: deadline and net
// timeouts become ErrTimeout, the rest ErrUpstream.
func WrapTransport(name string, err error) error {
    if err == nil { return nil }
    var ne net.Error
    if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
        return fmt.Errorf("%s: %v: %w", name, err, ErrTimeout)
    }
    if errors.Is(err, context.Canceled) { return err }
    return fmt.Errorf("%s: %v: %w", name, err, ErrUpstream)
}
