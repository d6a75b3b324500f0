// Package mode defines the capability set node-internal code is written
// against, and the adapter that substitutes a concrete execution context for
// it. The plain node, the legacy wallet backend, and the wallet-kernel
// backend each supply a different concrete context satisfying the same
// capability set, which is what lets the diffusion layer and the node logic
// be built once and reused by every host.
package mode

import (
	"fmt"
	"log/slog"

	"slatechain/core"
	"slatechain/core/election"
	"slatechain/diffusion"
	"slatechain/storage"
)

// Diffusion is the narrow networking surface internal logic may use.
type Diffusion interface {
	Broadcast(msgType string, payload any) error
	Messages() <-chan diffusion.Message
	Health() diffusion.Status
}

// Capabilities is the abstract capability set. Internal code takes a
// Capabilities value instead of a concrete host context.
type Capabilities interface {
	Host() string
	Logger() *slog.Logger
	DB() storage.Database
	Election() *election.Context
	Diffusion() Diffusion
}

// Fault is the abstract fault representation internal actions surface to
// their callers, regardless of which host ran them.
type Fault struct {
	Host string
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("mode: %s host: %v", f.Host, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// RealMode is the plain node's concrete context: the full node context plus
// the open diffusion layer.
type RealMode struct {
	node *core.NodeContext
	diff *diffusion.Diffusion
}

// NewRealMode binds a node context to an open diffusion layer.
func NewRealMode(n *core.NodeContext, d *diffusion.Diffusion) *RealMode {
	return &RealMode{node: n, diff: d}
}

func (m *RealMode) Host() string                { return "node" }
func (m *RealMode) Logger() *slog.Logger        { return m.node.Logger }
func (m *RealMode) DB() storage.Database        { return m.node.DB }
func (m *RealMode) Election() *election.Context { return m.node.Election }
func (m *RealMode) Diffusion() Diffusion        { return m.diff }

// Node exposes the underlying node context to host-level code that needs
// more than the capability set (the runtime composer, mainly).
func (m *RealMode) Node() *core.NodeContext { return m.node }

// WalletMode is the concrete context the wallet web servers supply: the
// same capabilities backed by the node, with logs scoped to the wallet host.
type WalletMode struct {
	inner  Capabilities
	host   string
	logger *slog.Logger
}

// NewWalletMode wraps an existing context for a wallet host. Backend names
// the wallet flavour ("wallet" for the legacy backend, "wallet-kernel" for
// the new one).
func NewWalletMode(inner Capabilities, backend string) *WalletMode {
	return &WalletMode{
		inner:  inner,
		host:   backend,
		logger: inner.Logger().With(slog.String("host", backend)),
	}
}

func (m *WalletMode) Host() string                { return m.host }
func (m *WalletMode) Logger() *slog.Logger        { return m.logger }
func (m *WalletMode) DB() storage.Database        { return m.inner.DB() }
func (m *WalletMode) Election() *election.Context { return m.inner.Election() }
func (m *WalletMode) Diffusion() Diffusion        { return m.inner.Diffusion() }
