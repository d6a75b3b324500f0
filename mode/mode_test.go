package mode

import (
	"errors"
	"log/slog"
	"testing"

	"slatechain/core/election"
	"slatechain/storage"
)

type stubMode struct {
	host     string
	logger   *slog.Logger
	db       storage.Database
	election *election.Context
}

func newStubMode(host string) *stubMode {
	return &stubMode{
		host:     host,
		logger:   slog.Default(),
		db:       storage.NewMemDB(),
		election: election.NewContext(),
	}
}

func (m *stubMode) Host() string                { return m.host }
func (m *stubMode) Logger() *slog.Logger        { return m.logger }
func (m *stubMode) DB() storage.Database        { return m.db }
func (m *stubMode) Election() *election.Context { return m.election }
func (m *stubMode) Diffusion() Diffusion        { return nil }

func TestHoistSuccess(t *testing.T) {
	m := newStubMode("node")
	ran := false
	run := Hoist(m, func(caps Capabilities) error {
		ran = true
		if caps.Host() != "node" {
			t.Fatalf("host = %q", caps.Host())
		}
		return nil
	})
	if err := run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !ran {
		t.Fatalf("action never ran")
	}
}

func TestHoistWrapsActionError(t *testing.T) {
	m := newStubMode("node")
	boom := errors.New("logic fault")
	run := Hoist(m, func(Capabilities) error { return boom })

	err := run()
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("got %T, want *Fault", err)
	}
	if fault.Host != "node" || !errors.Is(err, boom) {
		t.Fatalf("fault = %+v", fault)
	}
}

func TestHoistRecoversPanic(t *testing.T) {
	m := newStubMode("wallet")
	run := Hoist(m, func(Capabilities) error { panic("slot table corrupt") })

	err := run()
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("got %T, want *Fault", err)
	}
	if fault.Host != "wallet" {
		t.Fatalf("host = %q", fault.Host)
	}
}

func TestHoistRecoversErrorPanic(t *testing.T) {
	m := newStubMode("node")
	boom := errors.New("db wedged")
	run := Hoist(m, func(Capabilities) error { panic(boom) })

	if err := run(); !errors.Is(err, boom) {
		t.Fatalf("panic value not preserved: %v", err)
	}
}

func TestWalletModeDelegates(t *testing.T) {
	inner := newStubMode("node")
	wallet := NewWalletMode(inner, "wallet-kernel")

	if wallet.Host() != "wallet-kernel" {
		t.Fatalf("host = %q", wallet.Host())
	}
	if wallet.DB() != inner.db {
		t.Fatalf("wallet mode must share the node database")
	}
	if wallet.Election() != inner.election {
		t.Fatalf("wallet mode must share the election context")
	}
	if wallet.Logger() == inner.logger {
		t.Fatalf("wallet logger should carry the host attribute")
	}
	if err := wallet.DB().Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put through wallet capability: %v", err)
	}
	got, err := inner.db.Get([]byte("k"))
	if err != nil || string(got) != "v" {
		t.Fatalf("get: %q %v", got, err)
	}
	var asDiffusion Diffusion = wallet.Diffusion()
	if asDiffusion != nil {
		t.Fatalf("stub diffusion should pass through unchanged")
	}
}

func TestFaultUnwrap(t *testing.T) {
	inner := errors.New("inner")
	fault := &Fault{Host: "node", Err: inner}
	if !errors.Is(fault, inner) {
		t.Fatalf("unwrap lost the inner error")
	}
}
