package core

import (
	"log/slog"
	"net"
	"os"
)

// NotifyReady sends a best-effort readiness notification to a systemd-style
// supervisor via NOTIFY_SOCKET. No supervisor, or a failing socket, is a
// no-op: readiness reporting must never abort startup.
func NotifyReady(logger *slog.Logger) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" {
		return
	}
	conn, err := net.Dial("unixgram", socket)
	if err != nil {
		logger.Debug("readiness notify skipped", slog.Any("error", err))
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		logger.Debug("readiness notify failed", slog.Any("error", err))
		return
	}
	logger.Debug("supervisor notified of readiness")
}
