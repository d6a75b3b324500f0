package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// JSONFile is the node's optional append-only JSON log: a dedicated slog
// stream backed by a size-rotated file. It is opened during resource
// allocation only when a path is configured and closed exactly once during
// release.
type JSONFile struct {
	path   string
	writer *lumberjack.Logger
	logger *slog.Logger
}

// OpenJSONFile opens (creating if needed) the JSON log at path. The file is
// probed eagerly so a bad path fails allocation instead of the first write.
func OpenJSONFile(path string) (*JSONFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: prepare json log dir: %w", err)
	}
	probe, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open json log: %w", err)
	}
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("logging: probe json log: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		Compress:   true,
	}
	return &JSONFile{
		path:   path,
		writer: writer,
		logger: slog.New(NewJSONHandler(writer)),
	}, nil
}

// Logger returns the slog stream writing to the file.
func (f *JSONFile) Logger() *slog.Logger {
	return f.logger
}

// Path returns the configured file path.
func (f *JSONFile) Path() string {
	return f.path
}

// Close flushes and closes the underlying file.
func (f *JSONFile) Close() error {
	return f.writer.Close()
}
