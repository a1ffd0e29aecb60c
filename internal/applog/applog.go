// Package applog installs the process-wide go-logging backend. Packages obtain
// their logger with logging.MustGetLogger(applog.Module).
package applog

import (
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

// Module is the logger name shared by every package in the module.
const Module = "lessoncast"

const format = `%{time:2006-01-02 15:04:05} %{level:.5s} %{shortfile} %{message}`

// Init parses level and installs a formatted, leveled backend writing to w.
// A nil w logs to stdout. Unknown level names are rejected.
func Init(level string, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := logging.LogLevel(strings.ToUpper(strings.TrimSpace(level)))
	if err != nil {
		return err
	}

	backend := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(format))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
	return nil
}

// OpenFile opens path for appending log output. An empty path discards logs,
// which keeps terminal UIs from being overwritten by log lines.
func OpenFile(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{io.Discard}, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
