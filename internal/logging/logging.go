// Package logging builds the diagnostic logger: a terminal handler fanned out
// with an optional systemd journal handler.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options selects the handlers and level.
type Options struct {
	Verbosity int
	Format    string // text or json
	Journal   bool
}

// Level maps a verbosity to the minimum record level. Device reports and
// errors are Info and above; batch traces are Debug.
func Level(verbosity int) slog.Level {
	if verbosity >= 2 {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// New returns a logger writing to w. When running as a systemd service the
// journal replaces the terminal handler.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level := Level(opts.Verbosity)
	service := isSystemdService()

	var handlers []slog.Handler
	var terminal slog.Handler
	if !service {
		hopts := &slog.HandlerOptions{Level: level}
		switch opts.Format {
		case "", "text":
			terminal = slog.NewTextHandler(w, hopts)
		case "json":
			terminal = slog.NewJSONHandler(w, hopts)
		default:
			return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
		}
		handlers = append(handlers, terminal)
	}

	if opts.Journal || service {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			if terminal == nil {
				return nil, fmt.Errorf("logging: journal: %w", err)
			}
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "new systemd journal handler", 0)
			record.Add("error", err)
			_ = terminal.Handle(context.Background(), record)
		} else {
			handlers = append(handlers, journal)
		}
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// toJournalKey turns an attribute key into a journal field name.
func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func isSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}
