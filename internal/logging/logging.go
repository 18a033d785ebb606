// Package logging provides the service logger: gommon's leveled logger
// (the one echo writes with) with optional forwarding of warnings and
// errors to Rollbar.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/rollbar/rollbar-go"
)

// Logger is the logging surface used across the service. Args are
// key/value pairs appended to the message.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config configures New.
type Config struct {
	Level  string
	Output io.Writer

	RollbarToken string
	Environment  string
	CodeVersion  string
}

// GommonLogger implements Logger on top of a gommon logger.
type GommonLogger struct {
	std     *log.Logger
	rollbar bool
}

var _ Logger = (*GommonLogger)(nil)

// New builds a logger. Rollbar forwarding is enabled only when a token is
// configured.
func New(cfg Config) *GommonLogger {
	std := log.New("elearn")
	std.SetHeader(`${time_rfc3339} ${level}`)
	std.SetLevel(ParseLevel(cfg.Level))
	if cfg.Output != nil {
		std.SetOutput(cfg.Output)
	} else {
		std.SetOutput(os.Stderr)
	}

	l := &GommonLogger{std: std}
	if cfg.RollbarToken != "" {
		rollbar.SetToken(cfg.RollbarToken)
		rollbar.SetEnvironment(cfg.Environment)
		rollbar.SetCodeVersion(cfg.CodeVersion)
		if host, err := os.Hostname(); err == nil {
			rollbar.SetServerHost(host)
		}
		rollbar.SetEnabled(true)
		l.rollbar = true
	}
	return l
}

// ParseLevel maps a level name to a gommon level. Unknown names mean INFO.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// Std returns the underlying gommon logger, for echo.
func (l *GommonLogger) Std() *log.Logger {
	return l.std
}

func (l *GommonLogger) Debug(msg string, args ...any) {
	l.std.Debug(format(msg, args))
}

func (l *GommonLogger) Info(msg string, args ...any) {
	l.std.Info(format(msg, args))
}

func (l *GommonLogger) Warn(msg string, args ...any) {
	line := format(msg, args)
	l.std.Warn(line)
	if l.rollbar {
		rollbar.Warning(line)
	}
}

func (l *GommonLogger) Error(msg string, args ...any) {
	line := format(msg, args)
	l.std.Error(line)
	if l.rollbar {
		if err := firstError(args); err != nil {
			rollbar.Error(err, map[string]interface{}{"message": line})
		} else {
			rollbar.Error(line)
		}
	}
}

// Close flushes queued Rollbar items.
func (l *GommonLogger) Close() {
	if l.rollbar {
		rollbar.Wait()
	}
}

func format(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return b.String()
}

func firstError(args []any) error {
	for _, a := range args {
		if err, ok := a.(error); ok {
			return err
		}
	}
	return nil
}

type nop struct{}

func (nop) Debug(string, ...any) {}
func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}
