package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/speedrun-hq/settlement-tracker/pkg/chains"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// ParseLevel maps a LOG_LEVEL value to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "notice":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

var chainPrefixes = map[string]string{
	"eip155:1":       "[ETH]  ",
	"eip155:56":      "[BSC]  ",
	"eip155:137":     "[POL]  ",
	"eip155:42161":   "[ARB]  ",
	"eip155:43114":   "[AVA]  ",
	"eip155:8453":    "[BASE] ",
	"eip155:10":      "[OP]   ",
	"eip155:100":     "[GNO]  ",
	"eip155:7000":    "[ZETA] ",
	"near:mainnet":   "[NEAR] ",
	"solana:mainnet": "[SOL]  ",
	"bip122:000000000019d6689c085ae165831e93": "[BTC]  ",
}

var colors = map[chains.Family]color.Attribute{
	chains.FamilyEVM:     color.FgHiGreen,
	chains.FamilySolana:  color.FgMagenta,
	chains.FamilyNear:    color.FgHiBlue,
	chains.FamilyBitcoin: color.FgYellow,
	chains.FamilyTron:    color.FgRed,
	chains.FamilyTon:     color.FgBlue,
}

// Logger is a simple interface for logging messages.
// Chain-scoped variants take a CAIP-2 chain id such as "eip155:1" or "near:mainnet".
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithChain(chainID string, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithChain(chainID string, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithChain(chainID string, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithChain(chainID string, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                      {}
func (l *EmptyLogger) InfoWithChain(_ string, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) ErrorWithChain(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) DebugWithChain(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                    {}
func (l *EmptyLogger) NoticeWithChain(_ string, _ string, _ ...interface{}) {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// chainPrefix returns the short tag printed for chainID, falling back to the raw id
func chainPrefix(chainID string) string {
	if chainID == "" {
		return ""
	}
	if prefix, ok := chainPrefixes[chainID]; ok {
		return prefix
	}
	// the prefix becomes part of a printf format
	return "[" + strings.ReplaceAll(chainID, "%", "%%") + "] "
}

// formatMessage formats the log message with the appropriate log level, chain prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, chainID string, format string) string {
	prefix := chainPrefix(chainID)
	if l.enableColoring && prefix != "" {
		attr, ok := colors[chains.FamilyOf(chainID)]
		if !ok {
			attr = color.FgWhite
		}
		prefix = color.New(attr).Sprint(prefix)
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + prefix + format
}

func (l *StdLogger) logf(level Level, chainID string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= level {
		log.Printf(l.formatMessage(level, chainID, format), args...)
	}
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, "", format, args...)
}

func (l *StdLogger) InfoWithChain(chainID string, format string, args ...interface{}) {
	l.logf(InfoLevel, chainID, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, "", format, args...)
}

func (l *StdLogger) ErrorWithChain(chainID string, format string, args ...interface{}) {
	l.logf(ErrorLevel, chainID, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, "", format, args...)
}

func (l *StdLogger) DebugWithChain(chainID string, format string, args ...interface{}) {
	l.logf(DebugLevel, chainID, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, "", format, args...)
}

func (l *StdLogger) NoticeWithChain(chainID string, format string, args ...interface{}) {
	l.logf(NoticeLevel, chainID, format, args...)
}
