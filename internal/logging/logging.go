// Package logging builds the process logger and the per-component loggers
// derived from it.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where the process log goes.
type Options struct {
	// File receives the log when set; rotated by size (default stderr)
	File string

	// MaxSizeMB rotates the file once it grows past this size (default 10)
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default 3)
	MaxBackups int

	// Verbose adds file:line to each entry
	Verbose bool
}

// New returns the process logger and a closer for its output. The closer
// is a no-op for stderr.
func New(opts Options) (*log.Logger, io.Closer) {
	flags := log.LstdFlags
	if opts.Verbose {
		flags |= log.Lshortfile
	}

	if opts.File == "" {
		return log.New(os.Stderr, "", flags), io.NopCloser(nil)
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups < 0 {
		opts.MaxBackups = 0
	} else if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}

	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		LocalTime:  true,
	}
	return log.New(w, "", flags), w
}

// Component returns a logger writing to base's output with a "[name] "
// prefix. A nil base discards.
func Component(base *log.Logger, name string) *log.Logger {
	if base == nil {
		return Discard()
	}
	return log.New(base.Writer(), "["+name+"] ", base.Flags())
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
