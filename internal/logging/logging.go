// Package logging builds the shared log output: a size-rotated file plus,
// in verbose mode, stderr. Components take a *log.Logger with their own
// bracketed prefix on top of it.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the output.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Verbose    bool
}

// Output is the destination shared by every component logger.
type Output struct {
	w    io.Writer
	file *lumberjack.Logger
}

// Setup opens the log file. With no file and no verbose flag, logs are
// discarded.
func Setup(opts Options) (*Output, error) {
	out := &Output{}
	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		out.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, out.file)
	}
	if opts.Verbose {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		out.w = io.Discard
	case 1:
		out.w = writers[0]
	default:
		out.w = io.MultiWriter(writers...)
	}
	return out, nil
}

// Writer returns the combined destination.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Logger returns a logger whose lines start with "[component] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
