// Package logging builds the component loggers used across the binaries.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink is where every component logger writes.
type Sink struct {
	out  io.Writer
	file *lumberjack.Logger
}

// NewSink writes to stderr and, when path is set, to a size-rotated log file.
func NewSink(path string) *Sink {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Sink{out: os.Stderr}
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	return &Sink{out: io.MultiWriter(os.Stderr, file), file: file}
}

// Writer returns the underlying writer.
func (s *Sink) Writer() io.Writer { return s.out }

// Logger returns a logger with a bracketed component prefix.
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.out, "["+component+"] ", log.LstdFlags|log.Lmsgprefix)
}

// Close flushes and closes the log file, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
