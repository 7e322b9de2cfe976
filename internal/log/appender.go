package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// MultiWriter fans log output out to several writers. A failed writer does not
// stop the others.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		_, e := w.Write(p)
		if e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

// AddFileAppender attaches a size-rotated log file.
func (m *MultiWriter) AddFileAppender(opts FileOutput) *MultiWriter {
	m.writers = append(m.writers, &lumberjack.Logger{
		Filename:   opts.Filename,
		MaxSize:    opts.MaxSize,    // megabytes
		MaxBackups: opts.MaxBackups, // number of backups
		MaxAge:     opts.MaxAge,     // days
		Compress:   opts.Compress,   // compress the backups
	})
	return m
}
