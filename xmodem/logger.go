package xmodem

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger interface for XMODEM protocol logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	log    zerolog.Logger
	closer io.Closer
}

// NewZerologLogger wraps an existing zerolog logger, tagging every entry
// with the xmodem component.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: l.With().Str("component", "xmodem").Logger()}
}

// NewFileLogger creates a logger that appends JSON lines to a file
func NewFileLogger(path string) (*ZerologLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	l := zerolog.New(file).With().Timestamp().Logger()
	zl := NewZerologLogger(l)
	zl.closer = file
	return zl, nil
}

func (l *ZerologLogger) Debug(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Info(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Error(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

// SetLevel drops entries below level.
func (l *ZerologLogger) SetLevel(level zerolog.Level) {
	l.log = l.log.Level(level)
}

// Close releases the underlying file, if any.
func (l *ZerologLogger) Close() error {
	if l != nil && l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// FormatPacketLog formats a block for logging with data truncated to 16 bytes
func FormatPacketLog(direction string, p *Packet) string {
	return fmt.Sprintf("%s %s block=%d (~%d) crc=%04x data=%x...",
		direction, ControlName(p.Head), p.ID, p.IDComplement, p.CRC, p.Payload[:16])
}

// LoggingReader wraps a reader and logs all reads
type LoggingReader struct {
	reader ReaderWithTimeout
	logger Logger
	name   string
}

func NewLoggingReader(reader ReaderWithTimeout, logger Logger, name string) *LoggingReader {
	return &LoggingReader{
		reader: reader,
		logger: logger,
		name:   name,
	}
}

func (lr *LoggingReader) Read(p []byte) (int, error) {
	n, err := lr.reader.Read(p)
	if lr.logger != nil && n > 0 {
		lr.logger.Debug("%s: Read %d bytes: %q", lr.name, n, p[:n])
	}
	if err != nil && err != io.EOF && !isTimeout(err) && lr.logger != nil {
		lr.logger.Error("%s: Read error: %v", lr.name, err)
	}
	return n, err
}

func (lr *LoggingReader) SetReadDeadline(t time.Time) error {
	return lr.reader.SetReadDeadline(t)
}

// LoggingWriter wraps a writer and logs all writes
type LoggingWriter struct {
	writer io.Writer
	logger Logger
	name   string
}

func NewLoggingWriter(writer io.Writer, logger Logger, name string) *LoggingWriter {
	return &LoggingWriter{
		writer: writer,
		logger: logger,
		name:   name,
	}
}

func (lw *LoggingWriter) Write(p []byte) (int, error) {
	n, err := lw.writer.Write(p)
	if lw.logger != nil && n > 0 {
		lw.logger.Debug("%s: Wrote %d bytes: %q", lw.name, n, p[:n])
	}
	if err != nil && lw.logger != nil {
		lw.logger.Error("%s: Write error: %v", lw.name, err)
	}
	return n, err
}
