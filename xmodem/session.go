package xmodem

import (
	"context"
	"io"
	"os"
	"time"
)

// Session represents an XMODEM receive session over one line.
// It provides a high-level API on top of Receiver and StreamChannel.
type Session struct {
	// I/O
	reader ReaderWithTimeout
	writer io.Writer

	// Configuration
	config *Config

	// Callbacks
	callbacks *Callbacks

	// Context
	ctx context.Context

	// Logger
	logger Logger
}

// Config holds session configuration.
type Config struct {
	// Handshake
	MaxRetries  int
	PollTimeout time.Duration
	RetryDelay  time.Duration

	// Error ceiling
	MaxErrors        int
	CountFrameErrors bool

	// KeepPartial leaves a truncated file in place after a failed
	// ReceiveFile instead of removing it
	KeepPartial bool

	// Read buffer size for the line
	BufferSize int

	// Progress update interval
	ProgressInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	rc := DefaultReceiverConfig()
	return &Config{
		MaxRetries:       rc.MaxRetries,
		PollTimeout:      rc.PollTimeout,
		RetryDelay:       rc.RetryDelay,
		MaxErrors:        rc.MaxErrors,
		CountFrameErrors: rc.CountFrameErrors,
		KeepPartial:      false,
		BufferSize:       PacketSize * 2,
		ProgressInterval: rc.ProgressInterval,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		if config == nil {
			config = DefaultConfig()
		}
		s.config = config
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(callbacks)
	}
}

// WithContext sets the session context.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithSessionLogger sets a logger for protocol debugging.
func WithSessionLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a new XMODEM session reading the line from reader and
// answering on writer.
func NewSession(reader ReaderWithTimeout, writer io.Writer, opts ...Option) *Session {
	s := &Session{
		reader:    reader,
		writer:    writer,
		config:    DefaultConfig(),
		callbacks: defaultCallbacks(),
		ctx:       context.Background(),
		logger:    NoopLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// receiverConfig builds the engine configuration for one transfer.
func (s *Session) receiverConfig(name string) *ReceiverConfig {
	return &ReceiverConfig{
		MaxRetries:       s.config.MaxRetries,
		MaxErrors:        s.config.MaxErrors,
		PollTimeout:      s.config.PollTimeout,
		RetryDelay:       s.config.RetryDelay,
		CountFrameErrors: s.config.CountFrameErrors,
		Name:             name,
		ProgressInterval: s.config.ProgressInterval,
		Callbacks:        s.callbacks,
		Logger:           s.logger,
	}
}

// Receive runs one transfer and writes every accepted block to sink.
// It returns the number of bytes delivered, which on failure is the
// truncated prefix the caller must treat as invalid.
func (s *Session) Receive(ctx context.Context, sink io.Writer) (int64, error) {
	return s.receive(ctx, "", sink)
}

func (s *Session) receive(ctx context.Context, name string, sink io.Writer) (int64, error) {
	// Use context from session if not provided
	if ctx == nil {
		ctx = s.ctx
	}

	ch := NewStreamChannel(s.reader, s.writer, sink, s.config.BufferSize)
	ch.SetContext(ctx)

	r := NewReceiver(ch, s.receiverConfig(name))
	err := r.Receive()
	_, transferred := r.Stats()
	if err != nil {
		s.logger.Error("Receive: %v (%d bytes delivered)", err, transferred)
		s.callbacks.OnError(err, "receive")
		return transferred, err
	}
	return transferred, nil
}

// ReceiveFile receives one transfer into filename.
// The file is created through OnFileCreate when set, otherwise with
// os.Create. A failed transfer removes a file created here unless
// KeepPartial is set; a writer from OnFileCreate is closed if it is an
// io.Closer, and its cleanup belongs to the callback owner.
func (s *Session) ReceiveFile(ctx context.Context, filename string) error {
	var (
		file  io.Writer
		err   error
		owned bool
	)
	if s.callbacks.OnFileCreate != nil {
		file, err = s.callbacks.OnFileCreate(filename)
	} else {
		file, err = os.Create(filename)
		owned = true
	}
	if err != nil {
		s.callbacks.OnError(err, "create file")
		return err
	}

	s.logger.Info("ReceiveFile: receiving into %s", filename)
	_, err = s.receive(ctx, filename, file)

	if closer, ok := file.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			s.callbacks.OnError(cerr, "close file")
			err = cerr
		}
	}

	if err != nil {
		if owned && !s.config.KeepPartial {
			if rerr := os.Remove(filename); rerr != nil {
				s.logger.Error("ReceiveFile: removing partial %s: %v", filename, rerr)
				s.callbacks.OnError(rerr, "remove partial file")
			}
		}
		return err
	}

	s.logger.Info("ReceiveFile: completed %s", filename)
	return nil
}
