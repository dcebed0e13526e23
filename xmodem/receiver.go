package xmodem

import (
	"fmt"
	"io"
	"time"
)

// Receiver runs the XMODEM-CRC receive state machine over a Channel.
// A Receiver handles one transfer per Receive call; no state survives
// between calls.
type Receiver struct {
	ch Channel

	// Configuration
	maxRetries       int
	maxErrors        int
	pollTimeout      time.Duration
	retryDelay       time.Duration
	countFrameErrors bool
	name             string

	// Per-transfer state
	expected byte
	errors   int
	buf      [PacketSize]byte

	callbacks *Callbacks
	progress  *ProgressTracker
	logger    Logger
}

// ReceiverConfig holds configuration for a receiver.
type ReceiverConfig struct {
	// MaxRetries bounds the number of 'C' polls sent during the handshake
	MaxRetries int

	// MaxErrors is the ceiling for consecutive unrecognized leading bytes
	MaxErrors int

	// PollTimeout bounds each availability check during the handshake
	PollTimeout time.Duration

	// RetryDelay is the pause between handshake attempts
	RetryDelay time.Duration

	// CountFrameErrors makes CRC and sequence failures count toward
	// MaxErrors as well. Off by default.
	CountFrameErrors bool

	// Name labels the transfer in callbacks and logs
	Name string

	ProgressInterval time.Duration
	Callbacks        *Callbacks
	Logger           Logger
}

// DefaultReceiverConfig returns a default receiver configuration.
func DefaultReceiverConfig() *ReceiverConfig {
	return &ReceiverConfig{
		MaxRetries:       25,
		MaxErrors:        100,
		PollTimeout:      5 * time.Millisecond,
		RetryDelay:       time.Second,
		CountFrameErrors: false,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// NewReceiver creates a new XMODEM receiver. A nil config uses
// DefaultReceiverConfig.
func NewReceiver(ch Channel, config *ReceiverConfig) *Receiver {
	if config == nil {
		config = DefaultReceiverConfig()
	}
	callbacks := mergeCallbacks(config.Callbacks)
	var logger Logger = NoopLogger{}
	if config.Logger != nil {
		logger = config.Logger
	}

	r := &Receiver{
		ch:               ch,
		maxRetries:       config.MaxRetries,
		maxErrors:        config.MaxErrors,
		pollTimeout:      config.PollTimeout,
		retryDelay:       config.RetryDelay,
		countFrameErrors: config.CountFrameErrors,
		name:             config.Name,
		callbacks:        callbacks,
		progress:         NewProgressTracker(callbacks.OnProgress, config.ProgressInterval),
		logger:           logger,
	}

	r.logger.Info("Receiver created (maxRetries=%d, maxErrors=%d, countFrameErrors=%v)",
		r.maxRetries, r.maxErrors, r.countFrameErrors)
	return r
}

// Receive performs the handshake and then accepts blocks until EOT.
//
// Corrupt or out-of-sequence blocks are answered with NAK and never
// returned as errors. Everything else that stops the transfer is an
// *Error: ErrHandshakeTimeout, ErrTooManyErrors, ErrSinkWrite or
// ErrChannel. After a failure no more payload reaches the sink.
func (r *Receiver) Receive() error {
	r.expected = 1
	r.errors = 0

	if err := r.handshake(); err != nil {
		return err
	}

	r.progress.Start(r.name)
	r.callbacks.OnTransferStart(r.name)
	return r.receiveBlocks()
}

// Stats returns the blocks and bytes accepted by the last Receive call.
func (r *Receiver) Stats() (blocks int, transferred int64) {
	return r.progress.Stats()
}

// handshake polls the sender with 'C' until it starts talking.
// The byte that ends the handshake is left in the channel for the block
// loop.
func (r *Receiver) handshake() error {
	for retries := 0; retries < r.maxRetries; retries++ {
		if err := r.sendControl(WANTCRC); err != nil {
			return err
		}

		ok, err := r.ch.Available(r.pollTimeout)
		if err != nil {
			r.logger.Error("handshake: poll error: %v", err)
			return WrapError(ErrChannel, "poll", err)
		}
		if ok {
			r.logger.Info("handshake: sender answered after %d attempt(s)", retries+1)
			r.event(EventHandshake, 0, "sender answered")
			return nil
		}

		r.logger.Debug("handshake: no response (try %d/%d)", retries+1, r.maxRetries)
		r.ch.Delay(r.retryDelay)
	}

	r.logger.Error("handshake: no response after %d attempts", r.maxRetries)
	return NewError(ErrHandshakeTimeout, fmt.Sprintf("no response after %d attempts", r.maxRetries))
}

// receiveBlocks is the block loop. It returns nil only after EOT.
func (r *Receiver) receiveBlocks() error {
	for {
		head, err := r.readByte()
		if err != nil {
			return err
		}

		switch head {
		case SOH:
			r.buf[0] = head
			for i := 1; i < PacketSize; i++ {
				if r.buf[i], err = r.readByte(); err != nil {
					return err
				}
			}
			if err := r.handleBlock(); err != nil {
				return err
			}

		case EOT:
			if err := r.sendControl(ACK); err != nil {
				return err
			}
			duration := r.progress.Complete()
			blocks, transferred := r.progress.Stats()
			r.logger.Info("receive: EOT after %d block(s), %d bytes in %v", blocks, transferred, duration)
			r.event(EventComplete, 0, "EOT acknowledged")
			r.callbacks.OnTransferComplete(r.name, transferred, duration)
			return nil

		default:
			r.event(EventNoise, 0, fmt.Sprintf("unexpected %s", ControlName(head)))
			if r.countError() {
				return r.cancel(NewError(ErrTooManyErrors,
					fmt.Sprintf("%d consecutive errors", r.errors)))
			}
			r.logger.Debug("receive: noise %s (errors=%d)", ControlName(head), r.errors)
			if err := r.sendControl(NAK); err != nil {
				return err
			}
		}
	}
}

// handleBlock validates the assembled block, hands it to the sink and
// answers the sender.
func (r *Receiver) handleBlock() error {
	var pkt Packet
	if err := pkt.UnmarshalBinary(r.buf[:]); err != nil {
		return err
	}

	payload, err := pkt.Validate(r.expected)
	if err != nil {
		r.logger.Debug("receive: %s rejected: %v", FormatPacketLog("<-", &pkt), err)
		r.event(EventPacketRejected, pkt.ID, err.Error())
		if r.countFrameErrors && r.countError() {
			return r.cancel(NewError(ErrTooManyErrors,
				fmt.Sprintf("%d consecutive errors", r.errors)))
		}
		return r.sendControl(NAK)
	}

	n, err := r.ch.WritePayload(payload)
	if err == nil && n != len(payload) {
		err = io.ErrShortWrite
	}
	if err != nil {
		r.logger.Error("receive: sink write of block %d failed: %v", pkt.ID, err)
		return r.cancel(WrapError(ErrSinkWrite, fmt.Sprintf("block %d", pkt.ID), err))
	}

	r.logger.Debug("receive: %s accepted", FormatPacketLog("<-", &pkt))
	r.expected++
	r.errors = 0
	r.progress.Block(n)
	r.event(EventPacketAccepted, pkt.ID, "")
	return r.sendControl(ACK)
}

// countError bumps the error counter and reports whether the ceiling
// was exceeded.
func (r *Receiver) countError() bool {
	r.errors++
	return r.errors > r.maxErrors
}

// cancel tells the sender to give up and returns cause.
func (r *Receiver) cancel(cause *Error) error {
	r.logger.Error("receive: cancelling: %v", cause)
	if err := r.sendControl(CAN); err != nil {
		return err
	}
	r.event(EventCancelled, 0, cause.Error())
	return cause
}

func (r *Receiver) readByte() (byte, error) {
	b, err := r.ch.ReadByte()
	if err != nil {
		r.logger.Error("receive: read error: %v", err)
		return 0, WrapError(ErrChannel, "read", err)
	}
	return b, nil
}

func (r *Receiver) sendControl(b byte) error {
	if err := r.ch.WriteByte(b); err != nil {
		r.logger.Error("send %s: %v", ControlName(b), err)
		return WrapError(ErrChannel, "write "+ControlName(b), err)
	}
	r.event(EventControlSent, r.expected, ControlName(b))
	return nil
}

func (r *Receiver) event(t EventType, block byte, msg string) {
	r.callbacks.OnEvent(Event{
		Type:      t,
		Message:   msg,
		Block:     block,
		Timestamp: time.Now(),
	})
}
