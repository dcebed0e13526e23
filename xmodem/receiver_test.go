package xmodem

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// scriptChannel replays a fixed input and records everything the receiver
// writes.
type scriptChannel struct {
	input []byte
	pos   int

	// availableAfter is the number of polls that report nothing before
	// input shows up; negative means the sender never answers
	availableAfter int
	polls          int

	delays   int
	written  []byte
	payloads [][]byte

	sinkShort bool
	sinkErr   error
	writeErr  error
}

func (c *scriptChannel) ReadByte() (byte, error) {
	if c.pos >= len(c.input) {
		return 0, io.EOF
	}
	b := c.input[c.pos]
	c.pos++
	return b, nil
}

func (c *scriptChannel) Available(timeout time.Duration) (bool, error) {
	c.polls++
	if c.availableAfter < 0 || c.polls <= c.availableAfter {
		return false, nil
	}
	return c.pos < len(c.input), nil
}

func (c *scriptChannel) WriteByte(b byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, b)
	return nil
}

func (c *scriptChannel) Delay(d time.Duration) {
	c.delays++
}

func (c *scriptChannel) WritePayload(p []byte) (int, error) {
	if c.sinkErr != nil {
		return 0, c.sinkErr
	}
	c.payloads = append(c.payloads, append([]byte(nil), p...))
	if c.sinkShort {
		return len(p) - 1, nil
	}
	return len(p), nil
}

func packetBytes(t *testing.T, id byte, payload []byte) []byte {
	t.Helper()
	buf, err := NewPacket(id, payload).MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return buf
}

func corruptCRC(buf []byte) []byte {
	out := append([]byte(nil), buf...)
	out[PacketSize-1] ^= 0xFF
	return out
}

func script(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func testConfig() *ReceiverConfig {
	cfg := DefaultReceiverConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func expectWritten(t *testing.T, ch *scriptChannel, want ...byte) {
	t.Helper()
	if !bytes.Equal(ch.written, want) {
		got := make([]string, len(ch.written))
		for i, b := range ch.written {
			got[i] = ControlName(b)
		}
		exp := make([]string, len(want))
		for i, b := range want {
			exp[i] = ControlName(b)
		}
		t.Fatalf("written %v, want %v", got, exp)
	}
}

func TestReceiveSingleBlock(t *testing.T) {
	payload := testPayload(1)
	ch := &scriptChannel{input: script(packetBytes(t, 1, payload), []byte{EOT})}

	if err := NewReceiver(ch, testConfig()).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, ACK, ACK)
	if len(ch.payloads) != 1 || !bytes.Equal(ch.payloads[0], payload) {
		t.Fatalf("sink got %d payloads", len(ch.payloads))
	}
}

func TestReceiveEmptyTransfer(t *testing.T) {
	ch := &scriptChannel{input: []byte{EOT}}
	if err := NewReceiver(ch, testConfig()).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, ACK)
	if len(ch.payloads) != 0 {
		t.Fatalf("unexpected payloads: %d", len(ch.payloads))
	}
}

func TestReceiveHandshakeTimeout(t *testing.T) {
	ch := &scriptChannel{input: []byte{EOT}, availableAfter: -1}
	cfg := testConfig()

	err := NewReceiver(ch, cfg).Receive()
	if !IsHandshakeTimeout(err) {
		t.Fatalf("expected handshake timeout, got %v", err)
	}
	if len(ch.written) != cfg.MaxRetries {
		t.Fatalf("sent %d polls, want %d", len(ch.written), cfg.MaxRetries)
	}
	for _, b := range ch.written {
		if b != WANTCRC {
			t.Fatalf("unexpected byte during handshake: %s", ControlName(b))
		}
	}
	if ch.delays != cfg.MaxRetries {
		t.Fatalf("delayed %d times, want %d", ch.delays, cfg.MaxRetries)
	}
	if ch.pos != 0 || len(ch.payloads) != 0 {
		t.Fatalf("engine consumed input or wrote to sink after timeout")
	}
}

func TestReceiveHandshakeRetriesUntilSenderAnswers(t *testing.T) {
	ch := &scriptChannel{
		input:          script(packetBytes(t, 1, testPayload(1)), []byte{EOT}),
		availableAfter: 3,
	}
	if err := NewReceiver(ch, testConfig()).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, WANTCRC, WANTCRC, WANTCRC, ACK, ACK)
	if ch.delays != 3 {
		t.Fatalf("delayed %d times, want 3", ch.delays)
	}
}

func TestReceiveNoiseCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxErrors = 5
	ch := &scriptChannel{input: bytes.Repeat([]byte{'x'}, cfg.MaxErrors+1)}

	err := NewReceiver(ch, cfg).Receive()
	if !IsTooManyErrors(err) {
		t.Fatalf("expected too many errors, got %v", err)
	}
	want := []byte{WANTCRC}
	want = append(want, bytes.Repeat([]byte{NAK}, cfg.MaxErrors)...)
	want = append(want, CAN)
	expectWritten(t, ch, want...)
	if len(ch.payloads) != 0 {
		t.Fatalf("sink invoked %d times", len(ch.payloads))
	}
}

func TestReceiveNoiseBelowCeilingRecovers(t *testing.T) {
	ch := &scriptChannel{input: script([]byte{0x00, 0xFF, STX}, packetBytes(t, 1, testPayload(1)), []byte{EOT})}
	if err := NewReceiver(ch, testConfig()).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, NAK, NAK, NAK, ACK, ACK)
}

func TestReceiveAcceptedBlockResetsErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxErrors = 2
	noise := []byte{'?', '?'}
	ch := &scriptChannel{input: script(
		noise, packetBytes(t, 1, testPayload(1)),
		noise, packetBytes(t, 2, testPayload(2)),
		[]byte{EOT},
	)}
	if err := NewReceiver(ch, cfg).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, NAK, NAK, ACK, NAK, NAK, ACK, ACK)
}

func TestReceiveCorruptedThenRetransmitted(t *testing.T) {
	good := packetBytes(t, 1, testPayload(1))
	ch := &scriptChannel{input: script(corruptCRC(good), good, []byte{EOT})}

	if err := NewReceiver(ch, testConfig()).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, NAK, ACK, ACK)
	if len(ch.payloads) != 1 {
		t.Fatalf("sink invoked %d times, want 1", len(ch.payloads))
	}
}

func TestReceiveRejectsReplayedBlock(t *testing.T) {
	first := packetBytes(t, 1, testPayload(1))
	second := packetBytes(t, 2, testPayload(2))
	ch := &scriptChannel{input: script(first, first, second, []byte{EOT})}

	if err := NewReceiver(ch, testConfig()).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, ACK, NAK, ACK, ACK)
	if len(ch.payloads) != 2 {
		t.Fatalf("sink invoked %d times, want 2", len(ch.payloads))
	}
	if !bytes.Equal(ch.payloads[1], testPayload(2)) {
		t.Fatalf("second payload is not block 2")
	}
}

func TestReceiveBadComplementIsNAKed(t *testing.T) {
	bad := packetBytes(t, 1, testPayload(1))
	bad[2] = 0x00
	ch := &scriptChannel{input: script(bad, []byte{EOT})}

	if err := NewReceiver(ch, testConfig()).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, NAK, ACK)
	if len(ch.payloads) != 0 {
		t.Fatalf("sink invoked for a rejected block")
	}
}

func TestReceiveSequenceWraps(t *testing.T) {
	const blocks = 300
	var parts [][]byte
	for i := 1; i <= blocks; i++ {
		parts = append(parts, packetBytes(t, byte(i), testPayload(byte(i))))
	}
	parts = append(parts, []byte{EOT})
	ch := &scriptChannel{input: script(parts...)}

	r := NewReceiver(ch, testConfig())
	if err := r.Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(ch.payloads) != blocks {
		t.Fatalf("accepted %d blocks, want %d", len(ch.payloads), blocks)
	}
	for i, p := range ch.payloads {
		if !bytes.Equal(p, testPayload(byte(i+1))) {
			t.Fatalf("block %d out of order", i+1)
		}
	}
	n, transferred := r.Stats()
	if n != blocks || transferred != blocks*BlockSize {
		t.Fatalf("stats = %d blocks %d bytes", n, transferred)
	}
}

func TestReceiveSinkShortWriteCancels(t *testing.T) {
	ch := &scriptChannel{
		input:     script(packetBytes(t, 1, testPayload(1)), packetBytes(t, 2, testPayload(2)), []byte{EOT}),
		sinkShort: true,
	}
	err := NewReceiver(ch, testConfig()).Receive()
	if !IsSinkWrite(err) {
		t.Fatalf("expected sink write error, got %v", err)
	}
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("expected short write cause, got %v", err)
	}
	expectWritten(t, ch, WANTCRC, CAN)
	if len(ch.payloads) != 1 {
		t.Fatalf("sink invoked %d times after failure", len(ch.payloads))
	}
}

func TestReceiveSinkErrorCancels(t *testing.T) {
	diskFull := errors.New("disk full")
	ch := &scriptChannel{
		input:   script(packetBytes(t, 1, testPayload(1)), []byte{EOT}),
		sinkErr: diskFull,
	}
	err := NewReceiver(ch, testConfig()).Receive()
	if !IsSinkWrite(err) || !errors.Is(err, diskFull) {
		t.Fatalf("expected sink write error wrapping cause, got %v", err)
	}
	expectWritten(t, ch, WANTCRC, CAN)
}

func TestReceiveChannelReadFailure(t *testing.T) {
	truncated := packetBytes(t, 1, testPayload(1))[:60]
	ch := &scriptChannel{input: truncated}

	err := NewReceiver(ch, testConfig()).Receive()
	if !IsChannel(err) || !errors.Is(err, io.EOF) {
		t.Fatalf("expected channel error wrapping EOF, got %v", err)
	}
	// no protocol signaling once the line is gone
	expectWritten(t, ch, WANTCRC)
	if len(ch.payloads) != 0 {
		t.Fatalf("sink invoked for a partial block")
	}
}

func TestReceiveChannelWriteFailure(t *testing.T) {
	broken := errors.New("line down")
	ch := &scriptChannel{input: []byte{EOT}, writeErr: broken}

	err := NewReceiver(ch, testConfig()).Receive()
	if !IsChannel(err) || !errors.Is(err, broken) {
		t.Fatalf("expected channel error, got %v", err)
	}
	if ch.polls != 0 {
		t.Fatalf("polled after failed write")
	}
}

func TestReceiveFrameErrorsIgnoredByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.MaxErrors = 1
	bad := corruptCRC(packetBytes(t, 1, testPayload(1)))
	ch := &scriptChannel{input: script(bad, bad, bad, []byte{EOT})}

	if err := NewReceiver(ch, cfg).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	expectWritten(t, ch, WANTCRC, NAK, NAK, NAK, ACK)
}

func TestReceiveCountFrameErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxErrors = 2
	cfg.CountFrameErrors = true
	bad := corruptCRC(packetBytes(t, 1, testPayload(1)))
	ch := &scriptChannel{input: script(bad, bad, bad, []byte{EOT})}

	err := NewReceiver(ch, cfg).Receive()
	if !IsTooManyErrors(err) {
		t.Fatalf("expected too many errors, got %v", err)
	}
	expectWritten(t, ch, WANTCRC, NAK, NAK, CAN)
}

func TestReceiveCallbacks(t *testing.T) {
	var (
		started   string
		completed int64
		accepted  int
		rejected  int
	)
	cfg := testConfig()
	cfg.Name = "out.bin"
	cfg.Callbacks = &Callbacks{
		OnTransferStart: func(name string) { started = name },
		OnTransferComplete: func(name string, n int64, d time.Duration) {
			completed = n
		},
		OnEvent: func(e Event) {
			switch e.Type {
			case EventPacketAccepted:
				accepted++
			case EventPacketRejected:
				rejected++
			}
		},
	}
	good1 := packetBytes(t, 1, testPayload(1))
	ch := &scriptChannel{input: script(good1, corruptCRC(packetBytes(t, 2, testPayload(2))), packetBytes(t, 2, testPayload(2)), []byte{EOT})}

	if err := NewReceiver(ch, cfg).Receive(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if started != "out.bin" {
		t.Fatalf("unexpected start name %q", started)
	}
	if completed != 2*BlockSize {
		t.Fatalf("completed with %d bytes", completed)
	}
	if accepted != 2 || rejected != 1 {
		t.Fatalf("accepted=%d rejected=%d", accepted, rejected)
	}
}
