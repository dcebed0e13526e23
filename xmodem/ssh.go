package xmodem

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// DefaultSenderCommand is the remote command used to start an XMODEM
// sender. The path of the file to send is appended.
const DefaultSenderCommand = "sx"

// SSHSession wraps an SSH session for XMODEM transfers.
// It manages stdin/stdout/stderr pipes and runs the remote sender.
type SSHSession struct {
	*Session
	sshSession *ssh.Session
	stdin      io.WriteCloser
	stdout     io.Reader
	stderr     io.Reader

	// SenderCommand is the remote XMODEM sender
	SenderCommand string
}

// NewSSHSession creates an XMODEM session from an SSH session.
func NewSSHSession(sshSession *ssh.Session, opts ...Option) (*SSHSession, error) {
	// Get pipes
	stdin, err := sshSession.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	stderr, err := sshSession.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	// SSH channels have no deadlines; the handshake poll needs them
	session := NewSession(NewDeadlineReader(stdout), stdin, opts...)

	return &SSHSession{
		Session:       session,
		sshSession:    sshSession,
		stdin:         stdin,
		stdout:        stdout,
		stderr:        stderr,
		SenderCommand: DefaultSenderCommand,
	}, nil
}

// ReceiveFile runs the remote sender for remotePath and receives the file
// into localPath.
func (s *SSHSession) ReceiveFile(ctx context.Context, remotePath, localPath string) error {
	cmd := fmt.Sprintf("%s %s", s.SenderCommand, shellQuote(remotePath))
	s.logger.Info("SSHSession: starting %q", cmd)
	if err := s.sshSession.Start(cmd); err != nil {
		return err
	}

	// Wait for command to finish in background
	done := make(chan error, 1)
	go func() {
		done <- s.sshSession.Wait()
	}()

	err := s.Session.ReceiveFile(ctx, localPath)

	// Close stdin to signal completion
	s.stdin.Close()

	select {
	case err2 := <-done:
		if err == nil {
			err = err2
		}
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	return err
}

// Close closes the SSH session and cleans up resources.
func (s *SSHSession) Close() error {
	var errs []error

	if s.stdin != nil {
		if err := s.stdin.Close(); err != nil && err != io.EOF {
			errs = append(errs, err)
		}
	}

	if s.sshSession != nil {
		if err := s.sshSession.Close(); err != nil && err != io.EOF {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0] // Return first error
	}

	return nil
}

// Stderr returns the stderr reader for monitoring remote command output.
func (s *SSHSession) Stderr() io.Reader {
	return s.stderr
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	out := []byte{'\''}
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, `'\''`...)
			continue
		}
		out = append(out, s[i])
	}
	return string(append(out, '\''))
}
