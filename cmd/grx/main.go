package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drunlade/go-xmodem/internal/logging"
	"github.com/drunlade/go-xmodem/serial"
	"github.com/drunlade/go-xmodem/xmodem"
	"github.com/rs/zerolog"
)

var (
	device     = flag.String("d", "", "serial device (default: stdin/stdout)")
	baud       = flag.Int("baud", 115200, "serial baud rate")
	configPath = flag.String("config", "", "TOML configuration file")
	logFile    = flag.String("log", "", "XMODEM protocol log file (for debugging)")
	keep       = flag.Bool("k", false, "keep partial file on failure")
	verbose    = flag.Bool("v", false, "verbose mode")
	quiet      = flag.Bool("q", false, "quiet mode")
	help       = flag.Bool("h", false, "show help")
	version    = flag.Bool("version", false, "show version")
)

const versionString = "grx version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s: exactly one file name required\n", os.Args[0])
		showUsage(1)
	}
	os.Exit(run(flag.Arg(0)))
}

func run(filename string) int {
	logger := logging.ConfigureRuntime()

	cfg := defaultRunConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadRunConfig(*configPath); err != nil {
			logger.Error().Err(err).Msg("config")
			return 1
		}
	}
	applyFlags(&cfg)

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan)
	defer cancel()

	protoLog, closeLog, err := protocolLogger(cfg, logger, *verbose)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.LogFile).Msg("open log file")
		return 1
	}
	defer closeLog()

	reader, writer, closeLine, err := openLine(cfg)
	if err != nil {
		logger.Error().Err(err).Str("device", cfg.Device).Msg("open line")
		return 1
	}
	defer closeLine()

	// Raw line tracing only goes to the protocol log file
	if cfg.LogFile != "" {
		reader = xmodem.NewLoggingReader(reader, protoLog, "line-rx")
		writer = xmodem.NewLoggingWriter(writer, protoLog, "line-tx")
	}

	callbacks := &xmodem.Callbacks{
		OnTransferStart: func(name string) {
			if *verbose && !*quiet {
				logger.Info().Str("file", name).Msg("sender answered, receiving")
			}
		},
		OnProgress: func(name string, transferred, total int64, rate float64) {
			if *verbose && !*quiet {
				fmt.Fprintf(os.Stderr, "\r%s: %d bytes (%.0f bytes/s)", name, transferred, rate)
			}
		},
		OnTransferComplete: func(name string, bytesTransferred int64, duration time.Duration) {
			if *quiet {
				return
			}
			if *verbose {
				fmt.Fprintln(os.Stderr)
			}
			logger.Info().Str("file", name).Int64("bytes", bytesTransferred).
				Dur("duration", duration).Msg("transfer complete")
		},
		OnError: func(err error, context string) {
			logger.Error().Err(err).Str("context", context).Msg("transfer failed")
		},
	}

	session := xmodem.NewSession(reader, writer,
		xmodem.WithConfig(cfg.Session),
		xmodem.WithCallbacks(callbacks),
		xmodem.WithContext(ctx),
		xmodem.WithSessionLogger(protoLog),
	)

	if err := session.ReceiveFile(ctx, filename); err != nil {
		return 1
	}
	return 0
}

// protocolLogger picks where protocol debugging goes: the configured log
// file at its own level, the console logger when verbose, or nowhere.
func protocolLogger(cfg runConfig, console zerolog.Logger, verbose bool) (xmodem.Logger, func(), error) {
	if cfg.LogFile != "" {
		fl, err := xmodem.NewFileLogger(cfg.LogFile)
		if err != nil {
			return nil, nil, err
		}
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
			fl.SetLevel(lvl)
		}
		return fl, func() { fl.Close() }, nil
	}
	if verbose {
		return xmodem.NewZerologLogger(console), func() {}, nil
	}
	return xmodem.NoopLogger{}, func() {}, nil
}

// applyFlags lets explicitly set flags win over the config file.
func applyFlags(cfg *runConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			cfg.Device = *device
		case "baud":
			cfg.Mode.BaudRate = *baud
		case "log":
			cfg.LogFile = *logFile
		case "k":
			cfg.Session.KeepPartial = *keep
		}
	})
}

// openLine opens the configured serial device, or puts stdin into raw mode
// and uses stdio.
func openLine(cfg runConfig) (xmodem.ReaderWithTimeout, io.Writer, func(), error) {
	if cfg.Device != "" {
		port, err := serial.Open(cfg.Device, cfg.Mode)
		if err != nil {
			return nil, nil, nil, err
		}
		return port, port, func() { port.Close() }, nil
	}

	restore, err := serial.MakeRaw(os.Stdin)
	if err != nil {
		return nil, nil, nil, err
	}
	return xmodem.NewDeadlineReader(os.Stdin), os.Stdout, func() { restore() }, nil
}

func signalContext(sigChan chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - receive a file with XMODEM-CRC

Usage: %s [options] <filename>

Options:
  -d device        serial device (default: stdin/stdout)
  -baud N          serial baud rate (default: 115200)
  -config file     TOML configuration file
  -log file        protocol log file for debugging
  -k               keep partial file on failure
  -h               show this help message
  -q               quiet mode, minimal output
  -v               verbose mode
  -version         show version

Examples:
  %s -d /dev/ttyUSB0 firmware.bin     # Receive over a serial port
  %s -config grx.toml out.bin         # Settings from a file
  %s out.bin                          # Receive over stdin/stdout

`, versionString, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
