// Command bjnp is a utility program for Canon multi-function printers,
// used for detecting presence of printer(s) on the LAN or listening for
// scan button presses.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnmave126/scanner-button/bjnp"
	"github.com/johnmave126/scanner-button/internal/listen"
	"github.com/johnmave126/scanner-button/internal/scan"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const commandLongHelp = `Listens on a scanner for scan button press and executes a command.

The configuration reported by the printer is passed to the executed command by environment variables:
  SCANNER_COLOR_MODE = COLOR | MONO
  SCANNER_PAGE       = A4 | LETTER | 10x15 | 13x18 | AUTO
  SCANNER_FORMAT     = JPEG | TIFF | PDF | KOMPAKT_PDF
  SCANNER_DPI        = 75 | 150 | 300 | 600
  SCANNER_SOURCE     = FLATBED | FEEDER
  SCANNER_ADF_TYPE   = SIMPLEX | DUPLEX
  SCANNER_ADF_ORIENT = PORTRAIT | LANDSCAPE`

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		verbose    int
		quiet      bool
		maxWaiting uint64
	)

	root := &cobra.Command{
		Use:           "bjnp",
		Short:         "Detect Canon multi-function printers or listen for scan button presses",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if maxWaiting < 1 {
				return fmt.Errorf("--max-waiting must be at least 1, got %d", maxWaiting)
			}
			setupLogging(verbose, quiet)
			return nil
		},
	}
	root.PersistentFlags().Uint64Var(&maxWaiting, "max-waiting", 5, "initial max waiting in seconds for an awaited response")
	root.PersistentFlags().CountVarP(&verbose, "verbose", "v", "verbosity of messages (use -v, -vv, -vvv... to increase verbosity)")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "disable logging")

	root.AddCommand(newListenCommand(&maxWaiting))
	root.AddCommand(newScanCommand(&maxWaiting))
	return root
}

func newListenCommand(maxWaiting *uint64) *cobra.Command {
	var (
		scanner        string
		hostname       string
		backoffFactor  float64
		backoffMaximum uint64
	)

	cmd := &cobra.Command{
		Use:   "listen --scanner ADDR [flags] -- COMMAND [ARG...]",
		Short: "Listen on a scanner for scan button press and execute a command",
		Long:  commandLongHelp,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if backoffFactor <= 1.0 {
				return fmt.Errorf("--backoff-factor must be greater than 1.0, got %g", backoffFactor)
			}
			if backoffMaximum < 1 {
				return fmt.Errorf("--backoff-maximum must be at least 1, got %d", backoffMaximum)
			}

			addr, err := resolveScannerAddr(scanner)
			if err != nil {
				return err
			}
			if hostname == "" {
				hostname, err = os.Hostname()
				if err != nil {
					return fmt.Errorf("couldn't determine hostname: %w", err)
				}
			}

			cfg := listen.Config{
				ScannerAddr:       addr,
				Hostname:          bjnp.NewHost(hostname),
				InitialMaxWaiting: time.Duration(*maxWaiting) * time.Second,
				BackoffFactor:     backoffFactor,
				BackoffMaximum:    time.Duration(backoffMaximum) * time.Second,
				Command:           args[0],
				Args:              args[1:],
			}

			listener, err := listen.New(cfg)
			if err != nil {
				return err
			}
			defer listener.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&scanner, "scanner", "s", "", "the address of the scanner")
	cmd.Flags().StringVar(&hostname, "hostname", "", "name of the host to be displayed on the scanner (default the system hostname)")
	cmd.Flags().Float64Var(&backoffFactor, "backoff-factor", 2.0, "exponential factor of backing off for retrying connection")
	cmd.Flags().Uint64Var(&backoffMaximum, "backoff-maximum", 1800, "maximum max waiting in seconds of backing off for retrying connection")
	cmd.MarkFlagRequired("scanner")
	return cmd
}

func newScanCommand(maxWaiting *uint64) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan for Canon multi-function printers in the LAN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return scan.Run(ctx, time.Duration(*maxWaiting)*time.Second)
		},
	}
}

// resolveScannerAddr parses ADDR as host[:port], resolving the host and
// defaulting the port to the BJNP port.
func resolveScannerAddr(s string) (*net.UDPAddr, error) {
	host, port := s, strconv.Itoa(bjnp.Port)
	if h, p, err := net.SplitHostPort(s); err == nil {
		host, port = h, p
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("couldn't resolve scanner address %q: %w", s, err)
	}
	return addr, nil
}

func setupLogging(verbose int, quiet bool) {
	if quiet {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return
	}
	level := slog.LevelWarn
	switch verbose {
	case 0:
	case 1:
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
