package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/songauth/internal/config"
	"github.com/dharsanguruparan/songauth/internal/logger"
)

// errMismatch makes verify exit with status 1 without printing an error.
var errMismatch = errors.New("signature mismatch")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errMismatch) {
			fmt.Fprintf(os.Stderr, "songauth: %v\n", err)
		}
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the root command has read the
// environment.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	// Flag overrides applied on top of the environment.
	scheme   string
	keyFile  string
	logLevel string
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "songauth",
		Short: "Sign and verify song names with an RSA key",
		Long: `songauth signs song names (or any message) with an RSA private key and verifies
the resulting hex signatures. Configuration comes from SONGAUTH_* environment
variables; see "songauth env".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.scheme, "scheme", "", "Signature scheme (overrides SONGAUTH_SCHEME)")
	cmd.PersistentFlags().StringVarP(&a.keyFile, "key", "k", "", "PEM private key file (overrides the configured key source)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides SONGAUTH_LOG_LEVEL)")
	cmd.AddCommand(
		newSignCmd(a),
		newVerifyCmd(a),
		newKeygenCmd(a),
		newPubkeyCmd(a),
		newEnqueueCmd(a),
		newRecordCmd(a),
		newEnvCmd(),
	)
	return cmd
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.scheme != "" {
		cfg.Scheme = a.scheme
	}
	if a.keyFile != "" {
		cfg.KeySource = config.KeySourceFile
		cfg.PrivateKeyPath = a.keyFile
		// The configured public key belongs to another key pair; verify
		// derives it from --key unless --public-key is given.
		cfg.PublicKeyPath = ""
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	log, err := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log
	return nil
}
