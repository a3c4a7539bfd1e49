package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/songauth/internal/authenticator"
	"github.com/dharsanguruparan/songauth/internal/config"
	"github.com/dharsanguruparan/songauth/internal/database"
	"github.com/dharsanguruparan/songauth/internal/keys"
	"github.com/dharsanguruparan/songauth/internal/keysource"
	"github.com/dharsanguruparan/songauth/internal/model"
	"github.com/dharsanguruparan/songauth/internal/processing"
	"github.com/dharsanguruparan/songauth/internal/queue"
	"github.com/dharsanguruparan/songauth/internal/repository"
	"github.com/dharsanguruparan/songauth/internal/storage"
)

var errNoDatabase = errors.New("SONGAUTH_DATABASE_URL is not set")

func newSignCmd(a *app) *cobra.Command {
	var (
		file    string
		lines   bool
		record  bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "sign [message]",
		Short: "Print the hex signature of a message",
		Long: `Sign a message given as an argument, read from --file, or read from stdin.
With --lines every input line is signed separately and one signature is printed
per line, in input order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input, err := readMessage(cmd, args, file)
			if err != nil {
				return err
			}
			signer, err := keysource.LoadSigner(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if lines {
				if workers <= 0 {
					workers = a.cfg.BatchWorkers
				}
				sign := func(m string) (string, error) { return signer.Sign([]byte(m)) }
				results, err := processing.New(sign, workers, a.logger).SignAll(ctx, splitLines(input))
				if err != nil {
					return err
				}
				for _, res := range results {
					if res.Err != nil {
						return res.Err
					}
					fmt.Fprintln(out, res.Signature)
				}
				return nil
			}

			if !record {
				sig, err := signer.Sign(input)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, sig)
				return nil
			}

			ledger, closeLedger, err := a.openLedger(ctx, true)
			if err != nil {
				return err
			}
			defer closeLedger()
			auth, err := authenticator.New(signer, authenticator.WithLedger(ledger), authenticator.WithLogger(a.logger))
			if err != nil {
				return err
			}
			rec, err := auth.Authenticate(ctx, input)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, rec.Signature)
			fmt.Fprintf(cmd.ErrOrStderr(), "record %s\n", rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read the message from a file")
	cmd.Flags().BoolVar(&lines, "lines", false, "Sign each input line separately")
	cmd.Flags().BoolVar(&record, "record", false, "Store the signature in the ledger and print the record id on stderr")
	cmd.Flags().IntVar(&workers, "workers", 0, "Signing goroutines for --lines (default SONGAUTH_BATCH_WORKERS)")
	cmd.MarkFlagsMutuallyExclusive("lines", "record")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		file      string
		signature string
		publicKey string
	)
	cmd := &cobra.Command{
		Use:   "verify [message] --signature HEX",
		Short: "Check a hex signature; exits 1 on mismatch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input, err := readMessage(cmd, args, file)
			if err != nil {
				return err
			}
			if publicKey != "" {
				a.cfg.KeySource = config.KeySourceFile
				a.cfg.PublicKeyPath = publicKey
			}
			verifier, err := keysource.LoadVerifier(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			if !verifier.Verify(input, signature) {
				fmt.Fprintln(cmd.OutOrStdout(), "mismatch")
				return errMismatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read the message from a file")
	cmd.Flags().StringVarP(&signature, "signature", "s", "", "Hex signature to check")
	cmd.Flags().StringVar(&publicKey, "public-key", "", "PEM public key file (overrides the configured key source)")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func newKeygenCmd(a *app) *cobra.Command {
	var (
		bits   int
		out    string
		pubOut string
		force  bool
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "keygen --out key.pem",
		Short: "Generate a new RSA signing key",
		Long: `Generate a new RSA signing key. The private key is written as PKCS#1 PEM to
--out and, with --upload, to the configured S3 key bucket along with its public
half.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" && !upload {
				return errors.New("give --out, --upload or both")
			}
			key, err := keys.Generate(bits)
			if err != nil {
				return err
			}
			privPEM := keys.EncodePrivateKey(key)
			pubPEM, err := keys.EncodePublicKey(&key.PublicKey)
			if err != nil {
				return err
			}
			if out != "" {
				if err := writeFile(out, privPEM, 0o600, force); err != nil {
					return err
				}
			}
			if pubOut != "" {
				if err := writeFile(pubOut, pubPEM, 0o644, force); err != nil {
					return err
				}
			}
			if upload {
				if err := uploadKeys(cmd.Context(), a.cfg, privPEM, pubPEM); err != nil {
					return err
				}
			}
			fp, err := keys.Fingerprint(&key.PublicKey)
			if err != nil {
				return err
			}
			a.logger.Info("key generated",
				zap.String("path", out),
				zap.Bool("uploaded", upload),
				zap.Int("bits", key.N.BitLen()))
			fmt.Fprintln(cmd.OutOrStdout(), fp)
			return nil
		},
	}
	cmd.Flags().IntVar(&bits, "bits", keys.DefaultBits, "RSA modulus size")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Private key output path")
	cmd.Flags().StringVar(&pubOut, "pub-out", "", "Public key output path")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&upload, "upload", false, "Store both keys in the S3 key bucket (SONGAUTH_KEY_BUCKET)")
	return cmd
}

// uploadKeys stores a key pair under the configured S3 object names.
func uploadKeys(ctx context.Context, cfg *config.Config, privPEM, pubPEM []byte) error {
	store, err := keysource.NewObjectStore(cfg)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}
	if err := store.Object(cfg.PrivateKeyObject).Put(ctx, privPEM); err != nil {
		return err
	}
	return store.Object(cfg.PublicKeyObject).Put(ctx, pubPEM)
}

func newPubkeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print the public key and fingerprint of the configured private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := keysource.FromConfig(a.cfg)
			if err != nil {
				return err
			}
			key, err := keysource.LoadPrivateKey(cmd.Context(), pair.Private, a.cfg.KeyBits)
			if err != nil {
				return err
			}
			pubPEM, err := keys.EncodePublicKey(&key.PublicKey)
			if err != nil {
				return err
			}
			fp, err := keys.Fingerprint(&key.PublicKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sha256:%s\n%s", fp, pubPEM)
			return nil
		},
	}
}

func newEnqueueCmd(a *app) *cobra.Command {
	var (
		file string
		id   string
	)
	cmd := &cobra.Command{
		Use:   "enqueue [message]",
		Short: "Schedule an asynchronous signing job and print its record id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readMessage(cmd, args, file)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}
			client := asynq.NewClient(asynq.RedisClientOpt{
				Addr:     a.cfg.RedisAddr,
				Password: a.cfg.RedisPassword,
				DB:       a.cfg.RedisDB,
			})
			defer client.Close()
			if err := queue.EnqueueSign(cmd.Context(), client, queue.SignPayload{RecordID: id, Message: input}); err != nil {
				return err
			}
			a.logger.Debug("sign job enqueued", zap.String("record_id", id))
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read the message from a file")
	cmd.Flags().StringVar(&id, "id", "", "Record id to use (default: a new UUID)")
	return cmd
}

func newRecordCmd(a *app) *cobra.Command {
	var signature string
	cmd := &cobra.Command{
		Use:   "record [ID]",
		Short: "Print ledger records as JSON, by id or by --signature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if (len(args) == 1) == (signature != "") {
				return errors.New("give either a record id or --signature")
			}
			ledger, closeLedger, err := a.openLedger(ctx, false)
			if err != nil {
				return err
			}
			defer closeLedger()

			var out any
			if len(args) == 1 {
				rec, err := ledger.Get(ctx, args[0])
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("record %s: %w", args[0], err)
				}
				if err != nil {
					return err
				}
				out = rec
			} else {
				recs, err := ledger.FindBySignature(ctx, strings.ToLower(strings.TrimSpace(signature)))
				if err != nil {
					return err
				}
				if recs == nil {
					recs = []*model.SignatureRecord{}
				}
				out = recs
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&signature, "signature", "s", "", "List records carrying this hex signature")
	return cmd
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the SONGAUTH_* environment variables",
		Args:  cobra.NoArgs,
		// Skip the root config load so a broken environment can still be inspected.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), config.Usage())
			return nil
		},
	}
}

// openLedger connects to the PostgreSQL ledger. When no database is
// configured and allowMemory is set, records go to a process-local store.
func (a *app) openLedger(ctx context.Context, allowMemory bool) (authenticator.Ledger, func(), error) {
	if a.cfg.DatabaseURL == "" {
		if !allowMemory {
			return nil, nil, errNoDatabase
		}
		a.logger.Warn("no database configured, records are kept in memory only")
		return storage.NewMemoryStore(), func() {}, nil
	}
	pool, err := database.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repository.NewSignatureRepository(pool), pool.Close, nil
}

// readMessage returns the message from the single argument, from file or
// from stdin, in that order. Bytes are used exactly as given.
func readMessage(cmd *cobra.Command, args []string, file string) ([]byte, error) {
	switch {
	case len(args) == 1 && file != "":
		return nil, errors.New("give the message as an argument or with --file, not both")
	case len(args) == 1:
		return []byte(args[0]), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read message: %w", err)
		}
		return data, nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
}

// splitLines splits input on newlines, dropping a trailing "\r" from each
// line and a final empty line.
func splitLines(input []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(input))
	sc.Buffer(make([]byte, 0, 64*1024), len(input)+1)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

func writeFile(path string, data []byte, perm os.FileMode, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
