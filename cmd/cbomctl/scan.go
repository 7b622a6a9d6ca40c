package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	appscanning "github.com/bryanwahyu/cbomkit/internal/application/scanning"
	"github.com/bryanwahyu/cbomkit/internal/config"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
	"github.com/bryanwahyu/cbomkit/internal/logging"
	"github.com/bryanwahyu/cbomkit/internal/wiring"
)

type scanOptions struct {
	Branch    string
	Subfolder string
	Output    string
	Username  string
	Password  string
	Token     string
	Quiet     bool
}

func newScanCmd() *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan [flags] <git url | purl>",
		Short: "Scan a git repository or a package url.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "branch, tag or commit to scan (default: the remote HEAD, falling back to main/master)")
	cmd.Flags().StringVar(&opts.Subfolder, "subfolder", "", "scan only this folder of the repository")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the CBOM to this file instead of stdout")
	cmd.Flags().StringVar(&opts.Username, "username", "", "git username")
	cmd.Flags().StringVar(&opts.Password, "password", "", "git password")
	cmd.Flags().StringVar(&opts.Token, "token", os.Getenv("CBOMKIT_GIT_TOKEN"), "git personal access token")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadFromEnv()
}

func runScan(cmd *cobra.Command, target string, opts scanOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// one-shot scans keep nothing
	cfg.Database.Driver = "memory"
	cfg.Minio.Enabled = false

	logger := logging.New("cbomctl", cfg.Logging.Level, cfg.Logging.JSON, cmd.ErrOrStderr())
	stack, err := wiring.Build(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer stack.Close()

	progress := &printer{out: cmd.ErrOrStderr(), quiet: opts.Quiet}
	req := appscanning.StartRequest{
		ScanURL:   target,
		Branch:    opts.Branch,
		Subfolder: opts.Subfolder,
	}
	if opts.Username != "" || opts.Password != "" || opts.Token != "" {
		req.Credentials = &domain.Credentials{Username: opts.Username, Password: opts.Password, Token: opts.Token}
	}

	saga, err := stack.Scanning.Start(cmd.Context(), req, progress)
	if err != nil {
		return err
	}
	select {
	case <-saga.Done():
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
	if err := saga.Err(); err != nil {
		return err
	}

	bom := progress.result()
	if bom == "" {
		return errors.New("scan finished without a CBOM")
	}
	if opts.Output == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), bom)
		return err
	}
	return os.WriteFile(opts.Output, []byte(bom), 0o644)
}

// printer writes progress labels and keeps the CBOM message.
type printer struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
	bom   string
}

func (p *printer) Send(msg domain.ProgressMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.Type == domain.ProgressCBOM {
		p.bom = msg.Message
		return nil
	}
	if !p.quiet || msg.Type == domain.ProgressError {
		fmt.Fprintf(p.out, "%-24s %s\n", msg.Type, msg.Message)
	}
	return nil
}

func (p *printer) result() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bom
}
