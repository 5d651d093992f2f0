// Package dcmtk implements the protocol backend on top of the DCMTK
// command-line tools (echoscu, findscu, movescu, storescu). Each
// exchange is one subprocess; failures are classified from the tools'
// diagnostic output.
package dcmtk

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"pacsgo/pacs"
)

// Config locates the remote peer and the DCMTK installation.
type Config struct {
	// BinDir holds the DCMTK binaries. Empty means take them from PATH.
	BinDir        string
	ClientAETitle string
	RemoteAETitle string
	Host          string
	Port          int
	// ExtraArgs are appended to every tool invocation.
	ExtraArgs []string
	Logger    *logrus.Logger
}

// Backend runs DIMSE exchanges through DCMTK subprocesses.
type Backend struct {
	cfg Config
	log *logrus.Logger
}

// New returns a backend for the configured peer.
func New(cfg Config) *Backend {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Backend{cfg: cfg, log: log}
}

// Close is a no-op; subprocesses hold no persistent state.
func (b *Backend) Close() error { return nil }

func (b *Backend) tool(name string) string {
	if b.cfg.BinDir == "" {
		return name
	}
	return filepath.Join(b.cfg.BinDir, name)
}

// baseArgs are the identity and timeout arguments common to every tool.
func (b *Backend) baseArgs(opts pacs.CallOptions) []string {
	args := []string{
		"-aet", b.cfg.ClientAETitle,
		"-aec", b.cfg.RemoteAETitle,
	}
	if opts.Timeout > 0 {
		secs := strconv.Itoa(int(opts.Timeout.Seconds()))
		args = append(args,
			"--timeout", secs,
			"--acse-timeout", secs,
			"--dimse-timeout", secs,
		)
	}
	return append(args, b.cfg.ExtraArgs...)
}

// run executes one tool and returns its combined output. A non-zero exit
// is classified through the diagnostic scanner before being returned.
func (b *Backend) run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, b.tool(name), args...)
	b.log.WithFields(logrus.Fields{
		"tool": name,
		"args": args,
	}).Debug("running dcmtk tool")

	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		if ctx.Err() != nil {
			return output, ctx.Err()
		}
		if classified := classifyOutput(output); classified != nil {
			return output, classified
		}
		return output, fmt.Errorf("dcmtk: %s failed: %w", name, err)
	}
	return output, nil
}

// Echo verifies the peer with echoscu. A clean exit maps to status 0.
func (b *Backend) Echo(ctx context.Context, opts pacs.CallOptions) (uint16, error) {
	args := append(b.baseArgs(opts), b.cfg.Host, strconv.Itoa(b.cfg.Port))
	if _, err := b.run(ctx, "echoscu", args); err != nil {
		return 0, err
	}
	return pacs.StatusSuccess, nil
}

// Store pushes one file to dest with storescu. The configured peer is
// ignored; the destination carries its own address.
func (b *Backend) Store(ctx context.Context, opts pacs.CallOptions, path string, dest pacs.Destination) error {
	args := []string{
		"-aet", b.cfg.ClientAETitle,
		"-aec", dest.AETitle,
	}
	if opts.Timeout > 0 {
		secs := strconv.Itoa(int(opts.Timeout.Seconds()))
		args = append(args, "--timeout", secs, "--acse-timeout", secs, "--dimse-timeout", secs)
	}
	args = append(args, b.cfg.ExtraArgs...)
	args = append(args, dest.Host, strconv.Itoa(dest.Port), path)
	_, err := b.run(ctx, "storescu", args)
	return err
}
