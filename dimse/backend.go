// Package dimse implements the protocol backend on the in-process
// DICOM network toolkit. Associations are scoped to one operation:
// opened, used and released within a single call.
package dimse

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/caio-sobreiro/dicomnet/client"
	"github.com/sirupsen/logrus"

	"pacsgo/pacs"
)

// Config locates the remote peer.
type Config struct {
	ClientAETitle string
	RemoteAETitle string
	Host          string
	Port          int
	Logger        *logrus.Logger
}

// Backend drives DIMSE exchanges over in-process associations.
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

// Close is a no-op; associations do not outlive their operation.
func (b *Backend) Close() error { return nil }

func (b *Backend) address() string {
	return net.JoinHostPort(b.cfg.Host, fmt.Sprint(b.cfg.Port))
}

// connect opens an association with the configured peer and classifies
// the failure mode when it cannot be established.
func (b *Backend) connect(ctx context.Context, opts pacs.CallOptions, calledAE, address string) (*client.Association, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := client.Config{
		CallingAETitle: b.cfg.ClientAETitle,
		CalledAETitle:  calledAE,
	}
	if opts.Timeout > 0 {
		cfg.ConnectTimeout = opts.Timeout
		cfg.ReadTimeout = opts.Timeout
		cfg.WriteTimeout = opts.Timeout
	}
	assoc, err := client.Connect(address, cfg)
	if err != nil {
		return nil, classifyAssociationError(err)
	}
	return assoc, nil
}

// classifyAssociationError maps toolkit errors onto the association
// outcome classes. The toolkit reports outcomes in its error text, so
// classification is by message.
func classifyAssociationError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "reject"):
		return fmt.Errorf("%w: %v", pacs.ErrAssociationRejected, err)
	case strings.Contains(msg, "abort"):
		return fmt.Errorf("%w: %v", pacs.ErrAssociationAborted, err)
	default:
		return fmt.Errorf("%w: %v", pacs.ErrAssociationFailed, err)
	}
}

// Echo opens an association, performs a C-ECHO and releases it.
func (b *Backend) Echo(ctx context.Context, opts pacs.CallOptions) (uint16, error) {
	assoc, err := b.connect(ctx, opts, b.cfg.RemoteAETitle, b.address())
	if err != nil {
		return 0, err
	}
	defer assoc.Close()

	resp, err := assoc.SendCEcho(1)
	if err != nil {
		return 0, fmt.Errorf("dimse: echo: %w", err)
	}
	return resp.Status, nil
}

// Find runs the queries, all on one association unless the options ask
// for one association per query. Responses arrive already classified by
// status; they are passed through for collection upstream.
func (b *Backend) Find(ctx context.Context, opts pacs.CallOptions, queries ...*pacs.Attributes) ([]pacs.FindResponse, error) {
	if opts.SplitAssociations {
		var all []pacs.FindResponse
		for _, q := range queries {
			responses, err := b.findOnNewAssociation(ctx, opts, q)
			if err != nil {
				return nil, err
			}
			all = append(all, responses...)
		}
		return all, nil
	}

	assoc, err := b.connect(ctx, opts, b.cfg.RemoteAETitle, b.address())
	if err != nil {
		return nil, err
	}
	defer assoc.Close()

	var all []pacs.FindResponse
	for i, q := range queries {
		responses, err := b.findOnAssociation(assoc, uint16(i+1), q)
		if err != nil {
			return nil, err
		}
		all = append(all, responses...)
	}
	return all, nil
}

func (b *Backend) findOnNewAssociation(ctx context.Context, opts pacs.CallOptions, query *pacs.Attributes) ([]pacs.FindResponse, error) {
	assoc, err := b.connect(ctx, opts, b.cfg.RemoteAETitle, b.address())
	if err != nil {
		return nil, err
	}
	defer assoc.Close()
	return b.findOnAssociation(assoc, 1, query)
}

func (b *Backend) findOnAssociation(assoc *client.Association, messageID uint16, query *pacs.Attributes) ([]pacs.FindResponse, error) {
	ds, err := queryDataset(query)
	if err != nil {
		return nil, err
	}
	responses, err := assoc.SendCFind(&client.CFindRequest{
		MessageID: messageID,
		Dataset:   ds,
	})
	if err != nil {
		return nil, fmt.Errorf("dimse: find: %w", err)
	}

	out := make([]pacs.FindResponse, 0, len(responses))
	for _, r := range responses {
		fr := pacs.FindResponse{Status: r.Status}
		if r.Dataset != nil {
			fr.Attrs = attributesFromDataset(r.Dataset)
		}
		out = append(out, fr)
	}
	return out, nil
}

// Move is not available on this backend: the toolkit cannot act as a
// move SCU. Retrieval deployments use the command-line backend, whose
// movescu pushes into the shared storage listener.
func (b *Backend) Move(ctx context.Context, opts pacs.CallOptions, query *pacs.Attributes, destAE string) error {
	return pacs.ErrMoveNotSupported
}
