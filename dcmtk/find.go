package dcmtk

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"pacsgo/dataset"
	"pacsgo/pacs"
)

// Find runs one findscu invocation per query. Each invocation extracts
// the response datasets to a scratch directory with -X, which is the
// only lossless way to get them out of findscu; the extracted files are
// parsed back into attribute sets. Every parsed dataset is reported as a
// pending response, followed by one terminal success.
func (b *Backend) Find(ctx context.Context, opts pacs.CallOptions, queries ...*pacs.Attributes) ([]pacs.FindResponse, error) {
	var responses []pacs.FindResponse
	for _, query := range queries {
		datasets, err := b.findOne(ctx, opts, query)
		if err != nil {
			return nil, err
		}
		for _, ds := range datasets {
			responses = append(responses, pacs.FindResponse{Status: pacs.StatusPending, Attrs: ds})
		}
	}
	responses = append(responses, pacs.FindResponse{Status: pacs.StatusSuccess})
	return responses, nil
}

func (b *Backend) findOne(ctx context.Context, opts pacs.CallOptions, query *pacs.Attributes) ([]*pacs.Attributes, error) {
	outDir, err := os.MkdirTemp("", "pacsgo-find-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	args := append(b.baseArgs(opts), "-S")
	for _, keyword := range query.Keys() {
		value, _ := query.Get(keyword)
		args = append(args, "-k", keyword+"="+value)
	}
	args = append(args, "-X", "--output-directory", outDir)
	args = append(args, b.cfg.Host, strconv.Itoa(b.cfg.Port))

	output, err := b.run(ctx, "findscu", args)
	if err != nil {
		return nil, err
	}
	// A clean exit can still hide a reported timeout in the trailer.
	if diagErr := scanDiagnostics(output); diagErr != nil {
		return nil, diagErr
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]*pacs.Attributes, 0, len(names))
	for _, name := range names {
		attrs, err := dataset.ReadAttributes(filepath.Join(outDir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, attrs)
	}
	return out, nil
}

// Move directs the peer to push matching instances to destAE. The
// receiving listener must already be accepting associations.
func (b *Backend) Move(ctx context.Context, opts pacs.CallOptions, query *pacs.Attributes, destAE string) error {
	args := append(b.baseArgs(opts), "-S", "--move", destAE)
	for _, keyword := range query.Keys() {
		value, _ := query.Get(keyword)
		args = append(args, "-k", keyword+"="+value)
	}
	args = append(args, b.cfg.Host, strconv.Itoa(b.cfg.Port))

	output, err := b.run(ctx, "movescu", args)
	if err != nil {
		return err
	}
	return scanDiagnostics(output)
}
