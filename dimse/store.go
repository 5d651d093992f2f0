package dimse

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/caio-sobreiro/dicomnet/client"
	dnet "github.com/caio-sobreiro/dicomnet/dicom"

	"pacsgo/pacs"
)

var (
	tagSOPClassUID    = dnet.Tag{Group: 0x0008, Element: 0x0016}
	tagSOPInstanceUID = dnet.Tag{Group: 0x0008, Element: 0x0018}
)

// Store opens an association with dest and pushes one file. Part 10
// files are stripped to their bare dataset before transmission; the SOP
// class and instance UIDs for the command are read from the dataset
// itself.
func (b *Backend) Store(ctx context.Context, opts pacs.CallOptions, path string, dest pacs.Destination) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("dimse: reading %s: %w", path, err)
	}
	data := raw
	if dnet.HasPart10Header(raw) {
		if data, err = dnet.StripPart10Header(raw); err != nil {
			return fmt.Errorf("dimse: stripping file meta from %s: %w", path, err)
		}
	}

	ds, err := dnet.ParseDataset(data)
	if err != nil {
		return fmt.Errorf("dimse: parsing %s: %w", path, err)
	}
	sopClass := ds.GetString(tagSOPClassUID)
	sopInstance := ds.GetString(tagSOPInstanceUID)
	if sopClass == "" || sopInstance == "" {
		return fmt.Errorf("dimse: %s has no SOP class or instance UID", path)
	}

	address := net.JoinHostPort(dest.Host, fmt.Sprint(dest.Port))
	assoc, err := b.connect(ctx, opts, dest.AETitle, address)
	if err != nil {
		return err
	}
	defer assoc.Close()

	resp, err := assoc.SendCStore(&client.CStoreRequest{
		SOPClassUID:    sopClass,
		SOPInstanceUID: sopInstance,
		Data:           data,
		MessageID:      1,
	})
	if err != nil {
		return fmt.Errorf("dimse: store: %w", err)
	}
	if resp.Status != pacs.StatusSuccess {
		return &pacs.PeerOperationError{Status: resp.Status}
	}
	return nil
}
