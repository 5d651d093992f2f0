package listener

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/caio-sobreiro/dicomnet/dicom"
	"github.com/caio-sobreiro/dicomnet/interfaces"
	"github.com/caio-sobreiro/dicomnet/types"
	"github.com/sirupsen/logrus"

	"pacsgo/pacs"
)

// DIMSE status for a store the receiver could not complete.
const statusOutOfResources uint16 = 0xA700

// storeHandler answers C-ECHO and C-STORE on the storage listener.
// Received datasets are written as Part 10 files named by SOP instance
// UID. A dataset that cannot be written is reported to the peer with a
// failure status; the association stays up so the remaining
// sub-operations of the retrieve can proceed.
type storeHandler struct {
	outputDir string
	log       *logrus.Logger
}

func newStoreHandler(outputDir string, log *logrus.Logger) *storeHandler {
	return &storeHandler{outputDir: outputDir, log: log}
}

func (h *storeHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	switch msg.CommandField {
	case types.CEchoRQ:
		return &types.Message{
			CommandField:              types.CEchoRSP,
			MessageIDBeingRespondedTo: msg.MessageID,
			AffectedSOPClassUID:       msg.AffectedSOPClassUID,
			CommandDataSetType:        0x0101,
			Status:                    types.StatusSuccess,
		}, nil, nil
	case types.CStoreRQ:
		return h.handleStore(msg, data, meta), nil, nil
	}
	return nil, nil, fmt.Errorf("listener: unsupported command 0x%04x", msg.CommandField)
}

func (h *storeHandler) handleStore(msg *types.Message, data []byte, meta interfaces.MessageContext) *types.Message {
	status := uint16(types.StatusSuccess)
	if err := h.writeDataset(msg, data, meta); err != nil {
		h.log.WithError(err).WithField("sop_instance", msg.AffectedSOPInstanceUID).Error("failed to store received dataset")
		status = statusOutOfResources
	}
	return &types.Message{
		CommandField:              types.CStoreRSP,
		MessageIDBeingRespondedTo: msg.MessageID,
		AffectedSOPClassUID:       msg.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    msg.AffectedSOPInstanceUID,
		CommandDataSetType:        0x0101,
		Status:                    status,
	}
}

func (h *storeHandler) writeDataset(msg *types.Message, data []byte, meta interfaces.MessageContext) error {
	if msg.AffectedSOPInstanceUID == "" {
		return fmt.Errorf("listener: store request without SOP instance UID")
	}
	transferSyntax := meta.TransferSyntaxUID
	if transferSyntax == "" {
		transferSyntax = msg.TransferSyntaxUID
	}
	if transferSyntax == "" {
		transferSyntax = dicom.TransferSyntaxImplicitVRLittleEndian
	}
	path := filepath.Join(h.outputDir, pacs.CanonicalFilename(msg.AffectedSOPInstanceUID))
	if err := WritePart10File(path, msg.AffectedSOPClassUID, msg.AffectedSOPInstanceUID, transferSyntax, data); err != nil {
		return err
	}
	h.log.WithFields(logrus.Fields{
		"sop_instance": msg.AffectedSOPInstanceUID,
		"path":         path,
		"bytes":        len(data),
	}).Debug("dataset received")
	return nil
}
