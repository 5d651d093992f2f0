package listener

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/caio-sobreiro/dicomnet/dicom"
	"github.com/caio-sobreiro/dicomnet/interfaces"
	"github.com/caio-sobreiro/dicomnet/types"
)

func storeRequest(sopInstanceUID string) *types.Message {
	return &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              7,
		AffectedSOPClassUID:    "1.2.840.10008.5.1.4.1.1.7",
		AffectedSOPInstanceUID: sopInstanceUID,
	}
}

func TestHandleDIMSEStoresDataset(t *testing.T) {
	dir := t.TempDir()
	h := newStoreHandler(dir, testLogger())

	ds := dicom.NewDataset()
	ds.AddElement(dicom.Tag{Group: 0x0010, Element: 0x0020}, "LO", "PAT001")
	payload := ds.EncodeDataset()

	rsp, rspData, err := h.HandleDIMSE(context.Background(), storeRequest("3.4.5"), payload,
		interfaces.MessageContext{TransferSyntaxUID: dicom.TransferSyntaxExplicitVRLittleEndian})
	if err != nil {
		t.Fatalf("HandleDIMSE() error = %v", err)
	}
	if rspData != nil {
		t.Errorf("store response carried a dataset")
	}
	if rsp.CommandField != types.CStoreRSP || rsp.MessageIDBeingRespondedTo != 7 {
		t.Errorf("response = %+v", rsp)
	}
	if rsp.Status != uint16(types.StatusSuccess) {
		t.Errorf("Status = 0x%04X", rsp.Status)
	}

	written, err := os.ReadFile(filepath.Join(dir, "3.4.5.dcm"))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if !dicom.HasPart10Header(written) {
		t.Error("stored file has no part 10 header")
	}
}

func TestHandleDIMSEStoreFailureKeepsAssociation(t *testing.T) {
	h := newStoreHandler(filepath.Join(t.TempDir(), "missing", "dir"), testLogger())

	rsp, _, err := h.HandleDIMSE(context.Background(), storeRequest("3.4.5"), nil, interfaces.MessageContext{})
	if err != nil {
		t.Fatalf("write failure must answer the peer, not kill the association: %v", err)
	}
	if rsp.Status != statusOutOfResources {
		t.Errorf("Status = 0x%04X, want 0x%04X", rsp.Status, statusOutOfResources)
	}

	rsp, _, err = h.HandleDIMSE(context.Background(), storeRequest(""), []byte{0x01}, interfaces.MessageContext{})
	if err != nil {
		t.Fatal(err)
	}
	if rsp.Status != statusOutOfResources {
		t.Errorf("missing SOP instance UID: Status = 0x%04X", rsp.Status)
	}
}

func TestHandleDIMSEEcho(t *testing.T) {
	h := newStoreHandler(t.TempDir(), testLogger())

	rsp, _, err := h.HandleDIMSE(context.Background(), &types.Message{
		CommandField: types.CEchoRQ,
		MessageID:    3,
	}, nil, interfaces.MessageContext{})
	if err != nil {
		t.Fatal(err)
	}
	if rsp.CommandField != types.CEchoRSP || rsp.Status != uint16(types.StatusSuccess) {
		t.Errorf("echo response = %+v", rsp)
	}
}
