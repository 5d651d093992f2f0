package dimse

import (
	"context"
	"errors"
	"testing"

	dnet "github.com/caio-sobreiro/dicomnet/dicom"

	"pacsgo/pacs"
)

func TestClassifyAssociationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rejected", errors.New("association rejected by peer: result 1"), pacs.ErrAssociationRejected},
		{"aborted", errors.New("received A-ABORT from peer"), pacs.ErrAssociationAborted},
		{"refused", errors.New("failed to connect: connection refused"), pacs.ErrAssociationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyAssociationError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classifyAssociationError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMoveNotSupported(t *testing.T) {
	b := New(Config{ClientAETitle: "PACSGO", RemoteAETitle: "MAIN", Host: "localhost", Port: 11112})
	err := b.Move(context.Background(), pacs.CallOptions{}, pacs.NewAttributes(), "PACSGO")
	if !errors.Is(err, pacs.ErrMoveNotSupported) {
		t.Fatalf("error = %v, want ErrMoveNotSupported", err)
	}
}

func TestQueryDatasetTranslatesKeywords(t *testing.T) {
	q := pacs.NewAttributes()
	q.Set(pacs.TagQueryRetrieveLevel, "STUDY")
	q.Set(pacs.TagPatientID, "PAT001")

	ds, err := queryDataset(q)
	if err != nil {
		t.Fatalf("queryDataset() error = %v", err)
	}
	if got := ds.GetString(dnet.Tag{Group: 0x0008, Element: 0x0052}); got != "STUDY" {
		t.Errorf("QueryRetrieveLevel = %q", got)
	}
	if got := ds.GetString(dnet.Tag{Group: 0x0010, Element: 0x0020}); got != "PAT001" {
		t.Errorf("PatientID = %q", got)
	}
}

func TestQueryDatasetRejectsUnknownKeyword(t *testing.T) {
	q := pacs.NewAttributes()
	q.Set("NoSuchKeyword", "x")
	if _, err := queryDataset(q); err == nil {
		t.Fatal("expected error for unknown keyword")
	}
}

func TestAttributesFromDatasetRoundTrip(t *testing.T) {
	q := pacs.NewAttributes()
	q.Set(pacs.TagPatientID, "PAT001")
	q.Set(pacs.TagStudyInstanceUID, "1.2.3")
	ds, err := queryDataset(q)
	if err != nil {
		t.Fatal(err)
	}

	attrs := attributesFromDataset(ds)
	if v, _ := attrs.Get(pacs.TagPatientID); v != "PAT001" {
		t.Errorf("PatientID = %q", v)
	}
	if v, _ := attrs.Get(pacs.TagStudyInstanceUID); v != "1.2.3" {
		t.Errorf("StudyInstanceUID = %q", v)
	}
}
