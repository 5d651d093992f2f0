package pacs

import (
	"errors"
	"testing"
)

func TestIsSuccessOrPending(t *testing.T) {
	tests := []struct {
		status uint16
		want   bool
	}{
		{0x0000, true},
		{0xFF00, true},
		{0xFF01, true},
		{0xA700, false},
		{0xC000, false},
		{0x0122, false},
	}
	for _, tt := range tests {
		if got := IsSuccessOrPending(tt.status); got != tt.want {
			t.Errorf("IsSuccessOrPending(0x%04X) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCollectResponses(t *testing.T) {
	ds := NewAttributes()
	ds.Set(TagPatientID, "PAT001")

	got, err := CollectResponses([]FindResponse{
		{Status: StatusPending, Attrs: ds},
		{Status: StatusSuccess, Attrs: nil},
	})
	if err != nil {
		t.Fatalf("CollectResponses() error = %v", err)
	}
	if len(got) != 1 || got[0] != ds {
		t.Errorf("collected = %v, want the single pending dataset", got)
	}
}

func TestCollectResponsesHaltsOnFailure(t *testing.T) {
	ds := NewAttributes()
	ds.Set(TagPatientID, "PAT001")

	got, err := CollectResponses([]FindResponse{
		{Status: StatusPending, Attrs: ds},
		{Status: 0xA700, Attrs: nil},
	})
	var peerErr *PeerOperationError
	if !errors.As(err, &peerErr) {
		t.Fatalf("error = %v, want PeerOperationError", err)
	}
	if peerErr.Status != 0xA700 {
		t.Errorf("peerErr.Status = 0x%04X", peerErr.Status)
	}
	if got != nil {
		t.Errorf("datasets returned alongside failure: %v", got)
	}
}
