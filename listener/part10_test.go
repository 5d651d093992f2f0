package listener

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/caio-sobreiro/dicomnet/dicom"
)

func TestWritePart10File(t *testing.T) {
	payload := []byte{0x08, 0x00, 0x18, 0x00, 0x02, 0x00, 0x31, 0x00}
	path := filepath.Join(t.TempDir(), "1.2.3.dcm")

	err := WritePart10File(path, "1.2.840.10008.5.1.4.1.1.2", "1.2.3",
		dicom.TransferSyntaxImplicitVRLittleEndian, payload)
	if err != nil {
		t.Fatalf("WritePart10File() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) < 132 || string(raw[128:132]) != "DICM" {
		t.Fatal("missing DICM magic after preamble")
	}
	if !dicom.HasPart10Header(raw) {
		t.Fatal("written file not recognized as Part 10")
	}

	stripped, err := dicom.StripPart10Header(raw)
	if err != nil {
		t.Fatalf("StripPart10Header() error = %v", err)
	}
	if !bytes.Equal(stripped, payload) {
		t.Errorf("dataset bytes changed: got %x, want %x", stripped, payload)
	}
}

func TestWritePart10FilePadsOddValues(t *testing.T) {
	// Odd-length UIDs must be padded so every element has even length.
	path := filepath.Join(t.TempDir(), "x.dcm")
	err := WritePart10File(path, "1.2.3.4.5", "1.2.3", "1.2.840.10008.1.2", nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw)%2 != 0 {
		t.Errorf("file length %d is odd", len(raw))
	}
}
