package pacs

import (
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestRegisterPrivateDictionaryIdempotent(t *testing.T) {
	if err := RegisterPrivateDictionary(); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := RegisterPrivateDictionary(); err != nil {
		t.Fatalf("repeated registration: %v", err)
	}

	e, ok := LookupPrivateKeyword(KeywordPatientMostRecentStudyDate)
	if !ok {
		t.Fatal("keyword not registered")
	}
	if e.VR != "DA" || e.Tag.Group != 0x0009 {
		t.Errorf("entry = %+v", e)
	}

	back, ok := LookupPrivateTag(tag.Tag{Group: 0x0009, Element: 0x1001})
	if !ok || back.Keyword != KeywordPatientStudyInstanceUIDs {
		t.Errorf("tag lookup = %+v, %v", back, ok)
	}
}
