package pacs

import (
	"fmt"
	"sync"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// PrivateEntry describes one privately registered attribute.
type PrivateEntry struct {
	Tag     tag.Tag
	VR      string
	Keyword string
	VM      string
}

// Private attribute keywords carried on merged patient records when they
// are written back out as datasets.
const (
	KeywordPrivateIdentifier          = "PacsgoPrivateIdentifier"
	KeywordPatientStudyInstanceUIDs   = "PatientStudyInstanceUIDs"
	KeywordPatientMostRecentStudyDate = "PatientMostRecentStudyDate"
)

var privateDict = struct {
	sync.RWMutex
	byKeyword map[string]PrivateEntry
	byTag     map[tag.Tag]PrivateEntry
}{
	byKeyword: make(map[string]PrivateEntry),
	byTag:     make(map[tag.Tag]PrivateEntry),
}

// RegisterPrivateDictionary installs the process-wide private attribute
// block used by merged patient records. Registration is idempotent; a
// keyword already registered with a different tag or VR is a conflict.
func RegisterPrivateDictionary() error {
	entries := []PrivateEntry{
		{Tag: tag.Tag{Group: 0x0009, Element: 0x0010}, VR: "LO", Keyword: KeywordPrivateIdentifier, VM: "1"},
		{Tag: tag.Tag{Group: 0x0009, Element: 0x1001}, VR: "UI", Keyword: KeywordPatientStudyInstanceUIDs, VM: "1-n"},
		{Tag: tag.Tag{Group: 0x0009, Element: 0x1002}, VR: "DA", Keyword: KeywordPatientMostRecentStudyDate, VM: "1"},
	}
	privateDict.Lock()
	defer privateDict.Unlock()
	for _, e := range entries {
		if prev, ok := privateDict.byKeyword[e.Keyword]; ok {
			if prev.Tag != e.Tag || prev.VR != e.VR {
				return fmt.Errorf("pacs: private keyword %s already registered as %v %s", e.Keyword, prev.Tag, prev.VR)
			}
			continue
		}
		privateDict.byKeyword[e.Keyword] = e
		privateDict.byTag[e.Tag] = e
	}
	return nil
}

// LookupPrivateKeyword resolves a privately registered keyword.
func LookupPrivateKeyword(keyword string) (PrivateEntry, bool) {
	privateDict.RLock()
	defer privateDict.RUnlock()
	e, ok := privateDict.byKeyword[keyword]
	return e, ok
}

// LookupPrivateTag resolves a privately registered tag.
func LookupPrivateTag(t tag.Tag) (PrivateEntry, bool) {
	privateDict.RLock()
	defer privateDict.RUnlock()
	e, ok := privateDict.byTag[t]
	return e, ok
}
