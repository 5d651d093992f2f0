// Package dataset bridges on-disk DICOM files and the keyword-based
// attribute sets the rest of the module works with.
package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"pacsgo/pacs"
)

// KeywordToTag resolves a DICOM keyword to its tag, consulting the
// standard dictionary first and the private block second.
func KeywordToTag(keyword string) (tag.Tag, string, error) {
	if info, err := tag.FindByName(keyword); err == nil {
		return info.Tag, info.VR, nil
	}
	if e, ok := pacs.LookupPrivateKeyword(keyword); ok {
		return e.Tag, e.VR, nil
	}
	return tag.Tag{}, "", fmt.Errorf("dataset: unknown keyword %q", keyword)
}

// TagToKeyword resolves a tag back to its keyword, or empty for tags
// absent from both dictionaries.
func TagToKeyword(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil {
		return info.Name
	}
	if e, ok := pacs.LookupPrivateTag(t); ok {
		return e.Keyword
	}
	return ""
}

// ReadAttributes parses a DICOM file and flattens its top-level elements
// into a keyword-keyed attribute set. Pixel data is skipped; elements
// whose tags are in neither dictionary are dropped.
func ReadAttributes(path string) (*pacs.Attributes, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("dataset: parsing %s: %w", path, err)
	}
	return FlattenDataset(&ds), nil
}

// FlattenDataset converts a parsed dataset into a keyword-keyed
// attribute set.
func FlattenDataset(ds *dicom.Dataset) *pacs.Attributes {
	attrs := pacs.NewAttributes()
	for _, elem := range ds.Elements {
		if elem.Tag == tag.PixelData {
			continue
		}
		keyword := TagToKeyword(elem.Tag)
		if keyword == "" {
			continue
		}
		attrs.Set(keyword, valueString(elem.Value.GetValue()))
	}
	return attrs
}

// valueString renders an element value the way it travels in a query
// key: multi-valued attributes joined by backslashes.
func valueString(v interface{}) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, `\`)
	case []int:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, `\`)
	case []float64:
		parts := make([]string, len(val))
		for i, f := range val {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.Join(parts, `\`)
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
