package dimse

import (
	"fmt"
	"sort"

	dnet "github.com/caio-sobreiro/dicomnet/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"pacsgo/dataset"
	"pacsgo/pacs"
)

// queryDataset translates a keyword-based query into a wire dataset.
// Keywords are resolved through the standard dictionary and the private
// block.
func queryDataset(query *pacs.Attributes) (*dnet.Dataset, error) {
	ds := dnet.NewDataset()
	for _, keyword := range query.Keys() {
		value, _ := query.Get(keyword)
		t, vr, err := dataset.KeywordToTag(keyword)
		if err != nil {
			return nil, fmt.Errorf("dimse: %w", err)
		}
		ds.AddElement(dnet.Tag{Group: uint16(t.Group), Element: uint16(t.Element)}, vr, value)
	}
	return ds, nil
}

// attributesFromDataset flattens a received dataset back into keyword
// form. Tags unknown to both dictionaries are dropped; elements are
// emitted in tag order so output is reproducible.
func attributesFromDataset(ds *dnet.Dataset) *pacs.Attributes {
	tags := make([]dnet.Tag, 0, len(ds.Elements))
	for t := range ds.Elements {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Group != tags[j].Group {
			return tags[i].Group < tags[j].Group
		}
		return tags[i].Element < tags[j].Element
	})

	attrs := pacs.NewAttributes()
	for _, t := range tags {
		keyword := dataset.TagToKeyword(tag.Tag{Group: t.Group, Element: t.Element})
		if keyword == "" {
			continue
		}
		attrs.Set(keyword, ds.GetString(t))
	}
	return attrs
}
