package pacs

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Attributes is an ordered set of DICOM attributes keyed by keyword.
// Values are kept as their string representation, matching how query
// keys travel on the wire. Insertion order is preserved so queries are
// reproducible.
type Attributes struct {
	keys   []string
	values map[string]string
}

// NewAttributes returns an empty attribute set.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]string)}
}

// Set stores value under keyword, appending the keyword on first sight.
func (a *Attributes) Set(keyword, value string) {
	if _, ok := a.values[keyword]; !ok {
		a.keys = append(a.keys, keyword)
	}
	a.values[keyword] = value
}

// Get returns the value for keyword and whether it is present.
func (a *Attributes) Get(keyword string) (string, bool) {
	v, ok := a.values[keyword]
	return v, ok
}

// GetDefault returns the value for keyword, or def when absent.
func (a *Attributes) GetDefault(keyword, def string) string {
	if v, ok := a.values[keyword]; ok {
		return v
	}
	return def
}

// Has reports whether keyword is present, even with an empty value.
func (a *Attributes) Has(keyword string) bool {
	_, ok := a.values[keyword]
	return ok
}

// Keys returns the keywords in insertion order.
func (a *Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Require returns the value for keyword or a MissingAttributeError when
// the keyword is absent or empty.
func (a *Attributes) Require(keyword string) (string, error) {
	v, ok := a.values[keyword]
	if !ok || v == "" {
		return "", &MissingAttributeError{Name: keyword}
	}
	return v, nil
}

// Clone returns an independent copy.
func (a *Attributes) Clone() *Attributes {
	out := NewAttributes()
	for _, k := range a.keys {
		out.Set(k, a.values[k])
	}
	return out
}

// SetUndefinedToBlank adds every listed keyword with an empty value
// unless already present. Blank keys request the attribute in a C-FIND
// without constraining the match.
func (a *Attributes) SetUndefinedToBlank(keywords ...string) {
	for _, k := range keywords {
		if !a.Has(k) {
			a.Set(k, "")
		}
	}
}

// MarshalJSON renders the attributes as a plain object.
func (a *Attributes) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.values)
}

// UnmarshalJSON accepts a plain object; key order follows the sorted
// keys since JSON objects carry none.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	a.keys = nil
	a.values = make(map[string]string, len(values))
	for _, k := range sortedCopy(mapKeys(values)) {
		a.Set(k, values[k])
	}
	return nil
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// MissingPolicy controls how CopyAttributes treats keywords absent from
// the source.
type MissingPolicy string

const (
	// MissingSkip leaves absent keywords out of the destination.
	MissingSkip MissingPolicy = "skip"
	// MissingEmpty copies absent keywords with an empty value.
	MissingEmpty MissingPolicy = "empty"
)

// CopyAttributes copies the named keywords from src into dst according
// to policy. An unknown policy fails before anything is copied.
func CopyAttributes(dst, src *Attributes, keywords []string, policy MissingPolicy) error {
	switch policy {
	case MissingSkip, MissingEmpty:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
	}
	for _, k := range keywords {
		v, ok := src.Get(k)
		if !ok {
			if policy == MissingSkip {
				continue
			}
			v = ""
		}
		dst.Set(k, v)
	}
	return nil
}

// CanonicalFilename is the on-disk name for a retrieved instance.
func CanonicalFilename(sopInstanceUID string) string {
	return sopInstanceUID + ".dcm"
}

// sortedCopy returns the slice sorted without mutating the input.
func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
