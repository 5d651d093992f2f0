package pacs

// DIMSE status codes treated as non-terminal or successful.
const (
	StatusSuccess        uint16 = 0x0000
	StatusPending        uint16 = 0xFF00
	StatusPendingWarning uint16 = 0xFF01
)

// IsSuccessOrPending reports whether status allows an exchange to continue
// or finish cleanly.
func IsSuccessOrPending(status uint16) bool {
	switch status {
	case StatusSuccess, StatusPending, StatusPendingWarning:
		return true
	}
	return false
}

// CollectResponses walks streamed find responses in order, keeping every
// dataset that arrived with an acceptable status. Success responses
// without a payload (the terminal marker) are dropped. The first
// unacceptable status halts collection with a PeerOperationError; datasets
// gathered before it are discarded.
func CollectResponses(responses []FindResponse) ([]*Attributes, error) {
	var out []*Attributes
	for _, r := range responses {
		if !IsSuccessOrPending(r.Status) {
			return nil, &PeerOperationError{Status: r.Status}
		}
		if r.Attrs == nil || r.Attrs.Len() == 0 {
			continue
		}
		out = append(out, r.Attrs)
	}
	return out, nil
}
