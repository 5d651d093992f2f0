package pacs

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the orchestrator and all backends.
var (
	// ErrInvalidRecord is returned when a response dataset cannot be
	// merged into an existing patient record.
	ErrInvalidRecord = errors.New("pacs: invalid patient record")

	// ErrPatientIDMismatch is returned when a merge target and an
	// incoming dataset disagree on the patient identifier.
	ErrPatientIDMismatch = errors.New("pacs: patient ID mismatch")

	// ErrInvalidPolicy is returned by CopyAttributes for an unknown
	// missing-attribute policy.
	ErrInvalidPolicy = errors.New("pacs: invalid missing-attribute policy")

	// ErrInvalidOverride is returned by SendDatasets when a destination
	// override is only partially specified.
	ErrInvalidOverride = errors.New("pacs: destination override must set AE title, host and port together")

	// Association outcome classes.
	ErrAssociationRejected = errors.New("pacs: association rejected")
	ErrAssociationAborted  = errors.New("pacs: association aborted")
	ErrAssociationFailed   = errors.New("pacs: association failed")

	// ErrListenerNotReady is returned when a retrieve is attempted while
	// the inbound storage listener is not accepting connections.
	ErrListenerNotReady = errors.New("pacs: storage listener not ready")

	// ErrListenerBindFailed is returned when the listener port cannot be
	// bound, typically because another process holds it.
	ErrListenerBindFailed = errors.New("pacs: storage listener bind failed")

	// ErrAmbiguousTimeout marks a peer-reported timeout that cannot be
	// distinguished from an empty result set. Operations failing with it
	// are retried once with a padded timeout.
	ErrAmbiguousTimeout = errors.New("pacs: ambiguous peer timeout")

	// ErrMoveNotSupported is returned by backends that cannot issue
	// C-MOVE requests.
	ErrMoveNotSupported = errors.New("pacs: move not supported by this backend")
)

// MissingAttributeError reports a required attribute absent from a dataset.
type MissingAttributeError struct {
	Name string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("pacs: missing required attribute %s", e.Name)
}

// PeerOperationError reports a terminal non-success status from the peer.
type PeerOperationError struct {
	Status uint16
}

func (e *PeerOperationError) Error() string {
	return fmt.Sprintf("pacs: peer reported failure status 0x%04X", e.Status)
}
