// Package pacs defines the client contract for querying and retrieving
// imaging data from a PACS, together with the record types, attribute
// utilities and aggregation rules shared by every backend.
package pacs

import (
	"context"
	"time"
)

// Well-known DICOM attribute keywords used throughout the package.
const (
	TagPatientID                      = "PatientID"
	TagPatientName                    = "PatientName"
	TagPatientBirthDate               = "PatientBirthDate"
	TagStudyInstanceUID               = "StudyInstanceUID"
	TagStudyDate                      = "StudyDate"
	TagSeriesInstanceUID              = "SeriesInstanceUID"
	TagSeriesDescription              = "SeriesDescription"
	TagSeriesDate                     = "SeriesDate"
	TagSeriesTime                     = "SeriesTime"
	TagModality                       = "Modality"
	TagBodyPartExamined               = "BodyPartExamined"
	TagPatientPosition                = "PatientPosition"
	TagSOPInstanceUID                 = "SOPInstanceUID"
	TagQueryRetrieveLevel             = "QueryRetrieveLevel"
	TagNumberOfSeriesRelatedInstances = "NumberOfSeriesRelatedInstances"
)

// Query/retrieve levels for C-FIND exchanges.
const (
	LevelPatient = "PATIENT"
	LevelStudy   = "STUDY"
	LevelSeries  = "SERIES"
	LevelImage   = "IMAGE"
)

// PatientRecord is the de-duplicated patient-level result of a search.
// It is built by merging every instance/study-level response that shares
// a patient identifier; see MergePatientRecord for the merge rules.
type PatientRecord struct {
	PatientID           string
	PatientName         string
	PatientBirthDate    string
	StudyInstanceUIDs   []string
	MostRecentStudyDate string
	PrivateIdentifier   string
	Additional          *Attributes
}

// StudyRecord is a read-only snapshot of one study as reported by the peer.
type StudyRecord struct {
	PatientID        string
	PatientName      string
	StudyInstanceUID string
	StudyDate        string
	Additional       *Attributes
}

// SeriesRecord describes one series within a study. NumInstances is nil
// when the peer did not report a count and manual counting was disabled.
type SeriesRecord struct {
	SeriesInstanceUID string
	StudyInstanceUID  string
	SeriesDescription string
	Modality          string
	SeriesDate        string
	SeriesTime        string
	BodyPartExamined  string
	PatientPosition   string
	NumInstances      *int
	Additional        *Attributes
}

// ImageRecord identifies a single instance within a series.
type ImageRecord struct {
	SeriesInstanceUID string
	SOPInstanceUID    string
	Additional        *Attributes
}

// Destination identifies a remote application entity for store operations.
type Destination struct {
	AETitle string
	Host    string
	Port    int
}

// Client is the operations surface every backend variant conforms to:
// the managed in-process network stack, the out-of-process dcmtk tools
// and the filesystem development double. Fetch operations return an
// empty path, not an error, when nothing was found. Verify never fails;
// it is a boolean health probe.
type Client interface {
	Verify(ctx context.Context) bool

	SearchPatients(ctx context.Context, query string, additionalTags []string, wildcard bool) ([]PatientRecord, error)
	SearchSeries(ctx context.Context, query *Attributes, additionalTags []string) ([]SeriesRecord, error)
	StudiesForPatient(ctx context.Context, patientID, dateRange string, additionalTags []string) ([]StudyRecord, error)
	SeriesForStudy(ctx context.Context, studyID string, modalityFilter, additionalTags []string, manualCount bool) ([]SeriesRecord, error)
	ImagesForSeries(ctx context.Context, studyID, seriesID string, additionalTags []string, maxCount int) ([]ImageRecord, error)

	FetchImagesAsDicomFiles(ctx context.Context, studyID, seriesID string) (string, error)
	FetchImageAsDicomFile(ctx context.Context, studyID, seriesID, sopInstanceID string) (string, error)
	FetchThumbnail(ctx context.Context, studyID, seriesID string) (string, error)
	FetchSliceThumbnail(ctx context.Context, studyID, seriesID, sopInstanceID string) (string, error)

	SendDatasets(ctx context.Context, paths []string, override *Destination) error
}

// FindResponse is one streamed response from a find exchange, before
// status classification.
type FindResponse struct {
	Status uint16
	Attrs  *Attributes
}

// CallOptions carries per-exchange tuning from the orchestrator to a backend.
type CallOptions struct {
	// Timeout bounds both connection setup and the DIMSE exchange.
	Timeout time.Duration
	// SplitAssociations forces one association per query when a single
	// Find call carries several queries. Some peers reject consecutive
	// finds on one association.
	SplitAssociations bool
}

// Backend is the pluggable protocol-exchange layer beneath the
// orchestrator: one implementation drives the dcmtk command-line tools,
// another the in-process network toolkit. Find runs the given queries in
// order and returns all streamed responses, concatenated. Move directs
// the peer to push matching instances to destAE.
type Backend interface {
	Echo(ctx context.Context, opts CallOptions) (uint16, error)
	Find(ctx context.Context, opts CallOptions, queries ...*Attributes) ([]FindResponse, error)
	Move(ctx context.Context, opts CallOptions, query *Attributes, destAE string) error
	Store(ctx context.Context, opts CallOptions, path string, dest Destination) error
	Close() error
}

// Listener is an active inbound storage receiver bound to the fixed
// listener port. It is owned by a single retrieve operation between
// Acquire and Release.
type Listener interface {
	AETitle() string
	OutputDir() string
	Ready() bool
	Release() error
}

// ListenerProvider hands out the process-wide storage listener,
// blocking while another operation owns it.
type ListenerProvider interface {
	Acquire(ctx context.Context, outputDir string) (Listener, error)
}

// ThumbnailRenderer converts a retrieved DICOM file into a PNG.
type ThumbnailRenderer interface {
	Render(dcmPath, pngPath string) error
}
