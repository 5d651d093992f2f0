package pacs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultBackoffPadding is added to the timeout on the single retry of an
// operation that failed with an ambiguous peer timeout.
const defaultBackoffPadding = 20 * time.Second

// NetworkClientConfig tunes the orchestrator independently of the backend.
type NetworkClientConfig struct {
	// Timeout bounds every protocol exchange. Zero means no deadline.
	Timeout time.Duration
	// RetryWithBackoff enables the single padded retry on ambiguous
	// peer timeouts.
	RetryWithBackoff bool
	// BackoffPadding overrides the retry padding. Zero keeps the default.
	BackoffPadding time.Duration
	// SearchScope restricts the patient search fan-out to one match
	// field, TagPatientID or TagPatientName. Empty queries both.
	SearchScope string
	// SplitSearchAssociations runs the patient search queries on
	// separate associations.
	SplitSearchAssociations bool
	// DicomDir is the base directory for retrieved files and thumbnails.
	DicomDir string
	// DefaultDestination receives datasets when SendDatasets is called
	// without an override.
	DefaultDestination Destination
	Logger             *logrus.Logger
}

// NetworkClient implements Client over a protocol Backend, adding result
// aggregation, retrieve-via-listener plumbing and retry policy. The same
// orchestrator serves both the command-line and the in-process backend.
type NetworkClient struct {
	backend   Backend
	listeners ListenerProvider
	renderer  ThumbnailRenderer
	cfg       NetworkClientConfig
	log       *logrus.Logger
}

// NewNetworkClient wires an orchestrator over the given backend. The
// listener provider and renderer may be nil when retrieves and thumbnails
// are not used.
func NewNetworkClient(backend Backend, listeners ListenerProvider, renderer ThumbnailRenderer, cfg NetworkClientConfig) *NetworkClient {
	if cfg.BackoffPadding == 0 {
		cfg.BackoffPadding = defaultBackoffPadding
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NetworkClient{
		backend:   backend,
		listeners: listeners,
		renderer:  renderer,
		cfg:       cfg,
		log:       log,
	}
}

// Close releases the backend.
func (c *NetworkClient) Close() error {
	return c.backend.Close()
}

func (c *NetworkClient) opts() CallOptions {
	return CallOptions{Timeout: c.cfg.Timeout, SplitAssociations: c.cfg.SplitSearchAssociations}
}

// withRetry runs fn once, and once more with a padded timeout when the
// failure was an ambiguous peer timeout and retries are enabled. The
// ambiguity: the peer reports the same condition for "no data matched"
// and "matching took too long".
func (c *NetworkClient) withRetry(ctx context.Context, op string, fn func(opts CallOptions) error) error {
	opts := c.opts()
	err := fn(opts)
	if err == nil || !c.cfg.RetryWithBackoff || !errors.Is(err, ErrAmbiguousTimeout) {
		return err
	}
	if opts.Timeout > 0 {
		opts.Timeout += c.cfg.BackoffPadding
	}
	c.log.WithFields(logrus.Fields{
		"operation": op,
		"timeout":   opts.Timeout.String(),
	}).Warn("peer timeout was ambiguous, retrying once with padded timeout")
	if ctx.Err() != nil {
		return err
	}
	return fn(opts)
}

// Verify probes the peer with a C-ECHO. It reports reachability and never
// returns an error; failures are logged and mapped to false.
func (c *NetworkClient) Verify(ctx context.Context) bool {
	status, err := c.backend.Echo(ctx, c.opts())
	if err != nil {
		c.log.WithError(err).Warn("verification echo failed")
		return false
	}
	if !IsSuccessOrPending(status) {
		c.log.WithField("status", fmt.Sprintf("0x%04X", status)).Warn("verification echo returned failure status")
		return false
	}
	return true
}

// SearchPatients finds patients whose ID or name matches query. With
// wildcard enabled the query is wrapped in '*' so partial matches hit.
// By default both match fields are queried and the responses merged into
// one record per patient ID; SearchScope restricts to one field.
// Responses without a patient ID are dropped.
func (c *NetworkClient) SearchPatients(ctx context.Context, query string, additionalTags []string, wildcard bool) ([]PatientRecord, error) {
	term := query
	if wildcard {
		term = "*" + query + "*"
	}

	var queries []*Attributes
	if c.cfg.SearchScope == "" || c.cfg.SearchScope == TagPatientID {
		byID := NewAttributes()
		byID.Set(TagQueryRetrieveLevel, LevelStudy)
		byID.Set(TagPatientID, term)
		queries = append(queries, byID)
	}
	if c.cfg.SearchScope == "" || c.cfg.SearchScope == TagPatientName {
		byName := NewAttributes()
		byName.Set(TagQueryRetrieveLevel, LevelStudy)
		byName.Set(TagPatientName, term)
		queries = append(queries, byName)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("unknown search scope %q", c.cfg.SearchScope)
	}
	for _, q := range queries {
		q.SetUndefinedToBlank(TagPatientID, TagPatientName, TagPatientBirthDate, TagStudyInstanceUID, TagStudyDate)
		q.SetUndefinedToBlank(additionalTags...)
	}

	var datasets []*Attributes
	err := c.withRetry(ctx, "search_patients", func(opts CallOptions) error {
		responses, err := c.backend.Find(ctx, opts, queries...)
		if err != nil {
			return err
		}
		datasets, err = CollectResponses(responses)
		return err
	})
	if err != nil {
		return nil, err
	}

	records := make(map[string]*PatientRecord)
	var order []string
	for _, ds := range datasets {
		pid, ok := ds.Get(TagPatientID)
		if !ok || pid == "" {
			continue
		}
		merged, err := MergePatientRecord(records[pid], ds, additionalTags)
		if err != nil {
			return nil, err
		}
		if _, seen := records[pid]; !seen {
			order = append(order, pid)
		}
		records[pid] = merged
	}

	out := make([]PatientRecord, 0, len(order))
	for _, pid := range order {
		out = append(out, *records[pid])
	}
	return out, nil
}

// StudiesForPatient lists the studies of one patient, optionally
// restricted to a DICOM date range such as "20240101-20240630".
func (c *NetworkClient) StudiesForPatient(ctx context.Context, patientID, dateRange string, additionalTags []string) ([]StudyRecord, error) {
	q := NewAttributes()
	q.Set(TagQueryRetrieveLevel, LevelStudy)
	q.Set(TagPatientID, patientID)
	if dateRange != "" {
		q.Set(TagStudyDate, dateRange)
	}
	q.SetUndefinedToBlank(TagPatientName, TagStudyInstanceUID, TagStudyDate)
	q.SetUndefinedToBlank(additionalTags...)

	datasets, err := c.find(ctx, "studies_for_patient", q)
	if err != nil {
		return nil, err
	}

	out := make([]StudyRecord, 0, len(datasets))
	for _, ds := range datasets {
		rec := StudyRecord{
			PatientID:        ds.GetDefault(TagPatientID, patientID),
			PatientName:      ds.GetDefault(TagPatientName, ""),
			StudyInstanceUID: ds.GetDefault(TagStudyInstanceUID, ""),
			StudyDate:        ds.GetDefault(TagStudyDate, ""),
			Additional:       NewAttributes(),
		}
		if err := CopyAttributes(rec.Additional, ds, additionalTags, MissingEmpty); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SearchSeries runs a caller-shaped series-level query. The standard
// series attributes are requested on top of whatever the query sets.
func (c *NetworkClient) SearchSeries(ctx context.Context, query *Attributes, additionalTags []string) ([]SeriesRecord, error) {
	q := query.Clone()
	q.Set(TagQueryRetrieveLevel, LevelSeries)
	q.SetUndefinedToBlank(seriesKeys()...)
	q.SetUndefinedToBlank(additionalTags...)

	datasets, err := c.find(ctx, "search_series", q)
	if err != nil {
		return nil, err
	}
	return c.seriesFromDatasets(datasets, additionalTags)
}

// SeriesForStudy lists the series of a study. A non-empty modality filter
// issues one query per modality and de-duplicates by series UID, since
// modality is a single-valued match key. With manualCount, series the
// peer reports no instance count for are counted by an image-level query.
func (c *NetworkClient) SeriesForStudy(ctx context.Context, studyID string, modalityFilter, additionalTags []string, manualCount bool) ([]SeriesRecord, error) {
	modalities := modalityFilter
	if len(modalities) == 0 {
		modalities = []string{""}
	}

	queries := make([]*Attributes, 0, len(modalities))
	for _, mod := range modalities {
		q := NewAttributes()
		q.Set(TagQueryRetrieveLevel, LevelSeries)
		q.Set(TagStudyInstanceUID, studyID)
		if mod != "" {
			q.Set(TagModality, mod)
		}
		q.SetUndefinedToBlank(seriesKeys()...)
		q.SetUndefinedToBlank(additionalTags...)
		queries = append(queries, q)
	}

	datasets, err := c.find(ctx, "series_for_study", queries...)
	if err != nil {
		return nil, err
	}

	all, err := c.seriesFromDatasets(datasets, additionalTags)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := make([]SeriesRecord, 0, len(all))
	for _, s := range all {
		if s.SeriesInstanceUID == "" || seen[s.SeriesInstanceUID] {
			continue
		}
		seen[s.SeriesInstanceUID] = true
		if s.NumInstances == nil && manualCount {
			images, err := c.ImagesForSeries(ctx, studyID, s.SeriesInstanceUID, nil, 0)
			if err != nil {
				return nil, err
			}
			n := len(images)
			s.NumInstances = &n
		}
		out = append(out, s)
	}
	return out, nil
}

// ImagesForSeries lists the instances of a series. maxCount>0 caps the
// returned slice.
func (c *NetworkClient) ImagesForSeries(ctx context.Context, studyID, seriesID string, additionalTags []string, maxCount int) ([]ImageRecord, error) {
	q := NewAttributes()
	q.Set(TagQueryRetrieveLevel, LevelImage)
	q.Set(TagStudyInstanceUID, studyID)
	q.Set(TagSeriesInstanceUID, seriesID)
	q.SetUndefinedToBlank(TagSOPInstanceUID)
	q.SetUndefinedToBlank(additionalTags...)

	datasets, err := c.find(ctx, "images_for_series", q)
	if err != nil {
		return nil, err
	}

	out := make([]ImageRecord, 0, len(datasets))
	for _, ds := range datasets {
		rec := ImageRecord{
			SeriesInstanceUID: ds.GetDefault(TagSeriesInstanceUID, seriesID),
			SOPInstanceUID:    ds.GetDefault(TagSOPInstanceUID, ""),
			Additional:        NewAttributes(),
		}
		if err := CopyAttributes(rec.Additional, ds, additionalTags, MissingEmpty); err != nil {
			return nil, err
		}
		out = append(out, rec)
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
	}
	return out, nil
}

// FetchImagesAsDicomFiles retrieves every instance of a series into a
// directory named after the series under the configured base directory.
// It returns the directory path, or empty with no error when the peer
// sent nothing.
func (c *NetworkClient) FetchImagesAsDicomFiles(ctx context.Context, studyID, seriesID string) (string, error) {
	q := NewAttributes()
	q.Set(TagQueryRetrieveLevel, LevelSeries)
	q.Set(TagStudyInstanceUID, studyID)
	q.Set(TagSeriesInstanceUID, seriesID)

	dir := filepath.Join(c.cfg.DicomDir, seriesID)
	if err := c.retrieve(ctx, "fetch_images", q, dir); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		os.Remove(dir)
		return "", nil
	}
	return dir, nil
}

// FetchImageAsDicomFile retrieves a single instance and returns its file
// path, or empty with no error when the peer did not have it.
func (c *NetworkClient) FetchImageAsDicomFile(ctx context.Context, studyID, seriesID, sopInstanceID string) (string, error) {
	q := NewAttributes()
	q.Set(TagQueryRetrieveLevel, LevelImage)
	q.Set(TagStudyInstanceUID, studyID)
	q.Set(TagSeriesInstanceUID, seriesID)
	q.Set(TagSOPInstanceUID, sopInstanceID)

	dir := filepath.Join(c.cfg.DicomDir, seriesID)
	if err := c.retrieve(ctx, "fetch_image", q, dir); err != nil {
		return "", err
	}

	path := filepath.Join(dir, CanonicalFilename(sopInstanceID))
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}

// FetchThumbnail enumerates the instances of a series, retrieves the one
// in the middle of the list and renders it as a PNG. Returns empty with
// no error when the series had no instances or rendering failed.
func (c *NetworkClient) FetchThumbnail(ctx context.Context, studyID, seriesID string) (string, error) {
	images, err := c.ImagesForSeries(ctx, studyID, seriesID, nil, 0)
	if err != nil {
		return "", err
	}
	if len(images) == 0 {
		return "", nil
	}
	middle := images[len(images)/2].SOPInstanceUID
	return c.FetchSliceThumbnail(ctx, studyID, seriesID, middle)
}

// FetchSliceThumbnail retrieves one instance and renders it as a PNG,
// removing the intermediate file. Returns empty with no error when the
// instance was not found or rendering failed.
func (c *NetworkClient) FetchSliceThumbnail(ctx context.Context, studyID, seriesID, sopInstanceID string) (string, error) {
	path, err := c.FetchImageAsDicomFile(ctx, studyID, seriesID, sopInstanceID)
	if err != nil || path == "" {
		return "", err
	}
	defer os.Remove(path)

	pngPath := filepath.Join(c.cfg.DicomDir, sopInstanceID+".png")
	if err := c.renderer.Render(path, pngPath); err != nil {
		c.log.WithError(err).WithField("sop_instance_uid", sopInstanceID).Warn("thumbnail rendering failed")
		return "", nil
	}
	return pngPath, nil
}

// SendDatasets stores the given files on the default destination, or on
// the override when one is given. An override must be complete; a
// partially specified one is a configuration error. The first store
// failure aborts the remainder.
func (c *NetworkClient) SendDatasets(ctx context.Context, paths []string, override *Destination) error {
	dest := c.cfg.DefaultDestination
	if override != nil {
		set := 0
		if override.AETitle != "" {
			set++
		}
		if override.Host != "" {
			set++
		}
		if override.Port != 0 {
			set++
		}
		if set != 3 {
			return ErrInvalidOverride
		}
		dest = *override
	}

	for _, path := range paths {
		err := c.withRetry(ctx, "send_datasets", func(opts CallOptions) error {
			return c.backend.Store(ctx, opts, path, dest)
		})
		if err != nil {
			return fmt.Errorf("storing %s on %s: %w", filepath.Base(path), dest.AETitle, err)
		}
		c.log.WithFields(logrus.Fields{
			"path":        path,
			"destination": dest.AETitle,
		}).Info("dataset stored")
	}
	return nil
}

func (c *NetworkClient) find(ctx context.Context, op string, queries ...*Attributes) ([]*Attributes, error) {
	var datasets []*Attributes
	err := c.withRetry(ctx, op, func(opts CallOptions) error {
		responses, err := c.backend.Find(ctx, opts, queries...)
		if err != nil {
			return err
		}
		datasets, err = CollectResponses(responses)
		return err
	})
	if err != nil {
		return nil, err
	}
	return datasets, nil
}

// retrieve acquires the storage listener, verifies it is accepting
// connections and directs the peer to push the matching instances to it.
func (c *NetworkClient) retrieve(ctx context.Context, op string, query *Attributes, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	listener, err := c.listeners.Acquire(ctx, outputDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := listener.Release(); err != nil {
			c.log.WithError(err).Warn("storage listener release failed")
		}
	}()

	if !listener.Ready() {
		return ErrListenerNotReady
	}
	return c.withRetry(ctx, op, func(opts CallOptions) error {
		return c.backend.Move(ctx, opts, query, listener.AETitle())
	})
}

func (c *NetworkClient) seriesFromDatasets(datasets []*Attributes, additionalTags []string) ([]SeriesRecord, error) {
	out := make([]SeriesRecord, 0, len(datasets))
	for _, ds := range datasets {
		rec := SeriesRecord{
			SeriesInstanceUID: ds.GetDefault(TagSeriesInstanceUID, ""),
			StudyInstanceUID:  ds.GetDefault(TagStudyInstanceUID, ""),
			SeriesDescription: ds.GetDefault(TagSeriesDescription, ""),
			Modality:          ds.GetDefault(TagModality, ""),
			SeriesDate:        ds.GetDefault(TagSeriesDate, ""),
			SeriesTime:        ds.GetDefault(TagSeriesTime, ""),
			BodyPartExamined:  ds.GetDefault(TagBodyPartExamined, ""),
			PatientPosition:   ds.GetDefault(TagPatientPosition, ""),
			Additional:        NewAttributes(),
		}
		if raw, ok := ds.Get(TagNumberOfSeriesRelatedInstances); ok && raw != "" {
			// A reported count of zero is treated as unknown so the
			// manual fallback can take over.
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				rec.NumInstances = &n
			}
		}
		if err := CopyAttributes(rec.Additional, ds, additionalTags, MissingEmpty); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SeriesDate+out[i].SeriesTime < out[j].SeriesDate+out[j].SeriesTime
	})
	return out, nil
}

func seriesKeys() []string {
	return []string{
		TagSeriesInstanceUID,
		TagStudyInstanceUID,
		TagSeriesDescription,
		TagModality,
		TagSeriesDate,
		TagSeriesTime,
		TagBodyPartExamined,
		TagPatientPosition,
		TagNumberOfSeriesRelatedInstances,
	}
}
