// Package fsclient implements the client contract over a directory of
// DICOM files. It exists for development and tests: the directory plays
// the remote archive, queries scan the parsed attributes and fetches
// copy files instead of moving them across the network.
package fsclient

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"pacsgo/pacs"
)

// Config locates the backing directory and the fetch destination.
type Config struct {
	// SourceDir holds the datasets that play the remote archive.
	SourceDir string
	// DicomDir receives fetched files and thumbnails.
	DicomDir string
	Logger   *logrus.Logger
}

// Client serves queries from parsed local files.
type Client struct {
	cfg      Config
	renderer pacs.ThumbnailRenderer
	log      *logrus.Logger

	mu  sync.Mutex
	idx *index
}

// New builds a client over cfg.SourceDir. The renderer may be nil when
// thumbnails are not used.
func New(cfg Config, renderer pacs.ThumbnailRenderer) *Client {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{cfg: cfg, renderer: renderer, log: log, idx: loadIndex(cfg.SourceDir)}
}

// Close persists the index.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx.save(c.cfg.SourceDir)
}

// snapshot refreshes the index and returns the current entries.
func (c *Client) snapshot() ([]instanceEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.idx.refresh(c.cfg.SourceDir); err != nil {
		return nil, err
	}
	entries := make([]instanceEntry, 0, len(c.idx.Instances))
	for _, e := range c.idx.Instances {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func attrsOf(e instanceEntry) *pacs.Attributes {
	a := pacs.NewAttributes()
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.Set(k, e.Attrs[k])
	}
	return a
}

// Verify reports whether the backing directory exists.
func (c *Client) Verify(ctx context.Context) bool {
	info, err := os.Stat(c.cfg.SourceDir)
	return err == nil && info.IsDir()
}

// SearchPatients matches query against patient ID and name. Wildcard
// queries match substrings, mirroring how '*term*' behaves against a
// real archive; without wildcard the match is exact.
func (c *Client) SearchPatients(ctx context.Context, query string, additionalTags []string, wildcard bool) ([]pacs.PatientRecord, error) {
	entries, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	matches := func(value string) bool {
		if wildcard {
			return strings.Contains(strings.ToLower(value), strings.ToLower(query))
		}
		return value == query
	}

	records := make(map[string]*pacs.PatientRecord)
	var order []string
	for _, e := range entries {
		pid := e.Attrs[pacs.TagPatientID]
		if pid == "" {
			continue
		}
		if !matches(pid) && !matches(e.Attrs[pacs.TagPatientName]) {
			continue
		}
		merged, err := pacs.MergePatientRecord(records[pid], attrsOf(e), additionalTags)
		if err != nil {
			return nil, err
		}
		if _, seen := records[pid]; !seen {
			order = append(order, pid)
		}
		records[pid] = merged
	}

	out := make([]pacs.PatientRecord, 0, len(order))
	for _, pid := range order {
		out = append(out, *records[pid])
	}
	return out, nil
}

// StudiesForPatient lists the distinct studies of one patient. The date
// range accepts a single date or "start-end", inclusive on both sides.
func (c *Client) StudiesForPatient(ctx context.Context, patientID, dateRange string, additionalTags []string) ([]pacs.StudyRecord, error) {
	entries, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []pacs.StudyRecord
	for _, e := range entries {
		if e.Attrs[pacs.TagPatientID] != patientID {
			continue
		}
		studyUID := e.Attrs[pacs.TagStudyInstanceUID]
		if studyUID == "" || seen[studyUID] {
			continue
		}
		if !dateInRange(e.Attrs[pacs.TagStudyDate], dateRange) {
			continue
		}
		seen[studyUID] = true
		rec := pacs.StudyRecord{
			PatientID:        patientID,
			PatientName:      e.Attrs[pacs.TagPatientName],
			StudyInstanceUID: studyUID,
			StudyDate:        e.Attrs[pacs.TagStudyDate],
			Additional:       pacs.NewAttributes(),
		}
		if err := pacs.CopyAttributes(rec.Additional, attrsOf(e), additionalTags, pacs.MissingEmpty); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// dateInRange checks a DA value against a query range. An empty range
// matches everything.
func dateInRange(date, dateRange string) bool {
	if dateRange == "" {
		return true
	}
	if start, end, ok := strings.Cut(dateRange, "-"); ok {
		if start != "" && date < start {
			return false
		}
		if end != "" && date > end {
			return false
		}
		return true
	}
	return date == dateRange
}

// SearchSeries matches series against every attribute the query sets.
// Blank query values constrain nothing.
func (c *Client) SearchSeries(ctx context.Context, query *pacs.Attributes, additionalTags []string) ([]pacs.SeriesRecord, error) {
	entries, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	var out []pacs.SeriesRecord
	seen := make(map[string]bool)
	for _, e := range entries {
		match := true
		for _, k := range query.Keys() {
			want, _ := query.Get(k)
			if want == "" || k == pacs.TagQueryRetrieveLevel {
				continue
			}
			if e.Attrs[k] != want {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		seriesUID := e.Attrs[pacs.TagSeriesInstanceUID]
		if seriesUID == "" || seen[seriesUID] {
			continue
		}
		seen[seriesUID] = true
		rec, err := c.seriesRecord(entries, e, additionalTags)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SeriesForStudy lists the series of a study with exact instance counts;
// the files are local, so counting is always possible and manualCount
// changes nothing.
func (c *Client) SeriesForStudy(ctx context.Context, studyID string, modalityFilter, additionalTags []string, manualCount bool) ([]pacs.SeriesRecord, error) {
	entries, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	var out []pacs.SeriesRecord
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Attrs[pacs.TagStudyInstanceUID] != studyID {
			continue
		}
		if len(modalityFilter) > 0 && !containsFold(modalityFilter, e.Attrs[pacs.TagModality]) {
			continue
		}
		seriesUID := e.Attrs[pacs.TagSeriesInstanceUID]
		if seriesUID == "" || seen[seriesUID] {
			continue
		}
		seen[seriesUID] = true
		rec, err := c.seriesRecord(entries, e, additionalTags)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func (c *Client) seriesRecord(entries []instanceEntry, e instanceEntry, additionalTags []string) (pacs.SeriesRecord, error) {
	seriesUID := e.Attrs[pacs.TagSeriesInstanceUID]
	count := 0
	for _, other := range entries {
		if other.Attrs[pacs.TagSeriesInstanceUID] == seriesUID {
			count++
		}
	}
	rec := pacs.SeriesRecord{
		SeriesInstanceUID: seriesUID,
		StudyInstanceUID:  e.Attrs[pacs.TagStudyInstanceUID],
		SeriesDescription: e.Attrs[pacs.TagSeriesDescription],
		Modality:          e.Attrs[pacs.TagModality],
		SeriesDate:        e.Attrs[pacs.TagSeriesDate],
		SeriesTime:        e.Attrs[pacs.TagSeriesTime],
		BodyPartExamined:  e.Attrs[pacs.TagBodyPartExamined],
		PatientPosition:   e.Attrs[pacs.TagPatientPosition],
		NumInstances:      &count,
		Additional:        pacs.NewAttributes(),
	}
	err := pacs.CopyAttributes(rec.Additional, attrsOf(e), additionalTags, pacs.MissingEmpty)
	return rec, err
}

// ImagesForSeries lists the instances of a series in path order.
func (c *Client) ImagesForSeries(ctx context.Context, studyID, seriesID string, additionalTags []string, maxCount int) ([]pacs.ImageRecord, error) {
	entries, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	var out []pacs.ImageRecord
	for _, e := range entries {
		if e.Attrs[pacs.TagSeriesInstanceUID] != seriesID {
			continue
		}
		if studyID != "" && e.Attrs[pacs.TagStudyInstanceUID] != studyID {
			continue
		}
		rec := pacs.ImageRecord{
			SeriesInstanceUID: seriesID,
			SOPInstanceUID:    e.Attrs[pacs.TagSOPInstanceUID],
			Additional:        pacs.NewAttributes(),
		}
		if err := pacs.CopyAttributes(rec.Additional, attrsOf(e), additionalTags, pacs.MissingEmpty); err != nil {
			return nil, err
		}
		out = append(out, rec)
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
	}
	return out, nil
}

// FetchImagesAsDicomFiles copies every instance of a series into a
// directory named by the series UID. Empty result means empty path.
func (c *Client) FetchImagesAsDicomFiles(ctx context.Context, studyID, seriesID string) (string, error) {
	entries, err := c.snapshot()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(c.cfg.DicomDir, seriesID)
	copied := 0
	for _, e := range entries {
		if e.Attrs[pacs.TagSeriesInstanceUID] != seriesID {
			continue
		}
		if copied == 0 {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", err
			}
		}
		dst := filepath.Join(dir, pacs.CanonicalFilename(e.Attrs[pacs.TagSOPInstanceUID]))
		if err := copyFile(e.Path, dst); err != nil {
			return "", err
		}
		copied++
	}
	if copied == 0 {
		return "", nil
	}
	return dir, nil
}

// FetchImageAsDicomFile copies one instance, or returns empty when the
// instance is unknown.
func (c *Client) FetchImageAsDicomFile(ctx context.Context, studyID, seriesID, sopInstanceID string) (string, error) {
	c.mu.Lock()
	if err := c.idx.refresh(c.cfg.SourceDir); err != nil {
		c.mu.Unlock()
		return "", err
	}
	e, ok := c.idx.Instances[sopInstanceID]
	c.mu.Unlock()
	if !ok || e.Attrs[pacs.TagSeriesInstanceUID] != seriesID {
		return "", nil
	}

	dir := filepath.Join(c.cfg.DicomDir, seriesID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, pacs.CanonicalFilename(sopInstanceID))
	if err := copyFile(e.Path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// FetchThumbnail renders the middle instance of a series. Empty with no
// error when the series has no instances or rendering failed.
func (c *Client) FetchThumbnail(ctx context.Context, studyID, seriesID string) (string, error) {
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

// FetchSliceThumbnail renders one instance, removing the fetched copy.
func (c *Client) FetchSliceThumbnail(ctx context.Context, studyID, seriesID, sopInstanceID string) (string, error) {
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

// SendDatasets copies files into the backing directory, which is what a
// store amounts to when the archive is local. Overrides are validated
// like a real destination but otherwise ignored.
func (c *Client) SendDatasets(ctx context.Context, paths []string, override *pacs.Destination) error {
	if override != nil {
		if override.AETitle == "" || override.Host == "" || override.Port == 0 {
			return pacs.ErrInvalidOverride
		}
	}
	for _, path := range paths {
		dst := filepath.Join(c.cfg.SourceDir, filepath.Base(path))
		if err := copyFile(path, dst); err != nil {
			return err
		}
		c.log.WithField("path", dst).Debug("dataset stored locally")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
