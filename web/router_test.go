package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pacsgo/config"
	"pacsgo/pacs"
)

type stubClient struct {
	reachable bool
	patients  []pacs.PatientRecord
	lastQuery string
	wildcard  bool
}

func (s *stubClient) Verify(ctx context.Context) bool { return s.reachable }

func (s *stubClient) SearchPatients(ctx context.Context, query string, tags []string, wildcard bool) ([]pacs.PatientRecord, error) {
	s.lastQuery = query
	s.wildcard = wildcard
	return s.patients, nil
}

func (s *stubClient) SearchSeries(ctx context.Context, query *pacs.Attributes, tags []string) ([]pacs.SeriesRecord, error) {
	return nil, nil
}

func (s *stubClient) StudiesForPatient(ctx context.Context, patientID, dateRange string, tags []string) ([]pacs.StudyRecord, error) {
	return nil, nil
}

func (s *stubClient) SeriesForStudy(ctx context.Context, studyID string, modalities, tags []string, manualCount bool) ([]pacs.SeriesRecord, error) {
	return nil, nil
}

func (s *stubClient) ImagesForSeries(ctx context.Context, studyID, seriesID string, tags []string, maxCount int) ([]pacs.ImageRecord, error) {
	return nil, nil
}

func (s *stubClient) FetchImagesAsDicomFiles(ctx context.Context, studyID, seriesID string) (string, error) {
	return "", nil
}

func (s *stubClient) FetchImageAsDicomFile(ctx context.Context, studyID, seriesID, sopID string) (string, error) {
	return "", nil
}

func (s *stubClient) FetchThumbnail(ctx context.Context, studyID, seriesID string) (string, error) {
	return "", nil
}

func (s *stubClient) FetchSliceThumbnail(ctx context.Context, studyID, seriesID, sopID string) (string, error) {
	return "", nil
}

func (s *stubClient) SendDatasets(ctx context.Context, paths []string, override *pacs.Destination) error {
	if override != nil && (override.AETitle == "" || override.Host == "" || override.Port == 0) {
		return pacs.ErrInvalidOverride
	}
	return nil
}

func newTestRouter(client pacs.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	r := NewRouter(client, config.LoadConfig(), log)
	r.SetupRoutes()
	return r.GetEngine()
}

func TestHealthEndpoint(t *testing.T) {
	engine := newTestRouter(&stubClient{reachable: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}

	engine = newTestRouter(&stubClient{reachable: false})
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("unreachable status = %d", w.Code)
	}
}

func TestSearchPatientsEndpoint(t *testing.T) {
	client := &stubClient{patients: []pacs.PatientRecord{{PatientID: "PAT014"}}}
	engine := newTestRouter(client)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/patients?q=PAT014", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if client.lastQuery != "PAT014" || !client.wildcard {
		t.Errorf("query = %q, wildcard = %v", client.lastQuery, client.wildcard)
	}

	var body struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 {
		t.Errorf("total = %d", body.Total)
	}
}

func TestSearchPatientsRequiresQuery(t *testing.T) {
	engine := newTestRouter(&stubClient{})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/patients", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSendDatasetsRejectsPartialOverride(t *testing.T) {
	engine := newTestRouter(&stubClient{})

	payload := `{"paths": ["/data/a.dcm"], "override": {"AETitle": "OTHER"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/send", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	engine := newTestRouter(&stubClient{reachable: true})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request ID header missing")
	}
}
