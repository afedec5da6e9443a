package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/service"
)

type fakeController struct {
	addErr    error
	jobID     string
	dirIDs    []string
	bulk      *service.BulkResult
	bulkErr   error
	status    *service.Status
	cancelled bool
	paused    bool

	lastStation  string
	lastPath     string
	lastPriority domain.Priority
}

func (f *fakeController) AddImportJob(station, filePath string, priority domain.Priority) (string, error) {
	f.lastStation, f.lastPath, f.lastPriority = station, filePath, priority
	return f.jobID, f.addErr
}

func (f *fakeController) AddDirectoryImport(station, dirPath string, priority domain.Priority) ([]string, error) {
	f.lastStation, f.lastPath, f.lastPriority = station, dirPath, priority
	return f.dirIDs, f.addErr
}

func (f *fakeController) StartBulkImport() (*service.BulkResult, error) { return f.bulk, f.bulkErr }
func (f *fakeController) GetStatus() *service.Status                    { return f.status }
func (f *fakeController) CancelJob(jobID string) bool                   { return f.cancelled }
func (f *fakeController) Pause()                                        { f.paused = true }
func (f *fakeController) Resume()                                       { f.paused = false }

func newImportRouter(f *fakeController) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewImportHandler(f)
	r := gin.New()
	r.POST("/import/job", h.AddJob)
	r.POST("/import/directory", h.AddDirectory)
	r.POST("/import/bulk", h.Bulk)
	r.GET("/import/status", h.Status)
	r.POST("/import/cancel/:id", h.Cancel)
	r.POST("/import/pause", h.Pause)
	r.POST("/import/resume", h.Resume)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAddJobAccepted(t *testing.T) {
	f := &fakeController{jobID: "job-1"}
	r := newImportRouter(f)

	w := doJSON(t, r, http.MethodPost, "/import/job",
		`{"station":"ort","filePath":"/data/a.csv","priority":"high"}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"jobId":"job-1"}`, w.Body.String())
	assert.Equal(t, "ort", f.lastStation)
	assert.Equal(t, domain.PriorityHigh, f.lastPriority)
}

func TestAddJobDefaultsPriority(t *testing.T) {
	f := &fakeController{jobID: "job-1"}
	r := newImportRouter(f)

	w := doJSON(t, r, http.MethodPost, "/import/job",
		`{"station":"ort","filePath":"/data/a.csv"}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, domain.PriorityNormal, f.lastPriority)
}

func TestAddJobBadRequests(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "malformed body", body: `{"station":`},
		{name: "unknown priority", body: `{"station":"ort","filePath":"/a.csv","priority":"urgent"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newImportRouter(&fakeController{})
			w := doJSON(t, r, http.MethodPost, "/import/job", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAddJobInvalidArgument(t *testing.T) {
	f := &fakeController{addErr: domain.InvalidArgumentf("station is required")}
	r := newImportRouter(f)

	w := doJSON(t, r, http.MethodPost, "/import/job", `{"filePath":"/a.csv"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "station is required")
}

func TestAddDirectoryAccepted(t *testing.T) {
	f := &fakeController{dirIDs: []string{"a", "b"}}
	r := newImportRouter(f)

	w := doJSON(t, r, http.MethodPost, "/import/directory",
		`{"station":"ort","dirPath":"/drop/ort"}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"jobIds":["a","b"]}`, w.Body.String())
}

func TestBulkReportsEstimate(t *testing.T) {
	f := &fakeController{bulk: &service.BulkResult{
		JobIDs:            []string{"a", "b", "c"},
		EstimatedDuration: 1500 * time.Millisecond,
	}}
	r := newImportRouter(f)

	w := doJSON(t, r, http.MethodPost, "/import/bulk", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"jobIds":["a","b","c"],"estimatedDuration":1500}`, w.Body.String())
}

func TestStatusSnapshot(t *testing.T) {
	f := &fakeController{status: &service.Status{
		Paused: true,
		Stats:  service.Stats{TotalJobs: 7, CompletedJobs: 5},
	}}
	r := newImportRouter(f)

	w := doJSON(t, r, http.MethodGet, "/import/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"paused":true`)
	assert.Contains(t, w.Body.String(), `"totalJobs":7`)
}

func TestCancelResult(t *testing.T) {
	r := newImportRouter(&fakeController{cancelled: true})
	w := doJSON(t, r, http.MethodPost, "/import/cancel/job-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancelled":true}`, w.Body.String())

	r = newImportRouter(&fakeController{cancelled: false})
	w = doJSON(t, r, http.MethodPost, "/import/cancel/active-job", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancelled":false}`, w.Body.String())
}

func TestPauseResume(t *testing.T) {
	f := &fakeController{}
	r := newImportRouter(f)

	w := doJSON(t, r, http.MethodPost, "/import/pause", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.paused)

	w = doJSON(t, r, http.MethodPost, "/import/resume", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.paused)
}
