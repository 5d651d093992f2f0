package web

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"pacsgo/config"
	"pacsgo/pacs"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Router struct {
	router *gin.Engine
	client pacs.Client
	config *config.Config
	logger *logrus.Logger
}

func NewRouter(client pacs.Client, cfg *config.Config, logger *logrus.Logger) *Router {
	router := gin.Default()

	// Set up CORS
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Tag every request so log lines from one query can be correlated
	router.Use(func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	})

	if logger == nil {
		logger = logrus.New()
	}

	return &Router{
		router: router,
		client: client,
		config: cfg,
		logger: logger,
	}
}

func (r *Router) SetupRoutes() {
	api := r.router.Group("/api")
	{
		api.GET("/health", r.getHealth)
		api.GET("/patients", r.searchPatients)
		api.GET("/patients/:patientID/studies", r.getStudies)
		api.GET("/studies/:studyID/series", r.getSeries)
		api.GET("/studies/:studyID/series/:seriesID/images", r.getImages)
		api.GET("/studies/:studyID/series/:seriesID/thumbnail", r.getSeriesThumbnail)
		api.GET("/studies/:studyID/series/:seriesID/images/:sopID/thumbnail", r.getSliceThumbnail)
		api.POST("/send", r.sendDatasets)
	}
}

func (r *Router) getHealth(c *gin.Context) {
	reachable := r.client.Verify(c.Request.Context())
	status := http.StatusOK
	if !reachable {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"pacs_reachable": reachable})
}

func (r *Router) searchPatients(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}
	wildcard := r.config.SearchWildcard
	if v := c.Query("wildcard"); v != "" {
		wildcard = v == "true"
	}

	patients, err := r.client.SearchPatients(c.Request.Context(), query, queryTags(c), wildcard)
	if err != nil {
		r.logger.WithError(err).Error("patient search failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"patients": patients,
		"total":    len(patients),
	})
}

func (r *Router) getStudies(c *gin.Context) {
	patientID := c.Param("patientID")

	studies, err := r.client.StudiesForPatient(c.Request.Context(), patientID, c.Query("dateRange"), queryTags(c))
	if err != nil {
		r.logger.WithError(err).Error("study query failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"studies": studies,
		"total":   len(studies),
	})
}

func (r *Router) getSeries(c *gin.Context) {
	studyID := c.Param("studyID")
	var modalities []string
	if v := c.Query("modality"); v != "" {
		modalities = strings.Split(v, ",")
	}
	manualCount := c.Query("manualCount") == "true"

	series, err := r.client.SeriesForStudy(c.Request.Context(), studyID, modalities, queryTags(c), manualCount)
	if err != nil {
		r.logger.WithError(err).Error("series query failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"series": series,
		"total":  len(series),
	})
}

func (r *Router) getImages(c *gin.Context) {
	studyID := c.Param("studyID")
	seriesID := c.Param("seriesID")
	maxCount := 0
	if v := c.Query("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxCount = n
		}
	}

	images, err := r.client.ImagesForSeries(c.Request.Context(), studyID, seriesID, queryTags(c), maxCount)
	if err != nil {
		r.logger.WithError(err).Error("image query failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"images": images,
		"total":  len(images),
	})
}

func (r *Router) getSeriesThumbnail(c *gin.Context) {
	path, err := r.client.FetchThumbnail(c.Request.Context(), c.Param("studyID"), c.Param("seriesID"))
	r.serveThumbnail(c, path, err)
}

func (r *Router) getSliceThumbnail(c *gin.Context) {
	path, err := r.client.FetchSliceThumbnail(c.Request.Context(), c.Param("studyID"), c.Param("seriesID"), c.Param("sopID"))
	r.serveThumbnail(c, path, err)
}

func (r *Router) serveThumbnail(c *gin.Context, path string, err error) {
	if err != nil {
		r.logger.WithError(err).Error("thumbnail fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No matching instances on the archive"})
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Thumbnail not found"})
		return
	}

	c.File(path)
}

func (r *Router) sendDatasets(c *gin.Context) {
	var req struct {
		Paths    []string          `json:"paths" binding:"required"`
		Override *pacs.Destination `json:"override"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Paths are required"})
		return
	}

	if err := r.client.SendDatasets(c.Request.Context(), req.Paths, req.Override); err != nil {
		if err == pacs.ErrInvalidOverride {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		r.logger.WithError(err).Error("send failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Datasets sent successfully",
		"total":   len(req.Paths),
	})
}

// queryTags reads the comma-separated list of extra attributes the
// caller wants included on every record.
func queryTags(c *gin.Context) []string {
	if v := c.Query("tags"); v != "" {
		return strings.Split(v, ",")
	}
	return nil
}

func (r *Router) GetEngine() *gin.Engine {
	return r.router
}
