package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/handler"
	"github.com/noah-isme/elective-match-api/internal/middleware"
	"github.com/noah-isme/elective-match-api/internal/models"
	"github.com/noah-isme/elective-match-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/elective-match-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/elective-match-api/pkg/middleware/requestid"
)

// Options configures the shared engine setup.
type Options struct {
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Observer       middleware.RequestObserver
	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready func() error
}

// APIHandlers groups the handlers mounted under the API prefix.
type APIHandlers struct {
	Assignments *handler.AssignmentHandler
	Weightings  *handler.WeightingHandler
	Grades      *handler.GradeHandler
	Metrics     *handler.MetricsHandler
}

// NewEngine builds a gin engine with the common middleware chain and probes.
func NewEngine(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Observer))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if opts.Ready != nil {
			if err := opts.Ready(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	return r
}

// RegisterMatching mounts the engine endpoints under /v1/matching.
func RegisterMatching(r gin.IRouter, h *handler.MatchingHandler) {
	group := r.Group("/v1/matching")
	group.POST("/solve", h.Solve)
	group.GET("/health", h.Health)
	group.GET("/info", h.Info)

	runs := group.Group("/runs/:runId")
	runs.GET("/assignments", h.Assignments)
	runs.GET("/assignments/student/:studentId", h.StudentAssignment)
	runs.GET("/assignments/course/:courseId", h.CourseAssignments)
	runs.GET("/unmatched-students", h.UnmatchedStudents)
	runs.GET("/full-courses", h.FullCourses)
	runs.GET("/summary", h.Summary)
}

// RegisterAPI mounts the administrative API. Routes under prefix require an
// ADMIN token, except export downloads.
func RegisterAPI(r gin.IRouter, prefix string, tokens middleware.TokenValidator, h APIHandlers) {
	if h.Metrics != nil {
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	if h.Assignments != nil {
		r.GET(strings.TrimRight(prefix, "/")+"/exports/:token", h.Assignments.DownloadExport)
	}

	api := r.Group(prefix)
	api.Use(middleware.JWT(tokens), middleware.RequireRoles(models.RoleAdmin))

	if h.Assignments != nil {
		assignments := api.Group("/assignments")
		assignments.POST("/execute-workflow", h.Assignments.ExecuteWorkflow)
		assignments.GET("/runs/:runId", h.Assignments.RunSummary)
		assignments.GET("/runs/:runId/enrollments", h.Assignments.RunEnrollments)
		assignments.GET("/runs/:runId/export", h.Assignments.ExportRun)
	}
	if h.Weightings != nil {
		api.GET("/courses/:code/weightings", h.Weightings.List)
		api.PUT("/courses/:code/weightings", h.Weightings.Replace)
	}
	if h.Grades != nil {
		api.POST("/grades", h.Grades.Ingest)
	}
	if h.Metrics != nil {
		api.GET("/metrics/summary", h.Metrics.Snapshot)
	}
}
