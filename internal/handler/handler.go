package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/amarkanday/experimentation-platform/docs"
	"github.com/amarkanday/experimentation-platform/internal/dto"
	"github.com/amarkanday/experimentation-platform/internal/service"
)

type Handler struct {
	assignmentService service.AssignmentServicer
	gatherer          prometheus.Gatherer
	router            *gin.Engine
	log               *zap.Logger
}

func NewHandler(assignmentService service.AssignmentServicer, gatherer prometheus.Gatherer, log *zap.Logger) *Handler {
	h := &Handler{
		assignmentService: assignmentService,
		gatherer:          gatherer,
		router:            gin.Default(),
		log:               log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	h.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := h.router.Group("/api/v1")
	v1.POST("/assignments", h.getOrCreateAssignment)
}

// healthCheck handles health check requests
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// getOrCreateAssignment handles POST /api/v1/assignments
// @Summary Get or create a variant assignment
// @Description Return the user's sticky variant for an experiment, bucketing and persisting it on first request
// @Tags assignments
// @Accept json
// @Produce json
// @Param assignment body dto.AssignmentRequest true "Assignment request"
// @Success 200 {object} dto.AssignmentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/assignments [post]
func (h *Handler) getOrCreateAssignment(c *gin.Context) {
	var req dto.AssignmentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid assignment request",
			zap.Error(err),
			zap.String("experiment_key", req.ExperimentKey))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.assignmentService.GetOrCreateAssignment(c.Request.Context(), &req)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	case errors.Is(err, service.ErrExperimentNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
		return
	case err != nil:
		h.log.Error("Failed to get or create assignment",
			zap.Error(err),
			zap.String("user_id", req.UserID),
			zap.String("experiment_key", req.ExperimentKey))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to resolve assignment",
		})
		return
	}

	c.JSON(http.StatusOK, response)
}
