package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-portal-api/internal/service"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/response"
)

type semesterOverviewer interface {
	Overview() service.SemesterOverview
}

// SemesterHandler exposes the academic clock.
type SemesterHandler struct {
	service semesterOverviewer
}

// NewSemesterHandler constructs the handler.
func NewSemesterHandler(svc semesterOverviewer) *SemesterHandler {
	return &SemesterHandler{service: svc}
}

// Status godoc
// @Summary Current semester status
// @Description Phase, progress and next exam milestone computed for the current time
// @Tags Semester
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /semester/status [get]
func (h *SemesterHandler) Status(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.service.Overview(), nil)
}
