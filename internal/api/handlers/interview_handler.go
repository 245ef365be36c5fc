package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/talentis/proctor/internal/services"
	"github.com/talentis/proctor/internal/utils"
)

const maxChunkBytes = 32 << 20

type InterviewHandler struct {
	attempts services.AttemptService
	proctor  services.ProctorService
}

func NewInterviewHandler(attempts services.AttemptService, proctor services.ProctorService) *InterviewHandler {
	return &InterviewHandler{attempts: attempts, proctor: proctor}
}

type StartInterviewRequest struct {
	SimulationID int64 `json:"simulation_id" binding:"required"`
}

type StartInterviewResponse struct {
	AttemptID int64 `json:"attempt_id"`
}

func (h *InterviewHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req StartInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Start", "invalid request body", err))
		return
	}

	attempt, err := h.attempts.Start(c.Request.Context(), req.SimulationID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartInterviewResponse{AttemptID: attempt.ID})
}

func (h *InterviewHandler) UploadChunk(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	attemptID, ok := attemptParam(c)
	if !ok {
		return
	}

	kind := c.PostForm("kind")
	if kind == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.UploadChunk", "missing form field 'kind'", nil))
		return
	}

	fh, err := c.FormFile("chunk")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.UploadChunk", "missing multipart field 'chunk'", err))
		return
	}
	if fh.Size <= 0 || fh.Size > maxChunkBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.UploadChunk", "chunk too large (max 32MB)", nil))
		return
	}

	file, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "InterviewHandler.UploadChunk", "failed to open upload", err))
		return
	}
	defer file.Close()

	if err := h.attempts.SaveChunk(c.Request.Context(), attemptID, userID, kind, file); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *InterviewHandler) Finish(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	attemptID, ok := attemptParam(c)
	if !ok {
		return
	}

	if err := h.attempts.Finish(c.Request.Context(), attemptID, userID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "processing", "attempt_id": attemptID})
}

func (h *InterviewHandler) FaceFlag(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	attemptID, ok := attemptParam(c)
	if !ok {
		return
	}

	var flag services.FaceFlag
	if err := c.ShouldBindJSON(&flag); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.FaceFlag", "invalid request body", err))
		return
	}

	summary, err := h.proctor.RecordFlag(c.Request.Context(), attemptID, userID, flag)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "proctoring": summary})
}

// Review serves the reviewer-facing projection. Route-level role middleware
// restricts it to recruiters and admins.
func (h *InterviewHandler) Review(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}
	attemptID, ok := attemptParam(c)
	if !ok {
		return
	}

	review, err := h.attempts.Review(c.Request.Context(), attemptID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

func attemptParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("attempt_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler", "invalid attempt_id", err))
		return 0, false
	}
	return id, true
}
