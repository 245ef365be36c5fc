package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/talentis/proctor/internal/agent/question"
	"github.com/talentis/proctor/internal/services"
	"github.com/talentis/proctor/internal/utils"
)

type SimulationHandler struct {
	svc services.SimulationService
}

func NewSimulationHandler(svc services.SimulationService) *SimulationHandler {
	return &SimulationHandler{svc: svc}
}

type CreateSimulationRequest struct {
	Title     string              `json:"title" binding:"required"`
	Role      string              `json:"role"`
	Prompt    string              `json:"prompt"`
	Questions []question.Question `json:"questions"`
}

func (h *SimulationHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SimulationHandler.Create", "invalid request body", err))
		return
	}

	sim, err := h.svc.Create(c.Request.Context(), userID, req.Title, req.Role, req.Prompt, req.Questions)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sim)
}

// List returns the simulations created by the authenticated recruiter.
func (h *SimulationHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sims, err := h.svc.ListMine(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"simulations": sims})
}

func (h *SimulationHandler) Get(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("simulation_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SimulationHandler.Get", "invalid simulation_id", err))
		return
	}

	sim, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sim)
}
