package handler

import (
	"net/http"

	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterAgent handles POST /api/v1/executor/agents
func (h *JobHandler) RegisterAgent(c *gin.Context) {
	var req dto.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(c, h.logger, "Invalid request body", err)
		return
	}

	agent, err := h.service.RegisterAgent(c.Request.Context(), req.AgentID, req.Name, req.Description)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewAgentDTO(agent))
}

// GetAgent handles GET /api/v1/agents/:agent_id
func (h *JobHandler) GetAgent(c *gin.Context) {
	agentID := c.Param("agent_id")
	if _, err := uuid.Parse(agentID); err != nil {
		respondInvalidRequest(c, h.logger, "agent_id must be a valid UUID", err)
		return
	}

	agent, err := h.service.GetAgent(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAgentDTO(agent))
}
