package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
	"github.com/google/uuid"
)

// RegisterAgent creates an agent identity. An empty id gets a fresh uuid.
func (s *JobService) RegisterAgent(ctx context.Context, agentID, name, description string) (*domain.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: agent name is required", domain.ErrInvalidRequest)
	}

	if agentID == "" {
		agentID = uuid.NewString()
	} else if _, err := uuid.Parse(agentID); err != nil {
		return nil, fmt.Errorf("%w: agent id must be a uuid", domain.ErrInvalidRequest)
	}

	now := s.now()
	agent := &domain.Agent{
		ID:          agentID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	s.logger.Info("Agent registered",
		slog.String("agent_id", agent.ID),
		slog.String("name", agent.Name),
	)
	return agent, nil
}

// GetAgent returns one agent.
func (s *JobService) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	return s.repo.GetAgent(ctx, agentID)
}
