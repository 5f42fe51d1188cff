// ABOUTME: Store interface and data types for parley persistence
// ABOUTME: Maps configured agent keys to the remote assistants provisioned for them

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateAgent is returned when an assistant id is already recorded under another key
var ErrDuplicateAgent = errors.New("assistant already recorded")

// AgentRecord maps a configured agent key to the remote assistant provisioned for it
type AgentRecord struct {
	Key         string
	AssistantID string
	Name        string
	Model       string
	Avatar      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store defines the interface for parley persistence
type Store interface {
	// Agents
	SaveAgent(ctx context.Context, rec *AgentRecord) error
	GetAgent(ctx context.Context, key string) (*AgentRecord, error)
	ListAgents(ctx context.Context) ([]*AgentRecord, error)
	DeleteAgent(ctx context.Context, key string) error

	// Close releases any resources held by the store
	Close() error
}
