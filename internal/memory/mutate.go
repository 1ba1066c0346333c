package memory

import (
	"context"
	"fmt"
)

// Action is a mutate operation.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionComplete Action = "complete"
)

// MutateRequest is the external mutate contract.
type MutateRequest struct {
	Action   Action    `json:"action"`
	UserID   string    `json:"userId"`
	ItemID   string    `json:"itemId,omitempty"`
	ItemData *ItemData `json:"itemData,omitempty"`
}

// Validate checks that the fields the action needs are present. It makes
// no network calls.
func (r *MutateRequest) Validate() error {
	if err := requireUser(r.UserID); err != nil {
		return err
	}
	switch r.Action {
	case ActionCreate:
		return r.ItemData.Validate()
	case ActionUpdate:
		if err := requireID(r.ItemID); err != nil {
			return err
		}
		return r.ItemData.Validate()
	case ActionComplete:
		return requireID(r.ItemID)
	default:
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidAction, r.Action)
	}
}

// MutateResponse reports the outcome of a mutate request.
type MutateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// Mutate dispatches a create, update or complete. The response is always
// filled in; the error carries the sentinel for callers that map it.
func (s *Store) Mutate(ctx context.Context, req MutateRequest) (MutateResponse, error) {
	if err := req.Validate(); err != nil {
		return MutateResponse{Message: err.Error()}, err
	}

	switch req.Action {
	case ActionCreate:
		id, err := s.Create(ctx, req.UserID, req.ItemData)
		if err != nil {
			return MutateResponse{Message: err.Error()}, err
		}
		return MutateResponse{
			Success: true,
			Message: fmt.Sprintf("Created new item: %s", req.ItemData.Item),
			ID:      id,
		}, nil

	case ActionUpdate:
		if err := s.Update(ctx, req.UserID, req.ItemID, req.ItemData); err != nil {
			return MutateResponse{Message: err.Error()}, err
		}
		return MutateResponse{
			Success: true,
			Message: fmt.Sprintf("Updated item: %s", req.ItemData.Item),
			ID:      req.ItemID,
		}, nil

	default:
		if err := s.Complete(ctx, req.UserID, req.ItemID); err != nil {
			return MutateResponse{Message: err.Error()}, err
		}
		return MutateResponse{
			Success: true,
			Message: fmt.Sprintf("Completed and removed item ID: %s", req.ItemID),
			ID:      req.ItemID,
		}, nil
	}
}
