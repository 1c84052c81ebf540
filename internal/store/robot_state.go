package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"gsd.app/relay/common/atomicfile"
	"gsd.app/relay/internal/model"
)

var ErrStateNotInitialized = errors.New("robot state not initialized")

// RobotStateStore holds the robot pose snapshot. Only the dispatcher writes it.
type RobotStateStore interface {
	// Reset writes model.InitialRobotState.
	Reset(ctx context.Context) (model.RobotState, error)

	Get(ctx context.Context) (model.RobotState, error)

	// MoveTo updates the coordinates, keeping orientation and direction.
	MoveTo(ctx context.Context, to model.Coordinate) (model.RobotState, error)
}

// FileRobotStateStore keeps the snapshot in a JSON file the solver can read
// from its working directory. The file is re-read on every call since the
// solver may rewrite orientation itself.
type FileRobotStateStore struct {
	mu   sync.Mutex
	path string
}

func NewFileRobotStateStore(path string) (*FileRobotStateStore, error) {
	if path == "" {
		return nil, fmt.Errorf("robot state path is required")
	}
	return &FileRobotStateStore{path: path}, nil
}

func (s *FileRobotStateStore) Path() string {
	return s.path
}

func (s *FileRobotStateStore) Reset(ctx context.Context) (model.RobotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := model.InitialRobotState()
	if err := s.write(state); err != nil {
		return model.RobotState{}, err
	}
	return state, nil
}

func (s *FileRobotStateStore) Get(ctx context.Context) (model.RobotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileRobotStateStore) MoveTo(ctx context.Context, to model.Coordinate) (model.RobotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return model.RobotState{}, err
	}
	next := current.WithPosition(to)
	if err := s.write(next); err != nil {
		return model.RobotState{}, err
	}
	return next, nil
}

func (s *FileRobotStateStore) read() (model.RobotState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RobotState{}, ErrStateNotInitialized
		}
		return model.RobotState{}, fmt.Errorf("reading robot state: %w", err)
	}

	var state model.RobotState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.RobotState{}, fmt.Errorf("decoding robot state: %w", err)
	}
	return state, nil
}

func (s *FileRobotStateStore) write(state model.RobotState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding robot state: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing robot state: %w", err)
	}
	return nil
}
