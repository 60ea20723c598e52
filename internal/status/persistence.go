// Package status provides run status tracking and persistence for the services.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for run status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the run status of a service
	SaveStatus(ctx context.Context, service string, status *RunStatus) error

	// LoadStatus loads the run status of a service.
	// Returns an empty RunStatus if nothing was saved yet (first run)
	LoadStatus(ctx context.Context, service string) (*RunStatus, error)

	// LoadAllStatus loads the run status of every service that has one
	LoadAllStatus(ctx context.Context) (map[string]*RunStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence.
// Each service gets its own directory under basePath.
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus writes the status to a temporary file and renames it into place
func (f *fileStatusPersistence) SaveStatus(_ context.Context, service string, status *RunStatus) error {
	serviceDir := filepath.Join(f.basePath, service)
	if err := os.MkdirAll(serviceDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for service '%s': %w", service, err)
	}

	filePath := filepath.Join(serviceDir, StatusFileName)

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for service '%s': %w", service, err)
	}

	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for service '%s': %w", service, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for service '%s': %w", service, err)
	}

	return nil
}

// LoadStatus loads the run status of a service
func (f *fileStatusPersistence) LoadStatus(_ context.Context, service string) (*RunStatus, error) {
	filePath := filepath.Join(f.basePath, service, StatusFileName)

	// #nosec G304 -- filePath is built from the configured status dir and a fixed service name
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &RunStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for service '%s': %w", service, err)
	}

	var status RunStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for service '%s': %w", service, err)
	}

	return &status, nil
}

// LoadAllStatus loads run status for all services. Unreadable entries are skipped.
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*RunStatus, error) {
	result := make(map[string]*RunStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		service := entry.Name()
		status, err := f.LoadStatus(ctx, service)
		if err != nil || status.Phase == "" {
			continue
		}

		result[service] = status
	}

	return result, nil
}
