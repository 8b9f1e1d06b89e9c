// Package file provides file-based persistence: one JSON document per workflow
// under <root>/workflows.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{
		root: strings.TrimPrefix(root, "file://"),
		now:  time.Now,
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	info, err := os.Stat(fp.root)
	if err != nil {
		return fmt.Errorf("failed to stat persistence root: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("persistence root %s is not a directory", fp.root)
	}

	return nil
}

// List returns every workflow, newest first.
func (fp *Persistence) List(_ context.Context) ([]*models.Workflow, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	files, err := fs.Glob(os.DirFS(fp.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(files))

	for _, file := range files {
		workflow, err := fp.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			if errors.Is(err, persistence.ErrWorkflowNotFound) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return workflows, nil
}

// Get reads a workflow by its ID.
func (fp *Persistence) Get(_ context.Context, id string) (*models.Workflow, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	workflow, err := fp.read(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("Get", id, err)
	}

	return workflow, nil
}

// Create writes a new workflow.
func (fp *Persistence) Create(_ context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	record, err := persistence.NewRecord(workflow, fp.now())
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", workflow.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if _, err := os.Stat(fp.path(record.ID)); err == nil {
		return nil, persistence.NewWorkflowError("Create", record.ID, persistence.ErrWorkflowAlreadyExists)
	}

	if err := fp.write(record); err != nil {
		return nil, persistence.NewWorkflowError("Create", record.ID, err)
	}

	return record, nil
}

// Update merges patch into the stored workflow.
func (fp *Persistence) Update(_ context.Context, id string, patch models.WorkflowPatch) (*models.Workflow, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	stored, err := fp.read(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("Update", id, err)
	}

	record, err := persistence.ApplyUpdate(stored, patch, fp.now())
	if err != nil {
		return nil, persistence.NewWorkflowError("Update", id, err)
	}

	if err := fp.write(record); err != nil {
		return nil, persistence.NewWorkflowError("Update", id, err)
	}

	return record, nil
}

// Remove deletes the workflow file.
func (fp *Persistence) Remove(_ context.Context, id string) error {
	if !validID(id) {
		return persistence.NotFound("Remove", id)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.Remove(fp.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NotFound("Remove", id)
	}

	if err != nil {
		return persistence.NewWorkflowError("Remove", id, err)
	}

	return nil
}

func (fp *Persistence) dir() string {
	return filepath.Join(fp.root, "workflows")
}

func (fp *Persistence) path(id string) string {
	return filepath.Join(fp.dir(), id+".json")
}

func (fp *Persistence) read(id string) (*models.Workflow, error) {
	if !validID(id) {
		return nil, persistence.ErrWorkflowNotFound
	}

	body, err := os.ReadFile(fp.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow models.Workflow

	if err := json.Unmarshal(body, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	return &workflow, nil
}

// write replaces the document through a temp file so readers never observe a
// partial write.
func (fp *Persistence) write(workflow *models.Workflow) error {
	if err := os.MkdirAll(fp.dir(), 0o750); err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	tmp, err := os.CreateTemp(fp.dir(), ".workflow-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write workflow: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close workflow file: %w", err)
	}

	if err := os.Rename(tmp.Name(), fp.path(workflow.ID)); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to move workflow file into place: %w", err)
	}

	return nil
}

// validID keeps ids from escaping the workflows directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}
