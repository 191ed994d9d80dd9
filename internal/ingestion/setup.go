package ingestion

import (
	"time"

	"github.com/google/uuid"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/report"
)

// RunState is everything one run accumulates. Only the service mutates it.
type RunState struct {
	RunID      string
	StartedAt  time.Time
	Reports    []*models.ReleaseReport
	Artifacts  []models.ReleaseArtifact
	Errors     []models.ReleaseError
	TotalRows  int
	Partitions *models.FirstWritePartition
	Combined   *report.CombineResult
}

// Processed is the number of releases harmonized successfully.
func (s *RunState) Processed() int {
	return len(s.Reports)
}

type ISetup interface {
	build() (*RunState, error)
}

type Setup struct{}

// Instantiate the run accumulators in one place so tests can swap them
func (h Setup) build() (*RunState, error) {
	runID, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	partitions := make(models.FirstWritePartition)
	return &RunState{
		RunID:      runID.String(),
		StartedAt:  time.Now(),
		Reports:    []*models.ReleaseReport{},
		Artifacts:  []models.ReleaseArtifact{},
		Errors:     []models.ReleaseError{},
		Partitions: &partitions,
	}, nil
}
