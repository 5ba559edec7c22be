package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emrgen/docvault/internal/blob"
	"github.com/emrgen/docvault/internal/store"
)

var _ CronJob = (*ArtifactJanitor)(nil)

// ArtifactJanitor retries removing artifacts whose removal failed during a document delete.
type ArtifactJanitor struct {
	store    store.Store
	blobs    blob.Store
	schedule string
	batch    int
}

func NewArtifactJanitor(schedule string, store store.Store, blobs blob.Store) *ArtifactJanitor {
	return &ArtifactJanitor{
		store:    store,
		blobs:    blobs,
		schedule: schedule,
		batch:    100,
	}
}

func (j *ArtifactJanitor) Name() string {
	return "artifact_janitor"
}

func (j *ArtifactJanitor) Schedule() string {
	return j.schedule
}

func (j *ArtifactJanitor) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := j.Sweep(ctx)
	if err != nil {
		logrus.Errorf("artifact janitor failed: %v", err)
		return
	}
	if removed > 0 {
		logrus.Infof("artifact janitor removed %d artifacts", removed)
	}
}

// Sweep makes one pass over the pending artifacts and returns how many were removed.
func (j *ArtifactJanitor) Sweep(ctx context.Context) (int, error) {
	pending, err := j.store.ListPendingArtifacts(ctx, j.batch)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, artifact := range pending {
		err := j.blobs.Delete(ctx, artifact.Location)
		if err != nil {
			logrus.Warnf("artifact %s still not removed after %d attempts: %v", artifact.Location, artifact.Attempts+1, err)
			docID, perr := uuid.Parse(artifact.DocumentID)
			if perr != nil {
				return removed, perr
			}
			if err := j.store.RecordArtifactFailure(ctx, artifact.Location, docID, err.Error()); err != nil {
				return removed, err
			}
			continue
		}

		if err := j.store.DeletePendingArtifact(ctx, artifact.Location); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}
