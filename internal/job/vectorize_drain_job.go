package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/notewise/notewise/internal/service"
)

const (
	defaultDrainDelaySeconds = 30
	defaultDrainBatch        = 20
)

// VectorizeDrainJob sweeps units left in pending and vectorizes them. The
// delay lets rapid consecutive edits settle before the unit is embedded.
type VectorizeDrainJob struct {
	units        service.UnitStore
	vectorizer   *service.Vectorizer
	delaySeconds int64
	batch        int
}

func NewVectorizeDrainJob(units service.UnitStore, vectorizer *service.Vectorizer, delaySeconds int64, batch int) *VectorizeDrainJob {
	if delaySeconds <= 0 {
		delaySeconds = defaultDrainDelaySeconds
	}
	if batch <= 0 {
		batch = defaultDrainBatch
	}
	return &VectorizeDrainJob{
		units:        units,
		vectorizer:   vectorizer,
		delaySeconds: delaySeconds,
		batch:        batch,
	}
}

func (j *VectorizeDrainJob) Name() string {
	return "vectorize_drain"
}

func (j *VectorizeDrainJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	pending, err := j.units.ListPendingUnits(ctx, j.delaySeconds, j.batch)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	done := 0
	for _, unit := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.vectorizer.Vectorize(ctx, unit.Kind, unit.ID); err != nil {
			// The unit is already marked failed; keep draining the rest.
			logger.Warn("drain vectorization failed",
				zap.String("kind", string(unit.Kind)), zap.String("unit_id", unit.ID), zap.Error(err))
			continue
		}
		done++
	}
	logger.Info("pending units drained", zap.Int("total", len(pending)), zap.Int("succeeded", done))
	return nil
}
