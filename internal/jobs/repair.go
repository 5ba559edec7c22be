package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emrgen/docvault/internal/service"
)

var _ CronJob = (*LatestRepair)(nil)

// LatestRepair flags a latest version on documents whose chain lost it.
type LatestRepair struct {
	chain    *service.VersionChain
	schedule string
}

func NewLatestRepair(schedule string, chain *service.VersionChain) *LatestRepair {
	return &LatestRepair{chain: chain, schedule: schedule}
}

func (r *LatestRepair) Name() string {
	return "latest_repair"
}

func (r *LatestRepair) Schedule() string {
	return r.schedule
}

func (r *LatestRepair) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repaired, err := r.chain.Repair(ctx)
	if err != nil {
		logrus.Errorf("latest version repair failed: %v", err)
		return
	}
	if repaired > 0 {
		logrus.Warnf("flagged a latest version on %d documents", repaired)
	}
}
