package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"photodedup/internal/hash"
	"photodedup/internal/models"
)

// CleanPlan is the part of the stored groups that is still safe to remove.
type CleanPlan struct {
	Remove   []*models.ImageRecord // fresh records of confirmed duplicates
	Skipped  []SkippedFile         // stored members left in place
	Gone     int                   // duplicates already removed since the scan
	Canceled bool
}

// SkippedFile is a stored member that will not be removed.
type SkippedFile struct {
	GroupID int
	Path    string
	Reason  string
}

// Paths returns the paths to remove.
func (p *CleanPlan) Paths() []string {
	paths := make([]string, len(p.Remove))
	for i, rec := range p.Remove {
		paths[i] = rec.Path
	}
	return paths
}

// ReclaimableBytes sums the sizes of the files to remove.
func (p *CleanPlan) ReclaimableBytes() int64 {
	var total int64
	for _, rec := range p.Remove {
		total += rec.Size
	}
	return total
}

func (p *CleanPlan) skip(groupID int, path, reason string) {
	p.Skipped = append(p.Skipped, SkippedFile{GroupID: groupID, Path: path, Reason: reason})
}

// PlanClean re-hashes the stored groups, through the cache, before anything
// is removed. A group whose primary is missing or unreadable is skipped whole.
// A duplicate is removable only while it still links to the primary, directly
// or through other confirmed members, by identical content or a perceptual
// distance within the configured threshold.
func (e *Engine) PlanClean(ctx context.Context, groups []*models.DuplicateGroup) *CleanPlan {
	plan := &CleanPlan{}
	version := e.hasher.Version()

	for _, group := range groups {
		if ctx.Err() != nil {
			plan.Canceled = true
			break
		}
		if group.Primary == nil {
			continue
		}

		primary, _, err := e.hashOne(group.Primary.Path, version)
		if err != nil {
			plan.skip(group.ID, group.Primary.Path, fmt.Sprintf("primary unavailable, group left untouched: %v", err))
			continue
		}

		var pending []*models.ImageRecord
		for _, dup := range group.Duplicates {
			rec, _, err := e.hashOne(dup.Path, version)
			switch {
			case errors.Is(err, models.ErrPathNotFound):
				plan.Gone++
			case err != nil:
				plan.skip(group.ID, dup.Path, err.Error())
			default:
				pending = append(pending, rec)
			}
		}

		confirmed := []*models.ImageRecord{primary}
		for grew := true; grew; {
			grew = false
			rest := pending[:0]
			for _, rec := range pending {
				if e.linked(rec, confirmed) {
					confirmed = append(confirmed, rec)
					grew = true
				} else {
					rest = append(rest, rec)
				}
			}
			pending = rest
		}

		plan.Remove = append(plan.Remove, confirmed[1:]...)
		for _, rec := range pending {
			plan.skip(group.ID, rec.Path, "no longer matches its group")
		}
	}

	e.logger.Debug("clean plan",
		zap.Int("remove", len(plan.Remove)),
		zap.Int("skipped", len(plan.Skipped)),
		zap.Int("gone", plan.Gone),
		zap.Bool("canceled", plan.Canceled))
	return plan
}

func (e *Engine) linked(rec *models.ImageRecord, members []*models.ImageRecord) bool {
	for _, m := range members {
		if rec.Hashes.ContentHash != "" && rec.Hashes.ContentHash == m.Hashes.ContentHash {
			return true
		}
		if hash.HammingDistance(rec.Hashes.Perceptual, m.Hashes.Perceptual) <= e.cfg.Threshold {
			return true
		}
	}
	return false
}
