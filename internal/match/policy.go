package match

import (
	"fmt"
	"sort"

	"photodedup/internal/models"
)

// Policy decides which member of a group is the primary (the one to keep)
// and the order of the rest.
type Policy string

const (
	// PolicyCreated keeps the earliest EXIF creation time. Images without
	// one come after images with one; ties fall back to the path.
	PolicyCreated Policy = "created"
	// PolicyPath keeps the lexicographically smallest path.
	PolicyPath Policy = "path"
	// PolicyQuality keeps the highest quality score, then the largest file,
	// then the most recently modified.
	PolicyQuality Policy = "quality"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyCreated, PolicyPath, PolicyQuality:
		return p, nil
	default:
		return "", fmt.Errorf("unknown primary policy %q", s)
	}
}

// less reports whether a should be ordered before b. Every policy ends in a
// path comparison so the order is total.
func (p Policy) less(a, b *models.ImageRecord) bool {
	switch p {
	case PolicyQuality:
		// Primary: score (higher is better)
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		// Secondary: file size (larger is better - more information)
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		// Tertiary: mod time (newer is better)
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.After(b.ModTime)
		}
	case PolicyCreated:
		switch {
		case a.CreatedAt != nil && b.CreatedAt == nil:
			return true
		case a.CreatedAt == nil && b.CreatedAt != nil:
			return false
		case a.CreatedAt != nil && !a.CreatedAt.Equal(*b.CreatedAt):
			return a.CreatedAt.Before(*b.CreatedAt)
		}
	}
	// Fallback: path (alphabetical)
	return a.Path < b.Path
}

// arrange orders a group's members by policy and fills Primary/Duplicates.
func (p Policy) arrange(group *models.DuplicateGroup) {
	if len(group.Images) == 0 {
		return
	}

	sort.Slice(group.Images, func(i, j int) bool {
		return p.less(group.Images[i], group.Images[j])
	})

	// First image is the one to keep
	group.Primary = group.Images[0]
	group.Duplicates = group.Images[1:]
}

// buildGroups turns index components into numbered, policy-ordered groups.
// Groups are sorted by primary path and numbered from 1.
func buildGroups(images []*models.ImageRecord, components [][]int, policy Policy) []*models.DuplicateGroup {
	groups := make([]*models.DuplicateGroup, 0, len(components))
	for _, members := range components {
		if len(members) < 2 {
			continue
		}
		imgs := make([]*models.ImageRecord, len(members))
		for i, idx := range members {
			imgs[i] = images[idx]
		}
		group := &models.DuplicateGroup{Images: imgs}
		policy.arrange(group)
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Primary.Path < groups[j].Primary.Path
	})
	for i, g := range groups {
		g.ID = i + 1
	}
	return groups
}
