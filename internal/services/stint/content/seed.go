package content

import (
	"context"
	"fmt"

	"github.com/louisbranch/convening.space/internal/platform/id"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/hand"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
)

// SeedOptions controls how a catalog is materialized into a store.
type SeedOptions struct {
	Teams        int
	HandsPerTeam int
}

// SeedResult reports what Seed created.
type SeedResult struct {
	StintID string
	TeamIDs []string
	HandIDs []string
}

// Seed materializes a catalog into a store as a new running stint: one stint
// record, the requested teams, and hands placed at the first module's start
// stage with an unstarted breadcrumb.
func Seed(ctx context.Context, store storage.Store, catalog *Catalog, opts SeedOptions) (SeedResult, error) {
	if opts.Teams <= 0 {
		return SeedResult{}, fmt.Errorf("at least one team is required")
	}
	if opts.HandsPerTeam <= 0 {
		return SeedResult{}, fmt.Errorf("at least one hand per team is required")
	}
	first, ok := catalog.FirstModule()
	if !ok {
		return SeedResult{}, fmt.Errorf("catalog has no modules")
	}

	stintID, err := id.NewID()
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed stint: %w", err)
	}
	result := SeedResult{StintID: stintID}
	if err := store.CreateStint(ctx, storage.StintRecord{
		ID:     result.StintID,
		Name:   catalog.Name,
		Status: stint.StatusRunning,
	}); err != nil {
		return SeedResult{}, fmt.Errorf("seed stint: %w", err)
	}

	for t := 0; t < opts.Teams; t++ {
		teamID, err := id.NewID()
		if err != nil {
			return SeedResult{}, fmt.Errorf("seed team: %w", err)
		}
		if err := store.CreateTeam(ctx, storage.TeamRecord{
			ID:      teamID,
			StintID: result.StintID,
			Name:    fmt.Sprintf("team %d", t+1),
		}); err != nil {
			return SeedResult{}, fmt.Errorf("seed team: %w", err)
		}
		result.TeamIDs = append(result.TeamIDs, teamID)

		for h := 0; h < opts.HandsPerTeam; h++ {
			handID, err := id.NewID()
			if err != nil {
				return SeedResult{}, fmt.Errorf("seed hand: %w", err)
			}
			crumbID, err := id.NewID()
			if err != nil {
				return SeedResult{}, fmt.Errorf("seed breadcrumb: %w", err)
			}
			if err := store.CreateBreadcrumb(ctx, storage.BreadcrumbRecord{
				ID:      crumbID,
				HandID:  handID,
				StageID: first.StartStageID,
			}); err != nil {
				return SeedResult{}, fmt.Errorf("seed breadcrumb: %w", err)
			}
			if err := store.CreateHand(ctx, storage.HandRecord{
				ID:           handID,
				StintID:      result.StintID,
				TeamID:       teamID,
				Status:       hand.StatusActive,
				ModuleID:     first.ID,
				BreadcrumbID: crumbID,
			}); err != nil {
				return SeedResult{}, fmt.Errorf("seed hand: %w", err)
			}
			result.HandIDs = append(result.HandIDs, handID)
		}
	}

	return result, nil
}
