package strategy

import (
	"fmt"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

const (
	highDiscardRate   = 0.5
	exposureRejectCap = 0.25
	minStackShapes    = 2
	stackDiversityMin = 20
)

// Advise derives plain-text hints from a finished generation. The order is
// stable so responses are reproducible for a fixed seed.
func (r *Registry) Advise(name string, contest optimizer.Contest, activeBounds int, s *optimizer.Summary) []string {
	if s == nil {
		return nil
	}
	if name == "" {
		name = Recommended
	}
	var out []string

	if s.Offered > 0 {
		if rate := float64(s.Discarded+s.Duplicates) / float64(s.Offered); rate >= highDiscardRate {
			out = append(out, fmt.Sprintf(
				"%.0f%% of candidates were discarded; loosen exposure bounds or raise randomness to widen the search", rate*100))
		}
		if rate := float64(s.ExposureRejects) / float64(s.Offered); rate >= exposureRejectCap {
			out = append(out, "Exposure limits rejected many candidates; raise the tightest max exposure or lower large minimums")
		}
	}
	if s.Partial {
		out = append(out, fmt.Sprintf("Only %d of %d lineups were generated before the deadline; raise timeout_ms or lower count", s.Generated, s.Requested))
	}
	if len(s.Exposure.Violations) > 0 {
		out = append(out, fmt.Sprintf("%d exposure targets were missed; review the exposure report", len(s.Exposure.Violations)))
	}

	if name != Recommended && !r.Fits(name, contest.Type) {
		if best := r.Recommend(contest, activeBounds); best != name {
			out = append(out, fmt.Sprintf("%s is not tuned for %s contests; consider %s", name, contest.Type, best))
		}
	}

	if s.Generated >= stackDiversityMin && len(s.StackDistribution) < minStackShapes {
		out = append(out, "Every lineup shares one stack shape; add stack patterns or use the portfolio strategy for more variety")
	}
	if contest.Type == optimizer.ContestGPP && s.AverageOwnership > 0 && s.AverageOwnership >= averageOwnershipCeiling {
		out = append(out, "Average ownership is high for a tournament; the contrarian strategy adds leverage")
	}
	return out
}

// averageOwnershipCeiling is the average player ownership, in percent, above
// which a GPP batch is considered chalky.
const averageOwnershipCeiling = 30.0
