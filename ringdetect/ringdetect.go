// Detection of "reaction rings": clusters of accounts which reciprocally
// boost each other's articles to manipulate visibility and reputation.
//
// The detector is a pure function of recent reaction history, assembled
// by the caller from the datastore. It performs no storage access and no
// side effects, so concurrent runs need no coordination. Results are
// advisory: a positive detection escalates to moderator review and must
// never auto-suspend, to bound false-positive harm.
package ringdetect

import (
	"log/slog"
	"sort"
	"time"
)

type Config struct {
	// eligibility floor: minimum public-category article reactions in the
	// lookback window before analysis runs at all
	MinReactions int
	// trailing window of reaction history considered
	Lookback time.Duration
	// smallest mutual cluster (subject included) reported as a ring
	MinRingSize int
	// fraction of the subject's reaction targets which must have reacted
	// back within the window
	ReciprocityThreshold float64
	// observed edge fraction within the mutual cluster
	DensityThreshold float64
	// cap on co-reaction candidates considered per run
	MaxCandidates int
}

func DefaultConfig() Config {
	return Config{
		MinReactions:         50,
		Lookback:             90 * 24 * time.Hour,
		MinRingSize:          5,
		ReciprocityThreshold: 0.35,
		DensityThreshold:     0.5,
		MaxCandidates:        200,
	}
}

// Eligible applies the guard conditions the caller must enforce before
// invoking Detect: staff and already-trusted accounts are never analyzed,
// and low-volume reactors are skipped outright.
func (cfg Config) Eligible(isAdmin, isSuperModerator, isTrusted bool, publicReactionCount int) bool {
	if isAdmin || isSuperModerator || isTrusted {
		return false
	}
	return publicReactionCount >= cfg.MinReactions
}

// One reactor-to-author edge: ReactorID reacted (public category) to an
// article authored by AuthorID inside the lookback window.
type Edge struct {
	ReactorID uint
	AuthorID  uint
	CreatedAt time.Time
}

type Result struct {
	Detected    bool
	Members     []uint
	Reciprocity float64
	Density     float64
}

type Detector struct {
	Logger *slog.Logger
	Config Config
}

func NewDetector(logger *slog.Logger, cfg Config) *Detector {
	return &Detector{
		Logger: logger,
		Config: cfg,
	}
}

// Detect analyzes the co-reaction graph induced by the subject's recent
// reaction targets. The edge list should cover reactions among the
// subject and their targets on each other's articles (both directions);
// self-reactions are ignored.
//
// reciprocity: of the authors the subject reacted to, the fraction which
// reacted back. density: of all ordered pairs within the mutual cluster,
// the fraction with at least one reaction edge. A ring is reported when
// both thresholds are met and the cluster reaches MinRingSize.
func (d *Detector) Detect(subjectID uint, edges []Edge) Result {
	// weighted adjacency: weight[a][b] = reactions by a on b's articles
	weight := make(map[uint]map[uint]int)
	for _, e := range edges {
		if e.ReactorID == e.AuthorID || e.ReactorID == 0 || e.AuthorID == 0 {
			continue
		}
		m, ok := weight[e.ReactorID]
		if !ok {
			m = make(map[uint]int)
			weight[e.ReactorID] = m
		}
		m[e.AuthorID]++
	}

	neighbors := []uint{}
	for author := range weight[subjectID] {
		neighbors = append(neighbors, author)
	}
	if len(neighbors) == 0 {
		return Result{}
	}

	// mutual set: neighbors who also reacted back to the subject
	mutual := []uint{}
	for _, n := range neighbors {
		if weight[n][subjectID] > 0 {
			mutual = append(mutual, n)
		}
	}
	reciprocity := float64(len(mutual)) / float64(len(neighbors))

	// cluster = subject plus the strongest mutual neighbors
	if len(mutual) > d.Config.MaxCandidates {
		sort.Slice(mutual, func(i, j int) bool {
			wi := min(weight[subjectID][mutual[i]], weight[mutual[i]][subjectID])
			wj := min(weight[subjectID][mutual[j]], weight[mutual[j]][subjectID])
			return wi > wj
		})
		mutual = mutual[:d.Config.MaxCandidates]
	}
	cluster := append([]uint{subjectID}, mutual...)

	density := clusterDensity(cluster, weight)

	res := Result{
		Reciprocity: reciprocity,
		Density:     density,
	}
	if len(cluster) >= d.Config.MinRingSize &&
		reciprocity >= d.Config.ReciprocityThreshold &&
		density >= d.Config.DensityThreshold {
		sort.Slice(cluster, func(i, j int) bool { return cluster[i] < cluster[j] })
		res.Detected = true
		res.Members = cluster
	}
	return res
}

// fraction of ordered pairs within the cluster connected by at least one
// reaction edge
func clusterDensity(cluster []uint, weight map[uint]map[uint]int) float64 {
	if len(cluster) < 2 {
		return 0
	}
	connected := 0
	for _, a := range cluster {
		for _, b := range cluster {
			if a == b {
				continue
			}
			if weight[a][b] > 0 {
				connected++
			}
		}
	}
	return float64(connected) / float64(len(cluster)*(len(cluster)-1))
}
