package agent

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"taskpilot/internal/domain"
)

// Stats are the headline numbers of a Report. CompletionRate is a
// percentage rounded to one decimal, 0 when there are no tasks.
type Stats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Pending        int     `json:"pending"`
	CompletionRate float64 `json:"completion_rate"`
}

// Report is the structured output of Strategist.Analyze. The slices are
// ordered and always present, empty rather than omitted.
type Report struct {
	Summary         string   `json:"summary"`
	Stats           Stats    `json:"stats"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Patterns        []string `json:"patterns"`
}

// Thresholds tune the strategist. They are loaded once from config and
// injected; Default matches the documented behavior.
type Thresholds struct {
	RecentWindowDays   int `yaml:"recent_window_days" json:"recent_window_days"`
	RecentActivityMin  int `yaml:"recent_activity_min" json:"recent_activity_min"`
	MaxRecommendations int `yaml:"max_recommendations" json:"max_recommendations"`
	TopThemes          int `yaml:"top_themes" json:"top_themes"`
	MinThemeCount      int `yaml:"min_theme_count" json:"min_theme_count"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		RecentWindowDays:   7,
		RecentActivityMin:  3,
		MaxRecommendations: 5,
		TopThemes:          3,
		MinThemeCount:      2,
	}
}

// Strategist derives a Report from a snapshot of a user's tasks. Analyze is
// pure and side-effect free: identical input (and clock) yields an
// identical Report, and snapshots are never mutated.
type Strategist struct {
	Thresholds Thresholds
	Now        func() time.Time
}

func NewStrategist(th Thresholds) Strategist {
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	return Strategist{Thresholds: th, Now: time.Now}
}

func (s Strategist) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Analyze inspects the full task snapshot and produces completion stats,
// observations, and prioritized recommendations.
func (s Strategist) Analyze(tasks []domain.Task) Report {
	stats := computeStats(tasks)
	r := Report{
		Summary:         s.summary(stats),
		Stats:           stats,
		Insights:        []string{},
		Recommendations: []string{},
		Patterns:        []string{},
	}
	if stats.Total == 0 {
		return r
	}
	r.Insights = s.insights(tasks, stats)
	r.Recommendations = s.recommendations(tasks, stats)
	r.Patterns = s.patterns(tasks)
	return r
}

func computeStats(tasks []domain.Task) Stats {
	st := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			st.Completed++
		}
	}
	st.Pending = st.Total - st.Completed
	if st.Total > 0 {
		rate := float64(st.Completed) / float64(st.Total) * 100
		st.CompletionRate = math.Round(rate*10) / 10
	}
	return st
}

func (s Strategist) summary(st Stats) string {
	switch {
	case st.Total == 0:
		return "You have no tasks yet. Add your first task to get started!"
	case st.CompletionRate >= 80:
		return fmt.Sprintf("Excellent work! %d of %d tasks completed (%.1f%%).", st.Completed, st.Total, st.CompletionRate)
	case st.CompletionRate >= 40:
		return fmt.Sprintf("Good progress: %d of %d tasks completed (%.1f%%). Keep going!", st.Completed, st.Total, st.CompletionRate)
	default:
		return fmt.Sprintf("You have %d pending tasks. Start small and build momentum!", st.Pending)
	}
}

// insights lists independent observations; their order is evaluation order,
// not importance.
func (s Strategist) insights(tasks []domain.Task, st Stats) []string {
	out := []string{}
	if st.CompletionRate >= 75 {
		out = append(out, "You have an excellent completion rate. Keep up the momentum.")
	} else if st.CompletionRate < 30 && st.Total > 5 {
		out = append(out, "Many tasks are pending. Consider breaking them into smaller steps.")
	}
	if st.Total > 20 {
		out = append(out, "Your task list is large. Consider clearing out completed tasks to reduce clutter.")
	} else if st.Total < 5 {
		out = append(out, "Your task list is lean. That is great for staying focused.")
	}
	cutoff := s.now().AddDate(0, 0, -s.Thresholds.RecentWindowDays)
	recent := 0
	for _, t := range tasks {
		if created, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil && created.After(cutoff) {
			recent++
		}
	}
	if recent >= s.Thresholds.RecentActivityMin {
		out = append(out, fmt.Sprintf("High recent activity: %d tasks created in the last %d days.", recent, s.Thresholds.RecentWindowDays))
	}
	return out
}

// recommendations orders pending tasks oldest-first; the longest-pending
// task always leads, and the list is capped regardless of task volume.
func (s Strategist) recommendations(tasks []domain.Task, st Stats) []string {
	out := []string{}
	pending := make([]domain.Task, 0, st.Pending)
	for _, t := range tasks {
		if !t.Completed {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].CreatedAt != pending[j].CreatedAt {
			return pending[i].CreatedAt < pending[j].CreatedAt
		}
		return pending[i].ID < pending[j].ID
	})
	if len(pending) > 0 {
		oldest := pending[0]
		out = append(out, fmt.Sprintf("Start with task #%d: '%s'. It has been pending the longest.", oldest.ID, oldest.Title))
	}
	if len(pending) > 1 {
		out = append(out, "Try completing a couple of small tasks today for quick wins.")
	}
	if st.CompletionRate >= 50 && len(pending) > 0 && len(pending) <= 3 {
		out = append(out, "You are close to clearing your list. Finish the remaining tasks!")
	}
	if word, count := s.topTheme(tasks); count >= 3 {
		out = append(out, fmt.Sprintf("You have %d tasks mentioning '%s'. Consider batching them together.", count, word))
	}
	if max := s.Thresholds.MaxRecommendations; len(out) > max {
		out = out[:max]
	}
	return out
}

// patterns reports the most frequent title words as common themes, or a
// neutral observation when nothing repeats.
func (s Strategist) patterns(tasks []domain.Task) []string {
	counts := wordCounts(tasks)
	type wc struct {
		word  string
		count int
	}
	var qualified []wc
	for w, c := range counts {
		if c >= s.Thresholds.MinThemeCount {
			qualified = append(qualified, wc{w, c})
		}
	}
	if len(qualified) == 0 {
		return []string{"Task titles are concise with no repeated themes."}
	}
	sort.Slice(qualified, func(i, j int) bool {
		if qualified[i].count != qualified[j].count {
			return qualified[i].count > qualified[j].count
		}
		return qualified[i].word < qualified[j].word
	})
	if len(qualified) > s.Thresholds.TopThemes {
		qualified = qualified[:s.Thresholds.TopThemes]
	}
	parts := make([]string, 0, len(qualified))
	for _, q := range qualified {
		parts = append(parts, fmt.Sprintf("%s (%d)", q.word, q.count))
	}
	return []string{"Common themes: " + strings.Join(parts, ", ")}
}

func (s Strategist) topTheme(tasks []domain.Task) (string, int) {
	counts := wordCounts(tasks)
	best, bestCount := "", 0
	for w, c := range counts {
		if c > bestCount || (c == bestCount && w < best) {
			best, bestCount = w, c
		}
	}
	return best, bestCount
}

var wordPattern = regexp.MustCompile(`[a-z]+`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {},
	"was": {}, "are": {}, "been": {}, "being": {}, "but": {},
	"not": {}, "you": {}, "your": {}, "this": {}, "that": {},
}

// wordCounts tokenizes titles to lowercase words, dropping stop-words and
// anything shorter than three characters.
func wordCounts(tasks []domain.Task) map[string]int {
	counts := map[string]int{}
	for _, t := range tasks {
		for _, w := range wordPattern.FindAllString(strings.ToLower(t.Title), -1) {
			if len(w) < 3 {
				continue
			}
			if _, skip := stopWords[w]; skip {
				continue
			}
			counts[w]++
		}
	}
	return counts
}
