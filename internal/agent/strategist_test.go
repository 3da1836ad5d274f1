package agent

import (
	"strings"
	"testing"
	"time"

	"taskpilot/internal/domain"
)

func fixedStrategist() Strategist {
	s := NewStrategist(DefaultThresholds())
	s.Now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func snap(id int64, title string, completed bool, createdAt string) domain.Task {
	return domain.Task{ID: id, Title: title, Completed: completed, CreatedAt: createdAt, UpdatedAt: createdAt}
}

func TestAnalyzeEmptySnapshot(t *testing.T) {
	r := fixedStrategist().Analyze(nil)
	if r.Stats.Total != 0 || r.Stats.Completed != 0 || r.Stats.Pending != 0 || r.Stats.CompletionRate != 0 {
		t.Fatalf("expected zero stats, got %+v", r.Stats)
	}
	if !strings.Contains(r.Summary, "no tasks yet") {
		t.Fatalf("expected empty-state summary, got %q", r.Summary)
	}
	// Sequences must be empty, not omitted.
	if r.Insights == nil || r.Recommendations == nil || r.Patterns == nil {
		t.Fatalf("sequences must be non-nil: %+v", r)
	}
	if len(r.Insights)+len(r.Recommendations)+len(r.Patterns) != 0 {
		t.Fatalf("sequences must be empty: %+v", r)
	}
}

func TestAnalyzeStatsInvariants(t *testing.T) {
	tasks := []domain.Task{
		snap(1, "buy milk", false, "2024-06-01T10:00:00Z"),
		snap(2, "buy bread", true, "2024-06-02T10:00:00Z"),
		snap(3, "call dentist", true, "2024-06-03T10:00:00Z"),
	}
	r := fixedStrategist().Analyze(tasks)
	if r.Stats.Total != len(tasks) {
		t.Fatalf("total %d", r.Stats.Total)
	}
	if r.Stats.Completed+r.Stats.Pending != r.Stats.Total {
		t.Fatalf("completed+pending != total: %+v", r.Stats)
	}
	if r.Stats.CompletionRate != 66.7 {
		t.Fatalf("expected one-decimal rate 66.7, got %v", r.Stats.CompletionRate)
	}
}

func TestAnalyzeScenario(t *testing.T) {
	tasks := []domain.Task{
		snap(1, "buy milk", false, "2024-01-01T10:00:00Z"),
		snap(2, "buy bread", true, "2024-01-02T10:00:00Z"),
	}
	r := fixedStrategist().Analyze(tasks)
	if r.Stats.Total != 2 || r.Stats.Completed != 1 || r.Stats.Pending != 1 || r.Stats.CompletionRate != 50.0 {
		t.Fatalf("stats %+v", r.Stats)
	}
	if len(r.Recommendations) == 0 || !strings.Contains(r.Recommendations[0], "#1") || !strings.Contains(r.Recommendations[0], "buy milk") {
		t.Fatalf("oldest pending must lead recommendations: %v", r.Recommendations)
	}
	found := false
	for _, p := range r.Patterns {
		if strings.Contains(p, "buy (2)") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'buy' theme with count 2: %v", r.Patterns)
	}
}

func TestAnalyzeOldestPendingFirst(t *testing.T) {
	tasks := []domain.Task{
		snap(5, "newest chore", false, "2024-06-10T10:00:00Z"),
		snap(2, "middle chore", false, "2024-06-05T10:00:00Z"),
		snap(9, "oldest chore", false, "2024-02-01T10:00:00Z"),
		snap(1, "done already", true, "2024-01-01T10:00:00Z"),
	}
	r := fixedStrategist().Analyze(tasks)
	if !strings.Contains(r.Recommendations[0], "#9") || !strings.Contains(r.Recommendations[0], "oldest chore") {
		t.Fatalf("expected task 9 first: %v", r.Recommendations)
	}
	// More than one pending task earns the quick-wins suggestion.
	quickWins := false
	for _, rec := range r.Recommendations {
		if strings.Contains(rec, "quick wins") {
			quickWins = true
		}
	}
	if !quickWins {
		t.Fatalf("expected quick wins recommendation: %v", r.Recommendations)
	}
}

func TestAnalyzeRecommendationCap(t *testing.T) {
	var tasks []domain.Task
	for i := int64(1); i <= 40; i++ {
		tasks = append(tasks, snap(i, "review report batch", false, "2024-06-01T10:00:00Z"))
	}
	r := fixedStrategist().Analyze(tasks)
	if len(r.Recommendations) > DefaultThresholds().MaxRecommendations {
		t.Fatalf("recommendations over cap: %d", len(r.Recommendations))
	}
}

func TestAnalyzeSummaryTiers(t *testing.T) {
	s := fixedStrategist()

	mostlyDone := []domain.Task{
		snap(1, "a one", true, "2024-06-01T10:00:00Z"),
		snap(2, "b two", true, "2024-06-01T10:00:00Z"),
		snap(3, "c three", true, "2024-06-01T10:00:00Z"),
		snap(4, "d four", true, "2024-06-01T10:00:00Z"),
		snap(5, "e five", false, "2024-06-01T10:00:00Z"),
	}
	if r := s.Analyze(mostlyDone); !strings.Contains(r.Summary, "Excellent work") {
		t.Fatalf("expected celebratory summary at 80%%, got %q", r.Summary)
	}

	half := mostlyDone
	half[3].Completed = false
	half[2].Completed = false
	if r := s.Analyze(half); !strings.Contains(r.Summary, "Good progress") {
		t.Fatalf("expected encouraging summary, got %q", r.Summary)
	}

	barely := []domain.Task{
		snap(1, "a one", false, "2024-06-01T10:00:00Z"),
		snap(2, "b two", false, "2024-06-01T10:00:00Z"),
		snap(3, "c three", true, "2024-06-01T10:00:00Z"),
		snap(4, "d four", false, "2024-06-01T10:00:00Z"),
	}
	if r := s.Analyze(barely); !strings.Contains(r.Summary, "Start small") {
		t.Fatalf("expected motivational summary, got %q", r.Summary)
	}
}

func TestAnalyzeRecentActivityInsight(t *testing.T) {
	s := fixedStrategist()
	tasks := []domain.Task{
		snap(1, "plan sprint kickoff", false, "2024-06-14T10:00:00Z"),
		snap(2, "draft sprint notes", false, "2024-06-13T10:00:00Z"),
		snap(3, "send sprint recap", false, "2024-06-12T10:00:00Z"),
		snap(4, "ancient errand", false, "2023-01-01T10:00:00Z"),
	}
	r := s.Analyze(tasks)
	found := false
	for _, in := range r.Insights {
		if strings.Contains(in, "High recent activity: 3 tasks") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected recent-activity insight: %v", r.Insights)
	}
}

func TestAnalyzePatternFallback(t *testing.T) {
	tasks := []domain.Task{
		snap(1, "alpha", false, "2024-06-01T10:00:00Z"),
		snap(2, "bravo", false, "2024-06-01T10:00:00Z"),
	}
	r := fixedStrategist().Analyze(tasks)
	if len(r.Patterns) != 1 || !strings.Contains(r.Patterns[0], "concise") {
		t.Fatalf("expected neutral fallback pattern: %v", r.Patterns)
	}
}

func TestAnalyzeStopWordsAndShortWordsDropped(t *testing.T) {
	tasks := []domain.Task{
		snap(1, "go to the gym", false, "2024-06-01T10:00:00Z"),
		snap(2, "go to the bank", false, "2024-06-01T10:00:00Z"),
	}
	r := fixedStrategist().Analyze(tasks)
	for _, p := range r.Patterns {
		if strings.Contains(p, "the (") || strings.Contains(p, "go (") || strings.Contains(p, "to (") {
			t.Fatalf("stop or short word leaked into patterns: %v", r.Patterns)
		}
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	tasks := []domain.Task{
		snap(1, "buy milk", false, "2024-06-01T10:00:00Z"),
		snap(2, "buy bread", false, "2024-06-02T10:00:00Z"),
		snap(3, "wash car", true, "2024-06-03T10:00:00Z"),
	}
	s := fixedStrategist()
	first := s.Analyze(tasks)
	for i := 0; i < 10; i++ {
		next := s.Analyze(tasks)
		if next.Summary != first.Summary || len(next.Insights) != len(first.Insights) ||
			len(next.Recommendations) != len(first.Recommendations) || len(next.Patterns) != len(first.Patterns) {
			t.Fatalf("analysis not stable: %+v vs %+v", first, next)
		}
		for j := range next.Patterns {
			if next.Patterns[j] != first.Patterns[j] {
				t.Fatalf("pattern order not stable: %v vs %v", first.Patterns, next.Patterns)
			}
		}
	}
}
