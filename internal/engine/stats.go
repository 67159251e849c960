package engine

import (
	"sync"
	"time"

	"github.com/gorewood/splice/internal/fix"
)

// recentLimit bounds Stats.RecentFixes.
const recentLimit = 100

// Record is the summary of one apply attempt kept in stats and the history
// journal.
type Record struct {
	FixID      string         `json:"fixId"`
	Type       string         `json:"type"`
	Complexity fix.Complexity `json:"complexity"`
	Success    bool           `json:"success"`
	RolledBack bool           `json:"rolledBack"`
	Failure    FailureKind    `json:"failure,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Files      int            `json:"files"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMS int64          `json:"durationMs"`
}

// Stats is a rolling summary of apply attempts.
type Stats struct {
	TotalApplied    int            `json:"totalApplied"`
	SuccessfulFixes int            `json:"successfulFixes"`
	FailedFixes     int            `json:"failedFixes"`
	RolledBackFixes int            `json:"rolledBackFixes"`
	SuccessRate     float64        `json:"successRate"`
	ByType          map[string]int `json:"byType"`
	ByComplexity    map[string]int `json:"byComplexity"`
	ActiveBackups   int            `json:"activeBackups"`
	RecentFixes     []Record       `json:"recentFixes"`
}

// tracker accumulates lifetime counters and the most recent records.
type tracker struct {
	mu           sync.Mutex
	total        int
	successful   int
	rolledBack   int
	byType       map[string]int
	byComplexity map[string]int
	recent       []Record
}

func newTracker() *tracker {
	return &tracker{
		byType:       make(map[string]int),
		byComplexity: make(map[string]int),
	}
}

func (t *tracker) add(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	if rec.Success {
		t.successful++
	}
	if rec.RolledBack {
		t.rolledBack++
	}
	typ := rec.Type
	if typ == "" {
		typ = "unknown"
	}
	t.byType[typ]++
	t.byComplexity[string(rec.Complexity)]++

	t.recent = append(t.recent, rec)
	if len(t.recent) > recentLimit {
		t.recent = append(t.recent[:0:0], t.recent[len(t.recent)-recentLimit:]...)
	}
}

func (t *tracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		TotalApplied:    t.total,
		SuccessfulFixes: t.successful,
		FailedFixes:     t.total - t.successful,
		RolledBackFixes: t.rolledBack,
		ByType:          make(map[string]int, len(t.byType)),
		ByComplexity:    make(map[string]int, len(t.byComplexity)),
		RecentFixes:     append([]Record{}, t.recent...),
	}
	if t.total > 0 {
		s.SuccessRate = float64(t.successful) / float64(t.total) * 100
	}
	for k, v := range t.byType {
		s.ByType[k] = v
	}
	for k, v := range t.byComplexity {
		s.ByComplexity[k] = v
	}
	return s
}
