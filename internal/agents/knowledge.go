package agents

import (
	"fmt"
	"sync"
	"time"

	"github.com/fraudlens/fraudlens/internal/domain"
)

// KnowledgeEntry is one fact in an analyzer's knowledge log.
type KnowledgeEntry struct {
	Key      string    `json:"key"`
	Value    string    `json:"value"`
	Recorded time.Time `json:"recorded"`
}

// KnowledgeLog is the append-only per-analyzer fact store. Analyzers seed it
// with their domain heuristics at construction and the feedback sink appends
// analyst outcomes to it. The decision path never reads it; Snapshot exists
// for reporting surfaces and tests.
type KnowledgeLog struct {
	mu      sync.Mutex
	entries []KnowledgeEntry
}

func newKnowledgeLog(seeds []KnowledgeEntry) *KnowledgeLog {
	k := &KnowledgeLog{}
	now := time.Now()
	for _, seed := range seeds {
		seed.Recorded = now
		k.entries = append(k.entries, seed)
	}
	return k
}

// Append records one fact.
func (k *KnowledgeLog) Append(key, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries = append(k.entries, KnowledgeEntry{Key: key, Value: value, Recorded: time.Now()})
}

// RecordOutcome appends an analyst-confirmed outcome for a screened
// transaction.
func (k *KnowledgeLog) RecordOutcome(f domain.Feedback) {
	k.Append(
		"learning_"+f.TransactionID,
		fmt.Sprintf("actualFraud=%t feedback=%s", f.ActualFraud, f.Feedback),
	)
}

// Snapshot returns a copy of the log in append order.
func (k *KnowledgeLog) Snapshot() []KnowledgeEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]KnowledgeEntry, len(k.entries))
	copy(out, k.entries)
	return out
}

// Len reports the number of recorded facts.
func (k *KnowledgeLog) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
