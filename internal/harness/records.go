package harness

import "fmt"

// TestRecord is one row of a harness batch
type TestRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
	TestFlag bool   `json:"test_flag,omitempty"`
}

var (
	sampleTypes      = []string{"equipment", "vehicle", "supplies", "personnel"}
	sampleStatuses   = []string{"available", "in_use", "maintenance"}
	samplePriorities = []string{"low", "medium", "high", "critical"}
)

// QuickBatch is the small fixed batch used for a single fallback check
func QuickBatch() []TestRecord {
	return []TestRecord{
		{ID: "TEST-001", Name: "Test Resource 1", Type: "equipment", Status: "available"},
		{ID: "TEST-002", Name: "Test Resource 2", Type: "vehicle", Status: "maintenance"},
		{ID: "TEST-003", Name: "Test Resource 3", Type: "supplies", Status: "in_use"},
	}
}

// SampleBatch generates n records cycling through types, statuses and priorities
func SampleBatch(n int) []TestRecord {
	out := make([]TestRecord, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, TestRecord{
			ID:       fmt.Sprintf("COMP-%03d", i+1),
			Name:     fmt.Sprintf("Comprehensive Test Resource %d", i+1),
			Type:     sampleTypes[i%len(sampleTypes)],
			Status:   sampleStatuses[i%len(sampleStatuses)],
			Priority: samplePriorities[i%len(samplePriorities)],
		})
	}
	return out
}
