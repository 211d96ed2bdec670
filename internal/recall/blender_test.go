package recall

import (
	"reflect"
	"testing"
)

func TestBlendQuotaPass(t *testing.T) {
	vector := []string{"v1", "v2", "v3", "v4"}
	rule := []string{"r1", "r2", "r3", "r4"}
	collab := []string{"c1", "c2", "c3", "c4"}

	got := Blend(vector, rule, collab, Quota{Vector: 0.5, Rule: 0.3, Collaborative: 0.2}, 10)

	// 5 from vector (only 4 exist), 3 from rule, 2 from collab; the
	// shortfall is backfilled from collab, the longest remaining list.
	want := []string{"v1", "v2", "v3", "v4", "r1", "r2", "r3", "c1", "c2", "c3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Blend() = %v, want %v", got, want)
	}
}

func TestBlendDedupPriority(t *testing.T) {
	// "dup" appears in all three lists; only the vector pass admits it.
	vector := []string{"dup", "v2"}
	rule := []string{"dup", "r2"}
	collab := []string{"dup", "c2"}

	got := Blend(vector, rule, collab, Quota{Vector: 0.34, Rule: 0.33, Collaborative: 0.33}, 6)

	seen := make(map[string]int)
	for _, id := range got {
		seen[id]++
	}
	if seen["dup"] != 1 {
		t.Errorf("duplicate id admitted %d times: %v", seen["dup"], got)
	}
	if got[0] != "dup" {
		t.Errorf("Blend() first id = %s, want dup from vector pass", got[0])
	}
}

func TestBlendBackfillFromLongestList(t *testing.T) {
	// Quotas sum to 0.5; the rest must be backfilled, not left short.
	vector := []string{"v1", "v2", "v3", "v4", "v5", "v6"}
	rule := []string{"r1", "r2"}
	collab := []string{"c1"}

	got := Blend(vector, rule, collab, Quota{Vector: 0.25, Rule: 0.25, Collaborative: 0}, 8)

	if len(got) != 8 {
		t.Fatalf("Blend() returned %d ids, want 8: %v", len(got), got)
	}
	// Quota pass admits v1, v2, r1, r2; backfill pulls vector first
	// (most remaining), then collab.
	want := []string{"v1", "v2", "r1", "r2", "v3", "c1", "v4", "v5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Blend() = %v, want %v", got, want)
	}
}

func TestBlendExhaustedLists(t *testing.T) {
	got := Blend([]string{"v1"}, nil, []string{"c1"}, Quota{Vector: 0.5, Rule: 0.3, Collaborative: 0.2}, 10)
	if len(got) != 2 {
		t.Fatalf("Blend() returned %d ids, want 2: %v", len(got), got)
	}
}

func TestBlendZeroTarget(t *testing.T) {
	if got := Blend([]string{"v1"}, []string{"r1"}, nil, Quota{Vector: 1}, 0); got != nil {
		t.Errorf("Blend() with zero target = %v, want nil", got)
	}
}

func TestBlendDeterministic(t *testing.T) {
	vector := []string{"a", "b", "c"}
	rule := []string{"c", "d", "e"}
	collab := []string{"e", "f", "g"}
	quota := Quota{Vector: 0.4, Rule: 0.4, Collaborative: 0.2}

	first := Blend(vector, rule, collab, quota, 6)
	for i := 0; i < 10; i++ {
		if got := Blend(vector, rule, collab, quota, 6); !reflect.DeepEqual(got, first) {
			t.Fatalf("Blend() not deterministic: %v vs %v", got, first)
		}
	}
}
