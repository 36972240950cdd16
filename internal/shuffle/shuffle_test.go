package shuffle

import (
	"fmt"
	"sort"
	"testing"
)

func TestShuffle_PreservesElements(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	out := Shuffle(items)

	if len(out) != len(items) {
		t.Fatalf("got length %d, expected %d", len(out), len(items))
	}

	sorted := append([]int(nil), out...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != i {
			t.Fatalf("Permutation lost or duplicated elements: got %d at %d", v, i)
		}
	}
}

func TestShuffle_DoesNotMutateInput(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	_ = Shuffle(items)

	expected := []string{"a", "b", "c", "d", "e"}
	for i := range items {
		if items[i] != expected[i] {
			t.Errorf("Input mutated at %d: got %q, expected %q", i, items[i], expected[i])
		}
	}
}

func TestShuffle_EmptyAndSingle(t *testing.T) {
	if out := Shuffle([]int{}); len(out) != 0 {
		t.Errorf("got %v, expected empty", out)
	}
	if out := Shuffle([]int(nil)); len(out) != 0 {
		t.Errorf("got %v, expected empty", out)
	}
	if out := Shuffle([]int{7}); len(out) != 1 || out[0] != 7 {
		t.Errorf("got %v, expected [7]", out)
	}
}

// fixedSource always returns the lowest index, producing a deterministic rotation.
type fixedSource struct{ calls []int }

func (f *fixedSource) Intn(n int) int {
	f.calls = append(f.calls, n)
	return 0
}

func TestShuffleWith_DrawsOverInclusiveRange(t *testing.T) {
	src := &fixedSource{}
	_ = ShuffleWith(src, []int{1, 2, 3, 4})

	expected := []int{4, 3, 2}
	if len(src.calls) != len(expected) {
		t.Fatalf("got %d draws, expected %d", len(src.calls), len(expected))
	}
	for i := range expected {
		if src.calls[i] != expected[i] {
			t.Errorf("Draw %d: got bound %d, expected %d", i, src.calls[i], expected[i])
		}
	}
}

func TestShuffle_Uniformity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping statistical test in short mode")
	}

	const trials = 60000
	counts := make(map[string]int)
	for i := 0; i < trials; i++ {
		out := Shuffle([]int{0, 1, 2})
		counts[fmt.Sprint(out)]++
	}

	if len(counts) != 6 {
		t.Fatalf("got %d distinct permutations, expected 6", len(counts))
	}

	expected := float64(trials) / 6
	chiSquare := 0.0
	for _, observed := range counts {
		d := float64(observed) - expected
		chiSquare += d * d / expected
	}

	// 5 degrees of freedom; p=0.0001 critical value is about 25.7.
	if chiSquare > 30 {
		t.Errorf("Distribution not uniform: chi-square %.2f, counts %v", chiSquare, counts)
	}
}

func BenchmarkShuffle(b *testing.B) {
	items := make([]int, 1500)
	for i := range items {
		items[i] = i
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Shuffle(items)
	}
}
