package gan_trainer

import (
	"math"
	"testing"
	"time"
)

func TestNumBatches(t *testing.T) {
	cases := []struct {
		datasetSize, batchSize, want int
	}{
		{100, 32, 4},
		{8, 4, 2},
		{10, 4, 3},
		{3, 4, 1},
		{0, 4, 0},
		{4, 0, 0},
	}
	for _, tc := range cases {
		if got := numBatches(tc.datasetSize, tc.batchSize); got != tc.want {
			t.Fatalf("numBatches(%d, %d): expected %d, got %d", tc.datasetSize, tc.batchSize, tc.want, got)
		}
	}
}

func TestLossAccumulatorMeans(t *testing.T) {
	acc := lossAccumulator{}
	acc.add(1, 3)
	acc.add(2, 2)
	acc.add(3, 1)
	if acc.steps() != 3 {
		t.Fatalf("expected 3 steps, got %d", acc.steps())
	}
	// Both means are sums over every step, not the last loss
	genMean, discMean := acc.means(4)
	if math.Abs(genMean-1.5) > 1e-12 || math.Abs(discMean-1.5) > 1e-12 {
		t.Fatalf("expected 1.5 and 1.5, got %v and %v", genMean, discMean)
	}
	genMean, discMean = acc.means(0)
	if math.Abs(genMean-2) > 1e-12 || math.Abs(discMean-2) > 1e-12 {
		t.Fatalf("zero denominator must fall back to number of steps, got %v and %v", genMean, discMean)
	}
	empty := lossAccumulator{}
	if g, d := empty.means(0); g != 0 || d != 0 {
		t.Fatalf("empty accumulator must give zeros, got %v and %v", g, d)
	}
}

func TestLossAccumulatorNonFinite(t *testing.T) {
	acc := lossAccumulator{}
	acc.add(1, 1)
	acc.add(math.NaN(), 1)
	acc.add(1, math.Inf(1))
	if bad := acc.nonFinite(); bad != 2 {
		t.Fatalf("expected 2 non-finite steps, got %d", bad)
	}
	st := EpochStats{GeneratorLoss: math.NaN(), DiscriminatorLoss: 1, Duration: time.Second}
	if st.Finite() {
		t.Fatalf("NaN loss must not be finite")
	}
}
