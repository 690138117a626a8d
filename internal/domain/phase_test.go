package domain

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Phase }{
		{PhaseInitializing, PhaseMetadataLoading},
		{PhaseInitializing, PhaseError},
		{PhaseInitializing, PhaseDestroyed},
		{PhaseMetadataLoading, PhaseReady},
		{PhaseMetadataLoading, PhaseError},
		{PhaseMetadataLoading, PhaseDestroyed},
		{PhaseReady, PhaseError},
		{PhaseReady, PhaseDestroyed},
		{PhaseError, PhaseDestroyed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Phase }{
		{PhaseMetadataLoading, PhaseInitializing},
		{PhaseReady, PhaseMetadataLoading},
		{PhaseReady, PhaseInitializing},
		{PhaseError, PhaseReady},
		{PhaseError, PhaseInitializing},
		{PhaseDestroyed, PhaseInitializing},
		{PhaseDestroyed, PhaseError},
		{PhaseInitializing, PhaseReady},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestPhaseOrdering(t *testing.T) {
	order := []Phase{PhaseInitializing, PhaseMetadataLoading, PhaseReady, PhaseError, PhaseDestroyed}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if !order[i].Before(order[j]) {
				t.Errorf("expected %s before %s", order[i], order[j])
			}
			if order[j].Before(order[i]) {
				t.Errorf("did not expect %s before %s", order[j], order[i])
			}
		}
	}
}

func TestPhaseTerminal(t *testing.T) {
	if PhaseInitializing.Terminal() || PhaseMetadataLoading.Terminal() || PhaseReady.Terminal() {
		t.Error("forward phases must not be terminal")
	}
	if !PhaseError.Terminal() {
		t.Error("error phase must be terminal")
	}
	if !PhaseDestroyed.Terminal() {
		t.Error("destroyed phase must be terminal")
	}
}

func TestProgressRatio(t *testing.T) {
	cases := []struct {
		name  string
		stats TransferStats
		want  float64
	}{
		{"no metadata", TransferStats{BytesCompleted: 100}, 0},
		{"halfway", TransferStats{BytesCompleted: 500, TotalLength: 1000}, 0.5},
		{"complete", TransferStats{BytesCompleted: 1000, TotalLength: 1000}, 1},
		{"overshoot clamped", TransferStats{BytesCompleted: 1200, TotalLength: 1000}, 1},
		{"negative clamped", TransferStats{BytesCompleted: -5, TotalLength: 1000}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.stats.ProgressRatio(); got != tc.want {
				t.Errorf("ProgressRatio() = %v, want %v", got, tc.want)
			}
		})
	}
}
