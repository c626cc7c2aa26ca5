package worker

import "testing"

func TestSavedBytesAndPercent(t *testing.T) {
	s := Stats{InputBytes: 1000, OutputBytes: 400}
	if got := s.SavedBytes(); got != 600 {
		t.Errorf("SavedBytes() = %d, want 600", got)
	}
	if got := s.SavedPercent(); got != 60 {
		t.Errorf("SavedPercent() = %v, want 60", got)
	}
}

func TestSavedPercentWithNoInput(t *testing.T) {
	s := Stats{}
	if got := s.SavedPercent(); got != 0 {
		t.Errorf("SavedPercent() on empty Stats = %v, want 0", got)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		500:             "500 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestPoolGetStatsStartsAtZero(t *testing.T) {
	p := New(nil, 2, 0, false)
	stats := p.GetStats()
	if stats.Total != 0 || stats.Processed != 0 {
		t.Errorf("fresh Pool stats = %+v, want all zero", stats)
	}
	if len(p.Events()) != 0 {
		t.Error("fresh Pool should have no recorded events")
	}
}
