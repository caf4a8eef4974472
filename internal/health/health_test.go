package health

import (
	"strings"
	"testing"
	"time"
)

func TestGradeSeverityPoints(t *testing.T) {
	base := Snapshot{
		Memory: MemoryInfo{PercentUsed: 50},
		CPU:    CPUInfo{Load1m: 0.5, CoreCount: 4},
		Disks:  []DiskInfo{{Mount: "/", PercentUsed: 40}},
	}

	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   Grade
	}{
		{"all healthy", func(s *Snapshot) {}, GradeGood},
		{"memory warning is fair", func(s *Snapshot) { s.Memory.PercentUsed = 80 }, GradeFair},
		{"memory critical alone is fair", func(s *Snapshot) { s.Memory.PercentUsed = 95 }, GradeFair},
		{"load above cores is fair", func(s *Snapshot) { s.CPU.Load1m = 5 }, GradeFair},
		{"load above twice cores scores two", func(s *Snapshot) { s.CPU.Load1m = 9 }, GradeFair},
		{"disk warning is fair", func(s *Snapshot) { s.Disks[0].PercentUsed = 90 }, GradeFair},
		{
			"memory critical plus disk warning is poor",
			func(s *Snapshot) { s.Memory.PercentUsed = 95; s.Disks[0].PercentUsed = 90 },
			GradePoor,
		},
		{
			"everything critical is poor",
			func(s *Snapshot) { s.Memory.PercentUsed = 95; s.CPU.Load1m = 20; s.Disks[0].PercentUsed = 99 },
			GradePoor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := base
			snap.Disks = []DiskInfo{base.Disks[0]}
			tt.mutate(&snap)
			if got := snap.Grade(); got != tt.want {
				t.Fatalf("Grade() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGradeWithUnknownCoreCountSkipsLoadScoring(t *testing.T) {
	snap := Snapshot{CPU: CPUInfo{Load1m: 50, CoreCount: 0}}
	if got := snap.Grade(); got != GradeGood {
		t.Fatalf("load must not score without a core count, got %s", got)
	}
}

func TestSummaryMentionsGradeAndErrors(t *testing.T) {
	snap := Snapshot{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Hostname:  "box",
		Platform:  "linux",
		Memory:    MemoryInfo{TotalMB: 16000, UsedMB: 15500, PercentUsed: 96.9},
		CPU:       CPUInfo{Load1m: 1.2, CoreCount: 8},
		Errors:    []string{"power: no battery subsystem"},
	}
	text := snap.Summary()
	if !strings.Contains(text, "box") {
		t.Fatalf("summary should name the host:\n%s", text)
	}
	if !strings.Contains(strings.ToLower(text), string(snap.Grade())) {
		t.Fatalf("summary should include the grade:\n%s", text)
	}
	if !strings.Contains(text, "power: no battery subsystem") {
		t.Fatalf("summary should surface collection errors:\n%s", text)
	}
}

func TestParseUptimeFormats(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"10:02  up 3 days, 12:30, 2 users, load averages: 1.0 1.0 1.0", 3 * 24 * time.Hour},
		{"10:02  up 12:30, 2 users, load averages: 1.0 1.0 1.0", 12*time.Hour + 30*time.Minute},
		{"10:02  up 45 min, 1 user, load average: 0.1", 45 * time.Minute},
		{"no uptime marker here", 0},
	}
	for _, tt := range tests {
		if got := parseUptimeText(tt.in); got != tt.want {
			t.Fatalf("parseUptimeText(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
