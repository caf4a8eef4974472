// Package health collects a Host Health Snapshot: a point-in-time read of
// memory, CPU, disk, and power state, gathered from a fixed allow-list of
// OS introspection commands plus one direct syscall for disk usage. Every
// collector is isolated: a failure degrades to zero-valued defaults and an
// entry in the snapshot's error list, never a failed snapshot.
package health

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jensabrahamsson/overblick/internal/models"
)

// commandTimeout bounds every allow-listed subprocess call.
const commandTimeout = 5 * time.Second

// Grade is the derived severity bucket for a snapshot.
type Grade string

const (
	GradeGood Grade = "good"
	GradeFair Grade = "fair"
	GradePoor Grade = "poor"
)

// MemoryInfo is the memory collector's result.
type MemoryInfo struct {
	TotalMB     float64
	UsedMB      float64
	AvailableMB float64
	PercentUsed float64
}

// CPUInfo is the CPU/load collector's result.
type CPUInfo struct {
	Load1m    float64
	Load5m    float64
	Load15m   float64
	CoreCount int
}

// DiskInfo is one mounted filesystem's usage.
type DiskInfo struct {
	Mount       string
	TotalGB     float64
	UsedGB      float64
	AvailableGB float64
	PercentUsed float64
}

// PowerInfo is the power/battery collector's result.
type PowerInfo struct {
	OnBattery      bool
	BatteryPercent *float64
	TimeRemaining  *string
}

// Snapshot is one complete Host Health Snapshot.
type Snapshot struct {
	Timestamp string
	Hostname  string
	Platform  string
	Uptime    time.Duration
	Memory    MemoryInfo
	CPU       CPUInfo
	Disks     []DiskInfo
	Power     PowerInfo
	Errors    []string
}

// Grade scores the snapshot per the severity-point formula: memory >90% =
// 2pt / >75% = 1pt; 1-minute load > 2x cores = 2pt / >1x = 1pt; disk use
// >95% = 2pt / >85% = 1pt. >=3 points is poor, >=1 is fair, else good.
func (s Snapshot) Grade() Grade {
	points := 0

	switch {
	case s.Memory.PercentUsed > 90:
		points += 2
	case s.Memory.PercentUsed > 75:
		points += 1
	}

	if s.CPU.CoreCount > 0 {
		switch {
		case s.CPU.Load1m > float64(2*s.CPU.CoreCount):
			points += 2
		case s.CPU.Load1m > float64(s.CPU.CoreCount):
			points += 1
		}
	}

	for _, d := range s.Disks {
		switch {
		case d.PercentUsed > 95:
			points += 2
		case d.PercentUsed > 85:
			points += 1
		}
	}

	switch {
	case points >= 3:
		return GradePoor
	case points >= 1:
		return GradeFair
	default:
		return GradeGood
	}
}

// Summary renders the human-readable multi-line text fed to the Health
// Inquiry LLM prompt and returned as the response's health summary. The
// no-LLM fallback response text is a separate one-line rendering.
func (s Snapshot) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Host: %s (%s)\n", s.Hostname, s.Platform)
	fmt.Fprintf(&b, "Uptime: %s\n", s.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "Health grade: %s\n", s.Grade())
	fmt.Fprintf(&b, "Memory: %.0f/%.0f MB used (%.1f%%)\n", s.Memory.UsedMB, s.Memory.TotalMB, s.Memory.PercentUsed)
	fmt.Fprintf(&b, "CPU: load %.2f/%.2f/%.2f over %d cores\n", s.CPU.Load1m, s.CPU.Load5m, s.CPU.Load15m, s.CPU.CoreCount)
	for _, d := range s.Disks {
		fmt.Fprintf(&b, "Disk %s: %.1f/%.1f GB used (%.1f%%)\n", d.Mount, d.UsedGB, d.TotalGB, d.PercentUsed)
	}
	if s.Power.OnBattery {
		pct := "unknown"
		if s.Power.BatteryPercent != nil {
			pct = fmt.Sprintf("%.0f%%", *s.Power.BatteryPercent)
		}
		b.WriteString("Power: on battery, " + pct)
		if s.Power.TimeRemaining != nil {
			b.WriteString(", " + *s.Power.TimeRemaining + " remaining")
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Power: on AC\n")
	}
	if len(s.Errors) > 0 {
		b.WriteString("Collection errors:\n")
		for _, e := range s.Errors {
			b.WriteString("  - " + e + "\n")
		}
	}
	return b.String()
}

// Collect runs every collector concurrently and assembles a Snapshot. No
// collector failure is fatal: each isolates its own error into the
// snapshot's Errors list and otherwise contributes a zero-valued result.
func Collect(ctx context.Context) Snapshot {
	hostname, _ := os.Hostname()
	snap := Snapshot{
		Timestamp: models.Now(),
		Hostname:  hostname,
		Platform:  runtime.GOOS,
	}

	var mu sync.Mutex
	addErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		snap.Errors = append(snap.Errors, err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		mem, err := collectMemory(ctx)
		if err != nil {
			addErr(fmt.Errorf("memory: %w", err))
			return
		}
		mu.Lock()
		snap.Memory = mem
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		cpu, uptime, err := collectCPU(ctx)
		if err != nil {
			addErr(fmt.Errorf("cpu: %w", err))
			return
		}
		mu.Lock()
		snap.CPU = cpu
		snap.Uptime = uptime
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		disks, err := collectDisks()
		if err != nil {
			addErr(fmt.Errorf("disk: %w", err))
			return
		}
		mu.Lock()
		snap.Disks = disks
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		power, err := collectPower(ctx)
		if err != nil {
			addErr(fmt.Errorf("power: %w", err))
			return
		}
		mu.Lock()
		snap.Power = power
		mu.Unlock()
	}()

	wg.Wait()
	return snap
}

// runAllowed runs name with args under a bounded timeout. name must be one
// of the fixed allow-listed executables; no shell is ever invoked.
func runAllowed(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w", name, err)
	}
	return out.String(), nil
}

var numberRE = regexp.MustCompile(`[-+]?\d*\.?\d+`)

func firstNumber(s string) (float64, bool) {
	m := numberRE.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	return v, err == nil
}

func collectMemory(ctx context.Context) (MemoryInfo, error) {
	if runtime.GOOS == "darwin" {
		return collectMemoryDarwin(ctx)
	}
	return collectMemoryLinux(ctx)
}

func collectMemoryDarwin(ctx context.Context) (MemoryInfo, error) {
	pageSizeOut, err := runAllowed(ctx, "sysctl", "-n", "hw.pagesize")
	if err != nil {
		return MemoryInfo{}, err
	}
	pageSize, _ := firstNumber(pageSizeOut)
	if pageSize == 0 {
		pageSize = 4096
	}

	totalOut, err := runAllowed(ctx, "sysctl", "-n", "hw.memsize")
	if err != nil {
		return MemoryInfo{}, err
	}
	totalBytes, _ := firstNumber(totalOut)

	vmOut, err := runAllowed(ctx, "vm_stat")
	if err != nil {
		return MemoryInfo{}, err
	}

	pages := map[string]float64{}
	for _, line := range strings.Split(vmOut, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if v, ok := firstNumber(parts[1]); ok {
			pages[key] = v
		}
	}

	free := pages["Pages free"] * pageSize
	active := pages["Pages active"] * pageSize
	inactive := pages["Pages inactive"] * pageSize
	wired := pages["Pages wired down"] * pageSize
	used := active + inactive + wired
	available := free + inactive

	totalMB := totalBytes / 1024 / 1024
	usedMB := used / 1024 / 1024
	availMB := available / 1024 / 1024

	pct := 0.0
	if totalMB > 0 {
		pct = usedMB / totalMB * 100
	}

	return MemoryInfo{TotalMB: totalMB, UsedMB: usedMB, AvailableMB: availMB, PercentUsed: pct}, nil
}

func collectMemoryLinux(ctx context.Context) (MemoryInfo, error) {
	out, err := runAllowed(ctx, "cat", "/proc/meminfo")
	if err != nil {
		// fall back to the `free` allow-listed command
		return collectMemoryLinuxFree(ctx)
	}

	kb := map[string]float64{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if v, ok := firstNumber(parts[1]); ok {
			kb[strings.TrimSpace(parts[0])] = v
		}
	}

	totalMB := kb["MemTotal"] / 1024
	availMB := kb["MemAvailable"] / 1024
	if availMB == 0 {
		availMB = (kb["MemFree"] + kb["Buffers"] + kb["Cached"]) / 1024
	}
	usedMB := totalMB - availMB

	pct := 0.0
	if totalMB > 0 {
		pct = usedMB / totalMB * 100
	}
	return MemoryInfo{TotalMB: totalMB, UsedMB: usedMB, AvailableMB: availMB, PercentUsed: pct}, nil
}

func collectMemoryLinuxFree(ctx context.Context) (MemoryInfo, error) {
	out, err := runAllowed(ctx, "free", "-m")
	if err != nil {
		return MemoryInfo{}, err
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "Mem:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			continue
		}
		total, _ := strconv.ParseFloat(fields[1], 64)
		used, _ := strconv.ParseFloat(fields[2], 64)
		avail, _ := strconv.ParseFloat(fields[6], 64)
		pct := 0.0
		if total > 0 {
			pct = used / total * 100
		}
		return MemoryInfo{TotalMB: total, UsedMB: used, AvailableMB: avail, PercentUsed: pct}, nil
	}
	return MemoryInfo{}, fmt.Errorf("no Mem: line in free output")
}

func collectCPU(ctx context.Context) (CPUInfo, time.Duration, error) {
	cores, err := coreCount(ctx)
	if err != nil {
		return CPUInfo{}, 0, err
	}

	var load1, load5, load15 float64
	var uptime time.Duration

	if runtime.GOOS == "darwin" {
		lo, err := runAllowed(ctx, "sysctl", "-n", "vm.loadavg")
		if err != nil {
			return CPUInfo{}, 0, err
		}
		nums := numberRE.FindAllString(lo, 3)
		if len(nums) == 3 {
			load1, _ = strconv.ParseFloat(nums[0], 64)
			load5, _ = strconv.ParseFloat(nums[1], 64)
			load15, _ = strconv.ParseFloat(nums[2], 64)
		}
		upOut, err := runAllowed(ctx, "uptime")
		if err == nil {
			uptime = parseUptimeText(upOut)
		}
	} else {
		out, err := runAllowed(ctx, "cat", "/proc/loadavg")
		if err != nil {
			return CPUInfo{}, 0, err
		}
		fields := strings.Fields(out)
		if len(fields) >= 3 {
			load1, _ = strconv.ParseFloat(fields[0], 64)
			load5, _ = strconv.ParseFloat(fields[1], 64)
			load15, _ = strconv.ParseFloat(fields[2], 64)
		}
		upOut, err := runAllowed(ctx, "cat", "/proc/uptime")
		if err == nil {
			fields := strings.Fields(upOut)
			if len(fields) >= 1 {
				secs, _ := strconv.ParseFloat(fields[0], 64)
				uptime = time.Duration(secs * float64(time.Second))
			}
		}
	}

	return CPUInfo{Load1m: load1, Load5m: load5, Load15m: load15, CoreCount: cores}, uptime, nil
}

func coreCount(ctx context.Context) (int, error) {
	if runtime.GOOS == "darwin" {
		out, err := runAllowed(ctx, "sysctl", "-n", "hw.ncpu")
		if err != nil {
			return 0, err
		}
		v, _ := firstNumber(out)
		return int(v), nil
	}
	out, err := runAllowed(ctx, "nproc")
	if err != nil {
		return 0, err
	}
	v, _ := firstNumber(out)
	return int(v), nil
}

// parseUptimeText extracts an approximate uptime duration from `uptime`'s
// free-text output (e.g. "14:02  up 3 days, 2:11, 4 users, ..."). Best
// effort: a malformed string yields zero rather than an error, since uptime
// is secondary to the load-average reading.
func parseUptimeText(s string) time.Duration {
	lower := strings.ToLower(s)
	idx := strings.Index(lower, "up ")
	if idx < 0 {
		return 0
	}
	rest := s[idx+3:]
	end := strings.IndexAny(rest, ",")
	if end > 0 {
		rest = rest[:end]
	}
	if days := regexp.MustCompile(`(\d+)\s*day`).FindStringSubmatch(rest); days != nil {
		d, _ := strconv.Atoi(days[1])
		return time.Duration(d) * 24 * time.Hour
	}
	if hm := regexp.MustCompile(`(\d+):(\d+)`).FindStringSubmatch(rest); hm != nil {
		h, _ := strconv.Atoi(hm[1])
		m, _ := strconv.Atoi(hm[2])
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	}
	if mins := regexp.MustCompile(`(\d+)\s*min`).FindStringSubmatch(rest); mins != nil {
		m, _ := strconv.Atoi(mins[1])
		return time.Duration(m) * time.Minute
	}
	return 0
}

// collectDisks reads the root mount's usage via a direct syscall rather
// than a subprocess — `df` is not on the command allow-list.
func collectDisks() ([]DiskInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs("/", &stat); err != nil {
		return nil, fmt.Errorf("statfs /: %w", err)
	}

	blockSize := uint64(stat.Bsize)
	totalBytes := stat.Blocks * blockSize
	freeBytes := stat.Bfree * blockSize
	usedBytes := totalBytes - freeBytes

	const gb = 1024 * 1024 * 1024
	totalGB := float64(totalBytes) / gb
	usedGB := float64(usedBytes) / gb
	availGB := float64(freeBytes) / gb

	pct := 0.0
	if totalBytes > 0 {
		pct = float64(usedBytes) / float64(totalBytes) * 100
	}

	return []DiskInfo{{
		Mount:       "/",
		TotalGB:     totalGB,
		UsedGB:      usedGB,
		AvailableGB: availGB,
		PercentUsed: pct,
	}}, nil
}

func collectPower(ctx context.Context) (PowerInfo, error) {
	if runtime.GOOS == "darwin" {
		out, err := runAllowed(ctx, "pmset", "-g", "batt")
		if err != nil {
			// No battery subsystem (e.g. a desktop Mac) — treat as on AC.
			return PowerInfo{OnBattery: false}, nil
		}
		return parsePmsetOutput(out), nil
	}

	// Linux: best-effort read of the standard sysfs battery status file via
	// the whitelisted `cat`. Absence means desktop/server hardware on AC.
	out, err := runAllowed(ctx, "cat", "/sys/class/power_supply/BAT0/status")
	if err != nil {
		return PowerInfo{OnBattery: false}, nil
	}
	onBattery := strings.TrimSpace(out) == "Discharging"

	pctOut, err := runAllowed(ctx, "cat", "/sys/class/power_supply/BAT0/capacity")
	var pct *float64
	if err == nil {
		if v, ok := firstNumber(pctOut); ok {
			pct = &v
		}
	}
	return PowerInfo{OnBattery: onBattery, BatteryPercent: pct}, nil
}

func parsePmsetOutput(s string) PowerInfo {
	onBattery := strings.Contains(s, "Battery Power")
	var pct *float64
	if m := regexp.MustCompile(`(\d+)%`).FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		pct = &v
	}
	var remaining *string
	if m := regexp.MustCompile(`(\d+:\d+) remaining`).FindStringSubmatch(s); m != nil {
		remaining = &m[1]
	}
	return PowerInfo{OnBattery: onBattery, BatteryPercent: pct, TimeRemaining: remaining}
}
