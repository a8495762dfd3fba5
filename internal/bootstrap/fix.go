package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"video-transcriber/internal/config"
	"video-transcriber/internal/domain"
	"video-transcriber/internal/media"
)

const installCommandTimeout = 45 * time.Minute

// maxStderrDetail caps how much package-manager stderr lands in an error.
const maxStderrDetail = 500

// installPlan is one package manager and the commands it needs.
type installPlan struct {
	manager  string
	commands [][]string
}

// toolInstaller runs package manager commands until one plan succeeds.
type toolInstaller struct {
	runner   media.CommandRunner
	lookPath func(string) (string, error)
	goos     string
	log      *logrus.Logger
}

// FixDiagnostic applies a remediation for one failed diagnostic item and
// returns the refreshed report.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	var fixErr error
	changed := false
	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
		fixErr = a.installer().install(ctx, ffmpegInstallPlans(goruntime.GOOS), "ffmpeg", "ffprobe")
		cancel()
	case "api_key":
		fixErr = fmt.Errorf("set %s in the environment or in %s", config.EnvAPIKey, filepath.Join(config.AppDir(), ".env"))
	default:
		settings, changed, fixErr = fixSettings(id, settings)
	}

	if changed {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			return a.refreshDiagnostics(settings), fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnostics(settings)
	if fixErr != nil {
		a.logger().WithError(fixErr).WithField("item", id).Error("diagnostic fix failed")
		return report, fixErr
	}
	return report, nil
}

// fixSettings resets or repairs a settings-backed diagnostic item.
func fixSettings(id string, settings domain.Settings) (domain.Settings, bool, error) {
	defaults := config.DefaultSettings()
	switch id {
	case "endpoint":
		settings.Endpoint = defaults.Endpoint
		return settings, true, nil
	case "language":
		settings.Language = defaults.Language
		return settings, true, nil
	case "save_dir":
		changed := false
		if strings.TrimSpace(settings.SaveDir) == "" {
			settings.SaveDir = defaults.SaveDir
			changed = true
		}
		if err := os.MkdirAll(settings.SaveDir, 0o755); err != nil {
			return settings, changed, fmt.Errorf("create save directory %s: %w", settings.SaveDir, err)
		}
		return settings, changed, nil
	default:
		return settings, false, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}
}

// ffmpegInstallPlans lists package managers able to provide ffmpeg and ffprobe.
func ffmpegInstallPlans(goos string) []installPlan {
	switch goos {
	case "windows":
		return []installPlan{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installPlan{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installPlan{
			{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

// install tries each available plan in order, then verifies the tools.
func (i toolInstaller) install(ctx context.Context, plans []installPlan, tools ...string) error {
	if len(plans) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", i.goos)
	}

	failures := make([]string, 0, len(plans))
	tried := false
	installed := false
	for _, plan := range plans {
		if !i.available(plan.manager) {
			continue
		}
		tried = true
		if err := i.runPlan(ctx, plan); err != nil {
			i.log.WithError(err).WithField("manager", plan.manager).Warn("install attempt failed")
			failures = append(failures, fmt.Sprintf("%s: %v", plan.manager, err))
			continue
		}
		installed = true
		break
	}

	if !tried {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}
	if !installed {
		return fmt.Errorf("install %s: %s", strings.Join(tools, "/"), strings.Join(failures, " | "))
	}

	var missing []string
	for _, tool := range tools {
		if !i.available(tool) {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH after install: %s", strings.Join(missing, ", "))
	}
	return nil
}

// runPlan runs every command of a plan, escalating on Linux when needed.
func (i toolInstaller) runPlan(ctx context.Context, plan installPlan) error {
	for _, command := range plan.commands {
		if err := i.runElevated(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (i toolInstaller) runElevated(ctx context.Context, command []string) error {
	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.available("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if i.available("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attempts := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		result, err := i.runner.Run(ctx, candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		detail := truncateRunes(strings.TrimSpace(result.Stderr), maxStderrDetail)
		if detail == "" {
			attempts = append(attempts, fmt.Sprintf("%s failed: %v", strings.Join(candidate, " "), err))
		} else {
			attempts = append(attempts, fmt.Sprintf("%s failed: %v (%s)", strings.Join(candidate, " "), err, detail))
		}
	}
	return fmt.Errorf("%s", strings.Join(attempts, " | "))
}

func (i toolInstaller) available(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

// ensureLocalBinOnPATH prepends the per-user tool directory so a locally
// dropped ffmpeg build is found by the extractor and the diagnostics.
func ensureLocalBinOnPATH(appDir string) error {
	binDir := filepath.Join(appDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

// truncateRunes shortens s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
