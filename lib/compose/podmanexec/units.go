// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package podmanexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/composed-systems/composed/lib/compose"
)

const composeProjectLabel = "io.podman.compose.project"

// unitBase joins prefix, separator and resource name the way podman
// generate systemd does.
func unitBase(prefix, separator, resource string) string {
	if prefix == "" {
		return resource
	}
	return prefix + separator + resource
}

// ListInstalledUnits scans the project's service directory and
// classifies the unit files that belong to the composition.
func (r *Runtime) ListInstalledUnits(ctx context.Context, p compose.Project) (compose.Units, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return compose.Units{}, err
	}
	return r.listInstalledUnits(ctx, resolved)
}

func (r *Runtime) listInstalledUnits(ctx context.Context, resolved project) (compose.Units, error) {
	dir, err := r.ServiceDir(ctx, resolved.user)
	if err != nil {
		return compose.Units{}, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return compose.Units{}, nil
	}
	if err != nil {
		return compose.Units{}, err
	}

	var units compose.Units
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".service") {
			continue
		}
		base := strings.TrimSuffix(name, ".service")
		if !strings.Contains(base, resolved.name) {
			continue
		}
		switch {
		case strings.HasPrefix(base, resolved.podPrefix+resolved.separator):
			units.Pods = append(units.Pods, base)
		case strings.HasPrefix(base, resolved.containerPrefix+resolved.separator):
			units.Containers = append(units.Containers, base)
		}
	}
	sort.Strings(units.Pods)
	sort.Strings(units.Containers)
	return units, nil
}

// livePods lists the project's pods known to podman.
func (r *Runtime) livePods(ctx context.Context, resolved project) ([]string, error) {
	return r.listResources(ctx, resolved, "pod", "ps")
}

// liveContainers lists the project's containers known to podman,
// running or not.
func (r *Runtime) liveContainers(ctx context.Context, resolved project) ([]string, error) {
	return r.listResources(ctx, resolved, "ps", "-a")
}

func (r *Runtime) listResources(ctx context.Context, resolved project, args ...string) ([]string, error) {
	args = append(args,
		"--format", "{{.Names}}",
		"--filter", "label="+composeProjectLabel+"="+resolved.name)
	result, err := r.runner.Run(ctx, Command{Name: "podman", Args: args, User: resolved.user})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("podman %s: %s", strings.Join(args, " "), strings.TrimSpace(result.Stderr))
	}
	var names []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// ListMissingUnits compares the units the live resources call for with
// the installed ones. shouldHavePod forces or forbids the pod unit;
// nil derives the expectation from whether a live pod exists.
func (r *Runtime) ListMissingUnits(ctx context.Context, p compose.Project, shouldHavePod *bool) ([]string, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	installed, err := r.listInstalledUnits(ctx, resolved)
	if err != nil {
		return nil, err
	}
	have := map[string]bool{}
	for _, unit := range installed.All() {
		have[unit] = true
	}

	pods, err := r.livePods(ctx, resolved)
	if err != nil {
		return nil, err
	}
	containers, err := r.liveContainers(ctx, resolved)
	if err != nil {
		return nil, err
	}

	wantPod := len(pods) > 0
	if shouldHavePod != nil {
		wantPod = *shouldHavePod
	}

	var missing []string
	if wantPod {
		expected := pods
		if len(expected) == 0 {
			// Forced expectation without a live pod: report the name
			// podman-compose would use.
			expected = []string{"pod_" + resolved.name}
		}
		for _, pod := range expected {
			unit := unitBase(resolved.podPrefix, resolved.separator, pod)
			if !have[unit] {
				missing = append(missing, unit)
			}
		}
	}
	for _, container := range containers {
		unit := unitBase(resolved.containerPrefix, resolved.separator, container)
		if !have[unit] {
			missing = append(missing, unit)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// InstallUnits generates unit files for the composition's live
// resources. Generation goes through the pod when one exists, which
// yields the member container units as well; otherwise each container
// is generated individually.
func (r *Runtime) InstallUnits(ctx context.Context, p compose.Project, opts compose.UnitOptions) (map[string]string, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.installUnits(ctx, resolved, opts)
}

func (r *Runtime) installUnits(ctx context.Context, resolved project, opts compose.UnitOptions) (map[string]string, error) {
	pods, err := r.livePods(ctx, resolved)
	if err != nil {
		return nil, err
	}
	var targets []string
	if len(pods) > 0 {
		targets = pods
	} else {
		containers, err := r.liveContainers(ctx, resolved)
		if err != nil {
			return nil, err
		}
		targets = containers
	}
	if len(targets) == 0 {
		return nil, compose.ErrNoExistingResources
	}

	units := map[string]string{}
	for _, target := range targets {
		generated, err := r.generateUnits(ctx, resolved, opts, target)
		if err != nil {
			return nil, err
		}
		for name, text := range generated {
			units[name] = r.postProcessUnit(resolved, opts, name, text)
		}
	}

	if opts.GenerateOnly {
		return units, nil
	}
	if err := r.writeUnits(ctx, resolved, opts, units); err != nil {
		return nil, err
	}
	return units, nil
}

// generateUnits runs podman generate systemd for one target and splits
// the combined output into named unit texts.
func (r *Runtime) generateUnits(ctx context.Context, resolved project, opts compose.UnitOptions, target string) (map[string]string, error) {
	args := []string{
		"generate", "systemd",
		"--name", "--no-header",
		"--pod-prefix", resolved.podPrefix,
		"--container-prefix", resolved.containerPrefix,
		"--separator", resolved.separator,
	}
	if opts.Ephemeral {
		args = append(args, "--new")
	}
	if opts.RestartPolicy != "" {
		args = append(args, "--restart-policy", opts.RestartPolicy)
	}
	if opts.RestartSec > 0 {
		args = append(args, "--restart-sec", strconv.Itoa(opts.RestartSec))
	}
	if opts.StopTimeout > 0 {
		args = append(args, "--time", strconv.Itoa(opts.StopTimeout))
	}
	args = append(args, target)

	result, err := r.runner.Run(ctx, Command{Name: "podman", Args: args, User: resolved.user})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("podman generate systemd %s: %s", target, strings.TrimSpace(result.Stderr))
	}

	units := splitUnits(result.Stdout)
	if len(units) == 0 {
		// Single-unit output comes without the "# name.service"
		// markers; name it the way the generator would.
		if strings.TrimSpace(result.Stdout) == "" {
			return nil, fmt.Errorf("podman generate systemd %s produced no units", target)
		}
		units = map[string]string{
			unitBase(resolved.containerPrefix, resolved.separator, target): result.Stdout,
		}
	}
	return units, nil
}

// splitUnits separates the concatenated output of podman generate
// systemd into per-unit texts, keyed by unit base name. Units are
// delimited by "# name.service" comment lines.
func splitUnits(output string) map[string]string {
	units := map[string]string{}
	var current string
	var buffer []string
	flush := func() {
		if current != "" {
			units[current] = strings.TrimLeft(strings.Join(buffer, "\n"), "\n") + "\n"
		}
		buffer = nil
	}
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") && strings.HasSuffix(trimmed, ".service") {
			name := strings.TrimSuffix(strings.TrimPrefix(trimmed, "# "), ".service")
			if !strings.ContainsAny(name, " \t") {
				flush()
				current = name
				continue
			}
		}
		buffer = append(buffer, line)
	}
	flush()
	return units
}

// postProcessUnit applies the option-driven rewrites podman's
// generator does not expose.
func (r *Runtime) postProcessUnit(resolved project, opts compose.UnitOptions, name, text string) string {
	if opts.PodWants && strings.HasPrefix(name, resolved.containerPrefix+resolved.separator) {
		// Member containers hard-bind to the pod unit; soften the
		// dependency so restarting one container leaves the pod alone.
		text = strings.ReplaceAll(text, "\nBindsTo=", "\nWants=")
		text = strings.ReplaceAll(text, "\nRequires=", "\nWants=")
	}
	for service, overrides := range opts.ServiceOverrides {
		if !strings.Contains(name, service) {
			continue
		}
		var extra []string
		for key, value := range overrides {
			extra = append(extra, key+"="+value)
		}
		sort.Strings(extra)
		text = strings.TrimRight(text, "\n") + "\n" + strings.Join(extra, "\n") + "\n"
	}
	return text
}

// writeUnits installs the generated unit files and reloads the
// manager, enabling or starting per the options.
func (r *Runtime) writeUnits(ctx context.Context, resolved project, opts compose.UnitOptions, units map[string]string) error {
	dir, err := r.ServiceDir(ctx, resolved.user)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, text := range units {
		path := filepath.Join(dir, name+".service")
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return err
		}
		r.logger.Debug("wrote unit file", "path", path)
	}

	reload := r.systemctl(resolved, "daemon-reload")
	if result, err := r.runner.Run(ctx, reload); err != nil {
		return err
	} else if result.ExitCode != 0 {
		return fmt.Errorf("daemon-reload: %s", strings.TrimSpace(result.Stderr))
	}

	if !opts.EnableUnits {
		return nil
	}
	args := []string{"enable"}
	if opts.Now {
		args = append(args, "--now")
	}
	for name := range units {
		args = append(args, name+".service")
	}
	sort.Strings(args[1:])
	result, err := r.runner.Run(ctx, r.systemctl(resolved, args...))
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("enabling units: %s", strings.TrimSpace(result.Stderr))
	}
	return nil
}

// InspectUnit parses one generated unit file into its podman options.
// With raw unset, a missing unit file falls back to the live
// resource's recorded create command.
func (r *Runtime) InspectUnit(ctx context.Context, p compose.Project, unitName string, raw bool) (compose.UnitInfo, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return compose.UnitInfo{}, err
	}

	dir, err := r.ServiceDir(ctx, resolved.user)
	if err != nil {
		return compose.UnitInfo{}, err
	}
	content, exists, err := r.ReadUnitFile(ctx, filepath.Join(dir, unitName+".service"))
	if err != nil {
		return compose.UnitInfo{}, err
	}
	if exists {
		return parseUnitText(content), nil
	}
	if raw {
		return compose.UnitInfo{}, fmt.Errorf("unit %s is not installed", unitName)
	}

	// Fall back to what the live resource was created with.
	resource := strings.TrimPrefix(unitName, resolved.containerPrefix+resolved.separator)
	resource = strings.TrimPrefix(resource, resolved.podPrefix+resolved.separator)
	result, err := r.runner.Run(ctx, Command{
		Name: "podman",
		Args: []string{"inspect", "--format", "{{range .Config.CreateCommand}}{{.}}\n{{end}}", resource},
		User: resolved.user,
	})
	if err != nil {
		return compose.UnitInfo{}, err
	}
	if result.ExitCode != 0 {
		return compose.UnitInfo{}, fmt.Errorf("unit %s is not installed and %s has no live resource", unitName, resource)
	}
	return parseCommandOptions(strings.Fields(strings.ReplaceAll(result.Stdout, "\n", " "))), nil
}

// parseUnitText extracts the podman options from a unit file's
// ExecStart and ExecStartPre lines.
func parseUnitText(content string) compose.UnitInfo {
	// Rejoin backslash continuations first.
	joined := strings.ReplaceAll(content, "\\\n", " ")

	var tokens []string
	for _, line := range strings.Split(joined, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "ExecStart=") || strings.HasPrefix(trimmed, "ExecStartPre=") {
			_, value, _ := strings.Cut(trimmed, "=")
			tokens = append(tokens, strings.Fields(value)...)
		}
	}
	return parseCommandOptions(tokens)
}

// parseCommandOptions collects --flag and --flag=value occurrences
// from a podman command line.
func parseCommandOptions(tokens []string) compose.UnitInfo {
	options := map[string][]string{}
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if !strings.HasPrefix(token, "--") {
			continue
		}
		name := strings.TrimPrefix(token, "--")
		if flag, value, found := strings.Cut(name, "="); found {
			options[flag] = append(options[flag], value)
			continue
		}
		if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") {
			options[name] = append(options[name], tokens[i+1])
			i++
			continue
		}
		options[name] = append(options[name], "")
	}
	return compose.UnitInfo{Options: options}
}
