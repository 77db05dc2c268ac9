// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package podmanexec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/composed-systems/composed/lib/compose"
)

const (
	configHashLabel = "io.podman.compose.config-hash"
	serviceLabel    = "io.podman.compose.service"
)

// Install creates the composition's resources without starting them
// and installs their units.
func (r *Runtime) Install(ctx context.Context, p compose.Project, opts compose.InstallOptions) (bool, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return false, err
	}
	if resolved.file == "" {
		return false, compose.Invocationf("composition %s has no compose file", p.Ref)
	}

	var globals []string
	if opts.CreatePod != nil {
		inPod := "0"
		if *opts.CreatePod {
			inPod = "1"
		}
		globals = append(globals, "--in-pod", inPod)
	}
	if len(opts.PodArgs) > 0 {
		podArgs := strings.Join(opts.PodArgs, " ")
		if !opts.PodArgsOverrideDefault {
			podArgs = "--infra=true --share= " + podArgs
		}
		globals = append(globals, "--pod-args", podArgs)
	}
	if len(opts.PodmanCreateArgs) > 0 {
		globals = append(globals, "--podman-run-args", strings.Join(opts.PodmanCreateArgs, " "))
	}

	args := []string{"--no-start"}
	if opts.ForceRecreate {
		args = append(args, "--force-recreate")
	}
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if opts.Build {
		args = append(args, "--build")
		for key, value := range opts.BuildArgs {
			args = append(args, "--build-arg", key+"="+value)
		}
	}
	if opts.Pull {
		args = append(args, "--pull")
	}

	result, err := r.runner.Run(ctx, r.podmanCompose(resolved, globals, "up", args...))
	if err != nil {
		return false, err
	}
	if result.ExitCode != 0 {
		r.logger.Debug("podman-compose up failed",
			"project", resolved.name, "stderr", strings.TrimSpace(result.Stderr))
		return false, nil
	}

	if _, err := r.installUnits(ctx, resolved, opts.UnitOptions); err != nil {
		return false, err
	}
	return true, nil
}

// Remove tears the composition down and deletes its unit files.
func (r *Runtime) Remove(ctx context.Context, p compose.Project, volumes bool) (bool, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return false, err
	}

	if resolved.file != "" {
		args := []string{}
		if volumes {
			args = append(args, "--volumes")
		}
		result, err := r.runner.Run(ctx, r.podmanCompose(resolved, nil, "down", args...))
		if err != nil {
			return false, err
		}
		if result.ExitCode != 0 {
			r.logger.Debug("podman-compose down failed",
				"project", resolved.name, "stderr", strings.TrimSpace(result.Stderr))
			return false, nil
		}
	}

	units, err := r.listInstalledUnits(ctx, resolved)
	if err != nil {
		return false, err
	}
	if units.Empty() {
		return true, nil
	}

	disable := append([]string{"disable"}, suffixed(units.All())...)
	if result, err := r.runner.Run(ctx, r.systemctl(resolved, disable...)); err != nil {
		return false, err
	} else if result.ExitCode != 0 {
		r.logger.Debug("disabling units failed", "stderr", strings.TrimSpace(result.Stderr))
	}

	dir, err := r.ServiceDir(ctx, resolved.user)
	if err != nil {
		return false, err
	}
	for _, unit := range units.All() {
		path := filepath.Join(dir, unit+".service")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, err
		}
		r.logger.Debug("removed unit file", "path", path)
	}

	result, err := r.runner.Run(ctx, r.systemctl(resolved, "daemon-reload"))
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}

// primaryUnits are the units lifecycle verbs act on: the pod units
// when the composition is podded (members follow the pod), every
// container unit otherwise.
func primaryUnits(units compose.Units) []string {
	if len(units.Pods) > 0 {
		return units.Pods
	}
	return units.Containers
}

func suffixed(units []string) []string {
	out := make([]string, len(units))
	for i, unit := range units {
		out[i] = unit + ".service"
	}
	return out
}

func (r *Runtime) unitVerb(ctx context.Context, p compose.Project, verb string) (bool, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return false, err
	}
	units, err := r.listInstalledUnits(ctx, resolved)
	if err != nil {
		return false, err
	}
	targets := primaryUnits(units)
	if len(targets) == 0 {
		return false, nil
	}
	args := append([]string{verb}, suffixed(targets)...)
	result, err := r.runner.Run(ctx, r.systemctl(resolved, args...))
	if err != nil {
		return false, err
	}
	if result.ExitCode != 0 {
		r.logger.Debug("systemctl failed",
			"verb", verb, "project", resolved.name, "stderr", strings.TrimSpace(result.Stderr))
		return false, nil
	}
	return true, nil
}

func (r *Runtime) Start(ctx context.Context, p compose.Project) (bool, error) {
	return r.unitVerb(ctx, p, "start")
}

func (r *Runtime) Stop(ctx context.Context, p compose.Project) (bool, error) {
	return r.unitVerb(ctx, p, "stop")
}

func (r *Runtime) Restart(ctx context.Context, p compose.Project) (bool, error) {
	return r.unitVerb(ctx, p, "restart")
}

func (r *Runtime) Enable(ctx context.Context, p compose.Project) (bool, error) {
	return r.unitVerb(ctx, p, "enable")
}

func (r *Runtime) Disable(ctx context.Context, p compose.Project) (bool, error) {
	return r.unitVerb(ctx, p, "disable")
}

// unitProbe runs a systemctl query per primary unit and reports how
// many answered yes. A composition without units is (0, 0, nil).
func (r *Runtime) unitProbe(ctx context.Context, p compose.Project, query string) (yes, total int, err error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return 0, 0, err
	}
	units, err := r.listInstalledUnits(ctx, resolved)
	if err != nil {
		return 0, 0, err
	}
	targets := primaryUnits(units)
	for _, unit := range targets {
		result, err := r.runner.Run(ctx, r.systemctl(resolved, query, unit+".service"))
		if err != nil {
			return 0, 0, err
		}
		if result.ExitCode == 0 {
			yes++
		}
	}
	return yes, len(targets), nil
}

// IsRunning reports whether every primary unit is active.
func (r *Runtime) IsRunning(ctx context.Context, p compose.Project) (bool, error) {
	yes, total, err := r.unitProbe(ctx, p, "is-active")
	return total > 0 && yes == total, err
}

// IsDead reports whether no primary unit is active. A composition
// without any units counts as dead.
func (r *Runtime) IsDead(ctx context.Context, p compose.Project) (bool, error) {
	yes, _, err := r.unitProbe(ctx, p, "is-active")
	return yes == 0, err
}

func (r *Runtime) IsEnabled(ctx context.Context, p compose.Project) (bool, error) {
	yes, total, err := r.unitProbe(ctx, p, "is-enabled")
	return total > 0 && yes == total, err
}

func (r *Runtime) IsDisabled(ctx context.Context, p compose.Project) (bool, error) {
	yes, _, err := r.unitProbe(ctx, p, "is-enabled")
	return yes == 0, err
}

// Inspect returns live inspection records for the composition's
// containers.
func (r *Runtime) Inspect(ctx context.Context, p compose.Project, nameFilter string) ([]compose.InspectRecord, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	containers, err := r.liveContainers(ctx, resolved)
	if err != nil {
		return nil, err
	}
	var selected []string
	for _, name := range containers {
		if nameFilter == "" || strings.Contains(name, nameFilter) {
			selected = append(selected, name)
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	result, err := r.runner.Run(ctx, Command{
		Name: "podman",
		Args: append([]string{"inspect"}, selected...),
		User: resolved.user,
	})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("podman inspect: %s", strings.TrimSpace(result.Stderr))
	}
	return parseInspectOutput(result.Stdout)
}

func parseInspectOutput(output string) ([]compose.InspectRecord, error) {
	var raw []struct {
		Name       string `json:"Name"`
		HostConfig struct {
			IDMappings struct {
				UIDMap []string `json:"UidMap"`
				GIDMap []string `json:"GidMap"`
			} `json:"IDMappings"`
		} `json:"HostConfig"`
	}
	if err := json.Unmarshal([]byte(output), &raw); err != nil {
		return nil, fmt.Errorf("parsing podman inspect output: %w", err)
	}
	records := make([]compose.InspectRecord, len(raw))
	for i, entry := range raw {
		records[i] = compose.InspectRecord{
			Name: strings.TrimPrefix(entry.Name, "/"),
			HostConfig: compose.HostConfig{IDMappings: compose.IDMappings{
				UIDMap: entry.HostConfig.IDMappings.UIDMap,
				GIDMap: entry.HostConfig.IDMappings.GIDMap,
			}},
		}
	}
	return records, nil
}

// HasChanges reports whether the live containers were created from a
// different version of the compose file, via the config hash label
// podman-compose stamps on every container. skipRemoved ignores
// containers whose service no longer appears in the file.
func (r *Runtime) HasChanges(ctx context.Context, p compose.Project, skipRemoved bool) (bool, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return false, err
	}
	if resolved.file == "" {
		return false, compose.Invocationf("composition %s has no compose file", p.Ref)
	}

	currentHash, services, err := composeFileDigest(resolved.file)
	if err != nil {
		return false, err
	}

	containers, err := r.liveContainers(ctx, resolved)
	if err != nil {
		return false, err
	}
	for _, container := range containers {
		result, err := r.runner.Run(ctx, Command{
			Name: "podman",
			Args: []string{"inspect", "--format",
				`{{index .Config.Labels "` + configHashLabel + `"}} {{index .Config.Labels "` + serviceLabel + `"}}`,
				container},
			User: resolved.user,
		})
		if err != nil {
			return false, err
		}
		if result.ExitCode != 0 {
			return false, fmt.Errorf("podman inspect %s: %s", container, strings.TrimSpace(result.Stderr))
		}
		fields := strings.Fields(result.Stdout)
		var hash, service string
		if len(fields) > 0 {
			hash = fields[0]
		}
		if len(fields) > 1 {
			service = fields[1]
		}
		if skipRemoved && service != "" && !services[service] {
			continue
		}
		if hash != currentHash {
			r.logger.Debug("container out of sync with definitions",
				"container", container, "service", service)
			return true, nil
		}
	}
	return false, nil
}

// composeFileDigest computes the config hash of a compose file the way
// podman-compose stamps it, plus the set of defined service names.
func composeFileDigest(path string) (string, map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var parsed struct {
		Services map[string]any `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return "", nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	services := map[string]bool{}
	for name := range parsed.Services {
		services[name] = true
	}

	var content any
	if err := yaml.Unmarshal(data, &content); err != nil {
		return "", nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	canonical, err := json.Marshal(content)
	if err != nil {
		return "", nil, err
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), services, nil
}
