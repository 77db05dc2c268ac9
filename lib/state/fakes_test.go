// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/composed-systems/composed/lib/compose"
)

// fakeRuntime is a hand-written compose.Runtime whose world is a few
// mutable fields. Actions append to calls and mutate the world unless
// the verb is listed in stuck (effect never lands, for timeout tests)
// or failApply (action reports false, for escalation tests).
type fakeRuntime struct {
	calls []string

	composeFile string
	units       compose.Units
	missing     []string
	hasChanges  bool

	wanted    map[string]string
	wantedErr error

	serviceDir string
	unitFiles  map[string]string

	running bool
	enabled bool

	failApply map[string]bool
	stuck     map[string]bool

	inspect     []compose.InspectRecord
	unitInfos   map[string]compose.UnitInfo
	projectUser string
	unshareOut  string

	// unitsAfterInstall is what ListInstalledUnits reports once
	// Install has run. Defaults to one container unit.
	unitsAfterInstall compose.Units
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		composeFile:       "/opt/containers/app/docker-compose.yml",
		serviceDir:        "/etc/systemd/system",
		unitFiles:         map[string]string{},
		failApply:         map[string]bool{},
		stuck:             map[string]bool{},
		unitInfos:         map[string]compose.UnitInfo{},
		unitsAfterInstall: compose.Units{Containers: []string{"app"}},
	}
}

func (f *fakeRuntime) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// applied lists the mutating calls that were issued, in order.
func (f *fakeRuntime) applied() []string {
	var out []string
	for _, call := range f.calls {
		switch {
		case strings.HasPrefix(call, "install"),
			strings.HasPrefix(call, "remove"),
			strings.HasPrefix(call, "start"),
			strings.HasPrefix(call, "stop"),
			strings.HasPrefix(call, "restart"),
			strings.HasPrefix(call, "enable"),
			strings.HasPrefix(call, "disable"):
			out = append(out, call)
		}
	}
	return out
}

func (f *fakeRuntime) FindComposeFile(ctx context.Context, project compose.Project) (string, error) {
	return f.composeFile, nil
}

func (f *fakeRuntime) ListInstalledUnits(ctx context.Context, project compose.Project) (compose.Units, error) {
	return f.units, nil
}

func (f *fakeRuntime) ListMissingUnits(ctx context.Context, project compose.Project, shouldHavePod *bool) ([]string, error) {
	return f.missing, nil
}

func (f *fakeRuntime) HasChanges(ctx context.Context, project compose.Project, skipRemoved bool) (bool, error) {
	return f.hasChanges, nil
}

func (f *fakeRuntime) InstallUnits(ctx context.Context, project compose.Project, opts compose.UnitOptions) (map[string]string, error) {
	if opts.GenerateOnly {
		if f.wantedErr != nil {
			return nil, f.wantedErr
		}
		return f.wanted, nil
	}
	f.record("install-units")
	for name, text := range f.wanted {
		f.unitFiles[filepath.Join(f.serviceDir, name+".service")] = text
	}
	return f.wanted, nil
}

func (f *fakeRuntime) Install(ctx context.Context, project compose.Project, opts compose.InstallOptions) (bool, error) {
	f.record("install(force=%v)", opts.ForceRecreate)
	if f.failApply["install"] {
		return false, nil
	}
	f.units = f.unitsAfterInstall
	f.wantedErr = nil
	for name, text := range f.wanted {
		f.unitFiles[filepath.Join(f.serviceDir, name+".service")] = text
	}
	f.hasChanges = false
	return true, nil
}

func (f *fakeRuntime) Remove(ctx context.Context, project compose.Project, volumes bool) (bool, error) {
	f.record("remove(volumes=%v)", volumes)
	if f.failApply["remove"] {
		return false, nil
	}
	if !f.stuck["remove"] {
		f.units = compose.Units{}
		f.running = false
	}
	return true, nil
}

func (f *fakeRuntime) Start(ctx context.Context, project compose.Project) (bool, error) {
	f.record("start")
	if f.failApply["start"] {
		return false, nil
	}
	if !f.stuck["start"] {
		f.running = true
	}
	return true, nil
}

func (f *fakeRuntime) Stop(ctx context.Context, project compose.Project) (bool, error) {
	f.record("stop")
	if f.failApply["stop"] {
		return false, nil
	}
	if !f.stuck["stop"] {
		f.running = false
	}
	return true, nil
}

func (f *fakeRuntime) Restart(ctx context.Context, project compose.Project) (bool, error) {
	f.record("restart")
	if f.failApply["restart"] {
		return false, nil
	}
	if !f.stuck["restart"] {
		f.running = true
	}
	return true, nil
}

func (f *fakeRuntime) IsRunning(ctx context.Context, project compose.Project) (bool, error) {
	return f.running, nil
}

func (f *fakeRuntime) IsDead(ctx context.Context, project compose.Project) (bool, error) {
	return !f.running, nil
}

func (f *fakeRuntime) IsEnabled(ctx context.Context, project compose.Project) (bool, error) {
	return f.enabled, nil
}

func (f *fakeRuntime) IsDisabled(ctx context.Context, project compose.Project) (bool, error) {
	return !f.enabled, nil
}

func (f *fakeRuntime) Enable(ctx context.Context, project compose.Project) (bool, error) {
	f.record("enable")
	if f.failApply["enable"] {
		return false, nil
	}
	if !f.stuck["enable"] {
		f.enabled = true
	}
	return true, nil
}

func (f *fakeRuntime) Disable(ctx context.Context, project compose.Project) (bool, error) {
	f.record("disable")
	if f.failApply["disable"] {
		return false, nil
	}
	if !f.stuck["disable"] {
		f.enabled = false
	}
	return true, nil
}

func (f *fakeRuntime) Inspect(ctx context.Context, project compose.Project, nameFilter string) ([]compose.InspectRecord, error) {
	var out []compose.InspectRecord
	for _, record := range f.inspect {
		if nameFilter == "" || strings.Contains(record.Name, nameFilter) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeRuntime) InspectUnit(ctx context.Context, project compose.Project, unitName string, raw bool) (compose.UnitInfo, error) {
	info, ok := f.unitInfos[unitName]
	if !ok {
		return compose.UnitInfo{}, fmt.Errorf("no such unit %q", unitName)
	}
	return info, nil
}

func (f *fakeRuntime) ProjectInfo(ctx context.Context, project compose.Project) (compose.ProjectInfo, error) {
	return compose.ProjectInfo{User: f.projectUser}, nil
}

func (f *fakeRuntime) Unshare(ctx context.Context, project compose.Project, command ...string) (string, error) {
	return f.unshareOut, nil
}

func (f *fakeRuntime) ServiceDir(ctx context.Context, user string) (string, error) {
	return f.serviceDir, nil
}

func (f *fakeRuntime) ReadUnitFile(ctx context.Context, path string) (string, bool, error) {
	content, ok := f.unitFiles[path]
	return content, ok, nil
}

// fakeUnitManager mirrors fakeRuntime for bare supervisor units.
type fakeUnitManager struct {
	calls     []string
	running   bool
	enabled   bool
	failApply map[string]bool
	stuck     map[string]bool
}

func newFakeUnitManager() *fakeUnitManager {
	return &fakeUnitManager{failApply: map[string]bool{}, stuck: map[string]bool{}}
}

func (f *fakeUnitManager) record(verb, unit, user string) {
	f.calls = append(f.calls, fmt.Sprintf("%s(%s,user=%s)", verb, unit, user))
}

func (f *fakeUnitManager) IsRunning(ctx context.Context, unit, user string) (bool, error) {
	return f.running, nil
}

func (f *fakeUnitManager) IsEnabled(ctx context.Context, unit, user string) (bool, error) {
	return f.enabled, nil
}

func (f *fakeUnitManager) Start(ctx context.Context, unit, user string) (bool, error) {
	f.record("start", unit, user)
	if f.failApply["start"] {
		return false, nil
	}
	if !f.stuck["start"] {
		f.running = true
	}
	return true, nil
}

func (f *fakeUnitManager) Stop(ctx context.Context, unit, user string) (bool, error) {
	f.record("stop", unit, user)
	if f.failApply["stop"] {
		return false, nil
	}
	if !f.stuck["stop"] {
		f.running = false
	}
	return true, nil
}

func (f *fakeUnitManager) Enable(ctx context.Context, unit, user string) (bool, error) {
	f.record("enable", unit, user)
	if f.failApply["enable"] {
		return false, nil
	}
	if !f.stuck["enable"] {
		f.enabled = true
	}
	return true, nil
}

func (f *fakeUnitManager) Disable(ctx context.Context, unit, user string) (bool, error) {
	f.record("disable", unit, user)
	if f.failApply["disable"] {
		return false, nil
	}
	if !f.stuck["disable"] {
		f.enabled = false
	}
	return true, nil
}

// fakeAccounts serves a single account and its lingering flag.
type fakeAccounts struct {
	calls []string

	account compose.Account
	exists  bool

	lingering bool
	marker    bool

	failApply map[string]bool
	stuck     map[string]bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		account:   compose.Account{Name: "svc", UID: 1000, GID: 1000},
		exists:    true,
		failApply: map[string]bool{},
		stuck:     map[string]bool{},
	}
}

func (f *fakeAccounts) Lookup(name string) (compose.Account, bool, error) {
	if !f.exists {
		return compose.Account{}, false, nil
	}
	return f.account, true, nil
}

func (f *fakeAccounts) LingeringEnabled(ctx context.Context, name string) (bool, error) {
	return f.lingering, nil
}

func (f *fakeAccounts) LingeringEnable(ctx context.Context, name string) (bool, error) {
	f.calls = append(f.calls, "lingering-enable")
	if f.failApply["enable"] {
		return false, nil
	}
	f.lingering = true
	if !f.stuck["enable"] {
		f.marker = true
	}
	return true, nil
}

func (f *fakeAccounts) LingeringDisable(ctx context.Context, name string) (bool, error) {
	f.calls = append(f.calls, "lingering-disable")
	if f.failApply["disable"] {
		return false, nil
	}
	f.lingering = false
	if !f.stuck["disable"] {
		f.marker = false
	}
	return true, nil
}

func (f *fakeAccounts) SessionMarkerExists(uid int) (bool, error) {
	return f.marker, nil
}
