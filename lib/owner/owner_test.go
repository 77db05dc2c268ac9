// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package owner

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/composed-systems/composed/lib/compose"
	"github.com/composed-systems/composed/lib/subid"
)

// resolverWorld is a minimal compose.Runtime and compose.Accounts for
// driving the resolver: a few fields stand in for podman state.
type resolverWorld struct {
	inspect     []compose.InspectRecord
	units       compose.Units
	unitInfos   map[string]compose.UnitInfo
	projectUser string
	unshareOut  string

	account compose.Account
	exists  bool
}

func newResolverWorld() *resolverWorld {
	return &resolverWorld{
		unitInfos: map[string]compose.UnitInfo{},
		// The conventional rootless layout: root, then a 65536-wide
		// subordinate block.
		unshareOut: "0 1000 1\n1 100000 65536\n",
		account:    compose.Account{Name: "svc", UID: 1000, GID: 1000},
		exists:     true,
	}
}

func (w *resolverWorld) Inspect(ctx context.Context, project compose.Project, nameFilter string) ([]compose.InspectRecord, error) {
	var out []compose.InspectRecord
	for _, record := range w.inspect {
		if nameFilter == "" || strings.Contains(record.Name, nameFilter) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (w *resolverWorld) InspectUnit(ctx context.Context, project compose.Project, unitName string, raw bool) (compose.UnitInfo, error) {
	info, ok := w.unitInfos[unitName]
	if !ok {
		return compose.UnitInfo{}, fmt.Errorf("no such unit %q", unitName)
	}
	return info, nil
}

func (w *resolverWorld) ListInstalledUnits(ctx context.Context, project compose.Project) (compose.Units, error) {
	return w.units, nil
}

func (w *resolverWorld) ProjectInfo(ctx context.Context, project compose.Project) (compose.ProjectInfo, error) {
	return compose.ProjectInfo{User: w.projectUser}, nil
}

func (w *resolverWorld) Unshare(ctx context.Context, project compose.Project, command ...string) (string, error) {
	return w.unshareOut, nil
}

// The remaining Runtime methods are never reached by the resolver.

func (w *resolverWorld) FindComposeFile(ctx context.Context, project compose.Project) (string, error) {
	return "", nil
}

func (w *resolverWorld) ListMissingUnits(ctx context.Context, project compose.Project, shouldHavePod *bool) ([]string, error) {
	return nil, nil
}

func (w *resolverWorld) HasChanges(ctx context.Context, project compose.Project, skipRemoved bool) (bool, error) {
	return false, nil
}

func (w *resolverWorld) InstallUnits(ctx context.Context, project compose.Project, opts compose.UnitOptions) (map[string]string, error) {
	return nil, nil
}

func (w *resolverWorld) Install(ctx context.Context, project compose.Project, opts compose.InstallOptions) (bool, error) {
	return true, nil
}

func (w *resolverWorld) Remove(ctx context.Context, project compose.Project, volumes bool) (bool, error) {
	return true, nil
}

func (w *resolverWorld) Start(ctx context.Context, project compose.Project) (bool, error) {
	return true, nil
}

func (w *resolverWorld) Stop(ctx context.Context, project compose.Project) (bool, error) {
	return true, nil
}

func (w *resolverWorld) Restart(ctx context.Context, project compose.Project) (bool, error) {
	return true, nil
}

func (w *resolverWorld) IsRunning(ctx context.Context, project compose.Project) (bool, error) {
	return false, nil
}

func (w *resolverWorld) IsDead(ctx context.Context, project compose.Project) (bool, error) {
	return true, nil
}

func (w *resolverWorld) IsEnabled(ctx context.Context, project compose.Project) (bool, error) {
	return false, nil
}

func (w *resolverWorld) IsDisabled(ctx context.Context, project compose.Project) (bool, error) {
	return true, nil
}

func (w *resolverWorld) Enable(ctx context.Context, project compose.Project) (bool, error) {
	return true, nil
}

func (w *resolverWorld) Disable(ctx context.Context, project compose.Project) (bool, error) {
	return true, nil
}

func (w *resolverWorld) ServiceDir(ctx context.Context, user string) (string, error) {
	return "/etc/systemd/system", nil
}

func (w *resolverWorld) ReadUnitFile(ctx context.Context, path string) (string, bool, error) {
	return "", false, nil
}

func (w *resolverWorld) Lookup(name string) (compose.Account, bool, error) {
	if !w.exists {
		return compose.Account{}, false, nil
	}
	return w.account, true, nil
}

func (w *resolverWorld) LingeringEnabled(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (w *resolverWorld) LingeringEnable(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (w *resolverWorld) LingeringDisable(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (w *resolverWorld) SessionMarkerExists(uid int) (bool, error) {
	return false, nil
}

var testProject = compose.Project{Ref: "app"}

func newTestResolver(world *resolverWorld) *Resolver {
	return NewResolver(world, world, nil)
}

func TestParseIdentity(t *testing.T) {
	identity, err := ParseIdentity(KindUser, "root")
	if err != nil || !identity.Root {
		t.Fatalf("root: %+v, %v", identity, err)
	}

	identity, err = ParseIdentity(KindUser, "1000")
	if err != nil || identity.Root || identity.ID != 1000 {
		t.Fatalf("numeric: %+v, %v", identity, err)
	}

	_, err = ParseIdentity(KindUser, "postgres")
	if err == nil || !strings.Contains(err.Error(), "other than 'root'") {
		t.Fatalf("named owner: %v", err)
	}

	_, err = ParseIdentity(KindGroup, "-5")
	if err == nil {
		t.Fatal("negative ID accepted")
	}
}

// A live container reports its remap table directly; resolution
// composes it with the account's subordinate map.
func TestResolveLiveInspect(t *testing.T) {
	world := newResolverWorld()
	world.inspect = []compose.InspectRecord{{
		Name: "app_web_1",
		HostConfig: compose.HostConfig{IDMappings: compose.IDMappings{
			UIDMap: []string{"0:1:999", "999:0:1", "1000:1000:64536"},
		}},
	}}

	// Internal 0 -> namespace 1 -> host 100000 (second stage: the
	// subordinate block "1 100000 65536").
	got, err := newTestResolver(world).Resolve(context.Background(), Request{
		Project: testProject,
		Kind:    KindUser,
		Wanted:  Identity{Root: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != 100000 {
		t.Errorf("resolved %d, want 100000", got)
	}
}

// With no live container, a pod unit carrying explicit --uidmap
// options is the source of truth.
func TestResolveStaticPodUnit(t *testing.T) {
	world := newResolverWorld()
	world.units = compose.Units{Pods: []string{"pod_app"}, Containers: []string{"app_web"}}
	world.unitInfos["pod_app"] = compose.UnitInfo{Options: map[string][]string{
		"uidmap": {"0:1:1000", "1000:0:1"},
	}}

	got, err := newTestResolver(world).Resolve(context.Background(), Request{
		Project: testProject,
		Kind:    KindUser,
		Wanted:  Identity{ID: 1000},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Internal 1000 -> namespace 0 -> host 1000 (first proc entry
	// "0 1000 1").
	if got != 1000 {
		t.Errorf("resolved %d, want 1000", got)
	}
}

// Without a pod the matching container unit is consulted, raw.
func TestResolveStaticContainerSelector(t *testing.T) {
	world := newResolverWorld()
	world.units = compose.Units{Containers: []string{"app_db", "app_web"}}
	world.unitInfos["app_db"] = compose.UnitInfo{Options: map[string][]string{
		"gidmap": {"0:1:500"},
	}}
	world.unitInfos["app_web"] = compose.UnitInfo{Options: map[string][]string{
		"gidmap": {"0:1:999"},
	}}

	got, err := newTestResolver(world).Resolve(context.Background(), Request{
		Project:      testProject,
		ContainerRef: "web",
		Kind:         KindGroup,
		Wanted:       Identity{ID: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	// app_web's map: internal 0 -> namespace 1 -> host 100000.
	if got != 100000 {
		t.Errorf("resolved %d, want 100000", got)
	}
}

// keep-id with an explicit uid keeps that ID visible as itself and
// parks root right below it.
func TestKeepIDSynthesis(t *testing.T) {
	world := newResolverWorld()
	world.units = compose.Units{Containers: []string{"app_web"}}
	world.unitInfos["app_web"] = compose.UnitInfo{Options: map[string][]string{
		"userns": {"keep-id:uid=1000,gid=1000"},
	}}

	call := &resolveCall{
		resolver: newTestResolver(world),
		request:  Request{Project: testProject, Kind: KindUser},
	}
	synthesized, err := call.fromUnits(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// The kept ID maps to namespace 0 (the account itself), its
	// neighbors shift by one around the hole.
	cases := []struct{ child, parent int }{
		{1000, 0},
		{0, 1},
		{999, 1000},
		{1001, 1001},
	}
	for _, c := range cases {
		got, err := synthesized.FindParentID(c.child)
		if err != nil {
			t.Fatalf("find(%d): %v", c.child, err)
		}
		if got != c.parent {
			t.Errorf("find(%d) = %d, want %d", c.child, got, c.parent)
		}
	}

	// The map is bounded by the host subordinate block.
	if _, err := synthesized.FindParentID(70000); err == nil {
		t.Error("ID beyond the subordinate block resolved")
	}
}

// keep-id without sub-options falls back to the composition account.
func TestKeepIDFromProjectAccount(t *testing.T) {
	world := newResolverWorld()
	world.units = compose.Units{Containers: []string{"app_web"}}
	world.unitInfos["app_web"] = compose.UnitInfo{Options: map[string][]string{
		"userns": {"keep-id"},
	}}
	world.projectUser = "svc"

	got, err := newTestResolver(world).Resolve(context.Background(), Request{
		Project: testProject,
		Kind:    KindUser,
		Wanted:  Identity{ID: 1000},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Internal 1000 (the kept account UID) -> namespace 0 -> host 1000.
	if got != 1000 {
		t.Errorf("resolved %d, want 1000", got)
	}
}

func TestKeepIDUnknownProjectUser(t *testing.T) {
	world := newResolverWorld()
	world.units = compose.Units{Containers: []string{"app_web"}}
	world.unitInfos["app_web"] = compose.UnitInfo{Options: map[string][]string{
		"userns": {"keep-id"},
	}}
	world.projectUser = ""

	_, err := newTestResolver(world).Resolve(context.Background(), Request{
		Project: testProject,
		Kind:    KindUser,
		Wanted:  Identity{ID: 1000},
	})
	if err == nil || !strings.Contains(err.Error(), "could not determine associated user") {
		t.Fatalf("err = %v", err)
	}
}

// A host-namespace unit (no userns, no explicit maps) is still
// translated through the account's subordinate map.
func TestResolveHostNamespaceUnit(t *testing.T) {
	world := newResolverWorld()
	world.units = compose.Units{Containers: []string{"app_web"}}
	world.unitInfos["app_web"] = compose.UnitInfo{Options: map[string][]string{}}

	got, err := newTestResolver(world).Resolve(context.Background(), Request{
		Project: testProject,
		Kind:    KindUser,
		Wanted:  Identity{ID: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != 1000 {
		t.Errorf("resolved %d, want 1000", got)
	}
}

func TestResolveNoUnitsNoContainers(t *testing.T) {
	world := newResolverWorld()

	_, err := newTestResolver(world).Resolve(context.Background(), Request{
		Project:      testProject,
		ContainerRef: "web",
		Kind:         KindUser,
		Wanted:       Identity{ID: 0},
	})
	if err == nil || !strings.Contains(err.Error(), "could not find any container") {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveOutOfRange(t *testing.T) {
	world := newResolverWorld()
	world.inspect = []compose.InspectRecord{{
		Name: "app_web_1",
		HostConfig: compose.HostConfig{IDMappings: compose.IDMappings{
			UIDMap: []string{"0:1:100"},
		}},
	}}

	_, err := newTestResolver(world).Resolve(context.Background(), Request{
		Project: testProject,
		Kind:    KindUser,
		Wanted:  Identity{ID: 500},
	})
	if err == nil {
		t.Fatal("out-of-range ID resolved")
	}
	if !strings.Contains(err.Error(), subid.ErrNoSuchID.Error()) {
		t.Errorf("err = %v", err)
	}
}
