// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package compose

import (
	"context"
	"errors"
)

// ErrNoExistingResources is returned by Runtime.InstallUnits when unit
// generation finds neither a pod nor containers to describe. During
// the installed probe this is an expected condition (the composition
// has never been created), not a fault.
var ErrNoExistingResources = errors.New("could not find existing pod or containers")

// Project identifies one composition and how its units are named.
// Ref is the only required field: an absolute path to the compose
// file, a project name, or a directory name under the configured
// containers base. Everything else defaults in the runtime.
type Project struct {
	// Ref locates the project definitions.
	Ref string

	// Name overrides the project name. Defaults to the name of the
	// compose file's parent directory.
	Name string

	// PodPrefix and ContainerPrefix are prepended to generated unit
	// names. Nil means "use the configured default"; a pointer to the
	// empty string is an explicit empty prefix.
	PodPrefix       *string
	ContainerPrefix *string

	// Separator sits between prefix and name. Nil derives it from the
	// prefixes (empty or dash).
	Separator *string

	// User is the account the composition runs under for rootless
	// setups. Empty means rootful, or the compose file's directory
	// owner when dirowner defaulting is configured.
	User string
}

// Units lists the installed supervisor units of a composition, split
// by kind. Names are unit names without the ".service" suffix.
type Units struct {
	Pods       []string
	Containers []string
}

// Empty reports whether no units are installed at all.
func (u Units) Empty() bool {
	return len(u.Pods) == 0 && len(u.Containers) == 0
}

// All returns pod units followed by container units.
func (u Units) All() []string {
	all := make([]string, 0, len(u.Pods)+len(u.Containers))
	all = append(all, u.Pods...)
	all = append(all, u.Containers...)
	return all
}

// IDMappings is the user-namespace remap table podman reports for a
// live container, entries formatted "child:parent:length".
type IDMappings struct {
	UIDMap []string
	GIDMap []string
}

// HostConfig is the subset of podman's inspect HostConfig this module
// reads.
type HostConfig struct {
	IDMappings IDMappings
}

// InspectRecord is one container's live inspection result.
type InspectRecord struct {
	Name       string
	HostConfig HostConfig
}

// UnitInfo is the parsed view of one generated unit file. Options maps
// a podman flag name (without dashes) to its occurrences; flags given
// once still map to a one-element slice.
type UnitInfo struct {
	Options map[string][]string
}

// Option returns the first value of the named option and whether it
// was present at all.
func (i UnitInfo) Option(name string) (string, bool) {
	values, ok := i.Options[name]
	if !ok || len(values) == 0 {
		return "", ok
	}
	return values[0], true
}

// ProjectInfo carries composition metadata that is not part of the
// unit set itself.
type ProjectInfo struct {
	// User is the account the composition is associated with, empty
	// when it could not be determined.
	User string
}

// Account is a resolved user account.
type Account struct {
	Name string
	UID  int
	GID  int
}

// UnitOptions controls unit file generation and installation.
type UnitOptions struct {
	// Ephemeral creates containers on service start and removes them
	// on stop.
	Ephemeral bool

	// RestartPolicy is the unit Restart= policy. Empty selects the
	// runtime default (on-failure).
	RestartPolicy string

	// RestartSec is the unit RestartSec= in seconds, 0 for unset.
	RestartSec int

	// StopTimeout is the unit stop timeout in seconds, 0 for the
	// default (10).
	StopTimeout int

	// ServiceOverrides maps a compose service name to extra unit
	// generation parameters for that service only.
	ServiceOverrides map[string]map[string]string

	// PodWants enforces pod dependencies with Wants= instead of
	// Requires=, so restarting a single member container does not tear
	// down the pod.
	PodWants bool

	// EnableUnits enables the installed units.
	EnableUnits bool

	// Now also starts the units after enabling them.
	Now bool

	// GenerateOnly renders the unit texts without writing anything.
	GenerateOnly bool
}

// InstallOptions controls composition creation.
type InstallOptions struct {
	UnitOptions

	// CreatePod groups the containers in a pod. Nil lets the runtime
	// decide based on podman-compose capabilities.
	CreatePod *bool

	// PodArgs are extra arguments to pod creation. Unless
	// PodArgsOverrideDefault is set, they are added to the defaults
	// (infra container, no namespace sharing) rather than replacing
	// them.
	PodArgs                []string
	PodArgsOverrideDefault bool

	// PodmanCreateArgs are passed through to podman create, for
	// options podman-compose does not expose (e.g. userns).
	PodmanCreateArgs []string

	// RemoveOrphans removes containers not defined in the
	// composition.
	RemoveOrphans bool

	// ForceRecreate recreates containers even when their configuration
	// and images are unchanged.
	ForceRecreate bool

	// Build builds images before starting containers; BuildArgs sets
	// build-time variables.
	Build     bool
	BuildArgs map[string]string

	// Pull pulls newer images before creating containers.
	Pull bool
}

// Runtime is the compose-level collaborator: everything the
// reconciler needs to probe and drive one composition. Implementations
// block on subprocess execution; every call re-probes reality, nothing
// is cached across calls.
//
// Action methods (Install, Remove, Start, ...) return false without an
// error when the underlying tool reported failure through its exit
// status in a way that should never occur given a passing probe; the
// reconciler escalates that to an execution fault.
type Runtime interface {
	// FindComposeFile resolves the project reference to a compose file
	// path. A missing file is reported as ("", nil), not an error.
	FindComposeFile(ctx context.Context, project Project) (string, error)

	// ListInstalledUnits lists the supervisor units currently
	// installed for the project.
	ListInstalledUnits(ctx context.Context, project Project) (Units, error)

	// ListMissingUnits lists expected units that are not installed.
	// shouldHavePod overrides pod expectation; nil derives it from the
	// runtime's capabilities.
	ListMissingUnits(ctx context.Context, project Project, shouldHavePod *bool) ([]string, error)

	// HasChanges reports whether the live resources differ in content
	// from the compose definitions. skipRemoved ignores containers
	// that exist but are no longer defined.
	HasChanges(ctx context.Context, project Project, skipRemoved bool) (bool, error)

	// InstallUnits generates unit texts for the project, returning
	// unit name -> unit file content. Unless opts.GenerateOnly is set,
	// the files are also written and the supervisor reloaded. Returns
	// ErrNoExistingResources when there is nothing to describe.
	InstallUnits(ctx context.Context, project Project, opts UnitOptions) (map[string]string, error)

	// Install creates the composition's resources and installs their
	// units.
	Install(ctx context.Context, project Project, opts InstallOptions) (bool, error)

	// Remove tears the composition down and removes its units.
	// volumes also removes named and anonymous volumes.
	Remove(ctx context.Context, project Project, volumes bool) (bool, error)

	Start(ctx context.Context, project Project) (bool, error)
	Stop(ctx context.Context, project Project) (bool, error)
	Restart(ctx context.Context, project Project) (bool, error)

	IsRunning(ctx context.Context, project Project) (bool, error)
	IsDead(ctx context.Context, project Project) (bool, error)
	IsEnabled(ctx context.Context, project Project) (bool, error)
	IsDisabled(ctx context.Context, project Project) (bool, error)

	Enable(ctx context.Context, project Project) (bool, error)
	Disable(ctx context.Context, project Project) (bool, error)

	// Inspect returns live inspection records for the project's
	// containers, filtered by name substring when nameFilter is
	// non-empty. A composition with no live containers returns an
	// empty slice, not an error.
	Inspect(ctx context.Context, project Project, nameFilter string) ([]InspectRecord, error)

	// InspectUnit parses one generated unit file of the project. raw
	// skips any enrichment from live container state and reads only
	// the unit text.
	InspectUnit(ctx context.Context, project Project, unitName string, raw bool) (UnitInfo, error)

	// ProjectInfo returns composition metadata.
	ProjectInfo(ctx context.Context, project Project) (ProjectInfo, error)

	// Unshare runs a command inside the project user's namespace and
	// returns its raw output. Used to read /proc/self/uid_map and
	// gid_map as seen from inside the namespace.
	Unshare(ctx context.Context, project Project, command ...string) (string, error)

	// ServiceDir returns the directory unit files are installed to for
	// the given user account (empty for the system manager).
	ServiceDir(ctx context.Context, user string) (string, error)

	// ReadUnitFile reads an installed unit file. A missing file is
	// reported as ("", false, nil).
	ReadUnitFile(ctx context.Context, path string) (content string, exists bool, err error)
}

// UnitManager drives arbitrary supervisor units outside any
// composition, per-user capable (user empty targets the system
// manager).
type UnitManager interface {
	IsRunning(ctx context.Context, unit, user string) (bool, error)
	IsEnabled(ctx context.Context, unit, user string) (bool, error)
	Start(ctx context.Context, unit, user string) (bool, error)
	Stop(ctx context.Context, unit, user string) (bool, error)
	Enable(ctx context.Context, unit, user string) (bool, error)
	Disable(ctx context.Context, unit, user string) (bool, error)
}

// Accounts looks up user accounts and manages their lingering flag.
type Accounts interface {
	// Lookup resolves an account by name. An absent account is
	// (Account{}, false, nil), not an error.
	Lookup(name string) (Account, bool, error)

	LingeringEnabled(ctx context.Context, name string) (bool, error)
	LingeringEnable(ctx context.Context, name string) (bool, error)
	LingeringDisable(ctx context.Context, name string) (bool, error)

	// SessionMarkerExists probes the per-user session bus marker that
	// appears once the user's lingering session manager is up.
	SessionMarkerExists(uid int) (bool, error)
}
