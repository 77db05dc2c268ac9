// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package owner

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/composed-systems/composed/lib/compose"
	"github.com/composed-systems/composed/lib/subid"
)

// Kind selects which remapping axis to resolve.
type Kind int

const (
	KindUser Kind = iota
	KindGroup
)

// String returns "user" or "group".
func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "user"
}

// Identity is a logical owner as seen from inside the container:
// either the reserved literal root (always internal ID 0) or a
// pre-resolved numeric ID. Human-readable names cannot be resolved —
// there is no name service inside an uninspected namespace.
type Identity struct {
	Root bool
	ID   int
}

// ParseIdentity parses an owner argument. "root" and numeric strings
// are accepted; any other name is an invocation fault.
func ParseIdentity(kind Kind, raw string) (Identity, error) {
	if raw == "root" {
		return Identity{Root: true}, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return Identity{}, compose.Invocationf(
			"cannot resolve named %ss other than 'root' from outside the container, required: %s ID (integer)",
			kind, kind)
	}
	if id < 0 {
		return Identity{}, compose.Invocationf("negative %s ID %d", kind, id)
	}
	return Identity{ID: id}, nil
}

// Request describes one resolution.
type Request struct {
	// Project locates the composition.
	Project compose.Project

	// ContainerRef selects a specific container by name substring.
	// Empty matches the first container.
	ContainerRef string

	// Kind selects the UID or GID axis.
	Kind Kind

	// Wanted is the logical owner to resolve.
	Wanted Identity
}

// Resolver translates logical owners to host IDs. Each Resolve call
// probes fresh; the only cache is the host subordinate-ID map within
// a single call (it is needed for keep-id synthesis and again for the
// second translation stage).
type Resolver struct {
	runtime  compose.Runtime
	accounts compose.Accounts
	logger   *slog.Logger
}

// NewResolver returns a Resolver over the given collaborators. A nil
// logger discards debug traces.
func NewResolver(runtime compose.Runtime, accounts compose.Accounts, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{runtime: runtime, accounts: accounts, logger: logger}
}

// Resolve returns the host-visible numeric ID for the requested
// logical owner. The container's remap table is read from live
// inspection when the container is up, and reconstructed from the
// static unit definitions otherwise. Translation is two-stage: the
// container-internal map yields the namespace ID, the account's own
// subordinate-ID map yields the final host ID.
func (r *Resolver) Resolve(ctx context.Context, request Request) (int, error) {
	wanted := request.Wanted.ID
	if request.Wanted.Root {
		wanted = 0
	}

	call := &resolveCall{resolver: r, request: request}

	internalMap, err := call.internalMap(ctx)
	if err != nil {
		return 0, err
	}
	effective, err := internalMap.FindParentID(wanted)
	if err != nil {
		return 0, wrapLookup(err)
	}
	r.logger.Debug("resolved effective (namespace) ID",
		"kind", request.Kind.String(), "wanted", wanted, "effective", effective)

	hostMap, err := call.hostMap(ctx)
	if err != nil {
		return 0, err
	}
	final, err := hostMap.FindParentID(effective)
	if err != nil {
		return 0, wrapLookup(err)
	}
	r.logger.Debug("resolved final (host) ID",
		"kind", request.Kind.String(), "effective", effective, "final", final)
	return final, nil
}

func wrapLookup(err error) error {
	if errors.Is(err, subid.ErrNoSuchID) {
		return compose.Invocationf("%s", err)
	}
	return err
}

// resolveCall holds per-call state, most importantly the host
// subordinate-ID map fetched at most once.
type resolveCall struct {
	resolver *Resolver
	request  Request

	hostFetched bool
	host        subid.Map
}

// hostMap reads the uid_map or gid_map as seen from inside the
// project user's namespace, once per call.
func (c *resolveCall) hostMap(ctx context.Context) (subid.Map, error) {
	if c.hostFetched {
		return c.host, nil
	}
	procFile := "/proc/self/uid_map"
	if c.request.Kind == KindGroup {
		procFile = "/proc/self/gid_map"
	}
	output, err := c.resolver.runtime.Unshare(ctx, c.request.Project, "cat", procFile)
	if err != nil {
		return subid.Map{}, err
	}
	parsed, err := subid.ParseProcMap(output)
	if err != nil {
		return subid.Map{}, err
	}
	c.host = parsed
	c.hostFetched = true
	return c.host, nil
}

// internalMap determines the container's own remap table: live
// inspection first, static unit reconstruction otherwise.
func (c *resolveCall) internalMap(ctx context.Context) (subid.Map, error) {
	records, err := c.resolver.runtime.Inspect(ctx, c.request.Project, c.request.ContainerRef)
	if err != nil {
		return subid.Map{}, err
	}
	if len(records) > 0 {
		entries := records[0].HostConfig.IDMappings.UIDMap
		if c.request.Kind == KindGroup {
			entries = records[0].HostConfig.IDMappings.GIDMap
		}
		return subid.ParseInspectMap(entries)
	}
	return c.fromUnits(ctx)
}

// fromUnits reconstructs the intended remap from the generated unit
// definitions. A pod carries the namespace for supervised pod setups,
// so its options win; otherwise the first container matching the
// selector is consulted.
func (c *resolveCall) fromUnits(ctx context.Context) (subid.Map, error) {
	units, err := c.resolver.runtime.ListInstalledUnits(ctx, c.request.Project)
	if err != nil {
		return subid.Map{}, err
	}
	if units.Empty() {
		return subid.Map{}, compose.Invocationf(
			"could not find any container with ref %q belonging to project %q",
			c.request.ContainerRef, c.request.Project.Ref)
	}

	var userns string
	var mapEntries []string
	mapOption := "uidmap"
	if c.request.Kind == KindGroup {
		mapOption = "gidmap"
	}

	if len(units.Pods) > 0 {
		info, err := c.resolver.runtime.InspectUnit(ctx, c.request.Project, units.Pods[0], false)
		if err != nil {
			return subid.Map{}, err
		}
		if value, ok := info.Option("userns"); ok {
			userns = value
		} else {
			mapEntries = info.Options[mapOption]
		}
	} else {
		for _, container := range units.Containers {
			if c.request.ContainerRef != "" && !strings.Contains(container, c.request.ContainerRef) {
				continue
			}
			// raw: the unit text is authoritative here, live container
			// state may not exist at all.
			info, err := c.resolver.runtime.InspectUnit(ctx, c.request.Project, container, true)
			if err != nil {
				return subid.Map{}, err
			}
			if value, ok := info.Option("userns"); ok {
				userns = value
			} else {
				mapEntries = info.Options[mapOption]
			}
			break
		}
	}

	switch {
	case len(mapEntries) > 0:
		return subid.ParseInspectMap(mapEntries)
	case strings.HasPrefix(userns, "keep-id"):
		return c.keepIDMap(ctx, userns)
	default:
		// Host namespace or an unrecognized mode: no remapping.
		return subid.Map{}, nil
	}
}

// keepIDMap reconstructs the map podman generates for userns=keep-id:
// the kept ID stays visible as itself, host ID 0 fills the slot below
// it, and everything above maps one to one, bounded by the host
// subordinate range.
func (c *resolveCall) keepIDMap(ctx context.Context, userns string) (subid.Map, error) {
	keptUID, keptGID, err := parseKeepID(userns)
	if err != nil {
		return subid.Map{}, err
	}

	kept := keptUID
	if c.request.Kind == KindGroup {
		kept = keptGID
	}
	if kept < 0 {
		// Not specified: the kept ID is whatever the composition's
		// account maps to inside the container.
		info, err := c.resolver.runtime.ProjectInfo(ctx, c.request.Project)
		if err != nil {
			return subid.Map{}, err
		}
		if info.User == "" {
			return subid.Map{}, compose.Invocationf(
				"could not determine associated user from project %q", c.request.Project.Ref)
		}
		account, found, err := c.resolver.accounts.Lookup(info.User)
		if err != nil {
			return subid.Map{}, err
		}
		if !found {
			return subid.Map{}, compose.Invocationf("user %s does not exist", info.User)
		}
		if c.request.Kind == KindGroup {
			kept = account.GID
		} else {
			kept = account.UID
		}
	}

	hostMap, err := c.hostMap(ctx)
	if err != nil {
		return subid.Map{}, err
	}
	return subid.FromRanges(
		subid.Range{ChildStart: 0, ParentStart: 1, Length: kept},
		subid.Range{ChildStart: kept, ParentStart: 0, Length: 1},
		subid.Range{ChildStart: kept + 1, ParentStart: kept + 1, Length: hostMap.Size() - kept},
	), nil
}

// parseKeepID extracts the optional uid=/gid= sub-options from a
// userns=keep-id value. Unspecified IDs are returned as -1.
func parseKeepID(userns string) (keptUID, keptGID int, err error) {
	keptUID, keptGID = -1, -1
	rest := strings.TrimPrefix(userns, "keep-id")
	if !strings.HasPrefix(rest, ":") {
		return keptUID, keptGID, nil
	}
	for _, definition := range strings.Split(rest[1:], ",") {
		param, value, found := strings.Cut(definition, "=")
		if !found {
			return 0, 0, compose.Invocationf("malformed keep-id option %q", definition)
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, 0, compose.Invocationf("malformed keep-id option %q: %s", definition, err)
		}
		switch param {
		case "uid":
			keptUID = parsed
		case "gid":
			keptGID = parsed
		default:
			// Unknown sub-options are ignored, matching podman's
			// forward compatibility.
		}
	}
	return keptUID, keptGID, nil
}
