// Package types defines the domain model shared by every package in the
// quota accounting core: organizations, the resources they consume, and the
// projections read from the source of truth.
package types

import "time"

// OrganizationID identifies a tenant. Opaque outside this module.
type OrganizationID string

// QuotaKind names a single quota dimension.
type QuotaKind string

const (
	QuotaCPU           QuotaKind = "cpu"
	QuotaMemory        QuotaKind = "memory"
	QuotaDisk          QuotaKind = "disk"
	QuotaSnapshotCount QuotaKind = "snapshot_count"
	QuotaVolumeCount   QuotaKind = "volume_count"
)

// PendingKinds are the only kinds that carry a pending (reserved-but-not-
// confirmed) counter. Counting kinds settle directly from events.
var PendingKinds = []QuotaKind{QuotaCPU, QuotaMemory, QuotaDisk}

// ResourceFamily groups quota kinds that share one staleness clock.
type ResourceFamily string

const (
	FamilySandbox  ResourceFamily = "sandbox"
	FamilySnapshot ResourceFamily = "snapshot"
	FamilyVolume   ResourceFamily = "volume"
)

// FamilyOf maps a quota kind to its resource family, fixed per the
// platform's resource-family mapping.
func FamilyOf(kind QuotaKind) ResourceFamily {
	switch kind {
	case QuotaCPU, QuotaMemory, QuotaDisk:
		return FamilySandbox
	case QuotaSnapshotCount:
		return FamilySnapshot
	case QuotaVolumeCount:
		return FamilyVolume
	default:
		return ""
	}
}

// SandboxKinds lists the quota kinds tracked for the sandbox family, in a
// fixed order used wherever the three counters are read or written together.
var SandboxKinds = []QuotaKind{QuotaCPU, QuotaMemory, QuotaDisk}

// SandboxState is the lifecycle state of a sandbox as persisted by the
// (out of scope) sandbox lifecycle manager. The accounting core only cares
// about set membership, never about the full state machine.
type SandboxState string

// SnapshotState and VolumeState are analogous to SandboxState.
type SnapshotState string
type VolumeState string

// QuotaLimits are the per-organization upper bounds enforced by callers of
// the overview service. The accounting core never mutates these; they are
// read from the Database Projection Adapter's organization lookup.
type QuotaLimits struct {
	CPUCores      int64
	MemoryBytes   int64
	DiskBytes     int64
	SnapshotCount int64
	VolumeCount   int64
}

// Organization is the tenant record the overview service merges usage into.
type Organization struct {
	ID        OrganizationID
	Name      string
	Limits    QuotaLimits
	CreatedAt time.Time
}

// SandboxProjection is the read-only view of a sandbox consumed for
// exclusion lookups and database aggregation.
type SandboxProjection struct {
	ID             string
	OrganizationID OrganizationID
	State          SandboxState
	CPU            int64
	Mem            int64
	Disk           int64
}

// SnapshotProjection is the read-only view of a snapshot.
type SnapshotProjection struct {
	ID             string
	OrganizationID OrganizationID
	State          SnapshotState
}

// VolumeProjection is the read-only view of a volume.
type VolumeProjection struct {
	ID             string
	OrganizationID OrganizationID
	State          VolumeState
}

// ConsumeSet is a closed set of states that count toward usage.
type ConsumeSet map[string]struct{}

// NewConsumeSet builds a ConsumeSet from a variadic state list.
func NewConsumeSet(states ...string) ConsumeSet {
	s := make(ConsumeSet, len(states))
	for _, st := range states {
		s[st] = struct{}{}
	}
	return s
}

// Contains reports whether state is a member of the set.
func (s ConsumeSet) Contains(state string) bool {
	_, ok := s[state]
	return ok
}

// Platform-fixed state sets. These are illustrative defaults; a real
// deployment's sandbox lifecycle manager is the source of truth for which
// states exist. The sets are package variables rather than constants;
// cmd/quotad does not override them, so it runs with these defaults.
var (
	// SandboxStatesConsumingCompute is the set of sandbox states for which
	// CPU and memory count toward usage.
	SandboxStatesConsumingCompute = NewConsumeSet("running")

	// SandboxStatesConsumingDisk is a superset of Compute: stopped sandboxes
	// still occupy disk.
	SandboxStatesConsumingDisk = NewConsumeSet("running", "stopped")

	// SnapshotUsageIgnoredStates lists snapshot states that do not count.
	SnapshotUsageIgnoredStates = NewConsumeSet("deleting", "deleted", "error")

	// VolumeUsageIgnoredStates lists volume states that do not count.
	VolumeUsageIgnoredStates = NewConsumeSet("deleting", "deleted", "error")
)

// ConsumesCompute reports whether a sandbox in this state counts its CPU
// and memory toward usage.
func ConsumesCompute(state SandboxState) bool {
	return SandboxStatesConsumingCompute.Contains(string(state))
}

// ConsumesDisk reports whether a sandbox in this state counts its disk
// toward usage.
func ConsumesDisk(state SandboxState) bool {
	return SandboxStatesConsumingDisk.Contains(string(state))
}

// SnapshotCounts reports whether a snapshot in this state counts toward
// snapshot_count.
func SnapshotCounts(state SnapshotState) bool {
	return !SnapshotUsageIgnoredStates.Contains(string(state))
}

// VolumeCounts reports whether a volume in this state counts toward
// volume_count.
func VolumeCounts(state VolumeState) bool {
	return !VolumeUsageIgnoredStates.Contains(string(state))
}
