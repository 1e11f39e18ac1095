package projection

import (
	"context"

	"github.com/cuemby/quotaledger/pkg/types"
)

// SandboxUsage is the aggregate FetchSandboxUsage produces.
type SandboxUsage struct {
	CPU  int64
	Mem  int64
	Disk int64
}

// Store is the Database Projection Adapter's interface. The Usage Overview
// Service and the staleness sweep depend on this, never on a concrete implementation,
// matching the teacher's storage.Store pattern.
type Store interface {
	// ListOrganizations lists every organization known to the source of
	// truth, used by the staleness sweep to walk the whole fleet each pass.
	ListOrganizations(ctx context.Context) ([]types.OrganizationID, error)

	// GetOrganization is a direct key/row fetch, not an aggregation.
	GetOrganization(ctx context.Context, id types.OrganizationID) (*types.Organization, error)

	// GetSandbox looks up a single sandbox's current projection, used for
	// exclusion lookups.
	GetSandbox(ctx context.Context, id string) (*types.SandboxProjection, error)

	// FetchSandboxUsage aggregates cpu/mem/disk across an organization's
	// sandboxes per their current state's consume-set membership.
	FetchSandboxUsage(ctx context.Context, org types.OrganizationID) (SandboxUsage, error)

	// FetchSnapshotCount counts snapshots not in the ignored-states set.
	FetchSnapshotCount(ctx context.Context, org types.OrganizationID) (int64, error)

	// FetchVolumeCount counts volumes not in the ignored-states set.
	FetchVolumeCount(ctx context.Context, org types.OrganizationID) (int64, error)

	Close() error
}
