package admission

import (
	"context"

	"github.com/cuemby/quotaledger/pkg/overview"
	"github.com/cuemby/quotaledger/pkg/types"
)

// ResourceRequest is the resource shape of a proposed new sandbox.
type ResourceRequest struct {
	CPU  int64
	Mem  int64
	Disk int64
}

// KindDecision reports admissibility for one quota kind.
type KindDecision struct {
	Admissible bool
	Headroom   int64
}

// Decision is the per-kind admission result. Admissible reports whether
// every kind fits within its limit.
type Decision struct {
	CPU    KindDecision
	Memory KindDecision
	Disk   KindDecision
}

// Admissible reports whether every kind in d is individually admissible.
func (d Decision) Admissible() bool {
	return d.CPU.Admissible && d.Memory.Admissible && d.Disk.Admissible
}

// CheckSandboxAdmission reports, per kind, whether confirmed + pending +
// requested <= limit, and the remaining headroom. It mutates nothing;
// reservation still flows through overview.IncrementPendingSandboxUsage.
func CheckSandboxAdmission(ctx context.Context, ov *overview.Service, org *types.Organization, req ResourceRequest) (Decision, error) {
	view, err := ov.GetSandboxUsageOverviewWithPending(ctx, org.ID, "")
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		CPU:    decideKind(view.Confirmed.CPU, view.Pending.CPU, req.CPU, org.Limits.CPUCores),
		Memory: decideKind(view.Confirmed.Memory, view.Pending.Memory, req.Mem, org.Limits.MemoryBytes),
		Disk:   decideKind(view.Confirmed.Disk, view.Pending.Disk, req.Disk, org.Limits.DiskBytes),
	}, nil
}

func decideKind(confirmed, pending, requested, limit int64) KindDecision {
	used := confirmed + pending
	return KindDecision{
		Admissible: used+requested <= limit,
		Headroom:   limit - used,
	}
}
