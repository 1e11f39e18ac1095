package projection

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cuemby/quotaledger/pkg/types"
)

// SQLProjectionStore runs usage aggregation queries directly against a
// relational source of truth, via database/sql and the pgx/v5/stdlib
// driver.
type SQLProjectionStore struct {
	db *sql.DB
}

// NewSQLProjectionStore opens a connection pool against dsn (a Postgres
// connection string).
func NewSQLProjectionStore(dsn string) (*SQLProjectionStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open projection db: %w", err)
	}
	return &SQLProjectionStore{db: db}, nil
}

func (s *SQLProjectionStore) Close() error {
	return s.db.Close()
}

func (s *SQLProjectionStore) ListOrganizations(ctx context.Context) ([]types.OrganizationID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM organizations`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var ids []types.OrganizationID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.OrganizationID(id))
	}
	return ids, rows.Err()
}

func (s *SQLProjectionStore) GetOrganization(ctx context.Context, id types.OrganizationID) (*types.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, cpu_cores, memory_bytes, disk_bytes, snapshot_count, volume_count, created_at
		FROM organizations WHERE id = $1`, string(id))

	var org types.Organization
	var orgID string
	var createdAt time.Time
	if err := row.Scan(&orgID, &org.Name, &org.Limits.CPUCores, &org.Limits.MemoryBytes,
		&org.Limits.DiskBytes, &org.Limits.SnapshotCount, &org.Limits.VolumeCount, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("organization not found: %s", id)
		}
		return nil, fmt.Errorf("get organization %s: %w", id, err)
	}
	org.ID = types.OrganizationID(orgID)
	org.CreatedAt = createdAt
	return &org, nil
}

func (s *SQLProjectionStore) GetSandbox(ctx context.Context, id string) (*types.SandboxProjection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, state, cpu, mem, disk FROM sandboxes WHERE id = $1`, id)

	var sb types.SandboxProjection
	var orgID, state string
	if err := row.Scan(&sb.ID, &orgID, &state, &sb.CPU, &sb.Mem, &sb.Disk); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sandbox not found: %s", id)
		}
		return nil, fmt.Errorf("get sandbox %s: %w", id, err)
	}
	sb.OrganizationID = types.OrganizationID(orgID)
	sb.State = types.SandboxState(state)
	return &sb, nil
}

// FetchSandboxUsage runs `SUM(cpu) WHERE state IN (...)`, one query for
// compute (cpu, mem) and one for disk, since the two consume-sets can
// differ (stopped sandboxes still occupy disk).
func (s *SQLProjectionStore) FetchSandboxUsage(ctx context.Context, org types.OrganizationID) (SandboxUsage, error) {
	var usage SandboxUsage

	computeClause, computeArgs := inClause("state", types.SandboxStatesConsumingCompute, 2)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(SUM(cpu), 0), COALESCE(SUM(mem), 0)
		FROM sandboxes WHERE organization_id = $1 AND %s`, computeClause),
		append([]interface{}{string(org)}, computeArgs...)...)
	if err := row.Scan(&usage.CPU, &usage.Mem); err != nil {
		return usage, fmt.Errorf("fetch sandbox compute usage: %w", err)
	}

	diskClause, diskArgs := inClause("state", types.SandboxStatesConsumingDisk, 2)
	row = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(SUM(disk), 0)
		FROM sandboxes WHERE organization_id = $1 AND %s`, diskClause),
		append([]interface{}{string(org)}, diskArgs...)...)
	if err := row.Scan(&usage.Disk); err != nil {
		return usage, fmt.Errorf("fetch sandbox disk usage: %w", err)
	}

	return usage, nil
}

func (s *SQLProjectionStore) FetchSnapshotCount(ctx context.Context, org types.OrganizationID) (int64, error) {
	clause, args := notInClause("state", types.SnapshotUsageIgnoredStates, 2)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM snapshots WHERE organization_id = $1 AND %s`, clause),
		append([]interface{}{string(org)}, args...)...)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("fetch snapshot count: %w", err)
	}
	return count, nil
}

func (s *SQLProjectionStore) FetchVolumeCount(ctx context.Context, org types.OrganizationID) (int64, error) {
	clause, args := notInClause("state", types.VolumeUsageIgnoredStates, 2)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM volumes WHERE organization_id = $1 AND %s`, clause),
		append([]interface{}{string(org)}, args...)...)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("fetch volume count: %w", err)
	}
	return count, nil
}

// inClause builds a deterministic "column IN ($n, $n+1, ...)" fragment
// from a ConsumeSet, starting argument numbering at startArg.
func inClause(column string, set types.ConsumeSet, startArg int) (string, []interface{}) {
	clause, args := placeholders(column, set, startArg)
	return column + " IN (" + clause + ")", args
}

// notInClause is the complement form used for the ignored-states sets.
func notInClause(column string, set types.ConsumeSet, startArg int) (string, []interface{}) {
	clause, args := placeholders(column, set, startArg)
	return column + " NOT IN (" + clause + ")", args
}

func placeholders(column string, set types.ConsumeSet, startArg int) (string, []interface{}) {
	states := make([]string, 0, len(set))
	for st := range set {
		states = append(states, st)
	}
	sort.Strings(states)

	parts := make([]string, len(states))
	args := make([]interface{}, len(states))
	for i, st := range states {
		parts[i] = fmt.Sprintf("$%d", startArg+i)
		args[i] = st
	}
	return strings.Join(parts, ", "), args
}
