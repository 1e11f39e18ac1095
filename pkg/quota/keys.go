package quota

import (
	"fmt"

	"github.com/cuemby/quotaledger/pkg/types"
)

func confirmedKey(org types.OrganizationID, kind types.QuotaKind) string {
	return fmt.Sprintf("org:%s:quota:%s:usage", org, kind)
}

func pendingKey(org types.OrganizationID, kind types.QuotaKind) string {
	return fmt.Sprintf("org:%s:pending-%s", org, kind)
}

func stalenessKey(org types.OrganizationID, family types.ResourceFamily) string {
	return fmt.Sprintf("org:%s:resource:%s:usage:fetched_at", org, family)
}
