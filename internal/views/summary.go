package views

import (
	"chainwatch/internal/domain"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SummaryCard is one dashboard tile.
type SummaryCard struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Value int    `json:"value"`
	Icon  Icon   `json:"icon"`
	Note  string `json:"note,omitempty"`
}

// Values shown on the admin dashboard until user and contract registries exist.
const (
	staticRegisteredUsers = 25
	staticContractTxs     = 152
)

// SummaryCounts projects the collection into the cards shown to role.
// Unknown roles get the reduced view.
func SummaryCounts(batches []domain.Batch, role domain.Role) []SummaryCard {
	var inTransit, delivered, issues int
	for _, b := range batches {
		switch b.Status {
		case domain.StatusInTransit:
			inTransit++
		case domain.StatusDelivered:
			delivered++
		case domain.StatusIssue:
			issues++
		}
	}

	total := SummaryCard{Key: "total", Title: "Total Batches", Value: len(batches), Icon: IconPackage}
	transit := SummaryCard{Key: "in_transit", Title: "Deliveries In Transit", Value: inTransit, Icon: IconTruck}
	completed := SummaryCard{Key: "delivered", Title: "Completed Deliveries", Value: delivered, Icon: IconCheckCircle}
	alerts := SummaryCard{Key: "active_alerts", Title: "Active Alerts", Value: issues, Icon: IconAlertTriangle, Note: `Based on "Issue" status`}

	switch role {
	case domain.RoleAdmin:
		return []SummaryCard{
			total, transit, completed, alerts,
			{Key: "registered_users", Title: "Registered Users", Value: staticRegisteredUsers, Icon: IconUserCircle, Note: "static"},
			{Key: "contract_txs", Title: "Smart Contract Txs", Value: staticContractTxs, Icon: IconShieldCheck, Note: "static"},
		}

	case domain.RoleManufacturer:
		created := 0
		for _, b := range batches {
			if cp, ok := b.FirstCheckpoint(); ok && cp.HandlerRole == domain.RoleManufacturer {
				created++
			}
		}
		return []SummaryCard{
			{Key: "created", Title: "Batches Created", Value: created, Icon: IconFactory},
			transit, completed,
		}

	case domain.RoleDistributor:
		handled := 0
		for _, b := range batches {
			if b.HandledBy(domain.RoleDistributor) {
				handled++
			}
		}
		return []SummaryCard{
			{Key: "handled", Title: "Batches Handled", Value: handled, Icon: IconWarehouse},
			transit, completed,
		}

	case domain.RoleRetailer:
		received := 0
		for _, b := range batches {
			if b.Status == domain.StatusDelivered && b.HandledBy(domain.RoleRetailer) {
				received++
			}
		}
		return []SummaryCard{
			{Key: "received", Title: "Batches Received", Value: received, Icon: IconStore},
			transit,
		}

	default:
		return []SummaryCard{total, transit}
	}
}

type summaryKey struct {
	version uint64
	role    domain.Role
}

// SummaryCache memoizes SummaryCounts per collection version and role.
type SummaryCache struct {
	cache *lru.Cache[summaryKey, []SummaryCard]
}

func NewSummaryCache(size int) (*SummaryCache, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[summaryKey, []SummaryCard](size)
	if err != nil {
		return nil, fmt.Errorf("new summary cache: %w", err)
	}
	return &SummaryCache{cache: c}, nil
}

// Get returns the cards for role, computing them from batches only when the
// pair (version, role) has not been seen. batches must be the collection at version.
func (c *SummaryCache) Get(batches []domain.Batch, version uint64, role domain.Role) []SummaryCard {
	key := summaryKey{version: version, role: role}
	if cards, ok := c.cache.Get(key); ok {
		return append([]SummaryCard(nil), cards...)
	}

	cards := SummaryCounts(batches, role)
	c.cache.Add(key, cards)
	return append([]SummaryCard(nil), cards...)
}

func (c *SummaryCache) Len() int { return c.cache.Len() }

// Purge drops every cached entry.
func (c *SummaryCache) Purge() { c.cache.Purge() }
