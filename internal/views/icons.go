package views

import "chainwatch/internal/domain"

// Icon names a symbol from the dashboard's icon set.
type Icon string

const (
	IconPackage       Icon = "package"
	IconFactory       Icon = "factory"
	IconTruck         Icon = "truck"
	IconMapPin        Icon = "map-pin"
	IconCheckCircle   Icon = "check-circle"
	IconAlertTriangle Icon = "alert-triangle"
	IconShieldCheck   Icon = "shield-check"
	IconWarehouse     Icon = "warehouse"
	IconStore         Icon = "store"
	IconUserCircle    Icon = "user-circle"
)

func IconForStatus(s domain.Status) Icon {
	switch s {
	case domain.StatusRegistered:
		return IconFactory
	case domain.StatusInTransit:
		return IconTruck
	case domain.StatusCheckpointReached:
		return IconMapPin
	case domain.StatusDelivered:
		return IconCheckCircle
	case domain.StatusIssue:
		return IconAlertTriangle
	default:
		return IconPackage
	}
}

func IconForRole(r domain.Role) Icon {
	switch r {
	case domain.RoleAdmin, domain.RoleInspector:
		return IconShieldCheck
	case domain.RoleManufacturer:
		return IconFactory
	case domain.RoleDistributor:
		return IconWarehouse
	case domain.RoleRetailer:
		return IconStore
	default:
		return IconMapPin
	}
}
