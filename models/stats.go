package models

// CredentialStats aggregate view of the credentials of one tenant
type CredentialStats struct {
	// Total number of credentials
	Total int64 `json:"total"`
	// ByType count per credential type
	ByType map[CredentialTypeENUMType]int64 `json:"by_type"`
	// ByStatus count per lifecycle status
	ByStatus map[CredentialStatusENUMType]int64 `json:"by_status"`
	// ByScope count per scope
	ByScope map[CredentialScopeENUMType]int64 `json:"by_scope"`
	// ByProvider count per vault provider
	ByProvider map[VaultProviderENUMType]int64 `json:"by_provider"`
	// ExpiringSoon credentials expiring within the next 30 days
	ExpiringSoon int64 `json:"expiring_soon"`
	// Expired credentials already past their expiration
	Expired int64 `json:"expired"`
	// RotationDueSoon rotation-enabled credentials due within the next 7 days, overdue
	// included
	RotationDueSoon int64 `json:"rotation_due_soon"`
}

// NewCredentialStats define an empty stats object
func NewCredentialStats() CredentialStats {
	return CredentialStats{
		ByType:     map[CredentialTypeENUMType]int64{},
		ByStatus:   map[CredentialStatusENUMType]int64{},
		ByScope:    map[CredentialScopeENUMType]int64{},
		ByProvider: map[VaultProviderENUMType]int64{},
	}
}
