package audithook

// Action constants for audit events.
const (
	// Transfer actions
	ActionTransferTaxed    = "transfer.taxed"
	ActionTransferExcluded = "transfer.excluded"

	// Fee processing actions
	ActionFeesProcessed     = "fees.processed"
	ActionFeesRolledBack    = "fees.rolled_back"
	ActionFeesDistributed   = "fees.distributed"
	ActionFeesPartiallyPaid = "fees.partially_distributed"
	ActionSwapFailed        = "swap.failed"

	// Configuration actions
	ActionConfigChanged    = "config.changed"
	ActionCollectorAdded   = "collector.added"
	ActionCollectorRemoved = "collector.removed"
	ActionCollectorUpdated = "collector.share_updated"
	ActionExclusionChanged = "exclusion.changed"
	ActionSettingsChanged  = "settings.changed"
	ActionAdminTransferred = "administrator.transferred"

	// Access actions
	ActionUnauthorized = "access.unauthorized"
)

// Resource constants for audit events.
const (
	ResourceTransfer  = "transfer"
	ResourceLot       = "lot"
	ResourceConfig    = "fee_configuration"
	ResourceCollector = "collector"
	ResourceAccount   = "account"
	ResourceSettings  = "settings"
	ResourceOperation = "operation"
)

// Category constants for audit events.
const (
	CategoryTransfer    = "transfer"
	CategoryFees        = "fees"
	CategoryGovernance  = "governance"
	CategoryAccess      = "access"
	CategoryIntegration = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
