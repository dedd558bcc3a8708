package migrate

import (
	"fmt"
	"time"

	"github.com/samhotchkiss/tenantshift/internal/platform"
)

// SummaryReport is the flat roll-up of one migration run, built from the
// per-stage results so callers never reach into stage internals.
type SummaryReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	DryRun      bool
	FailedStage string

	TenantsCreated        int
	TenantsSkipped        int
	TenantsFailed         int
	TenantMetadataSkipped int

	CredentialRows      int
	CredentialMatched   int
	CredentialUnmatched int
	CredentialWarnings  int
	CredentialsOutPath  string

	CategoriesCreated int
	CategoriesSkipped int
	CategoriesFailed  int

	PermissionsCreated int
	PermissionsSkipped int
	PermissionsFailed  int
	PermissionsDropped int

	SourceUsers       int
	DestinationUsers  int
	MatchedUsers      int
	UnmatchedUsers    int
	RolesDropped      int
	AssignmentsSent   int
	AssignmentsFailed int

	RequestsByAccount map[string]platform.AccountStats
	Warnings          []string
}

func BuildSummaryReport(result *RunResult) SummaryReport {
	report := SummaryReport{}
	if result == nil {
		return report
	}

	report.RunID = result.RunID
	report.StartedAt = result.StartedAt
	report.FinishedAt = result.FinishedAt
	report.DryRun = result.DryRun
	report.FailedStage = result.FailedStage
	report.Warnings = append(report.Warnings, result.Warnings...)

	if result.Tenants != nil {
		report.TenantMetadataSkipped = result.Tenants.MetadataSkipped
		if result.Tenants.Report != nil {
			report.TenantsCreated = result.Tenants.Report.Created
			report.TenantsSkipped = result.Tenants.Report.Skipped
			report.TenantsFailed = result.Tenants.Report.Failed
		}
		if result.Tenants.MetadataSkipped > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d tenant metadata blobs were invalid JSON and were not replayed", result.Tenants.MetadataSkipped))
		}
	}

	if result.Credentials != nil {
		report.CredentialRows = result.Credentials.Rows
		report.CredentialMatched = result.Credentials.Matched
		report.CredentialUnmatched = result.Credentials.Unmatched
		report.CredentialWarnings = result.Credentials.Warnings
		report.CredentialsOutPath = result.Credentials.OutputPath
	}

	if result.Categories != nil {
		report.CategoriesCreated = result.Categories.Created
		report.CategoriesSkipped = result.Categories.Skipped
		report.CategoriesFailed = result.Categories.Failed
	}

	if result.Permissions != nil {
		report.PermissionsDropped = result.Permissions.Dropped
		if result.Permissions.Report != nil {
			report.PermissionsCreated = result.Permissions.Report.Created
			report.PermissionsSkipped = result.Permissions.Report.Skipped
			report.PermissionsFailed = result.Permissions.Report.Failed
		}
		if result.Permissions.Dropped > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d permissions dropped: category missing at destination", result.Permissions.Dropped))
		}
		if result.Permissions.CategoryCollisions > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d destination category names are claimed by more than one category", result.Permissions.CategoryCollisions))
		}
	}

	if result.Assignments != nil {
		report.SourceUsers = result.Assignments.SourceUsers
		report.DestinationUsers = result.Assignments.DestinationUsers
		report.MatchedUsers = result.Assignments.MatchedUsers
		report.UnmatchedUsers = result.Assignments.UnmatchedUsers
		report.RolesDropped = result.Assignments.RolesDropped
		report.AssignmentsSent = result.Assignments.AssignmentsSent
		report.AssignmentsFailed = result.Assignments.AssignmentsFailed
		if result.Assignments.TenantsFailed > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("role lookups failed for %d tenants; their users were skipped", result.Assignments.TenantsFailed))
		}
		if result.Assignments.RoleMisses > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d source roles have no destination counterpart", result.Assignments.RoleMisses))
		}
	}

	if result.FailedStage != "" {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("run aborted during the %s stage; later stages did not run", result.FailedStage))
	}

	return report
}
