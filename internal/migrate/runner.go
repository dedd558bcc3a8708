// Package migrate drives a cross-account identity migration: tenants,
// credential CSVs, permission categories, permissions, and user role
// assignments, in that order. Later stages depend on earlier stages'
// destination-side effects (permissions reference categories created one
// stage earlier), so stages run strictly sequentially and a stage-fatal
// error stops everything after it while still surfacing what was done.
package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samhotchkiss/tenantshift/internal/platform"
	"github.com/samhotchkiss/tenantshift/internal/reconcile"
)

// File access is indirected so tests can run the credential stage without
// touching the real filesystem.
var (
	readFile  = os.ReadFile
	writeFile = os.WriteFile
)

type Runner struct {
	Client      *platform.Client
	Source      *platform.Session
	Destination *platform.Session
	Logger      *zap.Logger
	// Out receives the operator-facing progress narration.
	Out io.Writer
	// DryRun walks every stage and counts what would change without
	// issuing a single write.
	DryRun bool

	now func() time.Time
}

func NewRunner(client *platform.Client, source, destination *platform.Session) *Runner {
	return &Runner{
		Client:      client,
		Source:      source,
		Destination: destination,
		Logger:      zap.NewNop(),
		Out:         os.Stdout,
		now:         time.Now,
	}
}

// RunInput carries the per-run file arguments for the credential stage.
type RunInput struct {
	UserDetailsPath    string
	PasswordHashesPath string
	CredentialsOutPath string
	SkipCredentials    bool
}

// RunResult is the per-stage outcome of one migration run. Stage pointers
// are nil for stages that never started.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool

	Tenants     *TenantStageResult
	Credentials *CredentialStageResult
	Categories  *reconcile.Report
	Permissions *PermissionStageResult
	Assignments *AssignmentStageResult

	// FailedStage names the stage whose error aborted the run, "" when the
	// run completed.
	FailedStage string
	Warnings    []string

	Summary SummaryReport
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) progress() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Runner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

// Run executes the five stages in order. Per-item failures are recorded in
// the stage reports and never abort anything; a stage-fatal error (rejected
// credentials, exhausted rate-limit budget, a failed mandatory collection
// fetch) aborts the remaining stages, and the returned result still carries
// every stage that ran plus a built summary.
func (r *Runner) Run(ctx context.Context, input RunInput) (RunResult, error) {
	if r == nil || r.Client == nil || r.Source == nil || r.Destination == nil {
		return RunResult{}, fmt.Errorf("migration runner is not configured")
	}

	out := r.progress()
	logger := r.logger()

	result := RunResult{
		RunID:     uuid.NewString(),
		StartedAt: r.clock(),
		DryRun:    r.DryRun,
	}
	logger.Info("migration run starting",
		zap.String("run_id", result.RunID),
		zap.String("source", r.Source.BaseURL),
		zap.String("destination", r.Destination.BaseURL),
		zap.Bool("dry_run", r.DryRun))

	fmt.Fprintf(out, "\n🚚 Tenant migration: %s → %s\n", r.Source.BaseURL, r.Destination.BaseURL)
	if r.DryRun {
		fmt.Fprintf(out, "   Dry run: nothing will be written\n")
	}
	fmt.Fprintf(out, "\n")

	fail := func(stage string, err error) (RunResult, error) {
		logger.Error("stage failed", zap.String("run_id", result.RunID), zap.String("stage", stage), zap.Error(err))
		fmt.Fprintf(out, "   ❌ %v\n\n", err)
		result.FailedStage = stage
		result.FinishedAt = r.clock()
		result.Summary = r.buildSummary(&result)
		return result, fmt.Errorf("%s stage: %w", stage, err)
	}

	fmt.Fprintf(out, "🏢 Stage 1: Tenants\n")
	tenants, err := r.runTenantStage(ctx)
	result.Tenants = tenants
	if err != nil {
		return fail("tenants", err)
	}
	fmt.Fprintf(out, "   ✅ %d created, %d skipped, %d failed\n\n",
		tenants.Report.Created, tenants.Report.Skipped, tenants.Report.Failed)

	fmt.Fprintf(out, "🔑 Stage 2: Credential merge\n")
	switch {
	case input.SkipCredentials:
		fmt.Fprintf(out, "   ⏭️  Skipped by flag\n\n")
	case input.UserDetailsPath == "" && input.PasswordHashesPath == "":
		result.Warnings = append(result.Warnings, "credential merge skipped: no input files given")
		fmt.Fprintf(out, "   ⏭️  No input files given\n\n")
	default:
		credentialsResult, credErr := r.runCredentialStage(input)
		result.Credentials = credentialsResult
		if credErr != nil {
			// The merged CSV is a review artifact with no downstream
			// dependents in this pipeline, so its failure does not cost
			// the remote stages that follow.
			result.Warnings = append(result.Warnings, fmt.Sprintf("credential merge failed: %v", credErr))
			logger.Warn("credential merge failed", zap.String("run_id", result.RunID), zap.Error(credErr))
			fmt.Fprintf(out, "   ⚠️  %v (continuing)\n\n", credErr)
		} else if r.DryRun {
			fmt.Fprintf(out, "   ✅ %d rows merged; not written (dry run)\n\n", credentialsResult.Rows)
		} else {
			fmt.Fprintf(out, "   ✅ %d rows written to %s (%d with hash, %d without)\n\n",
				credentialsResult.Rows, credentialsResult.OutputPath,
				credentialsResult.Matched, credentialsResult.Unmatched)
		}
	}

	fmt.Fprintf(out, "🗂️  Stage 3: Permission categories\n")
	categories, err := r.runCategoryStage(ctx)
	result.Categories = categories
	if err != nil {
		return fail("categories", err)
	}
	fmt.Fprintf(out, "   ✅ %d created, %d skipped, %d failed\n\n",
		categories.Created, categories.Skipped, categories.Failed)

	fmt.Fprintf(out, "🛡️  Stage 4: Permissions\n")
	permissions, err := r.runPermissionStage(ctx)
	result.Permissions = permissions
	if err != nil {
		return fail("permissions", err)
	}
	fmt.Fprintf(out, "   ✅ %d created, %d skipped, %d failed, %d dropped\n\n",
		permissions.Report.Created, permissions.Report.Skipped,
		permissions.Report.Failed, permissions.Dropped)

	fmt.Fprintf(out, "👥 Stage 5: Users & roles\n")
	assignments, err := r.runAssignmentStage(ctx)
	result.Assignments = assignments
	if err != nil {
		return fail("users", err)
	}
	fmt.Fprintf(out, "   ✅ %d assignments sent, %d failed\n\n",
		assignments.AssignmentsSent, assignments.AssignmentsFailed)

	result.FinishedAt = r.clock()
	result.Summary = r.buildSummary(&result)

	fmt.Fprintf(out, "✨ Migration complete!\n")
	fmt.Fprintf(out, "   Tenants:     %d created, %d skipped\n", result.Summary.TenantsCreated, result.Summary.TenantsSkipped)
	fmt.Fprintf(out, "   Credentials: %d rows merged\n", result.Summary.CredentialRows)
	fmt.Fprintf(out, "   Categories:  %d created, %d skipped\n", result.Summary.CategoriesCreated, result.Summary.CategoriesSkipped)
	fmt.Fprintf(out, "   Permissions: %d created, %d skipped, %d dropped\n", result.Summary.PermissionsCreated, result.Summary.PermissionsSkipped, result.Summary.PermissionsDropped)
	fmt.Fprintf(out, "   Assignments: %d sent, %d failed, %d role ids dropped\n", result.Summary.AssignmentsSent, result.Summary.AssignmentsFailed, result.Summary.RolesDropped)
	accounts := make([]string, 0, len(result.Summary.RequestsByAccount))
	for account := range result.Summary.RequestsByAccount {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		stats := result.Summary.RequestsByAccount[account]
		fmt.Fprintf(out, "   Requests:    %s made %d calls (%d throttled, waited %s)\n",
			account, stats.Requests, stats.RateLimited, stats.ThrottleWait)
	}
	if len(result.Summary.Warnings) > 0 {
		fmt.Fprintf(out, "   Warnings:\n")
		for _, warning := range result.Summary.Warnings {
			fmt.Fprintf(out, "     ⚠️  %s\n", warning)
		}
	}
	fmt.Fprintln(out)

	logger.Info("migration run finished",
		zap.String("run_id", result.RunID),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))

	return result, nil
}

func (r *Runner) buildSummary(result *RunResult) SummaryReport {
	summary := BuildSummaryReport(result)
	if r.Client != nil {
		summary.RequestsByAccount = r.Client.StatsSnapshot()
	}
	return summary
}
