package migrate

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/samhotchkiss/tenantshift/internal/platform"
	"github.com/samhotchkiss/tenantshift/internal/reconcile"
)

type TenantStageResult struct {
	Report *reconcile.Report
	// MetadataSkipped counts created tenants whose metadata blob was not
	// valid JSON and therefore was not replayed.
	MetadataSkipped int
}

// runTenantStage ensures every source tenant exists at the destination,
// matched by tenant id, and replays each created tenant's metadata blob.
func (r *Runner) runTenantStage(ctx context.Context) (*TenantStageResult, error) {
	tenants, err := r.Client.ListTenants(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	r.logger().Info("source tenants listed", zap.Int("count", len(tenants)))

	result := &TenantStageResult{}
	report, err := reconcile.Run(ctx, reconcile.Config[platform.Tenant]{
		Kind:   "tenant",
		Items:  tenants,
		Key:    func(t platform.Tenant) string { return t.TenantID },
		DryRun: r.DryRun,
		Logger: r.logger(),
		Existing: func(ctx context.Context) ([]string, error) {
			existing, err := r.Client.ListTenants(ctx, r.Destination)
			if err != nil {
				return nil, err
			}
			keys := make([]string, 0, len(existing))
			for _, t := range existing {
				keys = append(keys, t.TenantID)
			}
			return keys, nil
		},
		Create: func(ctx context.Context, t platform.Tenant) error {
			input := platform.CreateTenantInput{TenantID: t.TenantID, Name: t.Name}
			if err := r.Client.CreateTenant(ctx, r.Destination, input); err != nil {
				return err
			}
			return r.replayTenantMetadata(ctx, t, result)
		},
	})
	result.Report = report
	return result, err
}

// replayTenantMetadata copies a tenant's metadata blob to the freshly
// created destination tenant. A blob that is not valid JSON is skipped with
// a diagnostic instead of being sent for the platform to reject.
func (r *Runner) replayTenantMetadata(ctx context.Context, t platform.Tenant, result *TenantStageResult) error {
	blob := strings.TrimSpace(t.Metadata)
	if blob == "" {
		return nil
	}
	if !json.Valid([]byte(blob)) {
		result.MetadataSkipped++
		r.logger().Warn("tenant metadata is not valid JSON; not replayed",
			zap.String("tenant", t.TenantID))
		return nil
	}
	return r.Client.SetTenantMetadata(ctx, r.Destination, t.TenantID, blob)
}
