package migrate

import (
	"context"

	"go.uber.org/zap"

	"github.com/samhotchkiss/tenantshift/internal/platform"
	"github.com/samhotchkiss/tenantshift/internal/reconcile"
	"github.com/samhotchkiss/tenantshift/internal/translate"
)

type PermissionStageResult struct {
	Report *reconcile.Report
	// Dropped counts source permissions whose category has no destination
	// counterpart; creating them would attach a category id that does not
	// exist there.
	Dropped int
	// CategoryCollisions counts destination category names claimed by more
	// than one category, which makes the translation choice arbitrary.
	CategoryCollisions int
}

// runPermissionStage ensures every source permission exists at the
// destination, matched by key, with category ids rewritten through a
// name-based category translation map. The destination category list is
// fetched fresh so categories created one stage earlier are visible.
func (r *Runner) runPermissionStage(ctx context.Context) (*PermissionStageResult, error) {
	sourceCategories, err := r.Client.ListCategories(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	destCategories, err := r.Client.ListCategories(ctx, r.Destination)
	if err != nil {
		return nil, err
	}
	categoryMap := translate.Build("category", sourceCategories, destCategories,
		func(c platform.Category) string { return c.Name },
		func(c platform.Category) string { return c.ID })
	for _, dup := range categoryMap.Duplicates() {
		r.logger().Warn("destination category name collision",
			zap.String("name", dup.Key),
			zap.Strings("ids", dup.IDs))
	}

	permissions, err := r.Client.ListPermissions(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	r.logger().Info("source permissions listed", zap.Int("count", len(permissions)))

	result := &PermissionStageResult{CategoryCollisions: len(categoryMap.Duplicates())}
	inputs := make([]platform.CreatePermissionInput, 0, len(permissions))
	for _, p := range permissions {
		destCategoryID := ""
		if p.CategoryID != "" {
			id, ok := categoryMap.Lookup(p.CategoryID)
			if !ok {
				result.Dropped++
				r.logger().Warn("permission dropped: category has no destination counterpart",
					zap.String("permission", p.Key),
					zap.String("categoryId", p.CategoryID))
				continue
			}
			destCategoryID = id
		}
		inputs = append(inputs, platform.CreatePermissionInput{
			Key:            p.Key,
			Name:           p.Name,
			Description:    p.Description,
			CategoryID:     destCategoryID,
			AssignmentType: p.AssignmentType,
		})
	}

	report, err := reconcile.Run(ctx, reconcile.Config[platform.CreatePermissionInput]{
		Kind:   "permission",
		Items:  inputs,
		Key:    func(p platform.CreatePermissionInput) string { return p.Key },
		DryRun: r.DryRun,
		Logger: r.logger(),
		Existing: func(ctx context.Context) ([]string, error) {
			existing, err := r.Client.ListPermissions(ctx, r.Destination)
			if err != nil {
				return nil, err
			}
			keys := make([]string, 0, len(existing))
			for _, p := range existing {
				keys = append(keys, p.Key)
			}
			return keys, nil
		},
		Create: func(ctx context.Context, p platform.CreatePermissionInput) error {
			// The endpoint is bulk-shaped; items are sent one at a time so
			// one rejected permission cannot void a whole batch.
			return r.Client.CreatePermissions(ctx, r.Destination, []platform.CreatePermissionInput{p})
		},
	})
	result.Report = report
	return result, err
}
