package migrate

import (
	"context"

	"go.uber.org/zap"

	"github.com/samhotchkiss/tenantshift/internal/platform"
	"github.com/samhotchkiss/tenantshift/internal/reconcile"
)

// runCategoryStage ensures every source permission category exists at the
// destination, matched by name. Destination ids differ from source ids; the
// permission stage resolves that through a translation map built after this
// stage has run.
func (r *Runner) runCategoryStage(ctx context.Context) (*reconcile.Report, error) {
	categories, err := r.Client.ListCategories(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	r.logger().Info("source categories listed", zap.Int("count", len(categories)))

	return reconcile.Run(ctx, reconcile.Config[platform.Category]{
		Kind:   "category",
		Items:  categories,
		Key:    func(c platform.Category) string { return c.Name },
		DryRun: r.DryRun,
		Logger: r.logger(),
		Existing: func(ctx context.Context) ([]string, error) {
			existing, err := r.Client.ListCategories(ctx, r.Destination)
			if err != nil {
				return nil, err
			}
			keys := make([]string, 0, len(existing))
			for _, c := range existing {
				keys = append(keys, c.Name)
			}
			return keys, nil
		},
		Create: func(ctx context.Context, c platform.Category) error {
			input := platform.CreateCategoryInput{Name: c.Name, Description: c.Description}
			return r.Client.CreateCategory(ctx, r.Destination, input)
		},
	})
}
