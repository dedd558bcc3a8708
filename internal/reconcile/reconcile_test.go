package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samhotchkiss/tenantshift/internal/platform"
)

type category struct {
	name string
}

func categoryConfig(existing []string, created *[]string) Config[category] {
	return Config[category]{
		Kind: "category",
		Key:  func(c category) string { return c.name },
		Existing: func(context.Context) ([]string, error) {
			return existing, nil
		},
		Create: func(_ context.Context, c category) error {
			*created = append(*created, c.name)
			return nil
		},
	}
}

func TestRunCreatesOnlyMissing(t *testing.T) {
	var created []string
	cfg := categoryConfig([]string{"Support"}, &created)
	cfg.Items = []category{{"Billing"}, {"Support"}, {"Ops"}}

	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 2, report.Created)
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, report.Failed)
	require.Equal(t, []string{"Billing", "Ops"}, created)
}

func TestRunSecondPassCreatesNothing(t *testing.T) {
	var created []string
	cfg := categoryConfig([]string{"Support", "Billing", "Ops"}, &created)
	cfg.Items = []category{{"Billing"}, {"Support"}, {"Ops"}}

	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Zero(t, report.Created)
	require.Equal(t, 3, report.Skipped)
	require.Empty(t, created)
}

func TestRunDuplicateSourceKeysCreateOnce(t *testing.T) {
	var created []string
	cfg := categoryConfig(nil, &created)
	cfg.Items = []category{{"Billing"}, {"Billing"}}

	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, []string{"Billing"}, created)
}

func TestRunRecordsFailuresAndContinues(t *testing.T) {
	var created []string
	cfg := categoryConfig(nil, &created)
	cfg.Items = []category{{"Billing"}, {"Broken"}, {"Ops"}}
	inner := cfg.Create
	cfg.Create = func(ctx context.Context, c category) error {
		if c.name == "Broken" {
			return &platform.RequestError{StatusCode: 400, Body: "name rejected"}
		}
		return inner(ctx, c)
	}

	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 2, report.Created)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "Broken", report.Errors[0].Key)
	require.Equal(t, []string{"Billing", "Ops"}, created)
}

func TestRunAbortsOnFatalError(t *testing.T) {
	var calls int
	cfg := Config[category]{
		Kind:     "category",
		Items:    []category{{"Billing"}, {"Ops"}},
		Key:      func(c category) string { return c.name },
		Existing: func(context.Context) ([]string, error) { return nil, nil },
		Create: func(context.Context, category) error {
			calls++
			return &platform.AuthError{Account: "dest", StatusCode: 401}
		},
	}

	report, err := Run(context.Background(), cfg)
	require.Error(t, err)
	var authErr *platform.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 1, calls)
	require.Zero(t, report.Created)
}

func TestRunFailsWhenExistingListingFails(t *testing.T) {
	cfg := Config[category]{
		Kind:     "category",
		Items:    []category{{"Billing"}},
		Key:      func(c category) string { return c.name },
		Existing: func(context.Context) ([]string, error) { return nil, errors.New("listing down") },
		Create:   func(context.Context, category) error { return nil },
	}

	report, err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "list existing category keys")
	require.Zero(t, report.Created)
}

func TestRunDryRunCountsWithoutCreating(t *testing.T) {
	cfg := Config[category]{
		Kind:     "category",
		Items:    []category{{"Billing"}, {"Support"}},
		Key:      func(c category) string { return c.name },
		Existing: func(context.Context) ([]string, error) { return []string{"Support"}, nil },
		Create: func(context.Context, category) error {
			t.Fatal("create must not run in dry-run mode")
			return nil
		},
		DryRun: true,
	}

	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.Skipped)
}

func TestRunEmptyKeyIsRecordedAsFailure(t *testing.T) {
	var created []string
	cfg := categoryConfig(nil, &created)
	cfg.Items = []category{{""}, {"Ops"}}

	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, []string{"Ops"}, created)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var created []string
	cfg := categoryConfig(nil, &created)
	cfg.Items = []category{{"Billing"}}

	_, err := Run(ctx, cfg)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, created)
}
