package platformtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samhotchkiss/tenantshift/internal/platform"
)

func TestServerSpeaksTheClientProtocol(t *testing.T) {
	srv := New(t, "client-1", "secret-1")
	srv.SeedTenants(
		platform.Tenant{TenantID: "t-1", Name: "One"},
		platform.Tenant{TenantID: "t-2", Name: "Two"},
		platform.Tenant{TenantID: "t-3", Name: "Three"},
	)
	srv.SetUserRoles("t-1", "u-1", "r-1", "r-2")
	srv.SetUserRoles("t-1", "u-2")

	client := platform.NewClient()
	sess := srv.Session(t, "source")
	ctx := context.Background()

	tenants, err := client.ListTenants(ctx, sess)
	require.NoError(t, err)
	require.Len(t, tenants, 3, "three tenants across two pages")
	require.Equal(t, "t-3", tenants[2].TenantID)
	require.Equal(t, 1, srv.AuthCalls(), "token reused across pages")

	assignments, err := client.UserRoles(ctx, sess, "t-1", []string{"u-1", "u-2", "u-unknown"})
	require.NoError(t, err)
	require.Len(t, assignments, 2, "unknown users are omitted")
	require.Equal(t, []string{"r-1", "r-2"}, assignments[0].RoleIDs)
	require.Empty(t, assignments[1].RoleIDs, "empty role sets are served, not dropped")
}

func TestServerAppliesCreatesToItsOwnState(t *testing.T) {
	srv := New(t, "client-1", "secret-1")

	client := platform.NewClient()
	sess := srv.Session(t, "destination")
	ctx := context.Background()

	err := client.CreateCategory(ctx, sess, platform.CreateCategoryInput{Name: "Billing"})
	require.NoError(t, err)

	categories, err := client.ListCategories(ctx, sess)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.Equal(t, "Billing", categories[0].Name)
	require.NotEmpty(t, categories[0].ID, "created categories get ids")

	require.Len(t, srv.CreatedCategories(), 1)
}

func TestServerRejectsBadCredentials(t *testing.T) {
	srv := New(t, "client-1", "secret-1")

	sess, err := platform.NewSession("source", srv.URL, platform.Credentials{
		ClientID: "client-1",
		Secret:   "wrong",
	})
	require.NoError(t, err)

	client := platform.NewClient()
	_, err = client.ListTenants(context.Background(), sess)

	var authErr *platform.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestServerThrottleInjection(t *testing.T) {
	srv := New(t, "client-1", "secret-1")
	srv.SeedRoles(platform.Role{ID: "r-1", Key: "admin"})
	srv.ThrottleNext(2, "1")

	client := platform.NewClient(platform.WithSleep(func(ctx context.Context, d time.Duration) error {
		return nil
	}))
	sess := srv.Session(t, "source")

	roles, err := client.ListRoles(context.Background(), sess)
	require.NoError(t, err, "client retries through injected throttles")
	require.Len(t, roles, 1)

	stats := client.StatsSnapshot()
	require.Equal(t, int64(2), stats["source"].RateLimited)
}
