package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	tenantsV2Path     = "/tenants/resources/tenants/v2"
	tenantsV1Path     = "/tenants/resources/tenants/v1"
	usersV2Path       = "/identity/resources/users/v2"
	userRolesV3Path   = "/identity/resources/users/v3/roles"
	usersV1Path       = "/identity/resources/users/v1"
	rolesV1Path       = "/identity/resources/roles/v1"
	permissionsV1Path = "/identity/resources/permissions/v1"
	categoriesV1Path  = "/identity/resources/permissions/v1/categories"

	pageLimit = "100"

	// ids per batched role lookup, bounded by the platform's query-size
	// limit
	roleLookupBatchSize = 100
)

// ListTenants returns every tenant in the account, across all pages.
func (c *Client) ListTenants(ctx context.Context, sess *Session) ([]Tenant, error) {
	query := url.Values{"_limit": []string{pageLimit}}
	tenants, err := fetchAll[Tenant](ctx, c, sess, tenantsV2Path, query)
	if err != nil {
		return nil, fmt.Errorf("list %s tenants: %w", sess.Name, err)
	}
	return tenants, nil
}

func (c *Client) CreateTenant(ctx context.Context, sess *Session, input CreateTenantInput) error {
	if strings.TrimSpace(input.TenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	return c.do(ctx, sess, http.MethodPost, tenantsV1Path, nil, "", input, nil)
}

// SetTenantMetadata replays a tenant's serialized metadata blob after
// creation. The blob is passed through untouched; the platform owns its
// shape.
func (c *Client) SetTenantMetadata(ctx context.Context, sess *Session, tenantID, metadata string) error {
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	path := tenantsV1Path + "/" + url.PathEscape(tenantID) + "/metadata"
	return c.do(ctx, sess, http.MethodPut, path, nil, "", map[string]string{"metadata": metadata}, nil)
}

// ListUsers returns every user in the account including sub-tenant members,
// across all pages.
func (c *Client) ListUsers(ctx context.Context, sess *Session) ([]User, error) {
	query := url.Values{
		"_limit":             []string{pageLimit},
		"_includeSubTenants": []string{"true"},
	}
	users, err := fetchAll[User](ctx, c, sess, usersV2Path, query)
	if err != nil {
		return nil, fmt.Errorf("list %s users: %w", sess.Name, err)
	}
	return users, nil
}

func (c *Client) ListRoles(ctx context.Context, sess *Session) ([]Role, error) {
	var roles []Role
	if err := c.do(ctx, sess, http.MethodGet, rolesV1Path, nil, "", nil, &roles); err != nil {
		return nil, fmt.Errorf("list %s roles: %w", sess.Name, err)
	}
	return roles, nil
}

func (c *Client) ListCategories(ctx context.Context, sess *Session) ([]Category, error) {
	var categories []Category
	if err := c.do(ctx, sess, http.MethodGet, categoriesV1Path, nil, "", nil, &categories); err != nil {
		return nil, fmt.Errorf("list %s permission categories: %w", sess.Name, err)
	}
	return categories, nil
}

func (c *Client) CreateCategory(ctx context.Context, sess *Session, input CreateCategoryInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("category name is required")
	}
	return c.do(ctx, sess, http.MethodPost, categoriesV1Path, nil, "", input, nil)
}

func (c *Client) ListPermissions(ctx context.Context, sess *Session) ([]Permission, error) {
	var permissions []Permission
	if err := c.do(ctx, sess, http.MethodGet, permissionsV1Path, nil, "", nil, &permissions); err != nil {
		return nil, fmt.Errorf("list %s permissions: %w", sess.Name, err)
	}
	return permissions, nil
}

// CreatePermissions posts new permissions. The endpoint is bulk-shaped (it
// accepts an array), so callers control the batch size.
func (c *Client) CreatePermissions(ctx context.Context, sess *Session, inputs []CreatePermissionInput) error {
	if len(inputs) == 0 {
		return nil
	}
	return c.do(ctx, sess, http.MethodPost, permissionsV1Path, nil, "", inputs, nil)
}

// UserRoles fetches role assignments for the given users within one tenant,
// batching ids to stay under the request-size limit. Result order follows
// the server's per-batch ordering.
func (c *Client) UserRoles(ctx context.Context, sess *Session, tenantID string, userIDs []string) ([]UserRoleAssignment, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	var assignments []UserRoleAssignment
	for batchStart := 0; batchStart < len(userIDs); batchStart += roleLookupBatchSize {
		batchEnd := min(batchStart+roleLookupBatchSize, len(userIDs))
		query := url.Values{"ids": []string{strings.Join(userIDs[batchStart:batchEnd], ",")}}

		var batch []UserRoleAssignment
		if err := c.do(ctx, sess, http.MethodGet, userRolesV3Path, query, tenantID, nil, &batch); err != nil {
			return nil, fmt.Errorf("list %s user roles for tenant %s: %w", sess.Name, tenantID, err)
		}
		assignments = append(assignments, batch...)
	}
	return assignments, nil
}

// AssignUserRoles adds roles to one destination user, scoped by the tenant
// header. The call is append-only and at-least-once across reruns; the
// platform treats a repeated assignment as a no-op.
func (c *Client) AssignUserRoles(ctx context.Context, sess *Session, tenantID, userID string, roleIDs []string) error {
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if len(roleIDs) == 0 {
		return nil
	}
	path := usersV1Path + "/" + url.PathEscape(userID) + "/roles"
	return c.do(ctx, sess, http.MethodPost, path, nil, tenantID, map[string][]string{"roleIds": roleIDs}, nil)
}
