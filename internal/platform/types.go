package platform

// Wire types for the identity-platform resources the migration touches.

type Tenant struct {
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
	// Metadata is a JSON object serialized as a string on the wire; empty
	// when the tenant carries none.
	Metadata string `json:"metadata,omitempty"`
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Permission struct {
	ID             string `json:"id,omitempty"`
	Key            string `json:"key"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	CategoryID     string `json:"categoryId,omitempty"`
	AssignmentType string `json:"assignmentType,omitempty"`
}

type Role struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	TenantID string `json:"tenantId"`
}

// UserRoleAssignment is one user's role set within a tenant, as returned by
// the batched role listing.
type UserRoleAssignment struct {
	UserID  string   `json:"userId"`
	RoleIDs []string `json:"roleIds"`
}

type CreateTenantInput struct {
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
}

type CreateCategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CreatePermissionInput struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	CategoryID     string `json:"categoryId"`
	AssignmentType string `json:"assignmentType,omitempty"`
}
