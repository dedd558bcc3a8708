package migrate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/samhotchkiss/tenantshift/internal/platform"
	"github.com/samhotchkiss/tenantshift/internal/translate"
)

type AssignmentStageResult struct {
	SourceUsers      int
	DestinationUsers int
	// MatchedUsers have a destination counterpart by (email, tenant);
	// UnmatchedUsers do not and can never receive an assignment call.
	MatchedUsers   int
	UnmatchedUsers int
	// UsersWithoutRoles had no role-assignment record at the source.
	UsersWithoutRoles int
	// EmptyRoleSets had roles, but none survived translation.
	EmptyRoleSets int
	// RolesDropped counts individual role ids lost in translation.
	RolesDropped int
	// RoleMisses counts source roles with no destination counterpart.
	RoleMisses        int
	AssignmentsSent   int
	AssignmentsFailed int
	// TenantsFailed counts tenants whose role lookup failed; their users
	// were skipped.
	TenantsFailed int
}

type joinedUser struct {
	sourceID string
	destID   string
	tenantID string
	email    string
}

// runAssignmentStage replays user role assignments. Users match across
// accounts by case-normalized email within the same tenant; roles match by
// key through a translation map. A user only receives an assignment call
// when it has a destination counterpart and at least one translated role.
func (r *Runner) runAssignmentStage(ctx context.Context) (*AssignmentStageResult, error) {
	logger := r.logger()

	sourceUsers, err := r.Client.ListUsers(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	destUsers, err := r.Client.ListUsers(ctx, r.Destination)
	if err != nil {
		return nil, err
	}
	sourceRoles, err := r.Client.ListRoles(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	destRoles, err := r.Client.ListRoles(ctx, r.Destination)
	if err != nil {
		return nil, err
	}

	roleMap := translate.Build("role", sourceRoles, destRoles,
		func(role platform.Role) string { return role.Key },
		func(role platform.Role) string { return role.ID })
	for _, miss := range roleMap.Misses() {
		logger.Warn("source role has no destination counterpart; its assignments will be dropped",
			zap.String("key", miss.Key),
			zap.String("roleId", miss.SourceID))
	}
	for _, dup := range roleMap.Duplicates() {
		logger.Warn("destination role key collision",
			zap.String("key", dup.Key),
			zap.Strings("ids", dup.IDs))
	}

	result := &AssignmentStageResult{
		SourceUsers:      len(sourceUsers),
		DestinationUsers: len(destUsers),
		RoleMisses:       len(roleMap.Misses()),
	}

	joined := r.joinUsers(sourceUsers, destUsers, result)

	// Group by tenant in first-seen order so progress is deterministic.
	tenantOrder := make([]string, 0)
	byTenant := make(map[string][]joinedUser)
	for _, user := range joined {
		if user.tenantID == "" {
			logger.Warn("source user has no tenant; roles cannot be looked up",
				zap.String("userId", user.sourceID))
			result.UsersWithoutRoles++
			continue
		}
		if _, seen := byTenant[user.tenantID]; !seen {
			tenantOrder = append(tenantOrder, user.tenantID)
		}
		byTenant[user.tenantID] = append(byTenant[user.tenantID], user)
	}

	rolesByUser := make(map[string][]string)
	for _, tenantID := range tenantOrder {
		users := byTenant[tenantID]
		ids := make([]string, 0, len(users))
		for _, user := range users {
			ids = append(ids, user.sourceID)
		}
		assignments, err := r.Client.UserRoles(ctx, r.Source, tenantID, ids)
		if err != nil {
			if platform.IsFatal(err) {
				return result, err
			}
			result.TenantsFailed++
			logger.Warn("role lookup failed; tenant's users skipped",
				zap.String("tenant", tenantID),
				zap.Error(err))
			continue
		}
		for _, assignment := range assignments {
			rolesByUser[assignment.UserID] = assignment.RoleIDs
		}
	}

	for _, user := range joined {
		if user.tenantID == "" {
			continue
		}
		roleIDs, ok := rolesByUser[user.sourceID]
		if !ok {
			result.UsersWithoutRoles++
			continue
		}

		mapped, dropped := roleMap.Translate(roleIDs)
		result.RolesDropped += len(dropped)
		if len(dropped) > 0 {
			logger.Debug("role ids dropped in translation",
				zap.String("userId", user.sourceID),
				zap.Strings("dropped", dropped))
		}

		if user.destID == "" {
			// Counted as unmatched at join time; there is no destination
			// user to address.
			continue
		}
		if len(mapped) == 0 {
			result.EmptyRoleSets++
			continue
		}

		if r.DryRun {
			result.AssignmentsSent++
			logger.Info("would assign roles",
				zap.String("email", user.email),
				zap.String("tenant", user.tenantID),
				zap.Strings("roleIds", mapped))
			continue
		}
		if err := r.Client.AssignUserRoles(ctx, r.Destination, user.tenantID, user.destID, mapped); err != nil {
			if platform.IsFatal(err) {
				return result, err
			}
			result.AssignmentsFailed++
			logger.Warn("role assignment failed",
				zap.String("email", user.email),
				zap.String("tenant", user.tenantID),
				zap.Error(err))
			continue
		}
		result.AssignmentsSent++
	}

	return result, nil
}

// joinUsers left-joins source users onto destination users by
// (lowercased email, tenant id). Every source user appears exactly once;
// the destination id is empty when no counterpart exists.
func (r *Runner) joinUsers(sourceUsers, destUsers []platform.User, result *AssignmentStageResult) []joinedUser {
	type userKey struct {
		email    string
		tenantID string
	}
	destByKey := make(map[userKey]string, len(destUsers))
	for _, user := range destUsers {
		email := strings.ToLower(strings.TrimSpace(user.Email))
		if email == "" {
			continue
		}
		destByKey[userKey{email: email, tenantID: user.TenantID}] = user.ID
	}

	joined := make([]joinedUser, 0, len(sourceUsers))
	for _, user := range sourceUsers {
		email := strings.ToLower(strings.TrimSpace(user.Email))
		destID := ""
		if email != "" {
			destID = destByKey[userKey{email: email, tenantID: user.TenantID}]
		}
		if destID == "" {
			result.UnmatchedUsers++
			r.logger().Debug("no destination user for source user",
				zap.String("email", email),
				zap.String("tenant", user.TenantID))
		} else {
			result.MatchedUsers++
		}
		joined = append(joined, joinedUser{
			sourceID: user.ID,
			destID:   destID,
			tenantID: user.TenantID,
			email:    email,
		})
	}
	return joined
}
