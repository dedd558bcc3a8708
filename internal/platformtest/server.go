// Package platformtest runs an in-memory identity platform over HTTP for
// tests. It speaks the same wire protocol as the real vendor: vendor token
// auth, paginated collection envelopes, bare-array listings, batched role
// lookups, and tenant-scoped writes. Creates are applied to the fake's own
// state so a second migration pass observes the first one's work.
package platformtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/samhotchkiss/tenantshift/internal/platform"
)

const tenantHeader = "frontegg-tenant-id"

// Assignment records one role-assignment POST as received.
type Assignment struct {
	TenantID string
	UserID   string
	RoleIDs  []string
}

// Server is one fake platform account.
type Server struct {
	// URL is the account's base URL, ready for platform.NewSession.
	URL string

	clientID string
	secret   string

	mu          sync.Mutex
	pageSize    int
	authCalls   int
	tokenSerial int
	idSerial    int
	issued      map[string]bool

	tenants     []platform.Tenant
	users       []platform.User
	roles       []platform.Role
	categories  []platform.Category
	permissions []platform.Permission
	userRoles   map[string]map[string][]string

	createdTenants    []platform.CreateTenantInput
	metadata          map[string]string
	createdCategories []platform.CreateCategoryInput
	createdPerms      []platform.CreatePermissionInput
	assignments       []Assignment

	throttleRemaining int
	retryAfter        string
	intercept         func(w http.ResponseWriter, r *http.Request) bool

	httpSrv *httptest.Server
}

// New starts a fake account that accepts the given vendor credentials and
// shuts down when the test finishes. Collections page two items at a time
// so pagination is always exercised.
func New(t *testing.T, clientID, secret string) *Server {
	t.Helper()

	s := &Server{
		clientID:  clientID,
		secret:    secret,
		pageSize:  2,
		issued:    map[string]bool{},
		userRoles: map[string]map[string][]string{},
		metadata:  map[string]string{},
	}

	r := chi.NewRouter()
	r.Use(s.gate)
	r.Post("/auth/vendor", s.handleAuth)
	r.Group(func(pr chi.Router) {
		pr.Use(s.requireAuth)
		pr.Get("/tenants/resources/tenants/v2", s.handleListTenants)
		pr.Post("/tenants/resources/tenants/v1", s.handleCreateTenant)
		pr.Put("/tenants/resources/tenants/v1/{tenantID}/metadata", s.handleSetMetadata)
		pr.Get("/identity/resources/users/v2", s.handleListUsers)
		pr.Get("/identity/resources/roles/v1", s.handleListRoles)
		pr.Get("/identity/resources/permissions/v1", s.handleListPermissions)
		pr.Post("/identity/resources/permissions/v1", s.handleCreatePermissions)
		pr.Get("/identity/resources/permissions/v1/categories", s.handleListCategories)
		pr.Post("/identity/resources/permissions/v1/categories", s.handleCreateCategory)
		pr.Get("/identity/resources/users/v3/roles", s.handleUserRoles)
		pr.Post("/identity/resources/users/v1/{userID}/roles", s.handleAssignRoles)
	})

	s.httpSrv = httptest.NewServer(r)
	s.URL = s.httpSrv.URL
	t.Cleanup(s.httpSrv.Close)
	return s
}

// Session builds a client session pointed at this fake.
func (s *Server) Session(t *testing.T, name string) *platform.Session {
	t.Helper()
	sess, err := platform.NewSession(name, s.URL, platform.Credentials{
		ClientID: s.clientID,
		Secret:   s.secret,
	})
	if err != nil {
		t.Fatalf("build session for %s: %v", name, err)
	}
	return sess
}

// gate buffers request bodies, serves injected throttles, and gives the
// test's intercept hook first refusal on every request.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		throttled := false
		retryAfter := s.retryAfter
		if r.URL.Path != "/auth/vendor" && s.throttleRemaining > 0 {
			s.throttleRemaining--
			throttled = true
		}
		intercept := s.intercept
		s.mu.Unlock()

		if throttled {
			if retryAfter != "" {
				w.Header().Set("Retry-After", retryAfter)
			}
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if intercept != nil && intercept(w, r) {
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := s.issued[token]
		s.mu.Unlock()
		if token == "" || !ok {
			writeError(w, http.StatusUnauthorized, "unknown or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		ClientID string `json:"clientId"`
		Secret   string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "malformed auth payload")
		return
	}

	s.mu.Lock()
	s.authCalls++
	if creds.ClientID != s.clientID || creds.Secret != s.secret {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "invalid client credentials")
		return
	}
	s.tokenSerial++
	token := fmt.Sprintf("token-%d", s.tokenSerial)
	s.issued[token] = true
	s.mu.Unlock()

	writeJSON(w, map[string]any{"accessToken": token, "expiresIn": 3600})
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]platform.Tenant(nil), s.tenants...)
	size := s.pageSize
	s.mu.Unlock()
	writePage(w, r, items, size)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var input platform.CreateTenantInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "malformed tenant payload")
		return
	}

	s.mu.Lock()
	s.createdTenants = append(s.createdTenants, input)
	s.tenants = append(s.tenants, platform.Tenant{TenantID: input.TenantID, Name: input.Name})
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var payload struct {
		Metadata string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed metadata payload")
		return
	}

	s.mu.Lock()
	s.metadata[tenantID] = payload.Metadata
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]platform.User(nil), s.users...)
	size := s.pageSize
	s.mu.Unlock()
	writePage(w, r, items, size)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]platform.Role(nil), s.roles...)
	s.mu.Unlock()
	writeJSON(w, items)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]platform.Category(nil), s.categories...)
	s.mu.Unlock()
	writeJSON(w, items)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var input platform.CreateCategoryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "malformed category payload")
		return
	}

	s.mu.Lock()
	s.idSerial++
	s.createdCategories = append(s.createdCategories, input)
	s.categories = append(s.categories, platform.Category{
		ID:          fmt.Sprintf("cat-%d", s.idSerial),
		Name:        input.Name,
		Description: input.Description,
	})
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]platform.Permission(nil), s.permissions...)
	s.mu.Unlock()
	writeJSON(w, items)
}

func (s *Server) handleCreatePermissions(w http.ResponseWriter, r *http.Request) {
	var inputs []platform.CreatePermissionInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeError(w, http.StatusBadRequest, "malformed permissions payload")
		return
	}

	s.mu.Lock()
	for _, input := range inputs {
		s.idSerial++
		s.createdPerms = append(s.createdPerms, input)
		s.permissions = append(s.permissions, platform.Permission{
			ID:             fmt.Sprintf("perm-%d", s.idSerial),
			Key:            input.Key,
			Name:           input.Name,
			Description:    input.Description,
			CategoryID:     input.CategoryID,
			AssignmentType: input.AssignmentType,
		})
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get(tenantHeader)
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "missing tenant header")
		return
	}

	ids := strings.Split(r.URL.Query().Get("ids"), ",")

	s.mu.Lock()
	known := s.userRoles[tenantID]
	var out []platform.UserRoleAssignment
	for _, id := range ids {
		if roleIDs, ok := known[id]; ok {
			out = append(out, platform.UserRoleAssignment{
				UserID:  id,
				RoleIDs: append([]string(nil), roleIDs...),
			})
		}
	}
	s.mu.Unlock()

	writeJSON(w, out)
}

func (s *Server) handleAssignRoles(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get(tenantHeader)
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "missing tenant header")
		return
	}
	userID := chi.URLParam(r, "userID")

	var payload struct {
		RoleIDs []string `json:"roleIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed assignment payload")
		return
	}

	s.mu.Lock()
	s.assignments = append(s.assignments, Assignment{
		TenantID: tenantID,
		UserID:   userID,
		RoleIDs:  append([]string(nil), payload.RoleIDs...),
	})
	if s.userRoles[tenantID] == nil {
		s.userRoles[tenantID] = map[string][]string{}
	}
	existing := s.userRoles[tenantID][userID]
	for _, roleID := range payload.RoleIDs {
		found := false
		for _, have := range existing {
			if have == roleID {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, roleID)
		}
	}
	s.userRoles[tenantID][userID] = existing
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

// Seeding.

func (s *Server) SeedTenants(tenants ...platform.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = append(s.tenants, tenants...)
}

func (s *Server) SeedUsers(users ...platform.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, users...)
}

func (s *Server) SeedRoles(roles ...platform.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = append(s.roles, roles...)
}

func (s *Server) SeedCategories(categories ...platform.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, categories...)
}

func (s *Server) SeedPermissions(permissions ...platform.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = append(s.permissions, permissions...)
}

// SetUserRoles records a user's role set within a tenant. An empty set is
// kept and served as an assignment with no roles.
func (s *Server) SetUserRoles(tenantID, userID string, roleIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userRoles[tenantID] == nil {
		s.userRoles[tenantID] = map[string][]string{}
	}
	if roleIDs == nil {
		roleIDs = []string{}
	}
	s.userRoles[tenantID][userID] = roleIDs
}

// SetPageSize changes how many items each collection page carries.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.pageSize = n
	}
}

// ThrottleNext makes the next n non-auth requests answer 429. retryAfter
// is sent verbatim as the Retry-After header; empty means no header.
func (s *Server) ThrottleNext(n int, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttleRemaining = n
	s.retryAfter = retryAfter
}

// SetIntercept installs a hook that sees every request before normal
// handling. Returning true means the hook wrote the response. The request
// body is readable inside the hook.
func (s *Server) SetIntercept(fn func(w http.ResponseWriter, r *http.Request) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = fn
}

// Inspection.

func (s *Server) AuthCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCalls
}

func (s *Server) CreatedTenants() []platform.CreateTenantInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.CreateTenantInput(nil), s.createdTenants...)
}

func (s *Server) TenantMetadata() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *Server) CreatedCategories() []platform.CreateCategoryInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.CreateCategoryInput(nil), s.createdCategories...)
}

func (s *Server) CreatedPermissions() []platform.CreatePermissionInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.CreatePermissionInput(nil), s.createdPerms...)
}

func (s *Server) Assignments() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Assignment(nil), s.assignments...)
}

// Response helpers.

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"errors": []string{message}})
}

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T, size int) {
	offset := 0
	if raw := r.URL.Query().Get("_offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "bad _offset")
			return
		}
		offset = parsed
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := min(offset+size, len(items))

	resp := map[string]any{"items": items[offset:end]}
	if end < len(items) {
		resp["_links"] = map[string]string{"next": fmt.Sprintf("?_offset=%d", end)}
	}
	writeJSON(w, resp)
}
