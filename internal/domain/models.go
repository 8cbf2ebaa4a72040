// Package domain holds the core entities of the team dashboard:
// user profiles, calendar events, team notifications and the shared
// group goal. All rows are owned by Supabase; the application keeps
// read-through snapshots only.
package domain

import "strings"

// Role of a team member. SUPERVISOR has elevated write permissions on
// notifications, the group goal and other members' events.
type Role string

const (
	RoleSupervisor Role = "SUPERVISOR"
	RoleAgent      Role = "AGENT"
)

// ValidRole reports whether r is one of the two known roles.
func ValidRole(r Role) bool {
	return r == RoleSupervisor || r == RoleAgent
}

// EventCategory classifies a logged activity.
type EventCategory string

const (
	CategoryVisita   EventCategory = "visita"
	CategoryReuniao  EventCategory = "reuniao"
	CategoryCobranca EventCategory = "cobranca"
	CategoryOutro    EventCategory = "outro"
)

// ValidCategory reports whether c is a known event category.
func ValidCategory(c EventCategory) bool {
	switch c {
	case CategoryVisita, CategoryReuniao, CategoryCobranca, CategoryOutro:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusPlanejado EventStatus = "planejado"
	StatusRealizado EventStatus = "realizado"
	StatusCancelado EventStatus = "cancelado"
)

// ValidStatus reports whether s is a known event status.
func ValidStatus(s EventStatus) bool {
	switch s {
	case StatusPlanejado, StatusRealizado, StatusCancelado:
		return true
	}
	return false
}

// UserProfile is the application-level identity record. Its ID matches
// the Supabase auth identity. Created at signup, or lazily on the first
// login of an identity that has no row yet.
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	PhotoURL  string `json:"photo_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Event is a logged activity (visit, meeting, collection). Timestamps
// are ISO-8601 strings, matching the wire format of the backend.
type Event struct {
	ID          string        `json:"id,omitempty"` // empty until persisted
	Title       string        `json:"title"`
	Description string        `json:"description"`
	StartDate   string        `json:"start_date"`
	EndDate     string        `json:"end_date"`
	Category    EventCategory `json:"category"`
	Status      EventStatus   `json:"status"`
	AssignedTo  string        `json:"assigned_to"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   string        `json:"created_at,omitempty"`
	UpdatedAt   string        `json:"updated_at,omitempty"`
}

// Notification is a team-wide announcement. Only supervisors create
// and delete them; everyone reads them.
type Notification struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at,omitempty"`
}

// GroupMetaID is the fixed id of the singleton group goal row.
const GroupMetaID = "meta_principal"

// GroupMeta is the shared numeric goal. Exactly one row exists, keyed
// by GroupMetaID; writes are upserts.
type GroupMeta struct {
	ID           string  `json:"id"`
	NumericValue float64 `json:"numeric_value"`
	UpdatedBy    string  `json:"updated_by"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

// EventFilter is the conjunctive predicate set accepted by event
// listing. Zero values mean "no constraint".
type EventFilter struct {
	AssignedTo string
	Category   EventCategory
	StartDate  string // start_date >= StartDate
	EndDate    string // end_date <= EndDate
}

// UsersByID builds the lookup map used to resolve soft references
// (assigned_to, created_by, updated_by) on the client side.
func UsersByID(users []UserProfile) map[string]UserProfile {
	m := make(map[string]UserProfile, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return m
}

// NameFromEmail derives the default display name for a lazily
// provisioned profile: the local part of the email address.
func NameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

// CanMutateEvent reports whether u may update or delete ev: the
// creator or any supervisor. This mirrors the row-level policy on the
// backend; Supabase remains the actual authority.
func CanMutateEvent(u *UserProfile, ev *Event) bool {
	if u == nil {
		return false
	}
	return u.Role == RoleSupervisor || ev.CreatedBy == u.ID
}
