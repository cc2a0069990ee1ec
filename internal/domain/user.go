package domain

import "time"

// UserRole enumerates supported roles.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// UserPlan enumerates billing plans.
type UserPlan string

const (
	UserPlanFree UserPlan = "free"
	UserPlanPro  UserPlan = "pro"
)

// User is a document of the users collection.
type User struct {
	ID          string                `json:"id" firestore:"-"`
	Email       string                `json:"email" firestore:"email"`
	DisplayName string                `json:"displayName" firestore:"displayName"`
	PhotoURL    string                `json:"photoUrl,omitempty" firestore:"photoUrl"`
	Role        UserRole              `json:"role" firestore:"role"`
	Plan        UserPlan              `json:"plan" firestore:"plan"`
	Credits     Balance               `json:"credits" firestore:"credits"`
	LedgerSeq   int64                 `json:"-" firestore:"ledgerSeq"`
	WordPress   *WordPressIntegration `json:"wordpress,omitempty" firestore:"wordpress"`
	Threads     *ThreadsIntegration   `json:"threads,omitempty" firestore:"threads"`
	CreatedAt   time.Time             `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt" firestore:"updatedAt"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// UserProfile carries the identity fields refreshed on every sign-in.
type UserProfile struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
	Role        UserRole
}

// WordPressIntegration stores a WordPress application password sealed by
// the credentials cipher.
type WordPressIntegration struct {
	SiteURL        string    `json:"siteUrl" firestore:"siteUrl"`
	Username       string    `json:"username" firestore:"username"`
	PasswordSealed string    `json:"-" firestore:"passwordSealed"`
	ConnectedAt    time.Time `json:"connectedAt" firestore:"connectedAt"`
}

// ThreadsIntegration stores a long-lived Threads access token sealed by the
// credentials cipher.
type ThreadsIntegration struct {
	ThreadsUserID string    `json:"threadsUserId" firestore:"threadsUserId"`
	Username      string    `json:"username" firestore:"username"`
	TokenSealed   string    `json:"-" firestore:"tokenSealed"`
	ExpiresAt     time.Time `json:"expiresAt" firestore:"expiresAt"`
	ConnectedAt   time.Time `json:"connectedAt" firestore:"connectedAt"`
}
