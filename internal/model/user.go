package model

import (
	"strings"
	"time"
)

// Role is the name stored in users.role. The zero value means the user
// has not chosen a role yet.
type Role string

const (
	RoleAuthor    Role = "author"
	RoleReviewer  Role = "reviewer"
	RoleEditor    Role = "editor"
	RolePublisher Role = "publisher"
	RoleAdmin     Role = "admin"
)

// inherits lists the roles each role implicitly holds.
var inherits = map[Role][]Role{
	RoleAdmin:     {RoleEditor, RolePublisher, RoleReviewer, RoleAuthor},
	RoleEditor:    {RoleReviewer, RoleAuthor},
	RolePublisher: {RoleAuthor},
}

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAuthor, RoleReviewer, RoleEditor, RolePublisher, RoleAdmin:
		return r, true
	}
	return "", false
}

// Has reports whether r grants want, either directly or via inheritance.
func (r Role) Has(want Role) bool {
	if r == want {
		return true
	}
	for _, inherited := range inherits[r] {
		if inherited == want {
			return true
		}
	}
	return false
}

// SelfSelectable reports whether users may pick r for themselves.
func (r Role) SelfSelectable() bool {
	return r == RoleAuthor || r == RoleReviewer
}

// User mirrors a row of the users table. Secrets never leave the service:
// their json tags are "-".
type User struct {
	ID                uint64     `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Role              Role       `json:"role"`
	Phone             string     `json:"phone,omitempty"`
	IsActive          bool       `json:"isActive"`
	IsProfileComplete bool       `json:"isProfileComplete"`
	FailedLoginCount  int        `json:"-"`
	LastFailedLogin   *time.Time `json:"-"`
	LockedUntil       *time.Time `json:"-"`
	LastLogin         *time.Time `json:"lastLogin,omitempty"`
	ResetTokenHash    string     `json:"-"`
	ResetExpiresAt    *time.Time `json:"-"`

	AuthorProfile   *AuthorProfile   `json:"authorProfile,omitempty"`
	EditorProfile   *EditorProfile   `json:"editorProfile,omitempty"`
	ReviewerProfile *ReviewerProfile `json:"reviewerProfile,omitempty"`
	AdminProfile    *AdminProfile    `json:"adminProfile,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LockRemaining returns how long the account stays locked at now, or zero.
func (u User) LockRemaining(now time.Time) time.Duration {
	if u.LockedUntil == nil || !now.Before(*u.LockedUntil) {
		return 0
	}
	return u.LockedUntil.Sub(now)
}

// DisplayName prefers the author profile's full name over the email.
func (u User) DisplayName() string {
	if u.AuthorProfile != nil && u.AuthorProfile.PersonalInfo.FullName != "" {
		return u.AuthorProfile.PersonalInfo.FullName
	}
	return u.Email
}

// AuthorProfile is stored as JSON in users.author_profile.
type AuthorProfile struct {
	PersonalInfo struct {
		FullName    string `json:"fullName"`
		Title       string `json:"title"`
		Gender      string `json:"gender"`
		DateOfBirth string `json:"dateOfBirth,omitempty"`
	} `json:"personalInfo"`
	ContactInfo struct {
		PrimaryEmail     string `json:"primaryEmail"`
		AlternativeEmail string `json:"alternativeEmail,omitempty"`
		PhoneNumber      string `json:"phoneNumber,omitempty"`
	} `json:"contactInfo"`
	Affiliation struct {
		CurrentPosition      string `json:"currentPosition"`
		Institution          string `json:"institution"`
		Department           string `json:"department"`
		Country              string `json:"country"`
		InstitutionalAddress string `json:"institutionalAddress"`
	} `json:"affiliation"`
	AcademicInfo struct {
		Degrees       string `json:"degrees"`
		ORCID         string `json:"orcid,omitempty"`
		ScopusID      string `json:"scopusId,omitempty"`
		ResearchGate  string `json:"researchGate,omitempty"`
		GoogleScholar string `json:"googleScholar,omitempty"`
	} `json:"academicInfo"`
	Compliance struct {
		AgreeToDiscloseConflicts bool `json:"agreeToDiscloseConflicts"`
		WillComplyWithEthics     bool `json:"willComplyWithEthics"`
		AcceptJournalPolicies    bool `json:"acceptJournalPolicies"`
	} `json:"compliance"`
	Preferences struct {
		WillingToBeReviewer     bool `json:"willingToBeReviewer"`
		ReceiveEditorialUpdates bool `json:"receiveEditorialUpdates"`
	} `json:"preferences"`
	AreasOfExpertise string `json:"areasOfExpertise,omitempty"`
}

type Publication struct {
	Title   string `json:"title"`
	Journal string `json:"journal"`
	Year    int    `json:"year"`
	DOI     string `json:"doi,omitempty"`
}

type EditorProfile struct {
	Specialization  string        `json:"specialization"`
	ExperienceYears int           `json:"experienceYears"`
	Publications    []Publication `json:"publications,omitempty"`
}

type ReviewerProfile struct {
	ExpertiseAreas []string `json:"expertiseAreas"`
	AverageRating  float64  `json:"averageRating,omitempty"`
}

type AdminProfile struct {
	Department  string `json:"department"`
	Permissions struct {
		CanManageUsers    bool `json:"canManageUsers"`
		CanManageRoles    bool `json:"canManageRoles"`
		CanManageArticles bool `json:"canManageArticles"`
		CanManageReviews  bool `json:"canManageReviews"`
	} `json:"permissions"`
}

// RefreshToken models an entry in the refresh_tokens table. Only the
// SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
