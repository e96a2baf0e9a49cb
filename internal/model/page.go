package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PageKind names a public site section backed by the document store.
type PageKind string

const (
	PageNewsroom     PageKind = "newsroom"
	PageSpecialties  PageKind = "specialties"
	PageResources    PageKind = "resources"
	PageCompetitions PageKind = "competitions"
	PageChannels     PageKind = "channels"
	PagePartnerships PageKind = "partnerships"
)

func ParsePageKind(s string) (PageKind, bool) {
	k := PageKind(s)
	switch k {
	case PageNewsroom, PageSpecialties, PageResources, PageCompetitions, PageChannels, PagePartnerships:
		return k, true
	}
	return "", false
}

// Bookmarkable kinds accept the bookmark toggle.
func (k PageKind) Bookmarkable() bool {
	return k == PageResources || k == PageCompetitions || k == PageChannels || k == PagePartnerships
}

// PageItem is one document in the pages collection. Kind-specific fields
// are left empty for the kinds that do not use them.
type PageItem struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind        PageKind           `bson:"kind" json:"kind"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Content     string             `bson:"content,omitempty" json:"content,omitempty"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`
	Author      string             `bson:"author,omitempty" json:"author,omitempty"`
	Image       string             `bson:"image,omitempty" json:"image,omitempty"`
	Tags        []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	Featured    bool               `bson:"featured" json:"featured"`
	Popular     bool               `bson:"popular,omitempty" json:"isPopular,omitempty"`

	// resources: type and link; channels: type public|private.
	Type string `bson:"type,omitempty" json:"type,omitempty"`
	Link string `bson:"link,omitempty" json:"link,omitempty"`

	// competitions
	Status       string     `bson:"status,omitempty" json:"status,omitempty"`
	StartDate    *time.Time `bson:"startDate,omitempty" json:"startDate,omitempty"`
	EndDate      *time.Time `bson:"endDate,omitempty" json:"endDate,omitempty"`
	Requirements string     `bson:"requirements,omitempty" json:"requirements,omitempty"`
	Prizes       string     `bson:"prizes,omitempty" json:"prizes,omitempty"`

	// partnerships
	Website string     `bson:"website,omitempty" json:"website,omitempty"`
	Since   *time.Time `bson:"since,omitempty" json:"since,omitempty"`

	Members []uint64 `bson:"members,omitempty" json:"members,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// PageQuery drives a section listing.
type PageQuery struct {
	Kind     PageKind
	Category string
	Search   string
	Page     int
	Limit    int
}

type PageList struct {
	Items       []PageItem `json:"items"`
	Categories  []string   `json:"categories"`
	Featured    []PageItem `json:"featured"`
	TotalPages  int        `json:"totalPages"`
	CurrentPage int        `json:"currentPage"`
	Total       int64      `json:"total"`
}

type TeamMember struct {
	Name     string `bson:"name" json:"name"`
	Role     string `bson:"role" json:"role"`
	Bio      string `bson:"bio,omitempty" json:"bio,omitempty"`
	Image    string `bson:"image,omitempty" json:"image,omitempty"`
	LinkedIn string `bson:"linkedin,omitempty" json:"linkedin,omitempty"`
	Twitter  string `bson:"twitter,omitempty" json:"twitter,omitempty"`
}

type Milestone struct {
	Year        int    `bson:"year" json:"year"`
	Description string `bson:"description" json:"description"`
}

// AboutContent is the single "about us" document.
type AboutContent struct {
	Mission     string       `bson:"mission" json:"mission"`
	Values      []string     `bson:"values,omitempty" json:"values,omitempty"`
	History     []Milestone  `bson:"history,omitempty" json:"history,omitempty"`
	Team        []TeamMember `bson:"team,omitempty" json:"team,omitempty"`
	ContactInfo struct {
		Email   string `bson:"email,omitempty" json:"email,omitempty"`
		Phone   string `bson:"phone,omitempty" json:"phone,omitempty"`
		Address string `bson:"address,omitempty" json:"address,omitempty"`
	} `bson:"contactInfo" json:"contactInfo"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Activity is one authenticated request recorded for analytics.
type Activity struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    uint64             `bson:"userId" json:"userId"`
	Method    string             `bson:"method" json:"method"`
	Route     string             `bson:"route" json:"route"`
	Status    int                `bson:"status" json:"status"`
	IP        string             `bson:"ip" json:"ip"`
	UserAgent string             `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	At        time.Time          `bson:"at" json:"at"`
}
