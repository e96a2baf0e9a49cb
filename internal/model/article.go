package model

import "time"

type ArticleStatus string

const (
	ArticleApproved  ArticleStatus = "approved"
	ArticlePublished ArticleStatus = "published"
)

type ArticleAuthor struct {
	AuthorID    *uint64 `json:"authorId,omitempty"`
	FullName    string  `json:"fullName"`
	Affiliation string  `json:"affiliation,omitempty"`
}

// Article is the public record created when a submission is accepted.
type Article struct {
	ID             uint64          `json:"id"`
	SubmissionID   uint64          `json:"submissionId"`
	Title          string          `json:"title"`
	Abstract       string          `json:"abstract"`
	Keywords       []string        `json:"keywords"`
	Topics         []string        `json:"topics"`
	Authors        []ArticleAuthor `json:"authors"`
	ManuscriptPath string          `json:"manuscriptUrl"`
	Status         ArticleStatus   `json:"status"`
	Featured       bool            `json:"featured"`
	PublishedAt    *time.Time      `json:"publishedDate,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ArticleFilter narrows the public listing. Only published articles are
// ever listed.
type ArticleFilter struct {
	Year     int
	Topic    string
	Author   string
	Keyword  string
	Page     int
	PageSize int
}

// ArticleFromSubmission builds the article row inserted on acceptance.
func ArticleFromSubmission(s Submission, author User) Article {
	authors := make([]ArticleAuthor, 0, len(s.Authors)+1)
	lead := ArticleAuthor{AuthorID: &s.AuthorID, FullName: author.DisplayName()}
	if s.AuthorInfo != nil {
		if s.AuthorInfo.FullName != "" {
			lead.FullName = s.AuthorInfo.FullName
		}
		lead.Affiliation = s.AuthorInfo.Affiliation
	}
	authors = append(authors, lead)
	for _, c := range s.Authors {
		if c.Name == "" || c.Name == lead.FullName {
			continue
		}
		authors = append(authors, ArticleAuthor{FullName: c.Name})
	}
	keywords := s.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return Article{
		SubmissionID:   s.ID,
		Title:          s.Title,
		Abstract:       s.Abstract,
		Keywords:       keywords,
		Topics:         keywords,
		Authors:        authors,
		ManuscriptPath: s.Files.Manuscript,
		Status:         ArticleApproved,
	}
}
