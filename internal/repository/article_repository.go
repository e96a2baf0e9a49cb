package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/journal-portal/internal/model"
)

// ArticleRepo serves the public catalogue. Rows are inserted and
// published through SubmissionRepo.Apply.
type ArticleRepo struct{ DB *sql.DB }

func NewArticleRepo(db *sql.DB) *ArticleRepo { return &ArticleRepo{DB: db} }

const articleColumns = `id, submission_id, title, abstract, keywords, topics, authors, manuscript_path,
	status, featured, published_at, created_at`

func scanArticle(rs rowScanner) (model.Article, error) {
	var (
		a                         model.Article
		keywords, topics, authors []byte
		status                    string
		published                 sql.NullTime
	)
	err := rs.Scan(&a.ID, &a.SubmissionID, &a.Title, &a.Abstract, &keywords, &topics, &authors,
		&a.ManuscriptPath, &status, &a.Featured, &published, &a.CreatedAt)
	if err != nil {
		return model.Article{}, translate(err)
	}
	a.Status = model.ArticleStatus(status)
	a.PublishedAt = timePtr(published)
	if err := decodeJSON(keywords, &a.Keywords); err != nil {
		return model.Article{}, err
	}
	if err := decodeJSON(topics, &a.Topics); err != nil {
		return model.Article{}, err
	}
	if err := decodeJSON(authors, &a.Authors); err != nil {
		return model.Article{}, err
	}
	return a, nil
}

func insertArticleTx(ctx context.Context, tx *sql.Tx, a *model.Article) (uint64, error) {
	keywords, err := jsonArg(a.Keywords)
	if err != nil {
		return 0, err
	}
	topics, err := jsonArg(a.Topics)
	if err != nil {
		return 0, err
	}
	authors, err := jsonArg(a.Authors)
	if err != nil {
		return 0, err
	}
	status := a.Status
	if status == "" {
		status = model.ArticleApproved
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO articles (submission_id, title, abstract, keywords, topics, authors, manuscript_path, status)
		 VALUES (?,?,?,?,?,?,?,?)`,
		a.SubmissionID, a.Title, a.Abstract, keywords, topics, authors, a.ManuscriptPath, string(status))
	if err != nil {
		return 0, translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = uint64(id)
	return a.ID, nil
}

// ListPublished returns one page of published articles matching f, newest
// first, plus the total count.
func (r *ArticleRepo) ListPublished(ctx context.Context, f model.ArticleFilter) ([]model.Article, int, error) {
	_, limit, offset := pageBounds(f.Page, f.PageSize, 10, 50)
	conds := []string{"status='published'"}
	var args []any
	if f.Year > 0 {
		conds = append(conds, "YEAR(published_at)=?")
		args = append(args, f.Year)
	}
	if f.Topic != "" {
		conds = append(conds, "JSON_CONTAINS(topics, JSON_QUOTE(?))")
		args = append(args, f.Topic)
	}
	if f.Author != "" {
		conds = append(conds, "JSON_SEARCH(LOWER(authors), 'one', ?, NULL, '$[*].fullName') IS NOT NULL")
		args = append(args, "%"+strings.ToLower(f.Author)+"%")
	}
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		conds = append(conds, "(title LIKE ? OR abstract LIKE ? OR JSON_SEARCH(keywords, 'one', ?) IS NOT NULL)")
		args = append(args, like, like, like)
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+articleColumns+" FROM articles"+where+" ORDER BY published_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectArticles(rows)
	return out, total, err
}

func collectArticles(rows *sql.Rows) ([]model.Article, error) {
	defer rows.Close()
	out := []model.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Featured returns up to limit featured published articles.
func (r *ArticleRepo) Featured(ctx context.Context, limit int) ([]model.Article, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE status='published' AND featured=1 ORDER BY published_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	return collectArticles(rows)
}

// Years lists the distinct publication years, newest first.
func (r *ArticleRepo) Years(ctx context.Context) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT DISTINCT YEAR(published_at) AS y FROM articles WHERE status='published' AND published_at IS NOT NULL ORDER BY y DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []int{}
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// GetPublished hides approved-but-unpublished articles behind ErrNotFound.
func (r *ArticleRepo) GetPublished(ctx context.Context, id uint64) (model.Article, error) {
	return scanArticle(r.DB.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE id=? AND status='published'", id))
}

func (r *ArticleRepo) GetBySubmission(ctx context.Context, submissionID uint64) (model.Article, error) {
	return scanArticle(r.DB.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE submission_id=?", submissionID))
}

func (r *ArticleRepo) SetFeatured(ctx context.Context, id uint64, featured bool) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE articles SET featured=? WHERE id=?", featured, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		return translate(r.DB.QueryRowContext(ctx, "SELECT 1 FROM articles WHERE id=?", id).Scan(&one))
	}
	return nil
}

func (r *ArticleRepo) CountPublished(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles WHERE status='published'").Scan(&n)
	return n, err
}
