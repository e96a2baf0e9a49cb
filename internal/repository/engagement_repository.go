package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/journal-portal/internal/model"
)

// NewsletterRepo stores newsletter subscriptions.
type NewsletterRepo struct{ DB *sql.DB }

func NewNewsletterRepo(db *sql.DB) *NewsletterRepo { return &NewsletterRepo{DB: db} }

// Subscribe returns ErrDuplicate when the address is already on the list.
func (r *NewsletterRepo) Subscribe(ctx context.Context, email string) (model.NewsletterSubscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx, "INSERT INTO newsletter_subscribers (email) VALUES (?)", email)
	if err != nil {
		return model.NewsletterSubscriber{}, translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.NewsletterSubscriber{}, err
	}
	var s model.NewsletterSubscriber
	err = r.DB.QueryRowContext(ctx,
		"SELECT id, email, created_at FROM newsletter_subscribers WHERE id=?", id).Scan(&s.ID, &s.Email, &s.CreatedAt)
	return s, translate(err)
}

func (r *NewsletterRepo) List(ctx context.Context) ([]model.NewsletterSubscriber, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, email, created_at FROM newsletter_subscribers ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.NewsletterSubscriber{}
	for rows.Next() {
		var s model.NewsletterSubscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CaseRepo stores picture-prognosis cases.
type CaseRepo struct{ DB *sql.DB }

func NewCaseRepo(db *sql.DB) *CaseRepo { return &CaseRepo{DB: db} }

func (r *CaseRepo) Create(ctx context.Context, c *model.Case) error {
	if c.Files == nil {
		c.Files = []string{}
	}
	files, err := jsonArg(c.Files)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO cases (submitted_by, title, description, specialty, files) VALUES (?,?,?,?,?)",
		c.SubmittedBy, c.Title, c.Description, nullString(c.Specialty), files)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

func (r *CaseRepo) List(ctx context.Context) ([]model.Case, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, submitted_by, title, description, specialty, files, created_at FROM cases ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Case{}
	for rows.Next() {
		var (
			c         model.Case
			specialty sql.NullString
			files     []byte
		)
		if err := rows.Scan(&c.ID, &c.SubmittedBy, &c.Title, &c.Description, &specialty, &files, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Specialty = specialty.String
		if err := decodeJSON(files, &c.Files); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// WaitlistRepo stores peer-review waitlist sign-ups.
type WaitlistRepo struct{ DB *sql.DB }

func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{DB: db} }

// Join returns ErrDuplicate when the email already signed up.
func (r *WaitlistRepo) Join(ctx context.Context, e *model.WaitlistEntry) error {
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO waitlist (name, email, institution, motivation) VALUES (?,?,?,?)",
		e.Name, e.Email, nullString(e.Institution), nullString(e.Motivation))
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

func (r *WaitlistRepo) List(ctx context.Context) ([]model.WaitlistEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, name, email, institution, motivation, created_at FROM waitlist ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.WaitlistEntry{}
	for rows.Next() {
		var (
			e           model.WaitlistEntry
			inst, motiv sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &inst, &motiv, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Institution, e.Motivation = inst.String, motiv.String
		out = append(out, e)
	}
	return out, rows.Err()
}
