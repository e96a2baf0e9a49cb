package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/journal-portal/internal/model"
)

// EditorialBoardRepo manages the editorial_board table.
type EditorialBoardRepo struct{ DB *sql.DB }

func NewEditorialBoardRepo(db *sql.DB) *EditorialBoardRepo { return &EditorialBoardRepo{DB: db} }

func scanBoardMember(rs rowScanner) (model.EditorialBoardMember, error) {
	var (
		m          model.EditorialBoardMember
		bio, image sql.NullString
	)
	if err := rs.Scan(&m.ID, &m.Name, &m.Role, &bio, &image, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return model.EditorialBoardMember{}, translate(err)
	}
	m.Bio, m.Image = bio.String, image.String
	return m, nil
}

func (r *EditorialBoardRepo) List(ctx context.Context) ([]model.EditorialBoardMember, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, name, role, bio, image, created_at, updated_at FROM editorial_board ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.EditorialBoardMember{}
	for rows.Next() {
		m, err := scanBoardMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *EditorialBoardRepo) GetByID(ctx context.Context, id uint64) (model.EditorialBoardMember, error) {
	return scanBoardMember(r.DB.QueryRowContext(ctx,
		"SELECT id, name, role, bio, image, created_at, updated_at FROM editorial_board WHERE id=?", id))
}

func (r *EditorialBoardRepo) Create(ctx context.Context, m *model.EditorialBoardMember) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO editorial_board (name, role, bio, image) VALUES (?,?,?,?)",
		m.Name, m.Role, nullString(m.Bio), nullString(m.Image))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

func (r *EditorialBoardRepo) Update(ctx context.Context, m *model.EditorialBoardMember) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE editorial_board SET name=?, role=?, bio=?, image=? WHERE id=?",
		m.Name, m.Role, nullString(m.Bio), nullString(m.Image), m.ID)
	if err != nil {
		return err
	}
	return r.requireRow(ctx, res, m.ID)
}

func (r *EditorialBoardRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM editorial_board WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// requireRow distinguishes a missing row from an update that changed
// nothing, since MySQL reports both as zero affected rows.
func (r *EditorialBoardRepo) requireRow(ctx context.Context, res sql.Result, id uint64) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err := r.GetByID(ctx, id)
	return err
}

// StaticContentRepo manages the static_content table.
type StaticContentRepo struct{ DB *sql.DB }

func NewStaticContentRepo(db *sql.DB) *StaticContentRepo { return &StaticContentRepo{DB: db} }

func scanStatic(rs rowScanner) (model.StaticContent, error) {
	var (
		c   model.StaticContent
		typ string
	)
	if err := rs.Scan(&c.ID, &c.Title, &c.Content, &typ, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.StaticContent{}, translate(err)
	}
	c.ContentType = model.ContentType(typ)
	return c, nil
}

// List returns all entries, or only those of typ when it is set.
func (r *StaticContentRepo) List(ctx context.Context, typ model.ContentType) ([]model.StaticContent, error) {
	q := "SELECT id, title, content, content_type, created_at, updated_at FROM static_content"
	var args []any
	if typ != "" {
		q += " WHERE content_type=?"
		args = append(args, string(typ))
	}
	rows, err := r.DB.QueryContext(ctx, q+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.StaticContent{}
	for rows.Next() {
		c, err := scanStatic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *StaticContentRepo) GetByID(ctx context.Context, id uint64) (model.StaticContent, error) {
	return scanStatic(r.DB.QueryRowContext(ctx,
		"SELECT id, title, content, content_type, created_at, updated_at FROM static_content WHERE id=?", id))
}

func (r *StaticContentRepo) Create(ctx context.Context, c *model.StaticContent) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO static_content (title, content, content_type) VALUES (?,?,?)",
		c.Title, c.Content, string(c.ContentType))
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

func (r *StaticContentRepo) Update(ctx context.Context, c *model.StaticContent) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE static_content SET title=?, content=?, content_type=? WHERE id=?",
		c.Title, c.Content, string(c.ContentType), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err := r.GetByID(ctx, c.ID)
		return err
	}
	return nil
}

func (r *StaticContentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM static_content WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
