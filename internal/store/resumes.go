package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/resume"
)

const resumeColumns = `id, user_id, title, description, first_name, last_name, job_title,
	city, country, phone, email, photo_url, skills, summary, color_hex, border_style,
	created_at, updated_at`

// CountResumes returns how many resumes userID owns.
func (s *Store) CountResumes(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM resumes WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count resumes: %w", err)
	}
	return n, nil
}

// GetResume loads resume id with its sub-collections. A resume owned by
// someone else is reported as not found.
func (s *Store) GetResume(ctx context.Context, userID, id string) (*resume.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+resumeColumns+" FROM resumes WHERE id = ? AND user_id = ?", id, userID)
	rec, err := scanResume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("store.get_resume", "resume")
	}
	if err != nil {
		return nil, fmt.Errorf("get resume: %w", err)
	}
	if err := s.loadChildren(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListResumes returns userID's resumes, most recently updated first.
func (s *Store) ListResumes(ctx context.Context, userID string, limit, offset int) ([]*resume.Record, int, error) {
	total, err := s.CountResumes(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+resumeColumns+` FROM resumes WHERE user_id = ?
		ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list resumes: %w", err)
	}
	defer rows.Close()

	var out []*resume.Record
	for rows.Next() {
		rec, err := scanResume(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan resume: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list resumes: %w", err)
	}

	for _, rec := range out {
		if err := s.loadChildren(ctx, s.db, rec); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// CreateResume inserts rec and its sub-collections.
func (s *Store) CreateResume(ctx context.Context, rec *resume.Record) error {
	skills, err := json.Marshal(nonNil(rec.Skills))
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	return s.runTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO resumes ("+resumeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.UserID, rec.Title, rec.Description, rec.FirstName, rec.LastName, rec.JobTitle,
			rec.City, rec.Country, rec.Phone, rec.Email, nullString(rec.PhotoURL), string(skills),
			rec.Summary, rec.ColorHex, string(rec.BorderStyle.OrDefault()),
			toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert resume: %w", err)
		}
		return insertChildren(ctx, tx, rec)
	})
}

// UpdateResume rewrites rec and replaces all of its work experience and
// education rows.
func (s *Store) UpdateResume(ctx context.Context, rec *resume.Record) error {
	skills, err := json.Marshal(nonNil(rec.Skills))
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	return s.runTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE resumes SET
			title = ?, description = ?, first_name = ?, last_name = ?, job_title = ?,
			city = ?, country = ?, phone = ?, email = ?, photo_url = ?, skills = ?,
			summary = ?, color_hex = ?, border_style = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			rec.Title, rec.Description, rec.FirstName, rec.LastName, rec.JobTitle,
			rec.City, rec.Country, rec.Phone, rec.Email, nullString(rec.PhotoURL), string(skills),
			rec.Summary, rec.ColorHex, string(rec.BorderStyle.OrDefault()), toMillis(rec.UpdatedAt),
			rec.ID, rec.UserID)
		if err != nil {
			return fmt.Errorf("update resume: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("store.update_resume", "resume")
		}

		for _, table := range []string{"work_experiences", "educations"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE resume_id = ?", rec.ID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return insertChildren(ctx, tx, rec)
	})
}

// DeleteResume removes resume id; sub-collections cascade.
func (s *Store) DeleteResume(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM resumes WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete resume: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("store.delete_resume", "resume")
	}
	return nil
}

func insertChildren(ctx context.Context, tx *sql.Tx, rec *resume.Record) error {
	for i, w := range rec.WorkExperience {
		_, err := tx.ExecContext(ctx, `INSERT INTO work_experiences
			(resume_id, ord, id, position, company, start_date, end_date, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, uuid.NewString(), w.Position, w.Company,
			nullString(w.StartDate), nullString(w.EndDate), w.Description)
		if err != nil {
			return fmt.Errorf("insert work experience %d: %w", i, err)
		}
	}
	for i, e := range rec.Education {
		_, err := tx.ExecContext(ctx, `INSERT INTO educations
			(resume_id, ord, id, degree, school, start_date, end_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, uuid.NewString(), e.Degree, e.School,
			nullString(e.StartDate), nullString(e.EndDate))
		if err != nil {
			return fmt.Errorf("insert education %d: %w", i, err)
		}
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) loadChildren(ctx context.Context, q querier, rec *resume.Record) error {
	rows, err := q.QueryContext(ctx, `SELECT position, company, start_date, end_date, description
		FROM work_experiences WHERE resume_id = ? ORDER BY ord`, rec.ID)
	if err != nil {
		return fmt.Errorf("load work experience: %w", err)
	}
	rec.WorkExperience = nil
	for rows.Next() {
		var w resume.WorkExperience
		var start, end sql.NullString
		if err := rows.Scan(&w.Position, &w.Company, &start, &end, &w.Description); err != nil {
			rows.Close()
			return fmt.Errorf("scan work experience: %w", err)
		}
		w.StartDate, w.EndDate = start.String, end.String
		rec.WorkExperience = append(rec.WorkExperience, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load work experience: %w", err)
	}

	rows, err = q.QueryContext(ctx, `SELECT degree, school, start_date, end_date
		FROM educations WHERE resume_id = ? ORDER BY ord`, rec.ID)
	if err != nil {
		return fmt.Errorf("load education: %w", err)
	}
	defer rows.Close()
	rec.Education = nil
	for rows.Next() {
		var e resume.Education
		var start, end sql.NullString
		if err := rows.Scan(&e.Degree, &e.School, &start, &end); err != nil {
			return fmt.Errorf("scan education: %w", err)
		}
		e.StartDate, e.EndDate = start.String, end.String
		rec.Education = append(rec.Education, e)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResume(row scanner) (*resume.Record, error) {
	var (
		rec                  resume.Record
		photo                sql.NullString
		skills, border       string
		createdAt, updatedAt int64
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Description, &rec.FirstName, &rec.LastName,
		&rec.JobTitle, &rec.City, &rec.Country, &rec.Phone, &rec.Email, &photo, &skills,
		&rec.Summary, &rec.ColorHex, &border, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(skills), &rec.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	rec.PhotoURL = photo.String
	rec.BorderStyle = resume.BorderStyle(border)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
