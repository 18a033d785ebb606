package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
)

var certificateFields = []string{"id", "learner_id", "course_id", "module_count", "issued_at"}

// IssueCertificate creates the certificate for the unit of work's key unless
// one already exists. The unique (learner_id, course_id) index makes
// concurrent issuers collapse to a single row; the losing caller gets the
// existing certificate and created == false.
func (t *Tx) IssueCertificate(ctx context.Context, cert Certificate) (_ *Certificate, created bool, err error) {
	cert.LearnerID, cert.CourseID = t.key.LearnerID, t.key.CourseID

	query, args := t.b.Insert(tableCertificates).
		Columns(certificateFields...).
		Values(cert.ID, cert.LearnerID, cert.CourseID, cert.ModuleCount, cert.IssuedAt).
		OnConflict(entsql.ConflictColumns("learner_id", "course_id"), entsql.DoNothing()).
		Query()
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("issue certificate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("issue certificate: %w", err)
	}
	if n == 1 {
		return &cert, true, nil
	}

	existing, err := getCertificate(ctx, t.tx, t.b, t.key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Certificate returns the certificate for key, or nil if none was issued.
func (t *Tx) Certificate(ctx context.Context) (*Certificate, error) {
	c, err := getCertificate(ctx, t.tx, t.b, t.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// Certificate returns the certificate for key, or nil if none was issued.
func (s *Store) Certificate(ctx context.Context, key Key) (*Certificate, error) {
	c, err := getCertificate(ctx, s.db, s.builder(), key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// CertificateByID looks a certificate up by its ID.
func (s *Store) CertificateByID(ctx context.Context, id string) (*Certificate, error) {
	b := s.builder()
	query, args := b.Select(certificateFields...).
		From(b.Table(tableCertificates)).
		Where(entsql.EQ("id", id)).
		Query()
	var c Certificate
	if err := sqlx.GetContext(ctx, s.db, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("certificate %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query certificate: %w", err)
	}
	return &c, nil
}

// ListCertificates returns every certificate issued to learnerID, oldest first.
func (s *Store) ListCertificates(ctx context.Context, learnerID string) ([]Certificate, error) {
	b := s.builder()
	query, args := b.Select(certificateFields...).
		From(b.Table(tableCertificates)).
		Where(entsql.EQ("learner_id", learnerID)).
		OrderBy("issued_at", "course_id").
		Query()
	var certs []Certificate
	if err := sqlx.SelectContext(ctx, s.db, &certs, query, args...); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

// CountCertificates returns how many certificates exist for key. It is
// always 0 or 1 and exists to let callers assert that.
func (s *Store) CountCertificates(ctx context.Context, key Key) (int, error) {
	b := s.builder()
	query, args := b.Select(entsql.Count("*")).
		From(b.Table(tableCertificates)).
		Where(keyPredicate(key)).
		Query()
	var n int
	if err := sqlx.GetContext(ctx, s.db, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

func getCertificate(ctx context.Context, q sqlx.QueryerContext, b *entsql.DialectBuilder, key Key) (*Certificate, error) {
	query, args := b.Select(certificateFields...).
		From(b.Table(tableCertificates)).
		Where(keyPredicate(key)).
		Query()
	var c Certificate
	if err := sqlx.GetContext(ctx, q, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("certificate for %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("query certificate: %w", err)
	}
	return &c, nil
}
