package students

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/internal/logger"
	"github.com/liamcoop/studentrisk/migrations"
	"github.com/liamcoop/studentrisk/models"
)

// Connect opens and pings a PostgreSQL database.
func Connect(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewMigrate builds a migrate instance over the embedded migrations.
func NewMigrate(db *sqlx.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// Migrate applies every pending migration.
func Migrate(db *sqlx.DB) error {
	m, err := NewMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return nil
}

// PostgresStore implements Store with a students table holding the raw
// attributes as JSONB.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type studentRow struct {
	RollNo     string        `db:"roll_no"`
	Attributes []byte        `db:"attributes"`
	Target     sql.NullInt16 `db:"target"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func (r studentRow) student() (*Student, error) {
	var attrs features.Record
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("invalid attributes for student %s: %w", r.RollNo, err)
	}
	st := &Student{
		RollNo:     r.RollNo,
		Attributes: attrs,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Target.Valid {
		st.Target = labelPtr(models.Label(r.Target.Int16))
	}
	return st, nil
}

func targetValue(t *models.Label) sql.NullInt16 {
	if t == nil {
		return sql.NullInt16{}
	}
	return sql.NullInt16{Int16: int16(*t), Valid: true}
}

const upsertStudent = `
	INSERT INTO students (roll_no, attributes, target, created_at, updated_at)
	VALUES ($1, $2, $3, NOW(), NOW())
	ON CONFLICT (roll_no) DO UPDATE
	SET attributes = EXCLUDED.attributes, target = EXCLUDED.target, updated_at = NOW()
`

func (s *PostgresStore) Get(ctx context.Context, rollNo string) (*Student, error) {
	var row studentRow
	err := s.db.GetContext(ctx, &row, `
		SELECT roll_no, attributes, target, created_at, updated_at
		FROM students
		WHERE roll_no = $1
	`, rollNo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrStudentNotFound, rollNo)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return row.student()
}

func (s *PostgresStore) Put(ctx context.Context, st *Student) error {
	if err := validateStudent(st); err != nil {
		return err
	}
	attrs, err := json.Marshal(st.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertStudent, st.RollNo, attrs, targetValue(st.Target)); err != nil {
		return fmt.Errorf("failed to upsert student: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutMany(ctx context.Context, students []*Student) error {
	for _, st := range students {
		if err := validateStudent(st); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertStudent)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range students {
		attrs, err := json.Marshal(st.Attributes)
		if err != nil {
			return fmt.Errorf("failed to encode attributes for %s: %w", st.RollNo, err)
		}
		if _, err := stmt.ExecContext(ctx, st.RollNo, attrs, targetValue(st.Target)); err != nil {
			return fmt.Errorf("failed to upsert student %s: %w", st.RollNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit students: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM students`); err != nil {
		return fmt.Errorf("failed to delete students: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLabeled(ctx context.Context) ([]*Student, error) {
	var rows []studentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT roll_no, attributes, target, created_at, updated_at
		FROM students
		WHERE target IS NOT NULL
		ORDER BY roll_no ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list labeled students: %w", err)
	}

	out := make([]*Student, 0, len(rows))
	for _, r := range rows {
		st, err := r.student()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
