package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"gatekeeper.dev/internal/ids"
	"gatekeeper.dev/internal/users"
)

// UserStore implements users.Store on Postgres.
type UserStore struct {
	db *sql.DB
}

var _ users.Store = (*UserStore)(nil)

func (s *UserStore) Create(ctx context.Context, u users.User) (users.User, error) {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, name, role, password_hash, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, u.ID, u.Email, u.Name, u.Role, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return users.User{}, fmt.Errorf("%w: email %s", users.ErrAlreadyExists, u.Email)
		}
		return users.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *UserStore) Find(ctx context.Context, id string) (users.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, name, role, password_hash, created_at
		from users where id = $1
	`, id))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (users.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, name, role, password_hash, created_at
		from users where email = $1
	`, email))
}

func (s *UserStore) List(ctx context.Context) ([]users.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, name, role, password_hash, created_at
		from users order by id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []users.User
	for rows.Next() {
		var u users.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *UserStore) Update(ctx context.Context, id string, upd users.Update) (users.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return users.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	u, err := s.scanOne(tx.QueryRowContext(ctx, `
		select id, email, name, role, password_hash, created_at
		from users where id = $1 for update
	`, id))
	if err != nil {
		return users.User{}, err
	}

	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = upd.Role.String()
	}
	if upd.Password != nil {
		u.PasswordHash = *upd.Password
	}

	if _, err := tx.ExecContext(ctx, `
		update users set email = $2, name = $3, role = $4, password_hash = $5
		where id = $1
	`, u.ID, u.Email, u.Name, u.Role, u.PasswordHash); err != nil {
		if isUniqueViolation(err) {
			return users.User{}, fmt.Errorf("%w: email %s", users.ErrAlreadyExists, u.Email)
		}
		return users.User{}, fmt.Errorf("update user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return users.User{}, err
	}
	return u, nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (s *UserStore) scanOne(row *sql.Row) (users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return users.User{}, users.ErrNotFound
	}
	if err != nil {
		return users.User{}, err
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
