package postgres

import (
	"context"

	"onlinelibrary/internal/membership"
	"onlinelibrary/internal/platform/logger"
)

const userColumns = `id, user_name, password_hash, salt, balance, created_at`

func scanUser(row scanner) (*membership.User, error) {
	u := &membership.User{}
	if err := row.Scan(&u.ID, &u.UserName, &u.PasswordHash, &u.Salt, &u.Balance, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func getUser(ctx context.Context, q querier, id int64) (*membership.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *membership.User) error {
	query := `INSERT INTO users (user_name, password_hash, salt, balance)
	          VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	logger.DatabaseCall("create_user", query, "user_name", user.UserName)
	err := s.db.QueryRowContext(ctx, query, user.UserName, user.PasswordHash, user.Salt, user.Balance).
		Scan(&user.ID, &user.CreatedAt)
	logger.DatabaseResult("create_user", 1, err, "user_id", user.ID)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*membership.User, error) {
	return getUser(ctx, s.db, id)
}

func (s *Store) FindUserByName(ctx context.Context, userName string) (*membership.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(user_name) = LOWER($1)`, userName))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}
