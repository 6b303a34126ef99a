package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type UserInfo struct {
	ID        string
	Username  string
	Role      string
	CreatedAt time.Time
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (UserInfo, error) {
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return UserInfo{}, ErrUserNotFound
	}

	var (
		id        pgtype.UUID
		username  string
		role      string
		createdAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx,
		`SELECT id, username, role, created_at FROM users WHERE id = $1`,
		pgtype.UUID{Bytes: parsed, Valid: true},
	).Scan(&id, &username, &role, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserInfo{}, ErrUserNotFound
	}
	if err != nil {
		return UserInfo{}, fmt.Errorf("query user: %w", err)
	}

	return UserInfo{
		ID:        uuidToString(id.Bytes),
		Username:  username,
		Role:      role,
		CreatedAt: createdAt.Time,
	}, nil
}

func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return ErrUserNotFound
	}

	pgID := pgtype.UUID{Bytes: parsed, Valid: true}
	if _, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, pgID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]UserInfo, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, role, created_at
		FROM users
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`,
		int32(limit), int32(offset))
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var result []UserInfo
	for rows.Next() {
		var (
			id        pgtype.UUID
			info      UserInfo
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &info.Username, &info.Role, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		info.ID = uuidToString(id.Bytes)
		info.CreatedAt = createdAt.Time
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return result, total, nil
}

func uuidToString(id [16]byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		id[0:4], id[4:6], id[6:8], id[8:10], id[10:16])
}
