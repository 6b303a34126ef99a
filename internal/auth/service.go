package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accessdesk/credpool/internal/users"
)

var (
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type RegisterResult struct {
	ID       string
	Username string
	Role     string
}

type Service struct {
	pool   *pgxpool.Pool
	config Config
}

func NewService(pool *pgxpool.Pool, config Config) *Service {
	return &Service{
		pool:   pool,
		config: config,
	}
}

func (s *Service) Register(ctx context.Context, username, password string) (RegisterResult, error) {
	if err := users.ValidatePassword(password); err != nil {
		return RegisterResult{}, err
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	var (
		id   pgtype.UUID
		role string
	)
	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, role`,
		username, hash, users.RoleUser,
	).Scan(&id, &role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return RegisterResult{}, ErrUsernameExists
		}
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	return RegisterResult{
		ID:       uuidToString(id.Bytes),
		Username: username,
		Role:     role,
	}, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	var (
		id           pgtype.UUID
		passwordHash string
		role         string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, password_hash, role FROM users WHERE username = $1`,
		username,
	).Scan(&id, &passwordHash, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("query user: %w", err)
	}

	if !users.CheckPassword(password, passwordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.config, uuidToString(id.Bytes), username, role)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

func uuidToString(id [16]byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		id[0:4], id[4:6], id[6:8], id[8:10], id[10:16])
}
