// Package forum provides the relational forum store: categories, topics, and
// the system identities used to attribute ingested content.
package forum

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// DB is the subset of pgxpool.Pool the service needs. Satisfied by
// *pgxpool.Pool and by pgx transactions in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service provides forum store operations over Postgres.
type Service struct {
	db     DB
	logger *slog.Logger
}

// NewService creates a forum service backed by the given database handle.
func NewService(log *slog.Logger, db DB) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     db,
		logger: log.With(slog.String("service", "forum")),
	}
}

// EnsureCategory returns the id of the category with the given name,
// creating it when absent.
func (s *Service) EnsureCategory(ctx context.Context, name, description string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("category name is required")
	}
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("look up category: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id`,
		name, description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	s.logger.Info("category created", slog.String("name", name), slog.Int64("id", id))
	return id, nil
}

// EnsureSystemUser returns the id of the system user with the given username,
// creating it when absent. The account is never used for login, so its
// credential is a bcrypt hash of random bytes.
func (s *Service) EnsureSystemUser(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, fmt.Errorf("username is required")
	}
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("look up user: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return 0, fmt.Errorf("generate credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash credential: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role) VALUES ($1, $2, $3, 'user') RETURNING id`,
		username, username+"@forum.local", string(hash),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("system user created", slog.String("username", username), slog.Int64("id", id))
	return id, nil
}

// CreateTopic inserts one topic row and returns its id.
func (s *Service) CreateTopic(ctx context.Context, input CreateTopicInput) (int64, error) {
	if strings.TrimSpace(input.Title) == "" {
		return 0, fmt.Errorf("topic title is required")
	}
	images := input.Images
	if images == nil {
		images = []string{}
	}
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO topics (title, content, author_id, category_id, images)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		input.Title, input.Content, input.AuthorID, input.CategoryID, images,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create topic: %w", err)
	}
	s.logger.Info("topic created",
		slog.Int64("id", id),
		slog.String("title", input.Title),
		slog.Int("images", len(images)),
	)
	return id, nil
}

// GetTopic returns the topic with the given id.
func (s *Service) GetTopic(ctx context.Context, id int64) (Topic, error) {
	var t Topic
	err := s.db.QueryRow(ctx,
		`SELECT id, title, content, author_id, category_id, images, created_at
		 FROM topics WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Content, &t.AuthorID, &t.CategoryID, &t.Images, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Topic{}, ErrTopicNotFound
	}
	if err != nil {
		return Topic{}, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

// ListTopicsByCategory returns the newest topics in a category, newest first.
func (s *Service) ListTopicsByCategory(ctx context.Context, categoryID int64, limit int) ([]Topic, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, title, content, author_id, category_id, images, created_at
		 FROM topics WHERE category_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		categoryID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	topics := make([]Topic, 0)
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.Content, &t.AuthorID, &t.CategoryID, &t.Images, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

// GetCategory returns the category with the given id.
func (s *Service) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrCategoryNotFound
	}
	if err != nil {
		return Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// ListCategories returns all categories ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, created_at FROM categories ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}
