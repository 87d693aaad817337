package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
	"github.com/swapmeet/marketplace/backend/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGSERIAL PRIMARY KEY,
		name       VARCHAR(100) NOT NULL,
		email      VARCHAR(255) UNIQUE NOT NULL,
		password   VARCHAR(255) NOT NULL,
		role       VARCHAR(10)  NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id          BIGSERIAL PRIMARY KEY,
		title       VARCHAR(255)     NOT NULL,
		description TEXT             NOT NULL,
		price       DOUBLE PRECISION NOT NULL CHECK (price >= 0),
		available   BOOLEAN          NOT NULL DEFAULT TRUE,
		image_url   TEXT             NOT NULL DEFAULT '',
		image_key   TEXT             NOT NULL DEFAULT '',
		owner_id    BIGINT           NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS items_owner_id_idx ON items (owner_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         BIGSERIAL PRIMARY KEY,
		text       TEXT        NOT NULL,
		user_id    BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		item_id    BIGINT      NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_item_id_created_at_idx ON messages (item_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS messages_user_id_idx ON messages (user_id)`,
}

// PostgresStore handles users, items and messages against PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// translate maps constraint violations onto the service error taxonomy.
func translate(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if strings.Contains(pgErr.ConstraintName, "email") {
				return apperr.Conflict("Email is already registered")
			}
			return apperr.Conflict("Record already exists")
		case pgForeignKeyViolation:
			if strings.HasSuffix(pgErr.ConstraintName, "item_id_fkey") {
				return apperr.NotFound("Item not found")
			}
			return apperr.NotFound("User not found")
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ── Users ────────────────────────────────────────────────────

const userColumns = `id, name, email, password, role, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, name, email, hashedPassword, role string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		name, email, hashedPassword, role,
	))
	if err != nil {
		return nil, translate("create user", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id int64, name, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, email = $3 WHERE id = $1 RETURNING `+userColumns,
		id, name, email,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("update user", err)
	}
	return u, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id int64, hashedPassword string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password = $2 WHERE id = $1`, id, hashedPassword)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}

// DeleteUser removes a user; items and messages go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ── Items ────────────────────────────────────────────────────

const itemSelect = `
	SELECT i.id, i.title, i.description, i.price, i.available, i.image_url, i.image_key,
	       i.owner_id, i.created_at, u.name, u.email
	FROM items i JOIN users u ON u.id = i.owner_id`

func scanItem(row pgx.Row) (*models.Item, error) {
	var it models.Item
	owner := &models.UserSummary{}
	if err := row.Scan(&it.ID, &it.Title, &it.Description, &it.Price, &it.Available,
		&it.ImageURL, &it.ImageKey, &it.OwnerID, &it.CreatedAt, &owner.Name, &owner.Email); err != nil {
		return nil, err
	}
	owner.ID = it.OwnerID
	it.Owner = owner
	return &it, nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, it *models.Item) (*models.Item, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO items (title, description, price, available, image_url, owner_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		it.Title, it.Description, it.Price, it.Available, it.ImageURL, it.OwnerID,
	).Scan(&id)
	if err != nil {
		return nil, translate("create item", err)
	}
	return s.GetItem(ctx, id)
}

// ListItems returns items newest first, narrowed by the filter.
func (s *PostgresStore) ListItems(ctx context.Context, f models.ItemFilter) ([]models.Item, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(i.title ILIKE $"+n+" OR i.description ILIKE $"+n+")")
	}
	if f.Available != nil {
		args = append(args, *f.Available)
		where = append(where, "i.available = $"+strconv.Itoa(len(args)))
	}
	if f.OwnerID != 0 {
		args = append(args, f.OwnerID)
		where = append(where, "i.owner_id = $"+strconv.Itoa(len(args)))
	}

	sql := itemSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY i.created_at DESC, i.id DESC"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx, itemSelect+` WHERE i.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// UpdateItem overwrites the mutable columns. owner_id is never written.
func (s *PostgresStore) UpdateItem(ctx context.Context, it *models.Item) (*models.Item, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE items
		 SET title = $2, description = $3, price = $4, available = $5, image_url = $6, image_key = $7
		 WHERE id = $1`,
		it.ID, it.Title, it.Description, it.Price, it.Available, it.ImageURL, it.ImageKey,
	)
	if err != nil {
		return nil, translate("update item", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return s.GetItem(ctx, it.ID)
}

func (s *PostgresStore) DeleteItem(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// ── Messages ─────────────────────────────────────────────────

// CreateMessage inserts a message and returns it joined with its author and item.
func (s *PostgresStore) CreateMessage(ctx context.Context, userID, itemID int64, text string) (*models.Message, error) {
	m := models.Message{User: &models.UserSummary{}, Item: &models.ItemSummary{}}
	err := s.pool.QueryRow(ctx,
		`WITH m AS (
			INSERT INTO messages (text, user_id, item_id)
			VALUES ($1, $2, $3)
			RETURNING id, text, user_id, item_id, created_at
		)
		SELECT m.id, m.text, m.user_id, m.item_id, m.created_at,
		       u.name, u.email, i.title, i.owner_id
		FROM m
		JOIN users u ON u.id = m.user_id
		JOIN items i ON i.id = m.item_id`,
		text, userID, itemID,
	).Scan(&m.ID, &m.Text, &m.UserID, &m.ItemID, &m.Timestamp,
		&m.User.Name, &m.User.Email, &m.Item.Title, &m.Item.OwnerID)
	if err != nil {
		return nil, translate("create message", err)
	}
	m.User.ID = m.UserID
	m.Item.ID = m.ItemID
	return &m, nil
}

// ListMessages returns an item's messages oldest first. Unknown items yield an empty list.
func (s *PostgresStore) ListMessages(ctx context.Context, itemID int64) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.text, m.user_id, m.item_id, m.created_at, u.name, u.email
		 FROM messages m JOIN users u ON u.id = m.user_id
		 WHERE m.item_id = $1
		 ORDER BY m.created_at ASC, m.id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		m := models.Message{User: &models.UserSummary{}}
		if err := rows.Scan(&m.ID, &m.Text, &m.UserID, &m.ItemID, &m.Timestamp,
			&m.User.Name, &m.User.Email); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.User.ID = m.UserID
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListUserChats aggregates every item the user owns or has written on.
func (s *PostgresStore) ListUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT i.id, i.title, i.description, i.price, i.available, i.image_url, i.owner_id, i.created_at,
		        COALESCE(c.cnt, 0), lm.id, lm.text, lm.user_id, lm.created_at, lu.name, lu.email
		 FROM items i
		 LEFT JOIN LATERAL (SELECT COUNT(*) AS cnt FROM messages WHERE item_id = i.id) c ON TRUE
		 LEFT JOIN LATERAL (
			SELECT id, text, user_id, created_at FROM messages
			WHERE item_id = i.id ORDER BY created_at DESC, id DESC LIMIT 1
		 ) lm ON TRUE
		 LEFT JOIN users lu ON lu.id = lm.user_id
		 WHERE i.owner_id = $1
		    OR EXISTS (SELECT 1 FROM messages WHERE item_id = i.id AND user_id = $1)
		 ORDER BY i.created_at DESC, i.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user chats: %w", err)
	}
	defer rows.Close()

	chats := []models.ChatSummary{}
	for rows.Next() {
		var (
			cs        models.ChatSummary
			count     int64
			lastID    *int64
			lastText  *string
			lastUser  *int64
			lastAt    *time.Time
			lastName  *string
			lastEmail *string
		)
		if err := rows.Scan(&cs.Item.ID, &cs.Item.Title, &cs.Item.Description, &cs.Item.Price,
			&cs.Item.Available, &cs.Item.ImageURL, &cs.Item.OwnerID, &cs.Item.CreatedAt,
			&count, &lastID, &lastText, &lastUser, &lastAt, &lastName, &lastEmail); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		cs.IsOwner = cs.Item.OwnerID == userID
		cs.MessageCount = int(count)
		if lastID != nil {
			cs.LastMessage = &models.Message{
				ID:        *lastID,
				Text:      *lastText,
				UserID:    *lastUser,
				ItemID:    cs.Item.ID,
				Timestamp: *lastAt,
				User:      &models.UserSummary{ID: *lastUser, Name: *lastName, Email: *lastEmail},
			}
		}
		chats = append(chats, cs)
	}
	return chats, rows.Err()
}
