package community

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the networking surface around the auth core:
// projects, startups, and direct messages.
type Repository struct {
	DB *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{DB: db}
}

const projectColumns = `id, owner_id, title, description, category, skills_needed, is_open, created_at, updated_at`

type ProjectFilter struct {
	Category string
	OpenOnly bool
	OwnerID  string
	Limit    int
}

func (r *Repository) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := r.DB.Exec(ctx, `
		INSERT INTO projects (id, owner_id, title, description, category, skills_needed, is_open, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.OwnerID, p.Title, p.Description, p.Category, p.SkillsNeed, p.IsOpen, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *Repository) FindProject(ctx context.Context, id string) (*Project, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	where := []string{"TRUE"}
	args := []any{}
	idx := 1

	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category=$%d", idx))
		args = append(args, filter.Category)
		idx++
	}
	if filter.OwnerID != "" {
		where = append(where, fmt.Sprintf("owner_id=$%d", idx))
		args = append(args, filter.OwnerID)
		idx++
	}
	if filter.OpenOnly {
		where = append(where, "is_open")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM projects
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, projectColumns, strings.Join(where, " AND "), idx)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

type ProjectChanges struct {
	Title       *string
	Description *string
	Category    *string
	SkillsNeed  []string
	IsOpen      *bool
}

// UpdateProject applies a partial edit scoped to the owner; a nil result
// means no project of that id belongs to the caller.
func (r *Repository) UpdateProject(ctx context.Context, id, ownerID string, changes ProjectChanges) (*Project, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{}
	idx := 1

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s=$%d", col, idx))
		args = append(args, val)
		idx++
	}
	if changes.Title != nil {
		add("title", *changes.Title)
	}
	if changes.Description != nil {
		add("description", *changes.Description)
	}
	if changes.Category != nil {
		add("category", changes.Category)
	}
	if changes.SkillsNeed != nil {
		add("skills_needed", changes.SkillsNeed)
	}
	if changes.IsOpen != nil {
		add("is_open", *changes.IsOpen)
	}

	args = append(args, id, ownerID)
	query := fmt.Sprintf(`
		UPDATE projects SET %s
		WHERE id=$%d AND owner_id=$%d
		RETURNING %s
	`, strings.Join(sets, ", "), idx, idx+1, projectColumns)

	p, err := scanProject(r.DB.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) DeleteProject(ctx context.Context, id, ownerID string) (bool, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM projects WHERE id=$1 AND owner_id=$2`, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const startupColumns = `id, owner_id, name, pitch, industry, website, stage, is_hiring, created_at, updated_at`

type StartupFilter struct {
	Industry   string
	HiringOnly bool
	OwnerID    string
	Limit      int
}

func (r *Repository) CreateStartup(ctx context.Context, s *Startup) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := r.DB.Exec(ctx, `
		INSERT INTO startups (id, owner_id, name, pitch, industry, website, stage, is_hiring, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.ID, s.OwnerID, s.Name, s.Pitch, s.Industry, s.Website, s.Stage, s.IsHiring, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *Repository) FindStartup(ctx context.Context, id string) (*Startup, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+startupColumns+` FROM startups WHERE id=$1`, id)
	s, err := scanStartup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *Repository) ListStartups(ctx context.Context, filter StartupFilter) ([]Startup, error) {
	where := []string{"TRUE"}
	args := []any{}
	idx := 1

	if filter.Industry != "" {
		where = append(where, fmt.Sprintf("industry=$%d", idx))
		args = append(args, filter.Industry)
		idx++
	}
	if filter.OwnerID != "" {
		where = append(where, fmt.Sprintf("owner_id=$%d", idx))
		args = append(args, filter.OwnerID)
		idx++
	}
	if filter.HiringOnly {
		where = append(where, "is_hiring")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM startups
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, startupColumns, strings.Join(where, " AND "), idx)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var startups []Startup
	for rows.Next() {
		s, err := scanStartup(rows)
		if err != nil {
			return nil, err
		}
		startups = append(startups, *s)
	}
	return startups, rows.Err()
}

type StartupChanges struct {
	Name     *string
	Pitch    *string
	Industry *string
	Website  *string
	Stage    *string
	IsHiring *bool
}

func (r *Repository) UpdateStartup(ctx context.Context, id, ownerID string, changes StartupChanges) (*Startup, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{}
	idx := 1

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s=$%d", col, idx))
		args = append(args, val)
		idx++
	}
	if changes.Name != nil {
		add("name", *changes.Name)
	}
	if changes.Pitch != nil {
		add("pitch", *changes.Pitch)
	}
	if changes.Industry != nil {
		add("industry", changes.Industry)
	}
	if changes.Website != nil {
		add("website", changes.Website)
	}
	if changes.Stage != nil {
		add("stage", changes.Stage)
	}
	if changes.IsHiring != nil {
		add("is_hiring", *changes.IsHiring)
	}

	args = append(args, id, ownerID)
	query := fmt.Sprintf(`
		UPDATE startups SET %s
		WHERE id=$%d AND owner_id=$%d
		RETURNING %s
	`, strings.Join(sets, ", "), idx, idx+1, startupColumns)

	s, err := scanStartup(r.DB.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *Repository) DeleteStartup(ctx context.Context, id, ownerID string) (bool, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM startups WHERE id=$1 AND owner_id=$2`, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := r.DB.Exec(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, body, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, m.ID, m.SenderID, m.ReceiverID, m.Body, m.CreatedAt)
	return err
}

// ListThread returns the newest messages between two users and marks the
// peer's messages as read.
func (r *Repository) ListThread(ctx context.Context, userID, peerID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, sender_id, receiver_id, body, read_at, created_at
		FROM messages
		WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, peerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m      Message
			readAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &readAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			m.ReadAt = &readAt.Time
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = r.DB.Exec(ctx, `
		UPDATE messages SET read_at=NOW()
		WHERE receiver_id=$1 AND sender_id=$2 AND read_at IS NULL
	`, userID, peerID)
	return messages, err
}

func (r *Repository) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT peer_id, body, created_at, unread FROM (
			SELECT DISTINCT ON (peer_id)
				CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END AS peer_id,
				body,
				created_at,
				COUNT(*) FILTER (WHERE receiver_id=$1 AND read_at IS NULL)
					OVER (PARTITION BY CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END) AS unread
			FROM messages
			WHERE sender_id=$1 OR receiver_id=$1
			ORDER BY peer_id, created_at DESC
		) latest
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.PeerID, &c.LastMessage, &c.LastAt, &c.Unread); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func scanProject(row pgx.Row) (*Project, error) {
	var (
		p        Project
		category sql.NullString
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &category, &p.SkillsNeed, &p.IsOpen, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if category.Valid {
		p.Category = &category.String
	}
	return &p, nil
}

func scanStartup(row pgx.Row) (*Startup, error) {
	var (
		s        Startup
		industry sql.NullString
		website  sql.NullString
		stage    sql.NullString
	)
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Pitch, &industry, &website, &stage, &s.IsHiring, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if industry.Valid {
		s.Industry = &industry.String
	}
	if website.Valid {
		s.Website = &website.String
	}
	if stage.Valid {
		s.Stage = &stage.String
	}
	return &s, nil
}
