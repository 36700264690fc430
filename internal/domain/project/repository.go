package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Dialect names the SQL driver in use
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// ParseDSN picks the driver for a DSN. postgres:// URLs and key=value
// strings with a host go to PostgreSQL; everything else is a SQLite path,
// optionally prefixed with sqlite://.
func ParseDSN(dsn string) (Dialect, string) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"), strings.Contains(lower, "host="):
		return DialectPostgres, dsn
	case strings.HasPrefix(lower, "sqlite://"):
		return DialectSQLite, dsn[len("sqlite://"):]
	}
	return DialectSQLite, dsn
}

// Repository stores projects
type Repository struct {
	db      *sql.DB
	dialect Dialect
	logger  *logging.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// Open connects to dsn, verifies the connection and applies migrations
func Open(ctx context.Context, dsn string, logger *logging.Logger, metrics *monitoring.Metrics) (*Repository, error) {
	dialect, source := ParseDSN(dsn)
	db, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch dialect {
	case DialectSQLite:
		// One connection keeps :memory: databases shared and writes serial
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Repository{
		db:      db,
		dialect: dialect,
		logger:  logging.OrNop(logger).Named("projects"),
		metrics: metrics,
		now:     time.Now,
	}
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// Dialect reports the driver in use
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create stores a new project owned by in.Owner
func (r *Repository) Create(ctx context.Context, in CreateInput) (p *Project, err error) {
	defer r.observe("create", time.Now(), &err)

	name := strings.TrimSpace(in.Name)
	if name == "" || in.Owner == "" {
		return nil, fmt.Errorf("%w: name and owner are required", ErrInvalid)
	}
	files := vfs.FromNodes(in.Files).Nodes()
	data, err := encodeFiles(files)
	if err != nil {
		return nil, err
	}

	now := r.timestamp()
	p = &Project{
		ID:          uuid.NewString(),
		Owner:       in.Owner,
		Name:        name,
		Description: in.Description,
		Template:    in.Template,
		Files:       files,
		Members:     []Member{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = r.db.ExecContext(ctx, r.rebind(`INSERT INTO projects
		(id, owner, name, description, template, files, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Owner, p.Name, p.Description, p.Template, data, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	r.logger.Info("Project created", zap.String("project", p.ID), zap.String("owner", p.Owner))
	return p, nil
}

// Get returns a project the user can read
func (r *Repository) Get(ctx context.Context, user, projectID string) (p *Project, err error) {
	defer r.observe("get", time.Now(), &err)

	p, err = r.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.CanRead(user) {
		return nil, ErrForbidden
	}
	return p, nil
}

// List returns projects the user owns or collaborates on, newest first
func (r *Repository) List(ctx context.Context, user string) (out []Summary, err error) {
	defer r.observe("list", time.Now(), &err)

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT p.id, p.owner, p.name, p.description, p.updated_at, COALESCE(m.role, '')
		FROM projects p
		LEFT JOIN project_members m ON m.project_id = p.id AND m.user_id = ?
		WHERE p.owner = ? OR m.user_id IS NOT NULL
		ORDER BY p.updated_at DESC, p.id`), user, user)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out = []Summary{}
	for rows.Next() {
		var (
			s    Summary
			role string
		)
		if err := rows.Scan(&s.ID, &s.Owner, &s.Name, &s.Description, &s.UpdatedAt, &role); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		s.Role = Role(role)
		if s.Owner == user {
			s.Role = RoleOwner
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update applies a patch; the user needs write access
func (r *Repository) Update(ctx context.Context, user, projectID string, patch Patch) (p *Project, err error) {
	defer r.observe("update", time.Now(), &err)

	p, err = r.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.CanWrite(user) {
		return nil, ErrForbidden
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalid)
		}
		p.Name = name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Files != nil {
		p.Files = vfs.FromNodes(patch.Files).Nodes()
	}
	p.UpdatedAt = r.timestamp()

	data, err := encodeFiles(p.Files)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE projects
		SET name = ?, description = ?, files = ?, updated_at = ?
		WHERE id = ?`),
		p.Name, p.Description, data, p.UpdatedAt, p.ID)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return p, nil
}

// Delete removes a project and its memberships; only the owner may delete
func (r *Repository) Delete(ctx context.Context, user, projectID string) (err error) {
	defer r.observe("delete", time.Now(), &err)

	p, err := r.load(ctx, projectID)
	if err != nil {
		return err
	}
	if p.RoleOf(user) != RoleOwner {
		return ErrForbidden
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind("DELETE FROM project_members WHERE project_id = ?"), projectID); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.rebind("DELETE FROM projects WHERE id = ?"), projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.Info("Project deleted", zap.String("project", projectID))
	return nil
}

// AddCollaborator grants userID a role, replacing any existing grant. Only
// the owner may share a project.
func (r *Repository) AddCollaborator(ctx context.Context, owner, projectID, userID string, role Role) (p *Project, err error) {
	defer r.observe("add_collaborator", time.Now(), &err)

	if role != RoleEditor && role != RoleViewer {
		return nil, ErrInvalidRole
	}
	p, err = r.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.RoleOf(owner) != RoleOwner {
		return nil, ErrForbidden
	}
	if userID == "" || userID == p.Owner {
		return nil, fmt.Errorf("%w: cannot share with %q", ErrInvalid, userID)
	}

	now := r.timestamp()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind("DELETE FROM project_members WHERE project_id = ? AND user_id = ?"), projectID, userID); err != nil {
		return nil, fmt.Errorf("replace member: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.rebind("INSERT INTO project_members (project_id, user_id, role, added_at) VALUES (?, ?, ?, ?)"),
		projectID, userID, string(role), now); err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.load(ctx, projectID)
}

// RemoveCollaborator revokes a grant. Owners may remove anyone and
// collaborators may remove themselves.
func (r *Repository) RemoveCollaborator(ctx context.Context, user, projectID, userID string) (err error) {
	defer r.observe("remove_collaborator", time.Now(), &err)

	p, err := r.load(ctx, projectID)
	if err != nil {
		return err
	}
	if p.RoleOf(user) != RoleOwner && user != userID {
		return ErrForbidden
	}
	res, err := r.db.ExecContext(ctx, r.rebind("DELETE FROM project_members WHERE project_id = ? AND user_id = ?"), projectID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) load(ctx context.Context, projectID string) (*Project, error) {
	var (
		p     Project
		files string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT id, owner, name, description, template, files, created_at, updated_at
		FROM projects WHERE id = ?`), projectID).
		Scan(&p.ID, &p.Owner, &p.Name, &p.Description, &p.Template, &files, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if p.Files, err = decodeFiles(files); err != nil {
		return nil, fmt.Errorf("project %s: %w", projectID, err)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT user_id, role, added_at
		FROM project_members WHERE project_id = ? ORDER BY added_at, user_id`), projectID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	p.Members = []Member{}
	for rows.Next() {
		var (
			m    Member
			role string
		)
		if err := rows.Scan(&m.UserID, &role, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = Role(role)
		p.Members = append(p.Members, m)
	}
	return &p, rows.Err()
}

// rebind turns "?" placeholders into "$n" for PostgreSQL
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// timestamp truncates to the coarsest precision both drivers keep
func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *Repository) observe(op string, start time.Time, err *error) {
	r.metrics.RecordDBQuery(op, time.Since(start), *err)
}

func encodeFiles(files []*vfs.Node) (string, error) {
	if files == nil {
		files = []*vfs.Node{}
	}
	data, err := sonic.ConfigStd.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode files: %w", err)
	}
	return string(data), nil
}

func decodeFiles(data string) ([]*vfs.Node, error) {
	var nodes []*vfs.Node
	if err := sonic.UnmarshalString(data, &nodes); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	return vfs.FromNodes(nodes).Nodes(), nil
}
