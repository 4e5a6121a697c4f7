// Package snapshot reads the source-side export database. The snapshot is a
// plain sqlite file produced by the export tooling; this package only ever
// reads it, so the database is opened in read-only mode.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/storyport/storyport/internal/model"
)

// Store wraps the snapshot database handle.
type Store struct {
	db *sql.DB
}

// Open opens the snapshot read-only and verifies connectivity.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to snapshot database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ProjectSummary is the listing row for project selection.
type ProjectSummary struct {
	ID         int64
	Name       string
	StoryCount int
}

// ListProjects returns every project in the snapshot with its story count.
func (s *Store) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, COUNT(st.id)
		FROM projects p
		LEFT JOIN stories st ON st.project_id = p.id
		GROUP BY p.id, p.name
		ORDER BY p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectSummary
	for rows.Next() {
		var ps ProjectSummary
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.StoryCount); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// LoadProject loads one project and every entity hanging off it. Stories come
// back ordered by id; comments and tasks within a story keep their source
// ordering.
func (s *Store) LoadProject(ctx context.Context, id int64) (*model.Project, error) {
	p := &model.Project{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, COALESCE(description, '') FROM projects WHERE id = ?`, id).
		Scan(&p.Name, &p.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %d not found in snapshot", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %d: %w", id, err)
	}

	if p.Members, err = s.loadMembers(ctx, id); err != nil {
		return nil, err
	}
	if p.Labels, err = s.loadLabels(ctx, id); err != nil {
		return nil, err
	}
	if p.Epics, err = s.loadEpics(ctx, id); err != nil {
		return nil, err
	}
	if p.Iterations, err = s.loadIterations(ctx, id); err != nil {
		return nil, err
	}
	if p.Stories, err = s.loadStories(ctx, id, p.Labels); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) loadMembers(ctx context.Context, projectID int64) ([]*model.Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pe.id, pe.name, pe.email, COALESCE(pe.initials, ''), COALESCE(pe.username, '')
		FROM people pe
		JOIN project_members pm ON pm.person_id = pe.id
		WHERE pm.project_id = ?
		ORDER BY pe.id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	defer rows.Close()

	var out []*model.Person
	for rows.Next() {
		var pe model.Person
		if err := rows.Scan(&pe.ID, &pe.Name, &pe.Email, &pe.Initials, &pe.Username); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		out = append(out, &pe)
	}
	return out, rows.Err()
}

func (s *Store) loadLabels(ctx context.Context, projectID int64) ([]*model.Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, '')
		FROM labels WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	defer rows.Close()

	var out []*model.Label
	for rows.Next() {
		l := &model.Label{ProjectID: projectID}
		if err := rows.Scan(&l.ID, &l.Name, &l.Description); err != nil {
			return nil, fmt.Errorf("failed to scan label row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) loadEpics(ctx context.Context, projectID int64) ([]*model.Epic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label_id, name, COALESCE(description, '')
		FROM epics WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load epics: %w", err)
	}
	defer rows.Close()

	var out []*model.Epic
	for rows.Next() {
		e := &model.Epic{ProjectID: projectID}
		if err := rows.Scan(&e.ID, &e.LabelID, &e.Name, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan epic row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) loadIterations(ctx context.Context, projectID int64) ([]*model.Iteration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, start, finish, COALESCE(kind, ''), COALESCE(velocity, 0)
		FROM iterations WHERE project_id = ? ORDER BY number
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load iterations: %w", err)
	}
	defer rows.Close()

	var out []*model.Iteration
	for rows.Next() {
		it := &model.Iteration{ProjectID: projectID}
		var start, finish string
		if err := rows.Scan(&it.ID, &it.Number, &start, &finish, &it.Kind, &it.Velocity); err != nil {
			return nil, fmt.Errorf("failed to scan iteration row: %w", err)
		}
		if it.Start, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("failed to parse iteration start: %w", err)
		}
		if it.Finish, err = parseTime(finish); err != nil {
			return nil, fmt.Errorf("failed to parse iteration finish: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, it := range out {
		if it.StoryIDs, err = s.loadIterationStories(ctx, it.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadIterationStories(ctx context.Context, iterationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT story_id FROM iteration_stories WHERE iteration_id = ? ORDER BY story_id
	`, iterationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load iteration stories: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan iteration story row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) loadStories(ctx context.Context, projectID int64, labels []*model.Label) ([]*model.Story, error) {
	labelByID := make(map[int64]*model.Label, len(labels))
	for _, l := range labels {
		labelByID[l.ID] = l
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), story_type, state,
		       estimate, COALESCE(priority, ''), requested_by_id, iteration_id,
		       created_at, updated_at
		FROM stories WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stories: %w", err)
	}
	defer rows.Close()

	var out []*model.Story
	for rows.Next() {
		st := &model.Story{ProjectID: projectID}
		var storyType, state, createdAt, updatedAt string
		var estimate sql.NullFloat64
		var iterationID sql.NullInt64
		err := rows.Scan(&st.ID, &st.Name, &st.Description, &storyType, &state,
			&estimate, &st.Priority, &st.RequestedByID, &iterationID,
			&createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story row: %w", err)
		}
		st.Type = model.StoryType(storyType)
		st.State = model.StoryState(state)
		if estimate.Valid {
			v := estimate.Float64
			st.Estimate = &v
		}
		if iterationID.Valid {
			v := iterationID.Int64
			st.IterationID = &v
		}
		if st.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse story created_at: %w", err)
		}
		if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse story updated_at: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, st := range out {
		if st.OwnerIDs, err = s.loadStoryOwners(ctx, st.ID); err != nil {
			return nil, err
		}
		if st.Labels, err = s.loadStoryLabels(ctx, st.ID, labelByID); err != nil {
			return nil, err
		}
		if st.Tasks, err = s.loadTasks(ctx, st.ID); err != nil {
			return nil, err
		}
		if st.Comments, err = s.loadComments(ctx, st.ID); err != nil {
			return nil, err
		}
		if st.Blockers, err = s.loadBlockers(ctx, st.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadStoryOwners(ctx context.Context, storyID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id FROM story_owners WHERE story_id = ? ORDER BY person_id
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story owners: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) loadStoryLabels(ctx context.Context, storyID int64, labelByID map[int64]*model.Label) ([]*model.Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label_id FROM story_labels WHERE story_id = ? ORDER BY label_id
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story labels: %w", err)
	}
	defer rows.Close()

	var out []*model.Label
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan story label row: %w", err)
		}
		if l, ok := labelByID[id]; ok {
			out = append(out, l)
		}
	}
	return out, rows.Err()
}

func (s *Store) loadTasks(ctx context.Context, storyID int64) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, complete, position
		FROM tasks WHERE story_id = ? ORDER BY position
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t := &model.Task{StoryID: storyID}
		if err := rows.Scan(&t.ID, &t.Description, &t.Complete, &t.Position); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) loadComments(ctx context.Context, storyID int64) ([]*model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(text, ''), person_id, created_at
		FROM comments WHERE story_id = ? ORDER BY created_at, id
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	defer rows.Close()

	var out []*model.Comment
	for rows.Next() {
		c := &model.Comment{StoryID: storyID}
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Text, &c.PersonID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		var err error
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse comment created_at: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range out {
		var err error
		if c.Attachments, err = s.loadAttachments(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadAttachments(ctx context.Context, commentID int64) ([]*model.FileAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, COALESCE(content_type, ''), COALESCE(size, 0), COALESCE(uploader_id, 0)
		FROM file_attachments WHERE comment_id = ? ORDER BY id
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	var out []*model.FileAttachment
	for rows.Next() {
		a := &model.FileAttachment{CommentID: commentID}
		if err := rows.Scan(&a.ID, &a.Filename, &a.ContentType, &a.Size, &a.UploaderID); err != nil {
			return nil, fmt.Errorf("failed to scan attachment row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) loadBlockers(ctx context.Context, storyID int64) ([]*model.Blocker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(description, ''), resolved, COALESCE(person_id, 0)
		FROM blockers WHERE story_id = ? ORDER BY id
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blockers: %w", err)
	}
	defer rows.Close()

	var out []*model.Blocker
	for rows.Next() {
		b := &model.Blocker{StoryID: storyID}
		if err := rows.Scan(&b.ID, &b.Description, &b.Resolved, &b.PersonID); err != nil {
			return nil, fmt.Errorf("failed to scan blocker row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// parseTime accepts the two timestamp layouts the export tooling writes.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
