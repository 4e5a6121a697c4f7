// Package migrate drives one project through the entity dependency state
// machine: workspace, then users, labels and groupings, periods, work items,
// relations, comments. Later states never start before every entity of the
// prior state has been attempted. Entity failures are logged and skipped;
// only workspace creation and destination setup abort a project.
package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/idmap"
	"github.com/storyport/storyport/internal/model"
	"github.com/storyport/storyport/internal/progress"
)

// State is the orchestrator's position in the per-project state machine.
type State string

const (
	StateNotStarted              State = "not_started"
	StateWorkspaceReady          State = "workspace_ready"
	StateUsersReady              State = "users_ready"
	StateLabelsAndGroupingsReady State = "labels_and_groupings_ready"
	StatePeriodsReady            State = "periods_ready"
	StateWorkItemsReady          State = "work_items_ready"
	StateRelationsReady          State = "relations_ready"
	StateCommentsReady           State = "comments_ready"
	StateCompleted               State = "completed"
	StateFailed                  State = "failed"
)

// defaultStoryWorkers bounds the story fan-out when not configured.
const defaultStoryWorkers = 8

// Options configures an Orchestrator. Dest and Processed are required.
type Options struct {
	Dest           destination.Destination
	Processed      *idmap.ProcessedSet
	AttachmentRoot string
	StoryWorkers   int
	Force          bool
	Log            *zap.Logger
	Reporter       progress.Reporter
}

// Orchestrator migrates projects one at a time against a single destination.
type Orchestrator struct {
	opts Options
}

func New(opts Options) *Orchestrator {
	if opts.StoryWorkers <= 0 {
		opts.StoryWorkers = defaultStoryWorkers
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.Nop{}
	}
	return &Orchestrator{opts: opts}
}

// run is the per-project mutable state.
type run struct {
	o     *Orchestrator
	mc    *Context
	state State
	log   *zap.Logger
}

// MigrateProject runs the full state machine for one project. An already
// processed project is skipped without any remote call unless force is set.
// The returned summary is valid even when err is non-nil.
func (o *Orchestrator) MigrateProject(ctx context.Context, p *model.Project) (*Summary, error) {
	summary := NewSummary()
	if !o.opts.Force && o.opts.Processed.Contains(p.ID) {
		o.opts.Log.Info("project already migrated, skipping",
			zap.Int64("project_id", p.ID), zap.String("project", p.Name))
		return summary, nil
	}

	r := &run{
		o: o,
		mc: &Context{
			Project: p,
			IDs:     idmap.New(),
			Summary: summary,
		},
		state: StateNotStarted,
		log: o.opts.Log.With(
			zap.Int64("project_id", p.ID),
			zap.String("destination", o.opts.Dest.Name()),
		),
	}

	phases := []struct {
		next State
		fn   func(context.Context) error
	}{
		{StateWorkspaceReady, r.migrateWorkspace},
		{StateUsersReady, r.migrateUsers},
		{StateLabelsAndGroupingsReady, r.migrateLabelsAndGroupings},
		{StatePeriodsReady, r.migratePeriods},
		{StateWorkItemsReady, r.migrateWorkItems},
		{StateRelationsReady, r.migrateRelations},
		{StateCommentsReady, r.migrateComments},
	}
	for _, phase := range phases {
		if err := phase.fn(ctx); err != nil {
			failedIn := r.state
			r.state = StateFailed
			return summary, &ProjectError{ProjectID: p.ID, State: failedIn, Err: err}
		}
		r.state = phase.next
		r.log.Debug("state transition", zap.String("state", string(r.state)))
	}

	if err := o.opts.Processed.Mark(p.ID); err != nil {
		failedIn := r.state
		r.state = StateFailed
		return summary, &ProjectError{ProjectID: p.ID, State: failedIn, Err: err}
	}
	r.state = StateCompleted
	r.log.Info("project migration completed")
	return summary, nil
}

// migrateWorkspace creates the destination workspace. This is the one phase
// whose entity failure is a project failure.
func (r *run) migrateWorkspace(ctx context.Context) error {
	ws, err := r.o.opts.Dest.CreateWorkspace(ctx, r.mc.Project)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := r.mc.IDs.Put(idmap.KindWorkspace, r.mc.Project.ID, ws); err != nil {
		return err
	}
	r.mc.Workspace = ws
	r.log.Info("workspace created", zap.String("workspace", ws.Key))
	return nil
}

// entityFailed logs one skipped entity and keeps the run going.
func (r *run) entityFailed(kind string, sourceID int64, err error) {
	ee := &EntityError{Kind: kind, SourceID: sourceID, Err: err}
	r.log.Warn("entity skipped", zap.String("kind", kind),
		zap.Int64("source_id", sourceID), zap.Error(ee))
}
