package migrate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/idmap"
	"github.com/storyport/storyport/internal/model"
)

// migrateWorkItems fans stories out across a bounded worker pool. A story's
// own steps run sequentially inside its worker; one story's failure never
// blocks another. After the fan-out the completed work item mapping is used
// to associate items with their periods.
func (r *run) migrateWorkItems(ctx context.Context) error {
	stories := r.mc.Project.Stories
	r.o.opts.Reporter.Phase("stories", len(stories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.StoryWorkers)
	for _, story := range stories {
		g.Go(func() error {
			defer r.o.opts.Reporter.Step(1)
			if err := r.migrateStory(gctx, story); err != nil {
				r.entityFailed("story", story.ID, err)
				r.mc.Summary.Record("work items", false)
				return nil
			}
			r.mc.Summary.Record("work items", true)
			return nil
		})
	}
	_ = g.Wait()
	r.o.opts.Reporter.Done()

	r.associatePeriods(ctx)
	return nil
}

func (r *run) migrateStory(ctx context.Context, story *model.Story) error {
	spec := destination.WorkItemSpec{
		Name:        story.Name,
		Description: story.Description,
		Type:        story.Type,
		State:       story.State,
		Estimate:    story.Estimate,
		Priority:    story.Priority,
		AssigneeID:  r.assignee(story.OwnerIDs),
		ReporterID:  r.reporterID(story.RequestedByID),
	}
	if it := r.mc.Project.IterationFor(story.IterationID); it != nil {
		if period, ok := r.mc.period(it.ID); ok {
			spec.PeriodID = period.ID
		}
	}
	for _, label := range story.Labels {
		spec.Labels = append(spec.Labels, label.Name)
	}

	item, err := r.o.opts.Dest.CreateWorkItem(ctx, r.mc.Workspace, spec)
	if err != nil {
		return err
	}
	if err := r.mc.IDs.Put(idmap.KindWorkItem, story.ID, item); err != nil {
		return err
	}

	// Tasks fail individually; the story's work item stands either way.
	for _, task := range story.Tasks {
		if _, err := r.o.opts.Dest.CreateSubItem(ctx, r.mc.Workspace, item, task); err != nil {
			r.entityFailed("task", task.ID, err)
			r.mc.Summary.Record("sub-items", false)
			continue
		}
		r.mc.Summary.Record("sub-items", true)
	}
	return nil
}
