package migrate

import (
	"context"

	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/idmap"
)

// migratePeriods migrates iterations as destination periods. A project with
// no iterations skips the phase entirely.
func (r *run) migratePeriods(ctx context.Context) error {
	p := r.mc.Project
	if len(p.Iterations) == 0 {
		return nil
	}
	r.o.opts.Reporter.Phase("periods", len(p.Iterations))
	defer r.o.opts.Reporter.Done()

	for _, it := range p.Iterations {
		r.o.opts.Reporter.Step(1)
		period, err := r.o.opts.Dest.CreatePeriod(ctx, r.mc.Workspace, it, p.Name)
		if err != nil {
			r.entityFailed("iteration", it.ID, err)
			r.mc.Summary.Record("periods", false)
			continue
		}
		if err := r.mc.IDs.Put(idmap.KindPeriod, it.ID, period); err != nil {
			return err
		}
		r.mc.Summary.Record("periods", true)
	}
	return nil
}

// associatePeriods attaches migrated work items to their periods, batched by
// the destination. Runs after the story fan-out so the work item mapping is
// complete.
func (r *run) associatePeriods(ctx context.Context) {
	p := r.mc.Project
	for _, it := range p.Iterations {
		period, ok := r.mc.period(it.ID)
		if !ok {
			continue
		}
		var items []*destination.WorkItem
		for _, st := range p.Stories {
			if st.IterationID == nil || *st.IterationID != it.ID {
				continue
			}
			if item, ok := r.mc.workItem(st.ID); ok {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			continue
		}
		if err := r.o.opts.Dest.AddToPeriod(ctx, r.mc.Workspace, period, items); err != nil {
			r.entityFailed("iteration", it.ID, err)
		}
	}
}
