package migrate

import (
	"context"
)

// migrateRelations links work items to groupings through the label/epic join
// and materializes unresolved blockers as "blocks" relations. A blocker whose
// referenced story never migrated (or whose description carries no reference)
// yields no relation and no error.
func (r *run) migrateRelations(ctx context.Context) error {
	p := r.mc.Project
	r.o.opts.Reporter.Phase("relations", len(p.Stories))
	defer r.o.opts.Reporter.Done()

	for _, story := range p.Stories {
		r.o.opts.Reporter.Step(1)
		item, ok := r.mc.workItem(story.ID)
		if !ok {
			continue
		}

		for _, label := range story.Labels {
			epic := p.EpicForLabel(label.ID)
			if epic == nil {
				continue
			}
			grouping, ok := r.mc.grouping(epic.ID)
			if !ok {
				continue
			}
			if err := r.o.opts.Dest.LinkToGrouping(ctx, item, grouping); err != nil {
				r.entityFailed("story", story.ID, err)
			}
		}

		for _, blocker := range story.Blockers {
			if blocker.Resolved {
				continue
			}
			refID, ok := ParseBlockerRef(blocker.Description)
			if !ok {
				continue
			}
			blockerItem, ok := r.mc.workItem(refID)
			if !ok {
				continue
			}
			if _, err := r.o.opts.Dest.CreateRelation(ctx, blockerItem, item); err != nil {
				r.entityFailed("blocker", blocker.ID, err)
				r.mc.Summary.Record("relations", false)
				continue
			}
			r.mc.Summary.Record("relations", true)
		}
	}
	return nil
}
