package migrate

import (
	"context"

	"go.uber.org/zap"

	"github.com/storyport/storyport/internal/idmap"
)

// migrateLabelsAndGroupings migrates labels, then epics. The two migrate
// independently; the epic's label join is preserved through the epic itself
// (EpicForLabel) so work item linking can resolve it later.
func (r *run) migrateLabelsAndGroupings(ctx context.Context) error {
	p := r.mc.Project
	r.o.opts.Reporter.Phase("labels", len(p.Labels)+len(p.Epics))
	defer r.o.opts.Reporter.Done()

	for _, label := range p.Labels {
		r.o.opts.Reporter.Step(1)
		isEpic := p.EpicForLabel(label.ID) != nil
		created, err := r.o.opts.Dest.CreateLabel(ctx, r.mc.Workspace, label, isEpic)
		if err != nil {
			r.entityFailed("label", label.ID, err)
			r.mc.Summary.Record("labels", false)
			continue
		}
		if err := r.mc.IDs.Put(idmap.KindLabel, label.ID, created); err != nil {
			return err
		}
		r.mc.Summary.Record("labels", true)
	}

	for _, epic := range p.Epics {
		r.o.opts.Reporter.Step(1)
		grouping, err := r.o.opts.Dest.CreateGrouping(ctx, r.mc.Workspace, epic)
		if err != nil {
			r.entityFailed("epic", epic.ID, err)
			r.mc.Summary.Record("groupings", false)
			continue
		}
		if err := r.mc.IDs.Put(idmap.KindGrouping, epic.ID, grouping); err != nil {
			return err
		}
		r.log.Debug("grouping created", zap.String("name", epic.Name))
		r.mc.Summary.Record("groupings", true)
	}
	return nil
}
