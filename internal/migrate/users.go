package migrate

import (
	"context"

	"go.uber.org/zap"

	"github.com/storyport/storyport/internal/idmap"
)

// migrateUsers matches every project member by email. Unmatched people are
// invited as placeholders; they get no mapping this run, their destination
// id materializes once the invitation is accepted.
func (r *run) migrateUsers(ctx context.Context) error {
	members := r.mc.Project.Members
	r.o.opts.Reporter.Phase("users", len(members))
	defer r.o.opts.Reporter.Done()

	for _, person := range members {
		r.o.opts.Reporter.Step(1)

		user, err := r.o.opts.Dest.FindUser(ctx, person.Email)
		if err != nil {
			r.entityFailed("user", person.ID, err)
			r.mc.Summary.Record("users", false)
			continue
		}
		if user == nil {
			if err := r.o.opts.Dest.InviteUser(ctx, r.mc.Workspace, person.Email); err != nil {
				r.entityFailed("user", person.ID, err)
				r.mc.Summary.Record("users", false)
				continue
			}
			r.log.Info("user invited", zap.String("email", person.Email))
			r.mc.Summary.Record("users", true)
			continue
		}

		if err := r.o.opts.Dest.AddUserToWorkspace(ctx, r.mc.Workspace, user); err != nil {
			r.entityFailed("user", person.ID, err)
			r.mc.Summary.Record("users", false)
			continue
		}
		if err := r.mc.IDs.Put(idmap.KindUser, person.ID, user); err != nil {
			return err
		}
		r.mc.Summary.Record("users", true)
	}
	return nil
}

// assignee resolves the first mapped owner of a story, or "".
func (r *run) assignee(ownerIDs []int64) string {
	for _, id := range ownerIDs {
		if u, ok := r.mc.user(id); ok {
			return u.ID
		}
	}
	return ""
}

// reporterID resolves the mapped requester of a story, or "".
func (r *run) reporterID(requestedByID int64) string {
	if u, ok := r.mc.user(requestedByID); ok {
		return u.ID
	}
	return ""
}
