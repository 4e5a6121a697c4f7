package migrate

import (
	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/idmap"
	"github.com/storyport/storyport/internal/model"
)

// Context carries one project run's shared state. The project and workspace
// are set once and read-only afterwards; the id map and summary are the only
// fields mutated during the run, and both are concurrency-safe.
type Context struct {
	Project   *model.Project
	Workspace *destination.Workspace
	IDs       *idmap.Map
	Summary   *Summary
}

// user returns the mapped destination user for a source person id.
func (c *Context) user(personID int64) (*destination.User, bool) {
	v, ok := c.IDs.Get(idmap.KindUser, personID)
	if !ok {
		return nil, false
	}
	return v.(*destination.User), true
}

// grouping returns the mapped destination grouping for a source epic id.
func (c *Context) grouping(epicID int64) (*destination.Grouping, bool) {
	v, ok := c.IDs.Get(idmap.KindGrouping, epicID)
	if !ok {
		return nil, false
	}
	return v.(*destination.Grouping), true
}

// period returns the mapped destination period for a source iteration id.
func (c *Context) period(iterationID int64) (*destination.Period, bool) {
	v, ok := c.IDs.Get(idmap.KindPeriod, iterationID)
	if !ok {
		return nil, false
	}
	return v.(*destination.Period), true
}

// workItem returns the mapped destination work item for a source story id.
func (c *Context) workItem(storyID int64) (*destination.WorkItem, bool) {
	v, ok := c.IDs.Get(idmap.KindWorkItem, storyID)
	if !ok {
		return nil, false
	}
	return v.(*destination.WorkItem), true
}

// personName returns the source display name for a person id, or "".
func (c *Context) personName(personID int64) string {
	for _, m := range c.Project.Members {
		if m.ID == personID {
			return m.Name
		}
	}
	return ""
}
