package migrate

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/model"
)

// migrateComments fans out per story. Within a story, comments migrate in
// source chronological order, and each comment's attachments are migrated
// before the comment that references them.
func (r *run) migrateComments(ctx context.Context) error {
	stories := r.mc.Project.Stories
	r.o.opts.Reporter.Phase("comments", len(stories))
	defer r.o.opts.Reporter.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.StoryWorkers)
	for _, story := range stories {
		g.Go(func() error {
			defer r.o.opts.Reporter.Step(1)
			item, ok := r.mc.workItem(story.ID)
			if !ok {
				return nil
			}
			for _, comment := range story.Comments {
				if err := r.migrateComment(gctx, story, item, comment); err != nil {
					r.entityFailed("comment", comment.ID, err)
					r.mc.Summary.Record("comments", false)
					continue
				}
				r.mc.Summary.Record("comments", true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (r *run) migrateComment(ctx context.Context, story *model.Story, item *destination.WorkItem, comment *model.Comment) error {
	var attachments []*destination.Attachment
	for _, att := range comment.Attachments {
		migrated, err := r.migrateAttachment(ctx, story, item, att)
		if err != nil {
			// One missing or failed attachment does not sink the comment.
			r.entityFailed("attachment", att.ID, err)
			r.mc.Summary.Record("attachments", false)
			continue
		}
		attachments = append(attachments, migrated)
		r.mc.Summary.Record("attachments", true)
	}

	spec := destination.CommentSpec{
		Text:        comment.Text,
		AuthorName:  r.mc.personName(comment.PersonID),
		CreatedAt:   comment.CreatedAt,
		Attachments: attachments,
	}
	_, err := r.o.opts.Dest.CreateComment(ctx, item, spec)
	return err
}

func (r *run) migrateAttachment(ctx context.Context, story *model.Story, item *destination.WorkItem, att *model.FileAttachment) (*destination.Attachment, error) {
	path := att.Path(r.o.opts.AttachmentRoot, story.ProjectID, story.ID)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment file: %w", err)
	}
	migrated, err := r.o.opts.Dest.AttachFile(ctx, item, att.Filename, content)
	if err != nil {
		return nil, err
	}
	r.log.Debug("attachment migrated",
		zap.Int64("story_id", story.ID), zap.String("filename", att.Filename))
	return migrated, nil
}
