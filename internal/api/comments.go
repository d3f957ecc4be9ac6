package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/taskpulse/internal/model"
)

// ListComments fetches the thread of taskID in server order.
func (c *Client) ListComments(ctx context.Context, taskID model.ID) ([]model.Comment, error) {
	var comments []model.Comment
	if err := c.get(ctx, "/comment/task/"+taskID.String(), &comments); err != nil {
		return nil, fmt.Errorf("listing comments of task %s: %w", taskID, err)
	}
	for i := range comments {
		if comments[i].TaskID.IsZero() {
			comments[i].TaskID = taskID
		}
	}
	return comments, nil
}

// AddComment posts a comment on taskID and returns the saved record.
func (c *Client) AddComment(ctx context.Context, taskID model.ID, in model.NewComment) (*model.Comment, error) {
	var comment model.Comment
	if err := c.post(ctx, "/comment/task/"+taskID.String(), in, &comment); err != nil {
		return nil, fmt.Errorf("adding comment to task %s: %w", taskID, err)
	}
	if comment.TaskID.IsZero() {
		comment.TaskID = taskID
	}
	return &comment, nil
}

// EditComment replaces the content of id.
func (c *Client) EditComment(ctx context.Context, id model.ID, content string) (*model.Comment, error) {
	var comment model.Comment
	body := map[string]string{"content": content}
	if err := c.put(ctx, "/comment/"+id.String(), body, &comment); err != nil {
		return nil, fmt.Errorf("editing comment %s: %w", id, err)
	}
	return &comment, nil
}

// DeleteComment removes id.
func (c *Client) DeleteComment(ctx context.Context, id model.ID) error {
	if err := c.delete(ctx, "/comment/"+id.String()); err != nil {
		return fmt.Errorf("deleting comment %s: %w", id, err)
	}
	return nil
}

// MarkCommentRead confirms that userEmail has seen comment id.
func (c *Client) MarkCommentRead(ctx context.Context, id model.ID, userEmail string) error {
	body := map[string]string{"userEmail": userEmail}
	if err := c.post(ctx, "/comment/mark-as-read/"+id.String(), body, nil); err != nil {
		return fmt.Errorf("marking comment %s read: %w", id, err)
	}
	return nil
}

// MarkThreadRead confirms every comment on taskID addressed to
// recipientEmail.
func (c *Client) MarkThreadRead(ctx context.Context, taskID model.ID, recipientEmail string) error {
	body := map[string]string{"recipientEmail": recipientEmail}
	path := "/comment/mark-as-read-by-recipient/" + taskID.String()
	if err := c.post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("marking thread of task %s read: %w", taskID, err)
	}
	return nil
}

// CountUnread returns how many comments on taskID are unread by email.
func (c *Client) CountUnread(ctx context.Context, taskID model.ID, email string) (int, error) {
	var n int
	path := fmt.Sprintf("/comment/count-unread-by-recipient/%s/%s", taskID, url.PathEscape(email))
	if err := c.get(ctx, path, &n); err != nil {
		return 0, fmt.Errorf("counting unread comments of task %s: %w", taskID, err)
	}
	return n, nil
}
