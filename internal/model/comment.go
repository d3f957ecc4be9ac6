package model

import "time"

// Comment is a single message on a task thread.
type Comment struct {
	ID             ID        `json:"id"`
	TaskID         ID        `json:"taskId"`
	AuthorEmail    string    `json:"authorEmail"`
	RecipientEmail string    `json:"recipientEmail"`
	Content        string    `json:"content"`
	CreatedAt      Timestamp `json:"createdAt"`

	// IsRead is the author-side flag; IsReadByRecipient is set once the
	// recipient has confirmed a read receipt.
	IsRead            bool `json:"isRead"`
	IsReadByRecipient bool `json:"isReadByRecipient"`
}

// Created returns the creation instant.
func (c Comment) Created() time.Time { return c.CreatedAt.Time }

// NewComment is the request body for posting a comment.
type NewComment struct {
	AuthorEmail    string `json:"authorEmail"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	Content        string `json:"content"`
	IsRead         bool   `json:"isRead"`
}
