// Package docs adapts Google Docs and Google Drive to the document source used by the feedback pipeline.
package docs

import (
	"context"
	"fmt"

	gdocs "google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/jonathan/doc-feedback/internal/types"
)

// Config holds credentials for the Google APIs
type Config struct {
	// CredentialsFile is a service account key; empty falls back to application default credentials
	CredentialsFile string
	// ServiceAccountEmail is named in access error messages so users know whom to share with
	ServiceAccountEmail string
}

// Client reads and annotates Google Docs
type Client struct {
	docs           *gdocs.Service
	drive          *drive.Service
	serviceAccount string
}

// NewClient creates Docs and Drive services from cfg
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	docsSvc, err := gdocs.NewService(ctx, append(opts, option.WithScopes(gdocs.DocumentsScope))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docs service: %w", err)
	}

	driveSvc, err := drive.NewService(ctx, append(opts, option.WithScopes(drive.DriveReadonlyScope))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{docs: docsSvc, drive: driveSvc, serviceAccount: cfg.ServiceAccountEmail}, nil
}

// Fetch returns the text and positional structure of a document
func (c *Client) Fetch(ctx context.Context, documentID string) (*types.Document, error) {
	d, err := c.docs.Documents.Get(documentID).Context(ctx).Do()
	if err != nil {
		return nil, c.classifyError("fetch", documentID, err)
	}
	return toDocument(documentID, d), nil
}

// RevisionState snapshots the revision id and the number of comments on a document
func (c *Client) RevisionState(ctx context.Context, documentID string) (types.RevisionState, error) {
	d, err := c.docs.Documents.Get(documentID).Fields("revisionId").Context(ctx).Do()
	if err != nil {
		return types.RevisionState{}, c.classifyError("read revision of", documentID, err)
	}

	count, err := c.countComments(ctx, documentID)
	if err != nil {
		return types.RevisionState{}, err
	}

	return types.RevisionState{RevisionID: d.RevisionId, CommentCount: count}, nil
}

func (c *Client) countComments(ctx context.Context, documentID string) (int, error) {
	count := 0
	pageToken := ""
	for {
		call := c.drive.Comments.List(documentID).
			Fields("comments(id)", "nextPageToken").
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return 0, c.classifyError("list comments of", documentID, err)
		}
		count += len(list.Comments)
		if list.NextPageToken == "" {
			return count, nil
		}
		pageToken = list.NextPageToken
	}
}

// InsertFeedback writes every item in a single batch update. The batch targets the
// revision the offsets were computed against, so concurrent edits are merged by the server.
// It returns the number of items written.
func (c *Client) InsertFeedback(ctx context.Context, documentID, revisionID string, items []types.FeedbackItem) (int, error) {
	requests, written := buildInsertRequests(items)
	if written == 0 {
		return 0, nil
	}

	req := &gdocs.BatchUpdateDocumentRequest{Requests: requests}
	if revisionID != "" {
		req.WriteControl = &gdocs.WriteControl{TargetRevisionId: revisionID}
	}

	if _, err := c.docs.Documents.BatchUpdate(documentID, req).Context(ctx).Do(); err != nil {
		return 0, c.classifyError("update", documentID, err)
	}
	return written, nil
}
