package youtube

import (
	"context"
	"fmt"
	"log"
	"time"

	"comment-responder/internal/models"
	"comment-responder/shared/pagination"
	"comment-responder/shared/retry"

	"google.golang.org/api/youtube/v3"
)

const (
	playlistPageSize = 50
	commentPageSize  = 100
	maxSummaryChars  = 1000
)

// Options tune how the client paces and retries its calls.
type Options struct {
	// MaxRetries is the total number of attempts per API call.
	MaxRetries int
	// RequestDelay is slept between page fetches.
	RequestDelay time.Duration
	// InitialBackoff is the first retry delay; it doubles on every attempt.
	// Defaults to one second.
	InitialBackoff time.Duration
	// OnRetry is notified before every retry of a failed call.
	OnRetry func(op string, attempt int, err error)
}

// Client talks to the YouTube Data API on behalf of the channel owner.
type Client struct {
	service *youtube.Service
	retry   retry.Config
	delay   time.Duration
	onRetry func(op string, attempt int, err error)
}

// NewClient wraps an authenticated service.
func NewClient(service *youtube.Service, opts Options) *Client {
	cfg := retry.DefaultConfig()
	if opts.MaxRetries > 0 {
		cfg.MaxAttempts = opts.MaxRetries
	}
	if opts.InitialBackoff > 0 {
		cfg.InitialBackoff = opts.InitialBackoff
	}

	return &Client{
		service: service,
		retry:   cfg,
		delay:   opts.RequestDelay,
		onRetry: opts.OnRetry,
	}
}

// call runs fn under the retry policy. Quota errors come back wrapping
// ErrQuotaExceeded after a single attempt.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.Printf("%s failed (attempt %d/%d): %s, retrying in %v", op, attempt, cfg.MaxAttempts, describe(err), wait)
		if c.onRetry != nil {
			c.onRetry(op, attempt, err)
		}
	}

	err := retry.Do(ctx, cfg, IsTransient, func(ctx context.Context) error {
		return classify(fn(ctx))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ChannelVideos returns up to maxVideos video ids from the authenticated
// channel's uploads playlist. An account without a channel yields an empty
// slice.
func (c *Client) ChannelVideos(ctx context.Context, maxVideos int) ([]string, error) {
	videoIDs := []string{}
	if maxVideos <= 0 {
		return videoIDs, nil
	}

	channelID, err := c.myChannelID(ctx)
	if err != nil {
		return nil, err
	}
	if channelID == "" {
		log.Println("Warning: No channel found for authenticated user")
		return videoIDs, nil
	}

	uploadsID, err := c.uploadsPlaylistID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if uploadsID == "" {
		log.Printf("Warning: Channel %s has no uploads playlist", channelID)
		return videoIDs, nil
	}

	pager := pagination.New(func(ctx context.Context, token string) ([]string, string, error) {
		var ids []string
		var next string
		err := c.call(ctx, "playlistItems.list", func(ctx context.Context) error {
			call := c.service.PlaylistItems.List([]string{"contentDetails"}).
				PlaylistId(uploadsID).
				MaxResults(playlistPageSize).
				Context(ctx)
			if token != "" {
				call = call.PageToken(token)
			}

			resp, err := call.Do()
			if err != nil {
				return err
			}

			ids = ids[:0]
			for _, item := range resp.Items {
				if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
					ids = append(ids, item.ContentDetails.VideoId)
				}
			}
			next = resp.NextPageToken
			return nil
		})
		return ids, next, err
	})
	pager.Before = func(ctx context.Context, page int) error {
		if page == 0 {
			return nil
		}
		return retry.Sleep(ctx, c.delay)
	}

	for !pager.Done() && len(videoIDs) < maxVideos {
		ids, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		videoIDs = append(videoIDs, ids...)
	}
	log.Printf("Listed %d uploads from %d playlist page(s)", len(videoIDs), pager.Pages())

	if len(videoIDs) > maxVideos {
		videoIDs = videoIDs[:maxVideos]
	}
	return videoIDs, nil
}

func (c *Client) myChannelID(ctx context.Context) (string, error) {
	var channelID string
	err := c.call(ctx, "channels.list", func(ctx context.Context) error {
		resp, err := c.service.Channels.List([]string{"snippet", "contentDetails"}).
			Mine(true).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) > 0 {
			channelID = resp.Items[0].Id
		}
		return nil
	})
	return channelID, err
}

func (c *Client) uploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	var playlistID string
	err := c.call(ctx, "channels.list", func(ctx context.Context) error {
		resp, err := c.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return nil
		}
		channel := resp.Items[0]
		if channel.ContentDetails != nil && channel.ContentDetails.RelatedPlaylists != nil {
			playlistID = channel.ContentDetails.RelatedPlaylists.Uploads
		}
		return nil
	})
	return playlistID, err
}

// UnansweredComments collects published top-level comments that have no
// replies, stopping as soon as limit comments have been gathered. Comments
// for which skip reports true are passed over and do not count toward limit.
func (c *Client) UnansweredComments(ctx context.Context, videoID string, limit int, skip func(commentID string) bool) ([]models.Comment, error) {
	comments := []models.Comment{}
	if limit <= 0 {
		return comments, nil
	}

	pager := pagination.New(func(ctx context.Context, token string) ([]*youtube.CommentThread, string, error) {
		var threads []*youtube.CommentThread
		var next string
		err := c.call(ctx, "commentThreads.list", func(ctx context.Context) error {
			call := c.service.CommentThreads.List([]string{"snippet", "replies"}).
				VideoId(videoID).
				ModerationStatus("published").
				TextFormat("plainText").
				MaxResults(commentPageSize).
				Context(ctx)
			if token != "" {
				call = call.PageToken(token)
			}

			resp, err := call.Do()
			if err != nil {
				return err
			}
			threads = resp.Items
			next = resp.NextPageToken
			return nil
		})
		return threads, next, err
	})
	pager.Before = func(ctx context.Context, page int) error {
		return retry.Sleep(ctx, c.delay)
	}

	for !pager.Done() {
		threads, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}

		for _, thread := range threads {
			if !isUnanswered(thread) {
				continue
			}
			top := thread.Snippet.TopLevelComment
			if skip != nil && skip(top.Id) {
				continue
			}
			comments = append(comments, models.Comment{
				ID:      top.Id,
				VideoID: videoID,
				Text:    top.Snippet.TextDisplay,
			})
			if len(comments) >= limit {
				return comments, nil
			}
		}
	}

	return comments, nil
}

func isUnanswered(thread *youtube.CommentThread) bool {
	if thread == nil || thread.Snippet == nil {
		return false
	}
	top := thread.Snippet.TopLevelComment
	if top == nil || top.Id == "" || top.Snippet == nil {
		return false
	}
	if thread.Snippet.TotalReplyCount > 0 {
		return false
	}
	return thread.Replies == nil || len(thread.Replies.Comments) == 0
}

// VideoSummary returns the first 1000 characters of the video description,
// or "" when the video does not exist.
func (c *Client) VideoSummary(ctx context.Context, videoID string) (string, error) {
	var description string
	err := c.call(ctx, "videos.list", func(ctx context.Context) error {
		resp, err := c.service.Videos.List([]string{"snippet"}).
			Id(videoID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		description = ""
		if len(resp.Items) > 0 && resp.Items[0].Snippet != nil {
			description = resp.Items[0].Snippet.Description
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return truncate(description, maxSummaryChars), nil
}

// PostReply publishes text as a reply to commentID. Empty text is a no-op
// that reports false without touching the network.
func (c *Client) PostReply(ctx context.Context, commentID, text string) (bool, error) {
	if text == "" {
		return false, nil
	}

	reply := &youtube.Comment{
		Snippet: &youtube.CommentSnippet{
			ParentId:     commentID,
			TextOriginal: text,
		},
	}

	err := c.call(ctx, "comments.insert", func(ctx context.Context) error {
		_, err := c.service.Comments.Insert([]string{"snippet"}, reply).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return false, err
	}

	log.Printf("Posted reply to comment %s", commentID)
	return true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
