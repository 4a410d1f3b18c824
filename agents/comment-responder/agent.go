package commentresponder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"comment-responder/agents/comment-responder/youtube"
	"comment-responder/internal/models"
	"comment-responder/shared/ai"
	"comment-responder/shared/config"
	"comment-responder/shared/email"
	"comment-responder/shared/monitoring"
	"comment-responder/shared/retry"
	"comment-responder/shared/scheduler"
	"comment-responder/shared/storage"

	"github.com/google/uuid"
)

// platform is the slice of the YouTube client the responder drives.
type platform interface {
	ChannelVideos(ctx context.Context, maxVideos int) ([]string, error)
	UnansweredComments(ctx context.Context, videoID string, limit int, skip func(commentID string) bool) ([]models.Comment, error)
	VideoSummary(ctx context.Context, videoID string) (string, error)
	PostReply(ctx context.Context, commentID, text string) (bool, error)
}

type generator interface {
	GenerateResponse(ctx context.Context, comment, videoContext string) string
}

type digestSender interface {
	SendRunReport(report *models.RunReport) (bool, error)
}

// ResponderMetrics represents the metrics collected during a run
type ResponderMetrics struct {
	VideosScanned int  `json:"videos_scanned"`
	RepliesPosted int  `json:"replies_posted"`
	Skipped       int  `json:"skipped"`
	FailedVideos  int  `json:"failed_videos"`
	EmailSent     bool `json:"email_sent"`
}

// GetSummary implements the scheduler.Metrics interface
func (m ResponderMetrics) GetSummary() string {
	summary := fmt.Sprintf("%d replies posted across %d videos", m.RepliesPosted, m.VideosScanned)
	if m.Skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", m.Skipped)
	}
	if m.FailedVideos > 0 {
		summary += fmt.Sprintf(", %d videos failed", m.FailedVideos)
	}
	return summary
}

// Responder implements the scheduler.Agent interface
type Responder struct {
	config        *config.Config
	youtubeClient platform
	generator     generator
	emailSender   digestSender
	replyTracker  *storage.ReplyTracker
	monitor       *monitoring.Monitor

	processed int
	report    *models.RunReport
}

func NewResponder(cfg *config.Config, monitor *monitoring.Monitor) *Responder {
	if monitor == nil {
		monitor = monitoring.NewMonitor()
	}
	return &Responder{
		config:  cfg,
		monitor: monitor,
		report:  &models.RunReport{},
	}
}

func (r *Responder) Name() string {
	return "Comment Responder"
}

func (r *Responder) Initialize(ctx context.Context) error {
	log.Printf("Initializing %s...", r.Name())

	if r.youtubeClient == nil {
		client, err := youtube.Authenticate(ctx, &r.config.YouTube, youtube.Options{
			MaxRetries:   r.config.Responder.MaxRetries,
			RequestDelay: r.config.Responder.RequestDelay(),
			OnRetry: func(op string, attempt int, err error) {
				r.monitor.APIRetry(op)
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create YouTube client: %w", err)
		}
		r.youtubeClient = client
		log.Println("YouTube client initialized")
	}

	if r.generator == nil {
		gen, err := ai.NewReplyGenerator(r.config)
		if err != nil {
			return fmt.Errorf("failed to create reply generator: %w", err)
		}
		r.generator = gen
		log.Println("Reply generator initialized")
	}

	if r.replyTracker == nil {
		retention := time.Duration(r.config.Storage.RetentionDays) * 24 * time.Hour
		tracker, err := storage.NewReplyTracker(r.config.Storage.DataDir, retention)
		if err != nil {
			return fmt.Errorf("failed to create reply tracker: %w", err)
		}
		r.replyTracker = tracker
		log.Printf("Reply tracker initialized (%d comments tracked)", tracker.Count())
	}

	if r.emailSender == nil && r.config.Email.Enabled() {
		r.emailSender = email.NewSender(&r.config.Email)
		log.Println("Email sender initialized")
	}

	return nil
}

// Processed is the number of replies posted during the current run.
func (r *Responder) Processed() int {
	return r.processed
}

func (r *Responder) budgetSpent() bool {
	return r.processed >= r.config.Responder.MaxComments
}

// ProcessVideo replies to the unanswered comments of one video until the run
// budget is spent. Comments already replied to, or that get no generated
// reply, are skipped without using up the budget.
func (r *Responder) ProcessVideo(ctx context.Context, videoID string) error {
	log.Printf("Processing video ID: %s", videoID)

	if r.budgetSpent() {
		return nil
	}

	videoContext, err := r.youtubeClient.VideoSummary(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to get video summary: %w", err)
	}

	attempted := make(map[string]bool)
	skip := func(commentID string) bool {
		if attempted[commentID] {
			return true
		}
		return r.replyTracker != nil && r.replyTracker.HasReplied(commentID)
	}

	for !r.budgetSpent() {
		remaining := r.config.Responder.MaxComments - r.processed

		comments, err := r.youtubeClient.UnansweredComments(ctx, videoID, remaining, skip)
		if err != nil {
			return fmt.Errorf("failed to get unanswered comments: %w", err)
		}

		if len(comments) == 0 {
			if len(attempted) == 0 {
				log.Println("No unanswered comments in this video")
			}
			return nil
		}

		log.Printf("Found %d unanswered comments", len(comments))

		for _, comment := range comments {
			if r.budgetSpent() {
				break
			}
			attempted[comment.ID] = true

			if err := r.respond(ctx, videoID, videoContext, comment); err != nil {
				return err
			}
		}

		// A short listing means the comment threads are exhausted
		if len(comments) < remaining {
			return nil
		}
	}

	return nil
}

func (r *Responder) respond(ctx context.Context, videoID, videoContext string, comment models.Comment) error {
	reply := r.generator.GenerateResponse(ctx, comment.Text, videoContext)
	if reply == "" {
		r.report.Skipped++
		r.monitor.GenerationSkipped()
		return nil
	}

	posted, err := r.youtubeClient.PostReply(ctx, comment.ID, reply)
	if err != nil {
		return fmt.Errorf("failed to post reply to comment %s: %w", comment.ID, err)
	}
	if !posted {
		return nil
	}

	r.processed++
	r.monitor.ReplyPosted()
	r.report.Replies = append(r.report.Replies, &models.PostedReply{
		CommentID: comment.ID,
		VideoID:   videoID,
		Comment:   comment.Text,
		Reply:     reply,
		PostedAt:  time.Now(),
	})
	if r.replyTracker != nil {
		if err := r.replyTracker.MarkReplied(comment.ID, videoID); err != nil {
			log.Printf("Warning: Failed to mark comment %s as replied: %v", comment.ID, err)
		}
	}

	return retry.Sleep(ctx, r.config.Responder.RequestDelay())
}

// ProcessAllVideos walks the channel uploads. A failing video is logged and
// skipped; quota exhaustion and cancellation end the run.
func (r *Responder) ProcessAllVideos(ctx context.Context) error {
	log.Println("Starting processing for all channel videos")

	videoIDs, err := r.youtubeClient.ChannelVideos(ctx, r.config.Responder.MaxVideos)
	if err != nil {
		return fmt.Errorf("failed to get channel videos: %w", err)
	}

	if len(videoIDs) == 0 {
		log.Println("Warning: No videos found in channel")
		return nil
	}

	log.Printf("Found %d videos to process", len(videoIDs))

	for _, videoID := range videoIDs {
		if r.budgetSpent() {
			break
		}

		r.report.VideosScanned++
		if err := r.ProcessVideo(ctx, videoID); err != nil {
			if errors.Is(err, youtube.ErrQuotaExceeded) || ctx.Err() != nil {
				return err
			}
			log.Printf("Error processing video %s: %v", videoID, err)
			r.report.Errors = append(r.report.Errors, models.VideoError{VideoID: videoID, Err: err.Error()})
			continue
		}
	}

	log.Printf("Total processed comments: %d", r.processed)
	return nil
}

func (r *Responder) RunOnce(ctx context.Context, events *scheduler.AgentEvents) error {
	startTime := time.Now()
	r.processed = 0
	r.report = &models.RunReport{
		RunID: uuid.NewString(),
		Date:  startTime,
	}

	log.Printf("Starting comment response process (run %s)...", r.report.RunID)

	var err error
	if videoID := r.config.YouTube.VideoID; videoID != "" {
		r.report.VideosScanned = 1
		err = r.ProcessVideo(ctx, videoID)
	} else {
		err = r.ProcessAllVideos(ctx)
	}

	metrics := ResponderMetrics{
		VideosScanned: r.report.VideosScanned,
		RepliesPosted: r.report.Processed(),
		Skipped:       r.report.Skipped,
		FailedVideos:  len(r.report.Errors),
	}

	// Replies posted before a failure still go into the digest
	if r.emailSender != nil {
		sent, sendErr := r.emailSender.SendRunReport(r.report)
		if sendErr != nil {
			log.Printf("Warning: Failed to send run digest: %v", sendErr)
			if err == nil && events != nil && events.OnPartialFailure != nil {
				events.OnPartialFailure(fmt.Errorf("failed to send run digest: %w", sendErr), time.Since(startTime))
			}
		}
		metrics.EmailSent = sent
	}

	if err != nil {
		if errors.Is(err, youtube.ErrQuotaExceeded) {
			log.Println("Stopping due to API quota limits")
		}
		log.Printf("Critical error after %d replies: %v", r.processed, err)
		return err
	}

	duration := time.Since(startTime)
	if metrics.FailedVideos > 0 && events != nil && events.OnPartialFailure != nil {
		events.OnPartialFailure(fmt.Errorf("%d of %d videos failed", metrics.FailedVideos, metrics.VideosScanned), duration)
	}
	if events != nil && events.OnSuccess != nil {
		events.OnSuccess(metrics, duration)
	}

	log.Printf("Processed %d comments successfully (%s)", r.processed, metrics.GetSummary())

	return nil
}
