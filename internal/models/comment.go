package models

import "time"

// Comment is a top-level comment that has not been answered yet.
type Comment struct {
	ID      string `json:"id"`
	VideoID string `json:"video_id"`
	Text    string `json:"text"`
}

// PostedReply records a reply the responder published.
type PostedReply struct {
	CommentID string    `json:"comment_id"`
	VideoID   string    `json:"video_id"`
	Comment   string    `json:"comment"`
	Reply     string    `json:"reply"`
	PostedAt  time.Time `json:"posted_at"`
}

// VideoError is a failure confined to a single video.
type VideoError struct {
	VideoID string `json:"video_id"`
	Err     string `json:"error"`
}

type RunReport struct {
	RunID         string         `json:"run_id"`
	Date          time.Time      `json:"date"`
	VideosScanned int            `json:"videos_scanned"`
	Replies       []*PostedReply `json:"replies"`
	Skipped       int            `json:"skipped"` // empty generations
	Errors        []VideoError   `json:"errors"`
}

// Processed is the number of replies posted during the run.
func (r *RunReport) Processed() int {
	return len(r.Replies)
}
