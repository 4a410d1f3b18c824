package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ReplyTracker remembers which comments have been answered so a comment is
// never replied to twice, even while the platform still reports it as
// unanswered.
type ReplyTracker struct {
	filePath string
	replied  map[string]TrackedReply
	mu       sync.RWMutex
	maxAge   time.Duration
}

// TrackedReply represents a comment that received a reply
type TrackedReply struct {
	CommentID string    `json:"comment_id"`
	VideoID   string    `json:"video_id"`
	RepliedAt time.Time `json:"replied_at"`
}

// NewReplyTracker creates a new reply tracker with persistent storage
func NewReplyTracker(dataDir string, maxAge time.Duration) (*ReplyTracker, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	tracker := &ReplyTracker{
		filePath: filepath.Join(dataDir, "replied_comments.json"),
		replied:  make(map[string]TrackedReply),
		maxAge:   maxAge,
	}

	if err := tracker.load(); err != nil {
		return nil, fmt.Errorf("failed to load reply tracker data: %w", err)
	}

	tracker.cleanup()

	return tracker, nil
}

// HasReplied checks if a comment was answered within the retention window
func (rt *ReplyTracker) HasReplied(commentID string) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	entry, exists := rt.replied[commentID]
	if !exists {
		return false
	}
	return time.Since(entry.RepliedAt) < rt.maxAge
}

// MarkReplied records a reply and persists the tracker
func (rt *ReplyTracker) MarkReplied(commentID, videoID string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.replied[commentID] = TrackedReply{
		CommentID: commentID,
		VideoID:   videoID,
		RepliedAt: time.Now(),
	}
	return rt.save()
}

// Count returns the number of tracked replies
func (rt *ReplyTracker) Count() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.replied)
}

// cleanup removes entries older than maxAge
func (rt *ReplyTracker) cleanup() {
	cutoff := time.Now().Add(-rt.maxAge)

	for id, entry := range rt.replied {
		if entry.RepliedAt.Before(cutoff) {
			delete(rt.replied, id)
		}
	}
}

func (rt *ReplyTracker) load() error {
	file, err := os.Open(rt.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open tracker file: %w", err)
	}
	defer file.Close()

	var entries []TrackedReply
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode tracker data: %w", err)
	}

	for _, entry := range entries {
		rt.replied[entry.CommentID] = entry
	}

	return nil
}

// save writes the tracker through a temp file so a crash never leaves a
// truncated JSON document behind.
func (rt *ReplyTracker) save() error {
	entries := make([]TrackedReply, 0, len(rt.replied))
	for _, entry := range rt.replied {
		entries = append(entries, entry)
	}

	tmp, err := os.CreateTemp(filepath.Dir(rt.filePath), "replied_comments-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode tracker data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	return os.Rename(tmp.Name(), rt.filePath)
}
