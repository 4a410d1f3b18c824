package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const quotaBody = `{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota.","errors":[{"message":"quota","domain":"youtube.quota","reason":"quotaExceeded"}]}}`

type page[T any] struct {
	items []T
	next  string
}

// fakeAPI serves just enough of the YouTube Data API v3 for the client.
type fakeAPI struct {
	mu sync.Mutex

	channelID string
	uploadsID string
	playlist  map[string]page[string]
	threads   map[string]page[*youtube.CommentThread]
	videos    map[string]string

	// failures holds status codes returned, in order, before a path succeeds.
	// Keys are either a path or "path#pageToken".
	failures map[string][]int
	requests map[string]int
	queries  map[string][]string
	inserted []*youtube.Comment
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		channelID: "UC123",
		uploadsID: "UU123",
		playlist:  map[string]page[string]{},
		threads:   map[string]page[*youtube.CommentThread]{},
		videos:    map[string]string{},
		failures:  map[string][]int{},
		requests:  map[string]int{},
		queries:   map[string][]string{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/youtube/v3/")
	f.requests[path]++
	f.queries[path] = append(f.queries[path], r.URL.RawQuery)

	q := r.URL.Query()
	key := path
	if token := q.Get("pageToken"); token != "" && len(f.failures[path+"#"+token]) > 0 {
		key = path + "#" + token
	}
	if codes := f.failures[key]; len(codes) > 0 {
		f.failures[key] = codes[1:]
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(codes[0])
		if codes[0] == http.StatusForbidden {
			w.Write([]byte(quotaBody))
			return
		}
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"backend error","errors":[{"reason":"backendError"}]}}`, codes[0])
		return
	}

	var resp any
	switch path {
	case "channels":
		list := &youtube.ChannelListResponse{}
		if f.channelID != "" {
			list.Items = []*youtube.Channel{{
				Id: f.channelID,
				ContentDetails: &youtube.ChannelContentDetails{
					RelatedPlaylists: &youtube.ChannelContentDetailsRelatedPlaylists{Uploads: f.uploadsID},
				},
			}}
		}
		resp = list
	case "playlistItems":
		p := f.playlist[q.Get("pageToken")]
		list := &youtube.PlaylistItemListResponse{NextPageToken: p.next}
		for _, id := range p.items {
			list.Items = append(list.Items, &youtube.PlaylistItem{
				ContentDetails: &youtube.PlaylistItemContentDetails{VideoId: id},
			})
		}
		resp = list
	case "commentThreads":
		p := f.threads[q.Get("pageToken")]
		resp = &youtube.CommentThreadListResponse{Items: p.items, NextPageToken: p.next}
	case "videos":
		list := &youtube.VideoListResponse{}
		if desc, ok := f.videos[q.Get("id")]; ok {
			list.Items = []*youtube.Video{{Id: q.Get("id"), Snippet: &youtube.VideoSnippet{Description: desc}}}
		}
		resp = list
	case "comments":
		var c youtube.Comment
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.inserted = append(f.inserted, &c)
		c.Id = fmt.Sprintf("reply-%d", len(f.inserted))
		resp = &c
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeAPI) queriesFor(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries[path]...)
}

func (f *fakeAPI) insertedReplies() []*youtube.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*youtube.Comment(nil), f.inserted...)
}

func newTestClient(t *testing.T, api *fakeAPI, maxRetries int) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	service, err := youtube.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	return NewClient(service, Options{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
	})
}

func thread(id, text string, replies int64) *youtube.CommentThread {
	th := &youtube.CommentThread{
		Id: "thread-" + id,
		Snippet: &youtube.CommentThreadSnippet{
			TotalReplyCount: replies,
			TopLevelComment: &youtube.Comment{
				Id:      id,
				Snippet: &youtube.CommentSnippet{TextDisplay: text},
			},
		},
	}
	if replies > 0 {
		th.Replies = &youtube.CommentThreadReplies{Comments: []*youtube.Comment{{Id: id + ".r"}}}
	}
	return th
}

func TestChannelVideos(t *testing.T) {
	t.Run("StopsAtMaxVideos", func(t *testing.T) {
		api := newFakeAPI()
		api.playlist[""] = page[string]{items: []string{"v1", "v2", "v3"}, next: "p2"}
		api.playlist["p2"] = page[string]{items: []string{"v4", "v5", "v6"}, next: "p3"}
		api.playlist["p3"] = page[string]{items: []string{"v7"}}
		client := newTestClient(t, api, 3)

		ids, err := client.ChannelVideos(context.Background(), 4)
		if err != nil {
			t.Fatalf("ChannelVideos() error = %v", err)
		}
		if len(ids) != 4 || ids[3] != "v4" {
			t.Errorf("ChannelVideos() = %v, want first 4 videos", ids)
		}
		if n := api.count("playlistItems"); n != 2 {
			t.Errorf("playlistItems requested %d times, want 2", n)
		}
	})

	t.Run("FollowsCursorUntilExhausted", func(t *testing.T) {
		api := newFakeAPI()
		api.playlist[""] = page[string]{items: []string{"v1", "v2"}, next: "p2"}
		api.playlist["p2"] = page[string]{items: []string{"v3"}}
		client := newTestClient(t, api, 3)

		ids, err := client.ChannelVideos(context.Background(), 50)
		if err != nil {
			t.Fatalf("ChannelVideos() error = %v", err)
		}
		if len(ids) != 3 {
			t.Errorf("ChannelVideos() = %v, want 3 videos", ids)
		}

		queries := api.queriesFor("playlistItems")
		if len(queries) != 2 {
			t.Fatalf("playlistItems requested %d times, want 2", len(queries))
		}
		if !strings.Contains(queries[0], "maxResults=50") || !strings.Contains(queries[0], "playlistId=UU123") {
			t.Errorf("unexpected playlistItems query %q", queries[0])
		}
		if !strings.Contains(queries[1], "pageToken=p2") {
			t.Errorf("second page did not send the continuation token: %q", queries[1])
		}
		if !strings.Contains(api.queriesFor("channels")[0], "mine=true") {
			t.Errorf("channel lookup did not ask for mine=true: %q", api.queriesFor("channels")[0])
		}
	})

	t.Run("NoChannel", func(t *testing.T) {
		api := newFakeAPI()
		api.channelID = ""
		client := newTestClient(t, api, 3)

		ids, err := client.ChannelVideos(context.Background(), 10)
		if err != nil {
			t.Fatalf("ChannelVideos() error = %v", err)
		}
		if ids == nil || len(ids) != 0 {
			t.Errorf("ChannelVideos() = %v, want empty slice", ids)
		}
		if n := api.count("playlistItems"); n != 0 {
			t.Errorf("playlistItems requested %d times, want 0", n)
		}
	})
}

func TestUnansweredComments(t *testing.T) {
	t.Run("SkipsThreadsWithReplies", func(t *testing.T) {
		api := newFakeAPI()
		answeredNoCount := thread("c4", "inline reply only", 0)
		answeredNoCount.Replies = &youtube.CommentThreadReplies{Comments: []*youtube.Comment{{Id: "c4.r"}}}

		api.threads[""] = page[*youtube.CommentThread]{
			items: []*youtube.CommentThread{thread("c1", "first", 0), thread("c2", "answered", 2)},
			next:  "t2",
		}
		api.threads["t2"] = page[*youtube.CommentThread]{
			items: []*youtube.CommentThread{thread("c3", "third", 0), answeredNoCount},
		}
		client := newTestClient(t, api, 3)

		comments, err := client.UnansweredComments(context.Background(), "vid", 10, nil)
		if err != nil {
			t.Fatalf("UnansweredComments() error = %v", err)
		}
		if len(comments) != 2 {
			t.Fatalf("UnansweredComments() returned %d comments, want 2", len(comments))
		}
		for _, c := range comments {
			if c.ID == "c2" || c.ID == "c4" {
				t.Errorf("answered comment %s was returned", c.ID)
			}
			if c.VideoID != "vid" {
				t.Errorf("comment %s VideoID = %s, want vid", c.ID, c.VideoID)
			}
		}
		if comments[0].Text != "first" {
			t.Errorf("comment text = %q, want first", comments[0].Text)
		}

		query := api.queriesFor("commentThreads")[0]
		for _, want := range []string{"videoId=vid", "moderationStatus=published", "textFormat=plainText", "maxResults=100"} {
			if !strings.Contains(query, want) {
				t.Errorf("commentThreads query %q missing %s", query, want)
			}
		}
	})

	t.Run("StopsAtLimit", func(t *testing.T) {
		api := newFakeAPI()
		api.threads[""] = page[*youtube.CommentThread]{
			items: []*youtube.CommentThread{thread("c1", "a", 0), thread("c2", "b", 0), thread("c3", "c", 0)},
			next:  "t2",
		}
		api.threads["t2"] = page[*youtube.CommentThread]{
			items: []*youtube.CommentThread{thread("c4", "d", 0)},
		}
		client := newTestClient(t, api, 3)

		comments, err := client.UnansweredComments(context.Background(), "vid", 2, nil)
		if err != nil {
			t.Fatalf("UnansweredComments() error = %v", err)
		}
		if len(comments) != 2 {
			t.Errorf("UnansweredComments() returned %d comments, want 2", len(comments))
		}
		if n := api.count("commentThreads"); n != 1 {
			t.Errorf("commentThreads requested %d times, want 1", n)
		}
	})

	t.Run("SkippedCommentsDoNotCountTowardLimit", func(t *testing.T) {
		api := newFakeAPI()
		api.threads[""] = page[*youtube.CommentThread]{
			items: []*youtube.CommentThread{thread("c1", "a", 0), thread("c2", "b", 0)},
			next:  "t2",
		}
		api.threads["t2"] = page[*youtube.CommentThread]{
			items: []*youtube.CommentThread{thread("c3", "c", 0)},
		}
		client := newTestClient(t, api, 3)

		replied := map[string]bool{"c1": true, "c2": true}
		comments, err := client.UnansweredComments(context.Background(), "vid", 1, func(id string) bool {
			return replied[id]
		})
		if err != nil {
			t.Fatalf("UnansweredComments() error = %v", err)
		}
		if len(comments) != 1 || comments[0].ID != "c3" {
			t.Fatalf("UnansweredComments() = %+v, want only c3", comments)
		}
		if n := api.count("commentThreads"); n != 2 {
			t.Errorf("commentThreads requested %d times, want 2", n)
		}
	})

	t.Run("ZeroLimitMakesNoRequest", func(t *testing.T) {
		api := newFakeAPI()
		client := newTestClient(t, api, 3)

		comments, err := client.UnansweredComments(context.Background(), "vid", 0, nil)
		if err != nil || len(comments) != 0 {
			t.Errorf("UnansweredComments() = %v, %v; want empty, nil", comments, err)
		}
		if n := api.count("commentThreads"); n != 0 {
			t.Errorf("commentThreads requested %d times, want 0", n)
		}
	})
}

func TestVideoSummary(t *testing.T) {
	api := newFakeAPI()
	api.videos["long"] = strings.Repeat("d", 2500)
	api.videos["multibyte"] = strings.Repeat("ü", 1200)
	api.videos["short"] = "A short description"
	client := newTestClient(t, api, 3)

	tests := []struct {
		videoID string
		wantLen int
	}{
		{"long", 1000},
		{"multibyte", 1000},
		{"short", len("A short description")},
		{"missing", 0},
	}

	for _, tt := range tests {
		t.Run(tt.videoID, func(t *testing.T) {
			summary, err := client.VideoSummary(context.Background(), tt.videoID)
			if err != nil {
				t.Fatalf("VideoSummary() error = %v", err)
			}
			if n := utf8.RuneCountInString(summary); n != tt.wantLen {
				t.Errorf("VideoSummary() length = %d, want %d", n, tt.wantLen)
			}
		})
	}
}

func TestPostReply(t *testing.T) {
	t.Run("EmptyTextIsNoOp", func(t *testing.T) {
		api := newFakeAPI()
		client := newTestClient(t, api, 3)

		posted, err := client.PostReply(context.Background(), "c1", "")
		if err != nil {
			t.Fatalf("PostReply() error = %v", err)
		}
		if posted {
			t.Error("PostReply() with empty text returned true")
		}
		if n := api.count("comments"); n != 0 {
			t.Errorf("comments requested %d times, want 0", n)
		}
	})

	t.Run("InsertsReply", func(t *testing.T) {
		api := newFakeAPI()
		client := newTestClient(t, api, 3)

		posted, err := client.PostReply(context.Background(), "c1", "Thanks!")
		if err != nil {
			t.Fatalf("PostReply() error = %v", err)
		}
		if !posted {
			t.Error("PostReply() returned false")
		}
		if len(api.insertedReplies()) != 1 {
			t.Fatalf("inserted %d replies, want 1", len(api.insertedReplies()))
		}
		got := api.insertedReplies()[0].Snippet
		if got.ParentId != "c1" || got.TextOriginal != "Thanks!" {
			t.Errorf("inserted snippet = %+v, want parent c1 with text", got)
		}
	})
}

func TestRetryPolicy(t *testing.T) {
	t.Run("TransientFailuresRecover", func(t *testing.T) {
		api := newFakeAPI()
		api.videos["v1"] = "desc"
		api.failures["videos"] = []int{http.StatusInternalServerError, http.StatusServiceUnavailable}
		client := newTestClient(t, api, 3)

		var retries []int
		client.onRetry = func(op string, attempt int, err error) {
			retries = append(retries, attempt)
		}

		summary, err := client.VideoSummary(context.Background(), "v1")
		if err != nil {
			t.Fatalf("VideoSummary() error = %v", err)
		}
		if summary != "desc" {
			t.Errorf("VideoSummary() = %q, want desc", summary)
		}
		if n := api.count("videos"); n != 3 {
			t.Errorf("videos requested %d times, want 3", n)
		}
		if len(retries) != 2 {
			t.Errorf("OnRetry called %d times, want 2", len(retries))
		}
	})

	t.Run("ExhaustedAttemptsSurfaceLastError", func(t *testing.T) {
		api := newFakeAPI()
		api.failures["videos"] = []int{500, 500, 500, 500}
		client := newTestClient(t, api, 3)

		_, err := client.VideoSummary(context.Background(), "v1")
		if err == nil {
			t.Fatal("VideoSummary() error = nil, want failure")
		}
		if errors.Is(err, ErrQuotaExceeded) {
			t.Error("server error misclassified as quota")
		}
		if n := api.count("videos"); n != 3 {
			t.Errorf("videos requested %d times, want 3", n)
		}
	})

	t.Run("QuotaExceededIsImmediate", func(t *testing.T) {
		api := newFakeAPI()
		api.failures["commentThreads"] = []int{http.StatusForbidden}
		client := newTestClient(t, api, 5)

		_, err := client.UnansweredComments(context.Background(), "vid", 10, nil)
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("UnansweredComments() error = %v, want ErrQuotaExceeded", err)
		}
		if n := api.count("commentThreads"); n != 1 {
			t.Errorf("commentThreads requested %d times, want 1", n)
		}
	})

	t.Run("PaginationRetriesOnlyTheFailedPage", func(t *testing.T) {
		api := newFakeAPI()
		api.playlist[""] = page[string]{items: []string{"v1"}, next: "p2"}
		api.playlist["p2"] = page[string]{items: []string{"v2"}}
		api.failures["playlistItems#p2"] = []int{http.StatusBadGateway}
		client := newTestClient(t, api, 3)

		ids, err := client.ChannelVideos(context.Background(), 10)
		if err != nil {
			t.Fatalf("ChannelVideos() error = %v", err)
		}
		if len(ids) != 2 || ids[0] != "v1" || ids[1] != "v2" {
			t.Errorf("ChannelVideos() = %v, want [v1 v2]", ids)
		}

		queries := api.queriesFor("playlistItems")
		if len(queries) != 3 {
			t.Fatalf("playlistItems requested %d times, want 3", len(queries))
		}
		if strings.Contains(queries[0], "pageToken") {
			t.Errorf("first page was fetched again: %q", queries[0])
		}
		if !strings.Contains(queries[2], "pageToken=p2") {
			t.Errorf("retry did not resume from p2: %q", queries[2])
		}
	})
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"quota", fmt.Errorf("%w: boom", ErrQuotaExceeded), false},
		{"auth", ErrAuthentication, false},
		{"canceled", context.Canceled, false},
		{"plain error", errors.New("unexpected"), false},
		{"server error", &googleapi.Error{Code: 500}, true},
		{"not found", &googleapi.Error{Code: 404}, true},
		{"network", &url.Error{Op: "Get", URL: "https://youtube.googleapis.com", Err: errors.New("connection reset")}, true},
		{"classified quota", classify(quotaError()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func quotaError() *googleapi.Error {
	return &googleapi.Error{
		Code:    http.StatusForbidden,
		Message: "The request cannot be completed because you have exceeded your quota.",
		Errors:  []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
	}
}

func TestClassify(t *testing.T) {
	if err := classify(nil); err != nil {
		t.Errorf("classify(nil) = %v, want nil", err)
	}

	if err := classify(quotaError()); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("classify(quota) = %v, want ErrQuotaExceeded", err)
	}

	bodyOnly := &googleapi.Error{Code: http.StatusForbidden, Body: quotaBody}
	if err := classify(bodyOnly); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("classify(quota body) = %v, want ErrQuotaExceeded", err)
	}

	forbidden := &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "commentsDisabled"}}}
	if err := classify(forbidden); errors.Is(err, ErrQuotaExceeded) {
		t.Error("classify(commentsDisabled) reported quota")
	}

	notForbidden := &googleapi.Error{Code: http.StatusTooManyRequests, Body: quotaBody}
	if err := classify(notForbidden); errors.Is(err, ErrQuotaExceeded) {
		t.Error("classify(429) reported quota; only 403 carries the quota marker")
	}
}
