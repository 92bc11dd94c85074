package sources

import "time"

type PageStatus string

const (
	PageActive PageStatus = "active"
	PagePaused PageStatus = "paused"
)

// DefaultPosts is the number of posts scraped per page when none is given.
const DefaultPosts = 10

// Page is a social page the scraper watches.
type Page struct {
	ID            string     `json:"id"`
	URL           string     `json:"source_page_url"`
	NumberOfPosts int        `json:"number_of_posts"`
	Status        PageStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EffectiveStatus treats a missing status as active.
func (p Page) EffectiveStatus() PageStatus {
	if p.Status == PagePaused {
		return PagePaused
	}
	return PageActive
}

// Video is scraped source material.
type Video struct {
	ID            string    `json:"id"`
	VideoPageURL  string    `json:"video_page_url"`
	ViewCount     *int64    `json:"view_count,omitempty"`
	Processed     bool      `json:"processed"`
	Analyzed      bool      `json:"video_analyzed"`
	ThumbnailURL  string    `json:"thumbnail_url,omitempty"`
	FirstFrameURL string    `json:"first_frame_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PreviewURL is the image shown for the video: the extracted first frame
// when analysis produced one, the scraped thumbnail otherwise.
func (v Video) PreviewURL() string {
	if v.FirstFrameURL != "" {
		return v.FirstFrameURL
	}
	return v.ThumbnailURL
}

type VideoTab string

const (
	TabAll        VideoTab = "all"
	TabPending    VideoTab = "pending"
	TabProcessed  VideoTab = "processed"
	TabAnalyzed   VideoTab = "analyzed"
	TabUnanalyzed VideoTab = "unanalyzed"
)

// VideoCounts feeds the tab badges.
type VideoCounts struct {
	All        int `json:"all"`
	Pending    int `json:"pending"`
	Processed  int `json:"processed"`
	Analyzed   int `json:"analyzed"`
	Unanalyzed int `json:"unanalyzed"`
}
