package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CrawlJob represents a web crawling job
type CrawlJob struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	URL          string             `bson:"url" json:"url"`
	Status       string             `bson:"status" json:"status"` // pending, crawling, completed, failed
	Progress     int                `bson:"progress" json:"progress"`
	Title        string             `bson:"title,omitempty" json:"title,omitempty"`
	PagesFound   int                `bson:"pages_found" json:"pages_found"`
	PagesCrawled int                `bson:"pages_crawled" json:"pages_crawled"`
	Error        string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`

	// Crawling configuration
	MaxPages       int      `bson:"max_pages,omitempty" json:"max_pages,omitempty"`
	AllowedDomains []string `bson:"allowed_domains,omitempty" json:"allowed_domains,omitempty"`
	AllowedPaths   []string `bson:"allowed_paths,omitempty" json:"allowed_paths,omitempty"`
	FollowLinks    bool     `bson:"follow_links" json:"follow_links"`
	RespectRobots  bool     `bson:"respect_robots" json:"respect_robots"`
	RenderJS       bool     `bson:"render_js,omitempty" json:"render_js,omitempty"`

	// Recrawl schedule (cron expression, empty = one-shot)
	RecrawlCron string `bson:"recrawl_cron,omitempty" json:"recrawl_cron,omitempty"`
}

// CrawledPage represents a single crawled page
type CrawledPage struct {
	URL        string    `bson:"url" json:"url"`
	Title      string    `bson:"title" json:"title"`
	Content    string    `bson:"content" json:"content"`
	CrawledAt  time.Time `bson:"crawled_at" json:"crawled_at"`
	StatusCode int       `bson:"status_code" json:"status_code"`
	Size       int64     `bson:"size" json:"size"`
	WordCount  int       `bson:"word_count,omitempty" json:"word_count,omitempty"`
}

// CrawlRequest is the API payload to start a crawl
type CrawlRequest struct {
	URL            string   `json:"url" binding:"required,url"`
	MaxPages       int      `json:"max_pages,omitempty" binding:"omitempty,min=1,max=500"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
	AllowedPaths   []string `json:"allowed_paths,omitempty"`
	FollowLinks    bool     `json:"follow_links"`
	RespectRobots  bool     `json:"respect_robots"`
	RenderJS       bool     `json:"render_js"`
	RecrawlCron    string   `json:"recrawl_cron,omitempty"`
}

// Crawl status constants
const (
	CrawlStatusPending   = "pending"
	CrawlStatusCrawling  = "crawling"
	CrawlStatusCompleted = "completed"
	CrawlStatusFailed    = "failed"
)
