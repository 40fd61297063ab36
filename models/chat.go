package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one question/answer turn in a session
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID  string             `bson:"session_id" json:"session_id"`
	Question   string             `bson:"question" json:"question"`
	Answer     string             `bson:"answer" json:"answer"`
	Sources    []SourceChunk      `bson:"sources,omitempty" json:"sources,omitempty"`
	TokensUsed int                `bson:"tokens_used" json:"tokens_used"`
	CacheHit   bool               `bson:"cache_hit,omitempty" json:"cache_hit,omitempty"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}

// SourceChunk is a retrieved chunk cited in an answer
type SourceChunk struct {
	Text     string  `bson:"text" json:"text"`
	Source   string  `bson:"source" json:"source"`
	DocID    string  `bson:"doc_id,omitempty" json:"doc_id,omitempty"`
	Order    int     `bson:"order,omitempty" json:"order,omitempty"`
	Score    float64 `bson:"score" json:"score"`
}

type ChatRequest struct {
	Message   string `json:"message" binding:"required,min=1,max=2000"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty" binding:"omitempty,min=1,max=20"`
}

type ChatResponse struct {
	Answer     string        `json:"answer"`
	Sources    []SourceChunk `json:"sources,omitempty"`
	SessionID  string        `json:"session_id"`
	TokensUsed int           `json:"tokens_used"`
	CacheHit   bool          `json:"cache_hit"`
	Timestamp  time.Time     `json:"timestamp"`
}
