package reddit

import (
	"encoding/json"
	"time"

	"github.com/example/twist-judge/services/judge/internal/content"
)

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// thingData is the union of the post and comment fields the judge reads.
type thingData struct {
	Name              string  `json:"name"`
	Title             string  `json:"title"`
	Selftext          string  `json:"selftext"`
	Body              string  `json:"body"`
	Author            string  `json:"author"`
	AuthorFullname    string  `json:"author_fullname"`
	Permalink         string  `json:"permalink"`
	Score             int     `json:"score"`
	CreatedUTC        float64 `json:"created_utc"`
	LinkID            string  `json:"link_id"`
	ParentID          string  `json:"parent_id"`
	Removed           bool    `json:"removed"`
	Spam              bool    `json:"spam"`
	RemovedByCategory string  `json:"removed_by_category"`
	Distinguished     string  `json:"distinguished"`
	Stickied          bool    `json:"stickied"`
	Locked            bool    `json:"locked"`
}

func (d thingData) createdAt() time.Time {
	sec := int64(d.CreatedUTC)
	return time.Unix(sec, int64((d.CreatedUTC-float64(sec))*1e9)).UTC()
}

func (d thingData) authorName() string {
	if d.Author == "[deleted]" {
		return ""
	}
	return d.Author
}

func (d thingData) post() content.Post {
	return content.Post{
		ID:         d.Name,
		Title:      d.Title,
		Body:       d.Selftext,
		AuthorID:   d.AuthorFullname,
		AuthorName: d.authorName(),
		Permalink:  d.Permalink,
		Score:      d.Score,
		CreatedAt:  d.createdAt(),
		Removed:    d.Removed || d.RemovedByCategory != "",
		Spam:       d.Spam,
	}
}

func (d thingData) comment() content.Comment {
	return content.Comment{
		ID:            d.Name,
		PostID:        d.LinkID,
		ParentID:      d.ParentID,
		Body:          d.Body,
		AuthorID:      d.AuthorFullname,
		AuthorName:    d.authorName(),
		Permalink:     d.Permalink,
		Score:         d.Score,
		CreatedAt:     d.createdAt(),
		Removed:       d.Removed,
		Spam:          d.Spam,
		Distinguished: d.Distinguished != "",
		Stickied:      d.Stickied,
		Locked:        d.Locked,
	}
}

// apiResponse is the api_type=json envelope used by write endpoints.
type apiResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

type meResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
