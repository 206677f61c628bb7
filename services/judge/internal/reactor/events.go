package reactor

// Source says who initiated a deletion.
type Source string

const (
	SourceUser      Source = "user"
	SourceModerator Source = "moderator"
	SourceAdmin     Source = "admin"
)

type PostCreate struct {
	PostID string `json:"post_id"`
}

type PostDelete struct {
	PostID string `json:"post_id"`
	Source Source `json:"source"`
}

type CommentCreate struct {
	CommentID string `json:"comment_id"`
	PostID    string `json:"post_id,omitempty"`
}

// CommentDelete carries the ids because the comment itself may be gone.
type CommentDelete struct {
	CommentID string `json:"comment_id"`
	PostID    string `json:"post_id"`
	ParentID  string `json:"parent_id"`
	Source    Source `json:"source"`
}

// Mod-log actions the reactor understands.
const (
	ActionRemoveComment  = "removecomment"
	ActionSpamComment    = "spamcomment"
	ActionApproveComment = "approvecomment"
	ActionRemoveLink     = "removelink"
	ActionSpamLink       = "spamlink"
	ActionApproveLink    = "approvelink"
)

type ModAction struct {
	Action        string `json:"action"`
	TargetID      string `json:"target_id"`
	PostID        string `json:"post_id,omitempty"`
	ModeratorID   string `json:"moderator_id,omitempty"`
	ModeratorName string `json:"moderator_name,omitempty"`
}

type AppChange struct {
	Reason string `json:"reason"`
}
