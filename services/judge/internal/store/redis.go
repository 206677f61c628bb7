package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/twist-judge/services/judge/internal/content"
)

const scanCount = 200

// RedisStore keeps state in five keys under a configurable prefix:
//
//	<prefix>:trackedPosts      ZSET  post -> creation time (unix ms)
//	<prefix>:trackedComments   ZSET  "post:comment" -> score snapshot
//	<prefix>:finishedPosts     HASH  post -> winning comment
//	<prefix>:stickyPostMap     HASH  post -> announcement comment
//	<prefix>:resultStickyMap   HASH  winning comment -> announcement comment
type RedisStore struct {
	client redis.Cmdable
	log    *zap.Logger

	trackedPosts    string
	trackedComments string
	finishedPosts   string
	postAnnounce    string
	commentAnnounce string
}

func NewRedisStore(client redis.Cmdable, prefix string, log *zap.Logger) *RedisStore {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "judge"
	}
	return &RedisStore{
		client:          client,
		log:             log,
		trackedPosts:    prefix + ":trackedPosts",
		trackedComments: prefix + ":trackedComments",
		finishedPosts:   prefix + ":finishedPosts",
		postAnnounce:    prefix + ":stickyPostMap",
		commentAnnounce: prefix + ":resultStickyMap",
	}
}

func (s *RedisStore) TrackPost(ctx context.Context, postID string, trackedAt time.Time) error {
	if err := checkPost(postID); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.trackedPosts, redis.Z{Score: float64(trackedAt.UnixMilli()), Member: postID}).Err()
}

func (s *RedisStore) UntrackPost(ctx context.Context, postID string) error {
	return s.client.ZRem(ctx, s.trackedPosts, postID).Err()
}

func (s *RedisStore) TrackedPosts(ctx context.Context, min, max int64) ([]TrackedPost, error) {
	zs, err := s.client.ZRangeByScoreWithScores(ctx, s.trackedPosts, &redis.ZRangeBy{
		Min: strconv.FormatInt(min, 10),
		Max: strconv.FormatInt(max, 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]TrackedPost, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		if !content.IsPostID(id) {
			s.log.Warn("ignoring malformed tracked post", zap.String("member", id))
			continue
		}
		out = append(out, TrackedPost{ID: id, TrackedAt: time.UnixMilli(int64(z.Score))})
	}
	return out, nil
}

func (s *RedisStore) IsTrackedPost(ctx context.Context, postID string) (bool, error) {
	err := s.client.ZScore(ctx, s.trackedPosts, postID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func candidateMember(postID, commentID string) string { return postID + ":" + commentID }

func (s *RedisStore) TrackCandidate(ctx context.Context, postID, commentID string, score int) error {
	if err := checkPair(postID, commentID); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.trackedComments, redis.Z{Score: float64(score), Member: candidateMember(postID, commentID)}).Err()
}

func (s *RedisStore) UntrackCandidate(ctx context.Context, postID, commentID string) error {
	return s.client.ZRem(ctx, s.trackedComments, candidateMember(postID, commentID)).Err()
}

func (s *RedisStore) Candidates(ctx context.Context, postID string) ([]Candidate, error) {
	if err := checkPost(postID); err != nil {
		return nil, err
	}
	var (
		out    []Candidate
		cursor uint64
		match  = postID + ":*"
	)
	for {
		kv, next, err := s.client.ZScan(ctx, s.trackedComments, cursor, match, scanCount).Result()
		if err != nil {
			return nil, err
		}
		// ZSCAN replies alternate member, score.
		for i := 0; i+1 < len(kv); i += 2 {
			pid, cid, ok := strings.Cut(kv[i], ":")
			if !ok || pid != postID || !content.IsCommentID(cid) {
				s.log.Warn("ignoring malformed candidate", zap.String("member", kv[i]))
				continue
			}
			score, err := strconv.ParseFloat(kv[i+1], 64)
			if err != nil {
				s.log.Warn("ignoring candidate with bad score", zap.String("member", kv[i]), zap.Error(err))
				continue
			}
			out = append(out, Candidate{PostID: pid, CommentID: cid, Score: int(score)})
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return dedupeCandidates(out), nil
}

// dedupeCandidates drops repeats that ZSCAN may return across cursor pages.
func dedupeCandidates(in []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		if _, ok := seen[c.CommentID]; ok {
			continue
		}
		seen[c.CommentID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// hgetComment reads a hash field that must hold a comment id.
func (s *RedisStore) hgetComment(ctx context.Context, key, field string) (string, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !content.IsCommentID(v) {
		s.log.Warn("ignoring malformed stored comment id", zap.String("key", key), zap.String("field", field), zap.String("value", v))
		return "", nil
	}
	return v, nil
}

func (s *RedisStore) PostAnnouncement(ctx context.Context, postID string) (string, error) {
	return s.hgetComment(ctx, s.postAnnounce, postID)
}

func (s *RedisStore) SetPostAnnouncement(ctx context.Context, postID, announcementID string) error {
	if err := checkPair(postID, announcementID); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.postAnnounce, postID, announcementID).Err()
}

func (s *RedisStore) DeletePostAnnouncement(ctx context.Context, postID string) error {
	return s.client.HDel(ctx, s.postAnnounce, postID).Err()
}

func (s *RedisStore) CommentAnnouncement(ctx context.Context, commentID string) (string, error) {
	return s.hgetComment(ctx, s.commentAnnounce, commentID)
}

func (s *RedisStore) SetCommentAnnouncement(ctx context.Context, commentID, announcementID string) error {
	if err := checkComment(commentID); err != nil {
		return err
	}
	if err := checkComment(announcementID); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.commentAnnounce, commentID, announcementID).Err()
}

func (s *RedisStore) DeleteCommentAnnouncement(ctx context.Context, commentID string) error {
	return s.client.HDel(ctx, s.commentAnnounce, commentID).Err()
}

func (s *RedisStore) FinishedWinner(ctx context.Context, postID string) (string, error) {
	return s.hgetComment(ctx, s.finishedPosts, postID)
}

func (s *RedisStore) SetFinished(ctx context.Context, postID, winnerID string) error {
	if err := checkPair(postID, winnerID); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.finishedPosts, postID, winnerID).Err()
}

func (s *RedisStore) DeleteFinished(ctx context.Context, postID string) error {
	return s.client.HDel(ctx, s.finishedPosts, postID).Err()
}

func (s *RedisStore) FinishedPosts(ctx context.Context) (map[string]string, error) {
	all, err := s.client.HGetAll(ctx, s.finishedPosts).Result()
	if err != nil {
		return nil, err
	}
	for post, winner := range all {
		if !content.IsPostID(post) || !content.IsCommentID(winner) {
			s.log.Warn("ignoring malformed finished marker", zap.String("post_id", post), zap.String("winner", winner))
			delete(all, post)
		}
	}
	return all, nil
}
