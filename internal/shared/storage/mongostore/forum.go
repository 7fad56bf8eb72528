package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"scholarcamp/internal/shared/model"
)

// ============================================================================
// ForumStore
// ============================================================================

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	return insertOne(ctx, s.col(ColPosts), post)
}

func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	return findOne[model.Post](ctx, s.col(ColPosts), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) ListPosts(ctx context.Context) ([]*model.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[model.Post](ctx, s.col(ColPosts), bson.D{}, opts)
}

func (s *Store) CreateReply(ctx context.Context, reply *model.Reply) error {
	return insertOne(ctx, s.col(ColReplies), reply)
}

func (s *Store) ListRepliesByPost(ctx context.Context, postID string) ([]*model.Reply, error) {
	filter := bson.D{{Key: "post_id", Value: postID}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return findMany[model.Reply](ctx, s.col(ColReplies), filter, opts)
}

func (s *Store) ListReplies(ctx context.Context) ([]*model.Reply, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return findMany[model.Reply](ctx, s.col(ColReplies), bson.D{}, opts)
}
