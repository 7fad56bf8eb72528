package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"scholarcamp/internal/shared/model"
	"scholarcamp/internal/shared/storage"
)

// ============================================================================
// UserStore
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return insertOne(ctx, s.col(ColUsers), user)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "email", Value: email}})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[model.User](ctx, s.col(ColUsers), bson.D{}, opts)
}

func (s *Store) UpdateUserProfile(ctx context.Context, id, name, email string) error {
	update := bson.D{{Key: "updated_at", Value: time.Now()}}
	if name != "" {
		update = append(update, bson.E{Key: "name", Value: name})
	}
	if email != "" {
		update = append(update, bson.E{Key: "email", Value: email})
	}
	return updateFields(ctx, s.col(ColUsers), id, update)
}

func (s *Store) UpdateUserSocials(ctx context.Context, id, linkedin, instagram string) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "linkedin", Value: linkedin},
		{Key: "instagram", Value: instagram},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) SetUserPublicProfile(ctx context.Context, id string, public bool) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "settings.public_profile", Value: public},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role model.UserRole) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "role", Value: role},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColUsers), id)
}

func (s *Store) DeleteUsers(ctx context.Context, ids []string) (int64, error) {
	return deleteByIDs(ctx, s.col(ColUsers), ids)
}

// GetUserNames 批量查询用户显示名，结果不含未命中的 ID
func (s *Store) GetUserNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
	opts := options.Find().SetProjection(bson.D{{Key: "name", Value: 1}})
	users, err := findMany[model.User](ctx, s.col(ColUsers), filter, opts)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func (s *Store) CountUsersByRole(ctx context.Context) ([]storage.RoleCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$role"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "role", Value: "$_id"},
			{Key: "count", Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "role", Value: 1}}}},
	}
	return aggregate[storage.RoleCount](ctx, s.col(ColUsers), pipeline)
}

// ============================================================================
// 找回密码
// ============================================================================

func (s *Store) SetUserResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "reset_token", Value: token},
		{Key: "reset_token_expiry", Value: expiry},
		{Key: "updated_at", Value: time.Now()},
	})
}

// GetUserByResetToken 按令牌查找用户，已过期的令牌视为不存在
func (s *Store) GetUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	filter := bson.D{
		{Key: "reset_token", Value: token},
		{Key: "reset_token_expiry", Value: bson.D{{Key: "$gt", Value: time.Now()}}},
	}
	return findOne[model.User](ctx, s.col(ColUsers), filter)
}

// ResetUserPassword 写入新密码并清空找回密码令牌，单次原子更新
func (s *Store) ResetUserPassword(ctx context.Context, id, passwordHash string) error {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: time.Now()},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "reset_token", Value: ""},
			{Key: "reset_token_expiry", Value: ""},
		}},
	}
	res, err := s.col(ColUsers).UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
