package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"scholarcamp/internal/shared/model"
	"scholarcamp/internal/shared/storage"
)

// ============================================================================
// BookmarkStore
// ============================================================================

// ToggleBookmark 原子切换 (user, listing) 的收藏关系
//
// 收藏关系的唯一权威来源是 users.bookmarks，每个方向各是一次条件更新：
//  1. filter {_id: user, bookmarks: {$ne: listing}} + $addToSet
//     命中 → 此前未收藏，现已加入，集合语义保证无重复
//  2. 未命中 → 用户不存在或已收藏；$pull 区分两种情况
//
// 收藏计数不落库，读取时由 bookmarkCounts 从 users.bookmarks 重算，
// 因此每次请求只有这一次写入，不存在第二步失败导致的计数漂移。
// 并发调用同一 (user, listing) 时每次请求仍各是一次原子状态翻转。
func (s *Store) ToggleBookmark(ctx context.Context, userID, listingID string) (bool, error) {
	users := s.col(ColUsers)

	// 未收藏 → 收藏
	addFilter := bson.D{
		{Key: "_id", Value: userID},
		{Key: "bookmarks", Value: bson.D{{Key: "$ne", Value: listingID}}},
	}
	res, err := users.UpdateOne(ctx, addFilter, bson.D{
		{Key: "$addToSet", Value: bson.D{{Key: "bookmarks", Value: listingID}}},
	})
	if err != nil {
		return false, wrapError(err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	// 已收藏 → 取消；未命中 _id 则用户不存在
	res, err = users.UpdateOne(ctx, bson.D{{Key: "_id", Value: userID}}, bson.D{
		{Key: "$pull", Value: bson.D{{Key: "bookmarks", Value: listingID}}},
	})
	if err != nil {
		return false, wrapError(err)
	}
	if res.MatchedCount == 0 {
		return false, storage.ErrNotFound
	}
	return false, nil
}

// PullBookmarkFromAllUsers 将指定 Listing 从所有用户的书签集合中移除
func (s *Store) PullBookmarkFromAllUsers(ctx context.Context, listingID string) error {
	_, err := s.col(ColUsers).UpdateMany(ctx, bson.D{}, bson.D{
		{Key: "$pull", Value: bson.D{{Key: "bookmarks", Value: listingID}}},
	})
	return wrapError(err)
}

// ============================================================================
// 收藏计数（读取时重算）
// ============================================================================

type bookmarkCountRow struct {
	ListingID string `bson:"_id"`
	Count     int64  `bson:"count"`
}

// bookmarkCounts 统计每个 Listing 被多少用户收藏
// 结果不含计数为零的 ID，调用方按缺省零处理
func (s *Store) bookmarkCounts(ctx context.Context, ids []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	inIDs := bson.D{{Key: "bookmarks", Value: bson.D{{Key: "$in", Value: ids}}}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: inIDs}},
		{{Key: "$unwind", Value: "$bookmarks"}},
		{{Key: "$match", Value: inIDs}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$bookmarks"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	rows, err := aggregate[bookmarkCountRow](ctx, s.col(ColUsers), pipeline)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ListingID] = row.Count
	}
	return counts, nil
}

// attachBookmarkCounts 为一批 Listing 填充收藏计数
func (s *Store) attachBookmarkCounts(ctx context.Context, listings []*model.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	counts, err := s.bookmarkCounts(ctx, ids)
	if err != nil {
		return err
	}
	for _, l := range listings {
		l.BookmarkCount = counts[l.ID]
	}
	return nil
}
