package mongostore

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"scholarcamp/internal/shared/model"
	"scholarcamp/internal/shared/storage"
)

// ============================================================================
// ListingStore
// ============================================================================

func (s *Store) CreateListing(ctx context.Context, listing *model.Listing) error {
	return insertOne(ctx, s.col(ColListings), listing)
}

func (s *Store) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	listing, err := findOne[model.Listing](ctx, s.col(ColListings), bson.D{{Key: "_id", Value: id}})
	if err != nil || listing == nil {
		return listing, err
	}
	if err := s.attachBookmarkCounts(ctx, []*model.Listing{listing}); err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *Store) ListListings(ctx context.Context) ([]*model.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findListings(ctx, bson.D{}, opts)
}

func (s *Store) ListListingsByUploader(ctx context.Context, userID string) ([]*model.Listing, error) {
	filter := bson.D{{Key: "uploaded_by", Value: userID}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findListings(ctx, filter, opts)
}

// GetListingsByIDs 批量查询，结果不含未命中的 ID（已删除的资料被自然过滤）
func (s *Store) GetListingsByIDs(ctx context.Context, ids []string) ([]*model.Listing, error) {
	if len(ids) == 0 {
		return []*model.Listing{}, nil
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findListings(ctx, filter, opts)
}

// findListings 查询 Listing 并附带重算的收藏计数
func (s *Store) findListings(ctx context.Context, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]*model.Listing, error) {
	listings, err := findMany[model.Listing](ctx, s.col(ColListings), filter, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.attachBookmarkCounts(ctx, listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// SearchListings 在标题/科目/描述上做大小写不敏感的正则匹配
func (s *Store) SearchListings(ctx context.Context, query string) ([]*model.Listing, error) {
	re := bson.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "title", Value: re}},
		bson.D{{Key: "subject", Value: re}},
		bson.D{{Key: "description", Value: re}},
	}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findListings(ctx, filter, opts)
}

func (s *Store) UpdateListing(ctx context.Context, id string, upd storage.ListingUpdate) error {
	update := bson.D{{Key: "updated_at", Value: time.Now()}}
	set := func(key string, val *string) {
		if val != nil {
			update = append(update, bson.E{Key: key, Value: *val})
		}
	}
	set("title", upd.Title)
	set("subject", upd.Subject)
	set("description", upd.Description)
	set("category", upd.Category)
	set("format", upd.Format)
	set("availability", upd.Availability)
	set("lending_duration", upd.LendingDuration)
	return updateFields(ctx, s.col(ColListings), id, update)
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColListings), id)
}

func (s *Store) DeleteListings(ctx context.Context, ids []string) (int64, error) {
	return deleteByIDs(ctx, s.col(ColListings), ids)
}

// IncrementDownloadCount 下载计数只增不减，$inc 原子累加
func (s *Store) IncrementDownloadCount(ctx context.Context, id string) error {
	res, err := s.col(ColListings).UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{
		{Key: "$inc", Value: bson.D{{Key: "download_count", Value: 1}}},
	})
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ============================================================================
// 后台统计
// ============================================================================

// ListListingsWithOwner 列出全部资料并通过 $lookup 附带上传者信息
func (s *Store) ListListingsWithOwner(ctx context.Context) ([]*model.ListingWithOwner, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ColUsers},
			{Key: "localField", Value: "uploaded_by"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "owner"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$owner"},
			// 上传者被删除后资料仍可列出（悬空引用容忍）
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "owner_name", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$owner.name", ""}}}},
			{Key: "owner_email", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$owner.email", ""}}}},
		}}},
		{{Key: "$project", Value: bson.D{{Key: "owner", Value: 0}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	}
	results, err := aggregate[model.ListingWithOwner](ctx, s.col(ColListings), pipeline)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ListingWithOwner, len(results))
	plain := make([]*model.Listing, len(results))
	for i := range results {
		out[i] = &results[i]
		plain[i] = &results[i].Listing
	}
	if err := s.attachBookmarkCounts(ctx, plain); err != nil {
		return nil, err
	}
	return out, nil
}

// MonthlyUploadStats 按 (年, 月) 分组统计上传数量，时间升序
func (s *Store) MonthlyUploadStats(ctx context.Context) ([]storage.MonthlyUploads, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "year", Value: bson.D{{Key: "$year", Value: "$created_at"}}},
				{Key: "month", Value: bson.D{{Key: "$month", Value: "$created_at"}}},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "year", Value: "$_id.year"},
			{Key: "month", Value: "$_id.month"},
			{Key: "count", Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "year", Value: 1},
			{Key: "month", Value: 1},
		}}},
	}
	return aggregate[storage.MonthlyUploads](ctx, s.col(ColListings), pipeline)
}

// TopUploaders 按上传数量倒序返回前 limit 名上传者
func (s *Store) TopUploaders(ctx context.Context, limit int) ([]storage.UploaderCount, error) {
	if limit <= 0 {
		limit = 5
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$uploaded_by"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ColUsers},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "user"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "user_id", Value: "$_id"},
			{Key: "name", Value: bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$arrayElemAt", Value: bson.A{"$user.name", 0}}}, "",
			}}}},
			{Key: "count", Value: 1},
		}}},
	}
	return aggregate[storage.UploaderCount](ctx, s.col(ColListings), pipeline)
}
