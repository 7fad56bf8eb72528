// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/
//   - 初始化时通过依赖注入传入实现
//
// 各 Handler 只声明自己需要的窄接口（接口隔离），
// PersistentStore 聚合全部接口供进程入口装配。
package storage

import (
	"context"
	"time"

	"scholarcamp/internal/shared/model"
)

// ============================================================================
// 查询辅助类型
// ============================================================================

// ListingUpdate 资料元数据的部分更新，nil 字段表示保持原值
type ListingUpdate struct {
	Title           *string
	Subject         *string
	Description     *string
	Category        *string
	Format          *string
	Availability    *string
	LendingDuration *string
}

// MonthlyUploads 按月统计的上传数量
type MonthlyUploads struct {
	Year  int   `json:"year" bson:"year"`
	Month int   `json:"month" bson:"month"`
	Count int64 `json:"count" bson:"count"`
}

// RoleCount 按角色统计的用户数量
type RoleCount struct {
	Role  model.UserRole `json:"role" bson:"role"`
	Count int64          `json:"count" bson:"count"`
}

// UploaderCount 按上传者统计的资料数量
type UploaderCount struct {
	UserID string `json:"user_id" bson:"user_id"`
	Name   string `json:"name" bson:"name"`
	Count  int64  `json:"count" bson:"count"`
}

// ============================================================================
// 领域接口
// ============================================================================

// UserStore 用户存储接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateUserProfile(ctx context.Context, id, name, email string) error
	UpdateUserSocials(ctx context.Context, id, linkedin, instagram string) error
	SetUserPublicProfile(ctx context.Context, id string, public bool) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateUserRole(ctx context.Context, id string, role model.UserRole) error
	DeleteUser(ctx context.Context, id string) error
	DeleteUsers(ctx context.Context, ids []string) (int64, error)
	GetUserNames(ctx context.Context, ids []string) (map[string]string, error)
	CountUsersByRole(ctx context.Context) ([]RoleCount, error)

	// 找回密码
	SetUserResetToken(ctx context.Context, id, token string, expiry time.Time) error
	GetUserByResetToken(ctx context.Context, token string) (*model.User, error)
	ResetUserPassword(ctx context.Context, id, passwordHash string) error
}

// BookmarkStore 书签存储接口
//
// ToggleBookmark 必须是原子的集合操作（$addToSet / $pull），
// 不允许读-改-写整个文档，并发切换不得产生重复成员。
type BookmarkStore interface {
	// ToggleBookmark 切换 (user, listing) 的收藏关系，返回切换后的状态
	// 用户不存在时返回 storage.ErrNotFound
	ToggleBookmark(ctx context.Context, userID, listingID string) (bookmarked bool, err error)

	// PullBookmarkFromAllUsers 将指定 Listing 从所有用户的书签集合中移除
	// （Listing 删除时的级联清理）
	PullBookmarkFromAllUsers(ctx context.Context, listingID string) error
}

// ListingStore 资料存储接口
type ListingStore interface {
	CreateListing(ctx context.Context, listing *model.Listing) error
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	ListListings(ctx context.Context) ([]*model.Listing, error)
	ListListingsByUploader(ctx context.Context, userID string) ([]*model.Listing, error)
	GetListingsByIDs(ctx context.Context, ids []string) ([]*model.Listing, error)
	SearchListings(ctx context.Context, query string) ([]*model.Listing, error)
	UpdateListing(ctx context.Context, id string, upd ListingUpdate) error
	DeleteListing(ctx context.Context, id string) error
	DeleteListings(ctx context.Context, ids []string) (int64, error)
	IncrementDownloadCount(ctx context.Context, id string) error

	// 后台统计
	ListListingsWithOwner(ctx context.Context) ([]*model.ListingWithOwner, error)
	MonthlyUploadStats(ctx context.Context) ([]MonthlyUploads, error)
	TopUploaders(ctx context.Context, limit int) ([]UploaderCount, error)
}

// ForumStore 论坛存储接口
type ForumStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListPosts(ctx context.Context) ([]*model.Post, error)
	CreateReply(ctx context.Context, reply *model.Reply) error
	ListRepliesByPost(ctx context.Context, postID string) ([]*model.Reply, error)
	ListReplies(ctx context.Context) ([]*model.Reply, error)
}

// PersistentStore 聚合全部领域接口的持久化存储
type PersistentStore interface {
	UserStore
	BookmarkStore
	ListingStore
	ForumStore

	Close() error
}
