// Package model 定义核心数据模型
//
// listing.go 包含学习资料相关的数据模型定义：
//   - Listing：上传的学习资料（元数据，文件本体在 MinIO）
//   - ListingWithOwner：附带上传者信息的 Listing（后台列表用）
package model

import "time"

// Listing 上传的学习资料
//
// FileKey 是 MinIO 中的对象 key，FileURL 是对外可访问的下载地址。
// UploadedBy 创建后不可变更。
type Listing struct {
	ID              string    `json:"id" bson:"_id"`
	Title           string    `json:"title" bson:"title"`
	Subject         string    `json:"subject" bson:"subject"`
	Description     string    `json:"description" bson:"description"`
	Category        string    `json:"category,omitempty" bson:"category"`
	Format          string    `json:"format,omitempty" bson:"format"`
	Availability    string    `json:"availability,omitempty" bson:"availability"`
	LendingDuration string    `json:"lending_duration,omitempty" bson:"lending_duration"`
	FileURL         string    `json:"file_url" bson:"file_url"`
	FileKey         string    `json:"-" bson:"file_key"` // MinIO 对象 key，不对外暴露
	UploadedBy      string    `json:"uploaded_by" bson:"uploaded_by"`

	// DownloadCount 只增不减，通过 $inc 原子累加
	DownloadCount int64 `json:"download_count" bson:"download_count"`

	// BookmarkCount 不落库，读取时从权威关系 User.Bookmarks 重算，
	// 保证与书签集合永不漂移
	BookmarkCount int64 `json:"bookmark_count" bson:"-"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// OwnedBy 判断资料是否归属指定用户
func (l *Listing) OwnedBy(userID string) bool {
	return l.UploadedBy == userID
}

// ListingWithOwner 附带上传者信息的 Listing，后台管理列表使用
type ListingWithOwner struct {
	Listing    `bson:",inline"`
	OwnerName  string `json:"owner_name" bson:"owner_name"`
	OwnerEmail string `json:"owner_email" bson:"owner_email"`
}
