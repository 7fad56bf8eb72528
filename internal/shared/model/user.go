// Package model 定义核心数据模型
//
// user.go 包含用户相关的数据模型定义：
//   - User：注册用户（含书签集合与找回密码令牌）
//   - UserRole：用户角色枚举
//   - UserSettings：用户偏好设置
package model

import "time"

// ============================================================================
// UserRole - 用户角色
// ============================================================================

// UserRole 用户角色
type UserRole string

const (
	// UserRoleAdmin 管理员，可访问后台接口
	UserRoleAdmin UserRole = "admin"

	// UserRoleUser 普通用户
	UserRoleUser UserRole = "user"
)

// ============================================================================
// User - 注册用户
// ============================================================================

// UserSettings 用户偏好设置
type UserSettings struct {
	PublicProfile bool `json:"public_profile" bson:"public_profile"` // 个人主页是否公开，默认 true
}

// User 注册用户
//
// Bookmarks 是书签关系的唯一权威来源：存放被收藏 Listing 的 ID 集合，
// 写入只通过 $addToSet / $pull 原子操作，保证无重复。
type User struct {
	ID           string       `json:"id" bson:"_id"`
	Name         string       `json:"name" bson:"name"`
	Email        string       `json:"email" bson:"email"` // 唯一索引
	PasswordHash string       `json:"-" bson:"password_hash"`
	Role         UserRole     `json:"role" bson:"role"`
	Bookmarks    []string     `json:"bookmarks" bson:"bookmarks"`             // 收藏的 Listing ID 集合
	LinkedIn     string       `json:"linkedin,omitempty" bson:"linkedin"`     // 社交链接（可选）
	Instagram    string       `json:"instagram,omitempty" bson:"instagram"`   // 社交链接（可选）
	Settings     UserSettings `json:"settings" bson:"settings"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updated_at"`

	// 找回密码令牌，签发后 1 小时过期，重置成功即清空
	ResetToken       *string    `json:"-" bson:"reset_token,omitempty"`
	ResetTokenExpiry *time.Time `json:"-" bson:"reset_token_expiry,omitempty"`
}

// IsAdmin 是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// HasBookmark 判断指定 Listing 是否已收藏
func (u *User) HasBookmark(listingID string) bool {
	for _, id := range u.Bookmarks {
		if id == listingID {
			return true
		}
	}
	return false
}
