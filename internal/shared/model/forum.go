// Package model 定义核心数据模型
//
// forum.go 包含论坛相关的数据模型定义：
//   - Post：论坛主题帖
//   - Reply：主题帖下的回复
package model

import "time"

// Post 论坛主题帖
type Post struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	UserID    string    `json:"user_id" bson:"user_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Reply 主题帖下的回复，按创建时间升序展示
type Reply struct {
	ID        string    `json:"id" bson:"_id"`
	PostID    string    `json:"post_id" bson:"post_id"`
	Content   string    `json:"content" bson:"content"`
	UserID    string    `json:"user_id" bson:"user_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// PostView 对外展示的主题帖：附作者名与全部回复
type PostView struct {
	Post       `bson:",inline"`
	AuthorName string      `json:"author_name"`
	Replies    []ReplyView `json:"replies"`
}

// ReplyView 对外展示的回复：附作者名
type ReplyView struct {
	Reply      `bson:",inline"`
	AuthorName string `json:"author_name"`
}
