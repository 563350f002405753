package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qalink/internal/handlers"
	"qalink/internal/middleware"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Google   *handlers.GoogleAuthHandler
	Votes    *handlers.VoteHandler
	Comments *handlers.CommentHandler
	Admin    *handlers.AdminHandler
	Notes    *handlers.NotificationHandler
	Health   gin.HandlerFunc
}

// RegisterRoutes limiter, gatherer and h.Google may be nil.
func RegisterRoutes(r *gin.Engine, h Handlers, limiter *middleware.RateLimiter, gatherer prometheus.Gatherer) {
	// 公共路由 (Public Routes)
	if h.Health != nil {
		r.GET("/healthz", h.Health) // 存活检查
	}
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	r.POST("/session", h.Auth.Login)    // 登录
	r.DELETE("/session", h.Auth.Logout) // 退出登录
	if h.Google != nil {
		r.GET("/session/google", h.Google.Login)             // Google 登录
		r.GET("/session/google/callback", h.Google.Callback) // Google 回调
	}

	qa := r.Group("/qa")
	qa.GET("/voters", h.Votes.Voters)    // 最近投票人
	qa.GET("/comments", h.Comments.List) // 加载更多评论

	// 受保护路由 (Protected Routes)
	authorized := qa.Group("")
	authorized.Use(middleware.AuthRequired())
	if limiter != nil {
		authorized.Use(limiter.Middleware())
	}
	{
		authorized.POST("/vote", h.Votes.Create)                       // 投票 / 翻转
		authorized.DELETE("/vote", h.Votes.Destroy)                    // 撤销投票
		authorized.POST("/vote/comment", h.Votes.CreateCommentVote)    // 评论点赞
		authorized.DELETE("/vote/comment", h.Votes.DestroyCommentVote) // 取消评论点赞

		authorized.POST("/comments", h.Comments.Create)           // 发表评论
		authorized.PUT("/comments", h.Comments.Update)            // 编辑评论
		authorized.DELETE("/comments", h.Comments.Destroy)        // 删除评论
		authorized.POST("/set_as_answer", h.Comments.SetAsAnswer) // 回复转为回答

		authorized.GET("/notifications", h.Notes.List)          // 我的通知
		authorized.PUT("/notifications/:id/read", h.Notes.Read) // 标记已读
		authorized.PUT("/notifications/read", h.Notes.ReadAll)  // 全部已读

		authorized.PUT("/admin/categories/:id", h.Admin.UpdateCategory) // 分类问答开关
		authorized.PUT("/admin/topics/:id", h.Admin.UpdateTopic)        // 话题 subtype / 标签
	}
}
