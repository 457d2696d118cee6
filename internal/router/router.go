package router

import (
	"github.com/Juls95/Trinit-AI/internal/assistant"
	"github.com/Juls95/Trinit-AI/internal/config"
	"github.com/Juls95/Trinit-AI/internal/handler"
	"github.com/Juls95/Trinit-AI/internal/idempotency"
	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/mail"
	"github.com/Juls95/Trinit-AI/internal/middleware"
	"github.com/Juls95/Trinit-AI/internal/quota"
	"github.com/Juls95/Trinit-AI/internal/ratelimit"
	"github.com/Juls95/Trinit-AI/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps 是路由需要的全部依赖。Billing 和 Assistant 可以为 nil（未配置时接口返回 503）。
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Store       *store.Store
	Logger      *zap.Logger
	Quota       *quota.Checker
	ChatLimiter *ratelimit.Limiter
	Mailer      mail.Sender
	Billing     handler.BillingService
	Assistant   assistant.Classifier
	Events      idempotency.Store
}

// SetupRouter configures the gin engine and every /api route.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(logger.GinMiddleware(d.Logger), logger.Recovery(d.Logger))

	api := r.Group("/api")

	// ====== 公开接口 ======
	api.GET("/health", handler.NewHealthHandler(cfg, d.Store).Health)

	billingHandler := handler.NewBillingHandler(d.Billing, cfg.Stripe.WebhookSecret, d.Events)
	api.POST("/stripe/webhook", billingHandler.Webhook)
	api.POST("/identity/webhook", handler.NewIdentityHandler(d.Store, cfg.Identity.WebhookSecret).Webhook)

	subscriberHandler := handler.NewSubscriberHandler(d.Store)
	api.POST("/subscribers", subscriberHandler.Subscribe)
	api.DELETE("/subscribers", subscriberHandler.Unsubscribe)

	// ====== 需要登录的接口 ======
	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(cfg.Auth, d.Store),
		middleware.AuditMiddleware(d.DB, cfg.Security.EncryptionKey),
	)

	protected.GET("/me", handler.GetMe)
	protected.PATCH("/me", handler.UpdateMe(d.Store))

	protected.GET("/dashboard", handler.NewDashboardHandler(d.Store).Dashboard)

	txHandler := handler.NewTransactionHandler(d.Store, d.Quota)
	protected.GET("/transactions", txHandler.ListTransactions)
	protected.POST("/transactions", txHandler.CreateTransaction)
	protected.PATCH("/transactions", txHandler.UpdateShares)
	protected.DELETE("/transactions", txHandler.DeleteTransaction)

	budgetHandler := handler.NewBudgetHandler(d.Store)
	protected.GET("/budgets", budgetHandler.ListBudgets)
	protected.POST("/budgets", budgetHandler.UpsertBudget)
	protected.PATCH("/budgets", budgetHandler.UpdateBudget)
	protected.DELETE("/budgets", budgetHandler.DeleteBudget)

	protected.GET("/reports", handler.NewReportHandler(d.Store).Report)

	contactHandler := handler.NewContactHandler(d.Store, d.Mailer)
	protected.GET("/contacts", contactHandler.ListContacts)
	protected.POST("/contacts", contactHandler.Invite)
	protected.POST("/contacts/accept", contactHandler.Accept)

	chat := handler.NewChatHandler(d.Store, d.Assistant)
	chatRoutes := []gin.HandlerFunc{chat.Chat}
	if d.ChatLimiter != nil {
		chatRoutes = append([]gin.HandlerFunc{ratelimit.Middleware(d.ChatLimiter, userKey)}, chatRoutes...)
	}
	protected.POST("/chat", chatRoutes...)

	protected.GET("/billing", billingHandler.GetBilling)
	protected.DELETE("/billing", billingHandler.CancelSubscription)
	protected.POST("/billing/checkout", billingHandler.Checkout)
	protected.POST("/billing/verify", billingHandler.Verify)
	// 旧前端使用的地址
	protected.POST("/stripe/checkout", billingHandler.Checkout)
	protected.POST("/stripe/verify", billingHandler.Verify)

	exportHandler := handler.NewExportHandler(d.Store)
	protected.GET("/export/csv", exportHandler.ExportCSV)
	protected.GET("/export/xlsx", exportHandler.ExportXLSX)

	logHandler := handler.NewLogHandler(d.DB, cfg.Security.EncryptionKey)
	protected.GET("/logs", logHandler.ListLogs)
	protected.GET("/logs/transactions", logHandler.ListTransactionHistory)

	return r
}

// userKey 按登录用户限流
func userKey(c *gin.Context) string {
	if u, ok := middleware.CurrentUser(c); ok {
		return u.ID
	}
	return c.ClientIP()
}
