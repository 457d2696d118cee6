package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const transactionsPath = "/api/transactions"

// LogHandler 负责审计日志查询接口
type LogHandler struct {
	DB         *gorm.DB
	EncryptKey string
}

func NewLogHandler(db *gorm.DB, encryptKey string) *LogHandler {
	return &LogHandler{DB: db, EncryptKey: encryptKey}
}

type logResp struct {
	ID        uint      `json:"id"`
	Action    string    `json:"action"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	Status    int       `json:"status"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}

// pageParams 解析 page / page_size，非法值回落到默认
func pageParams(c *gin.Context, defSize int) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}
	size, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defSize)))
	if size <= 0 || size > 100 {
		size = defSize
	}
	return page, size
}

func paginate[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (h *LogHandler) decrypt(l *models.AuditLog) (path, action string) {
	return util.DecryptField(h.EncryptKey, l.PathEnc), util.DecryptField(h.EncryptKey, l.ActionEnc)
}

// ListLogs GET /api/logs
// 支持分页、时间范围（start/end, YYYY-MM-DD）和关键字 q
func (h *LogHandler) ListLogs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := pageParams(c, 20)

	q := h.DB.WithContext(c.Request.Context()).Model(&models.AuditLog{}).Where("user_id = ?", user.ID)
	if s := c.Query("start"); s != "" {
		start, err := time.Parse("2006-01-02", s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "start: must be YYYY-MM-DD")
			return
		}
		q = q.Where("created_at >= ?", start)
	}
	if s := c.Query("end"); s != "" {
		end, err := time.Parse("2006-01-02", s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "end: must be YYYY-MM-DD")
			return
		}
		q = q.Where("created_at < ?", end.Add(24*time.Hour))
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		serverError(c, "list audit logs failed", err, zap.String("user_id", user.ID))
		return
	}

	// 密文无法在库里 LIKE，关键字在解密后过滤
	keyword := strings.ToLower(strings.TrimSpace(c.Query("q")))
	items := make([]logResp, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		path, action := h.decrypt(l)
		if keyword != "" &&
			!strings.Contains(strings.ToLower(path), keyword) &&
			!strings.Contains(strings.ToLower(action), keyword) {
			continue
		}
		items = append(items, logResp{
			ID:        l.ID,
			Action:    action,
			Path:      path,
			Method:    l.Method,
			Status:    l.Status,
			IP:        l.IP,
			UserAgent: l.UserAgent,
			CreatedAt: l.CreatedAt,
		})
	}

	util.Success(c, util.Response{
		"items": paginate(items, page, size),
		"total": len(items),
		"page":  page,
		"size":  size,
	})
}

type transactionHistoryResp struct {
	ID          uint      `json:"id"`
	Operation   string    `json:"operation"`
	Status      int       `json:"status"`
	TargetID    string    `json:"targetId,omitempty"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type,omitempty"`
	Category    string    `json:"category,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Date        string    `json:"date,omitempty"`
	SharedWith  []string  `json:"sharedWithIds,omitempty"`
	IP          string    `json:"ip"`
	CreatedAt   time.Time `json:"createdAt"`
}

func transactionOperation(method, path string) string {
	if path != transactionsPath {
		return ""
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPatch:
		return "share"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

// fillFromAction 从动作文本里取出请求参数
// 格式："METHOD /path[?query] [json body]"
func fillFromAction(item *transactionHistoryResp, action string) {
	head, body, _ := strings.Cut(action, " {")
	if _, rawQuery, ok := strings.Cut(head, "?"); ok {
		if id := queryValue(rawQuery, "id"); id != "" {
			item.TargetID = id
		}
	}
	if body == "" {
		return
	}

	dec := json.NewDecoder(strings.NewReader("{" + body))
	dec.UseNumber()
	var req map[string]interface{}
	if dec.Decode(&req) != nil {
		return
	}
	str := func(key string) string {
		switch v := req[key].(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		}
		return ""
	}
	if id := str("id"); id != "" {
		item.TargetID = id
	}
	item.Description = str("description")
	item.Type = str("type")
	item.Category = str("category")
	item.Amount = str("amount")
	item.Date = str("date")
	if ids, ok := req["sharedWithIds"].([]interface{}); ok {
		for _, v := range ids {
			if s, ok := v.(string); ok {
				item.SharedWith = append(item.SharedWith, s)
			}
		}
	}
}

func queryValue(rawQuery, key string) string {
	for _, kv := range strings.Split(rawQuery, "&") {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}

// ListTransactionHistory GET /api/logs/transactions
// 只返回交易的新增、共享调整和删除
func (h *LogHandler) ListTransactionHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := pageParams(c, 50)

	var logs []models.AuditLog
	if err := h.DB.WithContext(c.Request.Context()).
		Where("user_id = ? AND method IN ?", user.ID, []string{http.MethodPost, http.MethodPatch, http.MethodDelete}).
		Order("created_at DESC, id DESC").
		Find(&logs).Error; err != nil {
		serverError(c, "list transaction history failed", err, zap.String("user_id", user.ID))
		return
	}

	items := make([]transactionHistoryResp, 0)
	for i := range logs {
		l := &logs[i]
		path, action := h.decrypt(l)
		op := transactionOperation(l.Method, path)
		if op == "" {
			continue
		}
		item := transactionHistoryResp{
			ID:        l.ID,
			Operation: op,
			Status:    l.Status,
			IP:        l.IP,
			CreatedAt: l.CreatedAt,
		}
		fillFromAction(&item, action)
		items = append(items, item)
	}

	util.Success(c, util.Response{
		"items": paginate(items, page, size),
		"total": len(items),
		"page":  page,
		"size":  size,
	})
}
