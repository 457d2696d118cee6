package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"

	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const exportSheet = "Transactions"

var exportHeaders = []string{"Date", "Type", "Category", "Description", "Amount", "Your Share", "Shared"}

// ExportHandler 导出当前用户可见的交易（自己的 + 共享给自己的）
type ExportHandler struct {
	Store *store.Store
	Now   Clock
}

func NewExportHandler(st *store.Store) *ExportHandler {
	return &ExportHandler{Store: st}
}

// exportRows 按日期倒序返回导出行，Your Share 列按 50% 规则计算
func (h *ExportHandler) exportRows(c *gin.Context) ([][]string, bool) {
	user, ok := currentUser(c)
	if !ok {
		return nil, false
	}

	var owned, shared []models.Transaction
	g, gctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		owned, err = h.Store.OwnedTransactions(gctx, user.ID, store.Filter{})
		return err
	})
	g.Go(func() (err error) {
		shared, err = h.Store.SharedInTransactions(gctx, user.ID, store.Filter{})
		return err
	})
	if err := g.Wait(); err != nil {
		serverError(c, "export query failed", err, zap.String("user_id", user.ID))
		return nil, false
	}

	type item struct {
		tx       models.Transaction
		sharedIn bool
	}
	items := make([]item, 0, len(owned)+len(shared))
	for _, t := range owned {
		items = append(items, item{tx: t})
	}
	for _, t := range shared {
		items = append(items, item{tx: t, sharedIn: true})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].tx.Date.After(items[j].tx.Date)
	})

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		e := store.ToEntry(it.tx)
		share := ledger.Effective(e)
		label := "No"
		switch {
		case it.sharedIn:
			share = ledger.SharedInEffective(e)
			label = "With me"
		case e.IsShared():
			label = "Yes"
		}
		rows = append(rows, []string{
			it.tx.Date.UTC().Format("2006-01-02"),
			it.tx.Type,
			it.tx.Category,
			it.tx.Description,
			it.tx.Amount.StringFixed(2),
			share.StringFixed(2),
			label,
		})
	}
	return rows, true
}

func (h *ExportHandler) filename(ext string) string {
	return fmt.Sprintf("attachment; filename=\"trinit_transactions_%s.%s\"", h.Now.now().Format("20060102"), ext)
}

// ExportCSV GET /api/export/csv
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	rows, ok := h.exportRows(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", h.filename("csv"))
	c.Status(http.StatusOK)

	// UTF-8 BOM，Excel 才能正确识别编码
	_, _ = c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeaders)
	_ = w.WriteAll(rows)
	if err := w.Error(); err != nil {
		logger.FromGin(c).Warn("write csv export failed", zap.Error(err))
	}
}

// ExportXLSX GET /api/export/xlsx
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	rows, ok := h.exportRows(c)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		serverError(c, "create sheet failed", err)
		return
	}
	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, header)
	}
	for r, row := range rows {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			_ = f.SetCellValue(exportSheet, cell, v)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 12)
	_ = f.SetColWidth(exportSheet, "B", "C", 14)
	_ = f.SetColWidth(exportSheet, "D", "D", 32)
	_ = f.SetColWidth(exportSheet, "E", "G", 12)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", h.filename("xlsx"))
	if err := f.Write(c.Writer); err != nil {
		serverError(c, "write xlsx export failed", err)
	}
}
