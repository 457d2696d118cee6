package util

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// 金额上限（绝对值），与 decimal(14,2) 列保持余量
var maxAmount = decimal.NewFromInt(10_000_000_000)

const maxCategoryLen = 64

// SetupValidator 注册自定义校验规则，并让错误信息使用 json 字段名
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	_ = v.RegisterValidation("month", func(fl validator.FieldLevel) bool {
		return ValidateMonth(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("txtype", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "INCOME", "EXPENSE", "TRANSFER":
			return true
		}
		return false
	})
}

// ValidationMessage 把 binding 错误转成一行可读信息
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		parts = append(parts, e.Field()+": "+fieldMessage(e))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "invalid email format"
	case "oneof":
		return "must be one of: " + e.Param()
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "month":
		return "must be YYYY-MM"
	case "txtype":
		return "must be INCOME, EXPENSE or TRANSFER"
	default:
		return "invalid value"
	}
}

// ValidateAmount 验证交易金额：非零，绝对值不超过上限。符号由调用方保留。
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsZero() {
		return fmt.Errorf("amount must not be zero")
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("amount too large, got %s", amount.String())
	}
	return nil
}

// ValidateBudgeted 验证预算金额（可以为 0，不能为负）
func ValidateBudgeted(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("budgeted must not be negative, got %s", amount.String())
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("budgeted too large, got %s", amount.String())
	}
	return nil
}

// ValidateMonth 验证月份格式（必须为 YYYY-MM）
func ValidateMonth(month string) error {
	if _, err := time.Parse("2006-01", month); err != nil {
		return fmt.Errorf("invalid month format: %w", err)
	}
	return nil
}

// ParseDate 解析日期，支持 RFC3339 和 YYYY-MM-DD，统一转为 UTC
func ParseDate(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %w", err)
	}
	return t, nil
}

// ValidateCategory 验证分类（不能为空且长度合理）
func ValidateCategory(category string) error {
	if strings.TrimSpace(category) == "" {
		return fmt.Errorf("category is empty")
	}
	if utf8.RuneCountInString(category) > maxCategoryLen {
		return fmt.Errorf("category too long, max %d characters", maxCategoryLen)
	}
	return nil
}
