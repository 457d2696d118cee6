package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Juls95/Trinit-AI/internal/assistant"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	resp     *assistant.Response
	err      error
	messages []string
	history  [][]assistant.Turn
}

func (f *fakeClassifier) Reply(_ context.Context, message string, history []assistant.Turn) (*assistant.Response, error) {
	f.messages = append(f.messages, message)
	f.history = append(f.history, history)
	return f.resp, f.err
}

func classified(reply, kind string, amount float64, category string) *assistant.Response {
	a := decimal.NewFromFloat(amount)
	return &assistant.Response{
		Reply:          reply,
		Classification: &assistant.Classification{Type: kind, Amount: &a, Category: category},
	}
}

type chatResp struct {
	Reply          string `json:"reply"`
	ChatID         string `json:"chatId"`
	TransactionID  string `json:"transactionId"`
	Classification *struct {
		Type     string   `json:"type"`
		Amount   *float64 `json:"amount"`
		Category string   `json:"category"`
	} `json:"classification"`
}

func newChatHandler(st *store.Store, a assistant.Classifier) *ChatHandler {
	h := NewChatHandler(st, a)
	h.Now = fixedClock()
	return h
}

func TestChat_PaidOnly(t *testing.T) {
	st := newStore(t)
	u := testutil.CreateUser(t, st.DB(), "free@x.com")
	fc := &fakeClassifier{resp: &assistant.Response{Reply: "hi"}}

	w := do(t, newChatHandler(st, fc).Chat, u, http.MethodPost, "/api/chat", `{"message":"hola"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	env := decode(t, w, nil)
	assert.Equal(t, ReasonPaidOnly, env.Error)
	assert.Empty(t, fc.messages)
}

func TestChat_Unavailable(t *testing.T) {
	st := newStore(t)
	u := testutil.CreatePaidUser(t, st.DB(), "pro@x.com")

	w := do(t, newChatHandler(st, nil).Chat, u, http.MethodPost, "/api/chat", `{"message":"hola"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChat_RejectsEmptyMessage(t *testing.T) {
	st := newStore(t)
	u := testutil.CreatePaidUser(t, st.DB(), "pro@x.com")
	fc := &fakeClassifier{resp: &assistant.Response{Reply: "hi"}}
	h := newChatHandler(st, fc)

	w := do(t, h.Chat, u, http.MethodPost, "/api/chat", `{"message":"<b></b>"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Message is required", decode(t, w, nil).Message)

	w = do(t, h.Chat, u, http.MethodPost, "/api/chat", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fc.messages)
}

func TestChat_ExpenseCreatesTransaction(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	u := testutil.CreatePaidUser(t, st.DB(), "pro@x.com")
	fc := &fakeClassifier{resp: classified("Anotado", assistant.KindExpense, 45.505, "")}

	w := do(t, newChatHandler(st, fc).Chat, u, http.MethodPost, "/api/chat",
		`{"message":"<script>x</script>tacos 45.50"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp chatResp
	decode(t, w, &resp)
	assert.Equal(t, "Anotado", resp.Reply)
	assert.NotEmpty(t, resp.ChatID)
	require.NotEmpty(t, resp.TransactionID)
	require.NotNil(t, resp.Classification)
	assert.Equal(t, assistant.KindExpense, resp.Classification.Type)
	require.Len(t, fc.messages, 1)
	assert.Equal(t, "tacos 45.50", fc.messages[0])
	assert.Empty(t, fc.history[0])

	txs, err := st.OwnedTransactions(ctx, u.ID, store.Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, resp.TransactionID, tx.ID)
	assert.Equal(t, "tacos 45.50", tx.Description)
	assert.Equal(t, defaultCategory, tx.Category)
	assert.Equal(t, "45.51", tx.Amount.StringFixed(2))
	assert.True(t, testNow.Equal(tx.Date))

	records, err := st.RecentRecords(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].TransactionID)
	assert.Equal(t, tx.ID, *records[0].TransactionID)

	chats, err := st.RecentChats(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}

func TestChat_BudgetOnlyRecords(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	u := testutil.CreatePaidUser(t, st.DB(), "pro@x.com")
	fc := &fakeClassifier{resp: classified("Presupuesto listo", assistant.KindBudget, 600, "Food")}
	h := newChatHandler(st, fc)

	w := do(t, h.Chat, u, http.MethodPost, "/api/chat", `{"message":"budget 600 for food"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp chatResp
	decode(t, w, &resp)
	assert.Empty(t, resp.TransactionID)

	n, err := st.CountRecords(ctx, u.ID, assistant.KindBudget)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	txs, err := st.OwnedTransactions(ctx, u.ID, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	// 第二次调用带上按时间正序的历史
	fc.resp = &assistant.Response{Reply: "De nada"}
	w = do(t, h.Chat, u, http.MethodPost, "/api/chat", `{"message":"gracias"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Nil(t, resp.Classification)

	require.Len(t, fc.history, 2)
	hist := fc.history[1]
	require.Len(t, hist, 2)
	assert.Equal(t, assistant.Turn{FromUser: true, Text: "budget 600 for food"}, hist[0])
	assert.Equal(t, assistant.Turn{FromUser: false, Text: "Presupuesto listo"}, hist[1])

	n, err = st.CountRecords(ctx, u.ID, assistant.KindBudget)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestChat_DropsInvalidClassification(t *testing.T) {
	tests := []struct {
		name string
		resp *assistant.Response
	}{
		{"category too long", classified("ok", assistant.KindExpense, 20, strings.Repeat("x", 65))},
		{"amount too large", classified("ok", assistant.KindIncome, 1e11, "Salary")},
		{"category too long after cleaning", classified("ok", assistant.KindExpense, 5, "<script>x</script>"+strings.Repeat("y", 70))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			ctx := context.Background()
			u := testutil.CreatePaidUser(t, st.DB(), "pro@x.com")
			fc := &fakeClassifier{resp: tt.resp}

			w := do(t, newChatHandler(st, fc).Chat, u, http.MethodPost, "/api/chat", `{"message":"anota esto"}`)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var resp chatResp
			decode(t, w, &resp)
			assert.Equal(t, "ok", resp.Reply)
			assert.Nil(t, resp.Classification)
			assert.Empty(t, resp.TransactionID)

			txs, err := st.OwnedTransactions(ctx, u.ID, store.Filter{})
			require.NoError(t, err)
			assert.Empty(t, txs)
			records, err := st.RecentRecords(ctx, u.ID, 10)
			require.NoError(t, err)
			assert.Empty(t, records)
			chats, err := st.RecentChats(ctx, u.ID, 10)
			require.NoError(t, err)
			assert.Len(t, chats, 2)
		})
	}
}

func TestChat_SanitizesCategory(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	u := testutil.CreatePaidUser(t, st.DB(), "pro@x.com")
	fc := &fakeClassifier{resp: classified("ok", assistant.KindExpense, 9.99, "&lt;b&gt;Food&lt;/b&gt;")}

	w := do(t, newChatHandler(st, fc).Chat, u, http.MethodPost, "/api/chat", `{"message":"pizza 9.99"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp chatResp
	decode(t, w, &resp)
	require.NotNil(t, resp.Classification)
	assert.Equal(t, "Food", resp.Classification.Category)

	txs, err := st.OwnedTransactions(ctx, u.ID, store.Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Food", txs[0].Category)
}

func TestChat_ClassifierError(t *testing.T) {
	st := newStore(t)
	u := testutil.CreatePaidUser(t, st.DB(), "pro@x.com")
	fc := &fakeClassifier{err: errors.New("quota")}

	w := do(t, newChatHandler(st, fc).Chat, u, http.MethodPost, "/api/chat", `{"message":"hola"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	chats, err := st.RecentChats(context.Background(), u.ID, 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, models.SenderUser, chats[0].Sender)
}
