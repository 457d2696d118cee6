package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.NewDB(t))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func newTx(owner *models.User, typ ledger.Type, amount, category string, date time.Time) *models.Transaction {
	return &models.Transaction{
		UserID:      owner.ID,
		Description: category + " " + amount,
		Amount:      decimal.RequireFromString(amount),
		Type:        string(typ),
		Category:    category,
		Date:        date,
	}
}

func TestTransactions_OwnedAndSharedIn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, s.DB(), "alice@example.com")
	bob := testutil.CreateUser(t, s.DB(), "bob@example.com")

	shared := newTx(alice, ledger.Expense, "100", "Food", day(2026, 10, 3))
	require.NoError(t, s.CreateTransaction(ctx, shared, []string{bob.ID, bob.ID, ""}))
	require.Len(t, shared.Shares, 1)

	solo := newTx(alice, ledger.Income, "1000", "Salary", day(2026, 10, 1))
	require.NoError(t, s.CreateTransaction(ctx, solo, nil))

	owned, err := s.OwnedTransactions(ctx, alice.ID, Filter{})
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, shared.ID, owned[0].ID, "newest date first")
	assert.Len(t, owned[0].Shares, 1)
	assert.Empty(t, owned[1].Shares)

	in, err := s.SharedInTransactions(ctx, bob.ID, Filter{})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, shared.ID, in[0].ID)

	none, err := s.SharedInTransactions(ctx, alice.ID, Filter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	// owner and recipient see the same effective expense
	aliceTotals := ledger.ComputeTotals(ToEntries(owned), nil)
	bobTotals := ledger.ComputeTotals(nil, ToEntries(in))
	assert.True(t, decimal.NewFromInt(50).Equal(aliceTotals.Expenses))
	assert.True(t, decimal.NewFromInt(50).Equal(bobTotals.Expenses))
}

func TestTransactions_Filter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")

	require.NoError(t, s.CreateTransaction(ctx, newTx(u, ledger.Expense, "10", "Food", day(2026, 9, 30)), nil))
	require.NoError(t, s.CreateTransaction(ctx, newTx(u, ledger.Expense, "20", "Food", day(2026, 10, 1)), nil))
	require.NoError(t, s.CreateTransaction(ctx, newTx(u, ledger.Income, "30", "Salary", day(2026, 10, 15)), nil))
	require.NoError(t, s.CreateTransaction(ctx, newTx(u, ledger.Expense, "40", "Food", day(2026, 11, 1)), nil))

	start, end, err := ledger.MonthBounds("2026-10", time.UTC)
	require.NoError(t, err)

	got, err := s.OwnedTransactions(ctx, u.ID, Filter{From: &start, To: &end})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.OwnedTransactions(ctx, u.ID, Filter{From: &start, To: &end, Type: ledger.Expense})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(got[0].Amount))

	got, err = s.OwnedTransactions(ctx, u.ID, Filter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestReplaceShares(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, s.DB(), "alice@example.com")
	bob := testutil.CreateUser(t, s.DB(), "bob@example.com")
	carol := testutil.CreateUser(t, s.DB(), "carol@example.com")

	tx := newTx(alice, ledger.Expense, "60", "Food", day(2026, 10, 2))
	require.NoError(t, s.CreateTransaction(ctx, tx, []string{bob.ID}))

	updated, err := s.ReplaceShares(ctx, alice.ID, tx.ID, []string{carol.ID})
	require.NoError(t, err)
	require.Len(t, updated.Shares, 1)
	assert.Equal(t, carol.ID, updated.Shares[0].UserID)

	bobIn, err := s.SharedInTransactions(ctx, bob.ID, Filter{})
	require.NoError(t, err)
	assert.Empty(t, bobIn)

	_, err = s.ReplaceShares(ctx, bob.ID, tx.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	cleared, err := s.ReplaceShares(ctx, alice.ID, tx.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, cleared.Shares)
}

func TestDeleteTransaction_OwnerOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, s.DB(), "alice@example.com")
	bob := testutil.CreateUser(t, s.DB(), "bob@example.com")

	tx := newTx(alice, ledger.Expense, "60", "Food", day(2026, 10, 2))
	require.NoError(t, s.CreateTransaction(ctx, tx, []string{bob.ID}))

	assert.ErrorIs(t, s.DeleteTransaction(ctx, bob.ID, tx.ID), ErrNotFound)
	require.NoError(t, s.DeleteTransaction(ctx, alice.ID, tx.ID))
	assert.ErrorIs(t, s.DeleteTransaction(ctx, alice.ID, tx.ID), ErrNotFound)

	var shares int64
	require.NoError(t, s.DB().Model(&models.TransactionShare{}).Count(&shares).Error)
	assert.Zero(t, shares)
}

func TestCountCreatedSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateTransaction(ctx, newTx(u, ledger.Expense, "1", "Food", day(2020, 1, 1)), nil))
	}
	n, err := s.CountCreatedSince(ctx, u.ID, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.CountCreatedSince(ctx, u.ID, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateLimitedTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")
	since := time.Now().UTC().Add(-time.Hour)
	other := testutil.CreateUser(t, s.DB(), "o@example.com")

	require.NoError(t, s.CreateLimitedTransaction(ctx, newTx(u, ledger.Expense, "1", "Food", day(2026, 10, 1)), []string{other.ID}, since, 2))
	require.NoError(t, s.CreateLimitedTransaction(ctx, newTx(u, ledger.Expense, "2", "Food", day(2026, 10, 1)), nil, since, 2))

	err := s.CreateLimitedTransaction(ctx, newTx(u, ledger.Expense, "3", "Food", day(2026, 10, 1)), []string{other.ID}, since, 2)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	n, err := s.CountCreatedSince(ctx, u.ID, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	shared, err := s.SharedInTransactions(ctx, other.ID, Filter{})
	require.NoError(t, err)
	assert.Len(t, shared, 1)

	// 其他用户不受影响
	require.NoError(t, s.CreateLimitedTransaction(ctx, newTx(other, ledger.Income, "5", "Gift", day(2026, 10, 1)), nil, since, 2))
}

func TestCreateLimitedTransaction_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")
	since := time.Now().UTC().Add(-time.Hour)

	const workers, limit = 8, 3
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateLimitedTransaction(ctx, newTx(u, ledger.Expense, "1", "Food", day(2026, 10, 1)), nil, since, limit)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrQuotaExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, created)
	assert.Equal(t, workers-limit, rejected)
	n, err := s.CountCreatedSince(ctx, u.ID, since)
	require.NoError(t, err)
	assert.Equal(t, int64(limit), n)
}

func TestBudgets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")

	require.NoError(t, s.SeedDefaultBudgets(ctx, u.ID, "2026-10"))
	require.NoError(t, s.SeedDefaultBudgets(ctx, u.ID, "2026-10"))
	budgets, err := s.BudgetsForMonth(ctx, u.ID, "2026-10")
	require.NoError(t, err)
	assert.Len(t, budgets, 8)

	b := &models.Budget{UserID: u.ID, Name: "Food", Month: "2026-10", Budgeted: decimal.NewFromInt(50)}
	require.NoError(t, s.UpsertBudget(ctx, b))
	assert.Equal(t, DefaultBudgetIcon, b.Icon)
	assert.True(t, decimal.NewFromInt(50).Equal(b.Budgeted))

	budgets, err = s.BudgetsForMonth(ctx, u.ID, "2026-10")
	require.NoError(t, err)
	assert.Len(t, budgets, 8, "upsert on an existing name does not add a row")

	pets := &models.Budget{UserID: u.ID, Name: "Pets", Month: "2026-11", Budgeted: decimal.NewFromInt(80)}
	require.NoError(t, s.UpsertBudget(ctx, pets))
	assert.Equal(t, DefaultBudgetColor, pets.Color)

	name := "Animals"
	amount := decimal.NewFromInt(90)
	got, err := s.UpdateBudget(ctx, u.ID, pets.ID, BudgetPatch{Name: &name, Budgeted: &amount})
	require.NoError(t, err)
	assert.Equal(t, "Animals", got.Name)
	assert.Equal(t, DefaultBudgetIcon, got.Icon)
	assert.True(t, amount.Equal(got.Budgeted))

	other := testutil.CreateUser(t, s.DB(), "other@example.com")
	_, err = s.UpdateBudget(ctx, other.ID, pets.ID, BudgetPatch{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteBudget(ctx, other.ID, pets.ID), ErrNotFound)
	require.NoError(t, s.DeleteBudget(ctx, u.ID, pets.ID))

	var housing models.Budget
	for _, b := range budgets {
		if b.Name == "Housing" {
			housing = b
		}
	}
	require.NotEmpty(t, housing.ID)
	food := "Food"
	_, err = s.UpdateBudget(ctx, u.ID, housing.ID, BudgetPatch{Name: &food})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestContactsAndInvitations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, s.DB(), "alice@example.com")
	bob := testutil.CreateUser(t, s.DB(), "bob@example.com")

	ok, err := s.AreContacts(ctx, alice.ID, []string{bob.ID})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.LinkContacts(ctx, alice.ID, bob.ID))
	require.NoError(t, s.LinkContacts(ctx, bob.ID, alice.ID))

	ok, err = s.AreContacts(ctx, alice.ID, []string{bob.ID, bob.ID})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.AreContacts(ctx, alice.ID, []string{bob.ID, alice.ID})
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := s.HasContactWithEmail(ctx, alice.ID, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, has)

	contacts, err := s.Contacts(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "alice@example.com", contacts[0].Contact.Email)

	inv, err := s.UpsertInvitation(ctx, alice.ID, "carol@example.com", models.InvitationPending)
	require.NoError(t, err)
	assert.NotEmpty(t, inv.Token)

	again, err := s.UpsertInvitation(ctx, alice.ID, "carol@example.com", models.InvitationPending)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)
	assert.Equal(t, inv.Token, again.Token)

	sent, err := s.PendingSent(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	carol := testutil.CreateUser(t, s.DB(), "carol@example.com")
	received, err := s.PendingReceived(ctx, carol.Email)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, alice.ID, received[0].Sender.ID)

	byToken, err := s.InvitationByToken(ctx, inv.Token)
	require.NoError(t, err)
	require.NoError(t, s.AcceptInvitation(ctx, byToken, carol.ID))
	assert.Equal(t, models.InvitationAccepted, byToken.Status)
	assert.ErrorIs(t, s.AcceptInvitation(ctx, byToken, carol.ID), ErrConflict)

	ok, err = s.AreContacts(ctx, carol.ID, []string{alice.ID})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.InvitationByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.ResolveUser(ctx, Identity{ExternalID: "user_1", Email: " New@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", created.Email)
	assert.Equal(t, "new", created.Name)

	same, err := s.ResolveUser(ctx, Identity{ExternalID: "user_1", Email: "other@example.com"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, same.ID)
	assert.Equal(t, "new@example.com", same.Email)

	legacy := &models.User{ExternalID: "legacy", Email: "legacy@example.com"}
	require.NoError(t, s.DB().Create(legacy).Error)
	linked, err := s.ResolveUser(ctx, Identity{ExternalID: "user_2", Email: "legacy@example.com", Name: "Lee"})
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, linked.ID)
	reloaded, err := s.UserByExternalID(ctx, "user_2")
	require.NoError(t, err)
	assert.Equal(t, "Lee", reloaded.Name)

	synced, err := s.SyncUser(ctx, Identity{ExternalID: "user_1", Email: "renamed@example.com", Name: "Ren"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, synced.ID)
	reloaded, err = s.UserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed@example.com", reloaded.Email)
	assert.Equal(t, "Ren", reloaded.Name)

	_, err = s.ResolveUser(ctx, Identity{ExternalID: "user_3"})
	assert.Error(t, err)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIdentity_DisplayName(t *testing.T) {
	assert.Equal(t, "Ana", Identity{Name: " Ana ", Email: "a@x.com"}.DisplayName())
	assert.Equal(t, "a", Identity{Email: "a@x.com"}.DisplayName())
	assert.Equal(t, "User", Identity{}.DisplayName())
}

func TestBilling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")

	end := time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateBilling(ctx, u.ID, Billing{
		IsPaid: true, StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_1",
		Plan: "monthly", PriceAmount: 999, BillingPeriodEnd: &end,
	}))

	got, err := s.UserByStripeCustomer(ctx, "cus_1")
	require.NoError(t, err)
	b := BillingOf(got)
	assert.True(t, b.IsPaid)
	assert.Equal(t, "sub_1", b.StripeSubscriptionID)
	require.NotNil(t, b.BillingPeriodEnd)
	assert.True(t, end.Equal(*b.BillingPeriodEnd))

	require.NoError(t, s.UpdateBilling(ctx, u.ID, Billing{StripeCustomerID: "cus_1"}))
	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPaid)
	assert.Empty(t, got.Plan)
	assert.Nil(t, got.BillingPeriodEnd)

	assert.ErrorIs(t, s.UpdateBilling(ctx, "nope", Billing{}), ErrNotFound)
}

func TestDeleteUserByExternalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, s.DB(), "alice@example.com")
	bob := testutil.CreateUser(t, s.DB(), "bob@example.com")
	testutil.Link(t, s.DB(), alice, bob)

	mine := newTx(alice, ledger.Expense, "10", "Food", day(2026, 10, 1))
	require.NoError(t, s.CreateTransaction(ctx, mine, []string{bob.ID}))
	theirs := newTx(bob, ledger.Expense, "20", "Food", day(2026, 10, 1))
	require.NoError(t, s.CreateTransaction(ctx, theirs, []string{alice.ID}))
	require.NoError(t, s.SeedDefaultBudgets(ctx, alice.ID, "2026-10"))

	require.NoError(t, s.DeleteUserByExternalID(ctx, alice.ExternalID))
	assert.ErrorIs(t, s.DeleteUserByExternalID(ctx, alice.ExternalID), ErrNotFound)

	owned, err := s.OwnedTransactions(ctx, bob.ID, Filter{})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Empty(t, owned[0].Shares)

	in, err := s.SharedInTransactions(ctx, bob.ID, Filter{})
	require.NoError(t, err)
	assert.Empty(t, in)

	contacts, err := s.Contacts(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestChatsAndRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, s.CreateChat(ctx, &models.Chat{UserID: u.ID, Sender: models.SenderUser, Message: msg}))
		time.Sleep(2 * time.Millisecond)
	}
	chats, err := s.RecentChats(ctx, u.ID, 2)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "three", chats[0].Message)

	require.NoError(t, s.CreateRecord(ctx, &models.Record{UserID: u.ID, Classification: "RECURRING", Amount: decimal.NewFromInt(9)}))
	require.NoError(t, s.CreateRecord(ctx, &models.Record{UserID: u.ID, Classification: "BUDGET", Amount: decimal.NewFromInt(1)}))
	n, err := s.CountRecords(ctx, u.ID, "RECURRING")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, err := s.RecentRecords(ctx, u.ID, 20)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCreateClassified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")

	tx := newTx(u, ledger.Expense, "12.00", "Food", day(2026, 10, 1))
	rec := &models.Record{UserID: u.ID, Classification: "EXPENSE", Amount: decimal.NewFromInt(12), Category: "Food"}
	require.NoError(t, s.CreateClassified(ctx, tx, rec))
	require.NotNil(t, rec.TransactionID)
	assert.Equal(t, tx.ID, *rec.TransactionID)

	// 无交易时只写记录
	budget := &models.Record{UserID: u.ID, Classification: "BUDGET", Amount: decimal.NewFromInt(300)}
	require.NoError(t, s.CreateClassified(ctx, nil, budget))
	assert.Nil(t, budget.TransactionID)

	n, err := s.CountRecords(ctx, u.ID, "BUDGET")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCreateClassified_RollsBackTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, s.DB(), "u@example.com")
	require.NoError(t, s.DB().Migrator().DropTable(&models.Record{}))

	tx := newTx(u, ledger.Expense, "12.00", "Food", day(2026, 10, 1))
	rec := &models.Record{UserID: u.ID, Classification: "EXPENSE", Amount: decimal.NewFromInt(12)}
	err := s.CreateClassified(ctx, tx, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create record")

	txs, err := s.OwnedTransactions(ctx, u.ID, Filter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestSubscribers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Subscribe(ctx, "news@example.com")
	require.NoError(t, err)
	assert.Equal(t, Subscribed, res)

	res, err = s.Subscribe(ctx, "news@example.com")
	require.NoError(t, err)
	assert.Equal(t, AlreadySubscribed, res)

	var sub models.Subscriber
	require.NoError(t, s.DB().Where("email = ?", "news@example.com").First(&sub).Error)
	require.NoError(t, s.Unsubscribe(ctx, sub.Token))
	assert.ErrorIs(t, s.Unsubscribe(ctx, "bogus"), ErrNotFound)

	res, err = s.Subscribe(ctx, "news@example.com")
	require.NoError(t, err)
	assert.Equal(t, Resubscribed, res)
}

func TestCountUsers_DatabaseError(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	s := New(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).
		WillReturnError(errors.New("connection refused"))

	_, err := s.CountUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count users")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRecords_Mock(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	s := New(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "records" WHERE user_id = \$1 AND classification = \$2`).
		WithArgs("u1", "RECURRING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountRecords(context.Background(), "u1", "RECURRING")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
