package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"arcana/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedClient(t *testing.T, db *gorm.DB, name string) *model.Client {
	t.Helper()
	client := &model.Client{
		Fullname:           name,
		BusinessName:       name + " Store",
		Origin:             model.OriginProspecting,
		RegistrationStatus: model.StatusRequested,
		AddedBy:            uuid.New(),
		IsActive:           true,
	}
	require.NoError(t, NewClientRepository(db).Create(context.Background(), client))
	return client
}

func TestClientRepository_ApplyStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	client := seedClient(t, db, "Dela Cruz")
	ctx := context.Background()

	require.NoError(t, repo.ApplyStatus(ctx, client.ID, model.StatusForRegularApproval))
	found, err := repo.FindByID(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusForRegularApproval, found.RegistrationStatus)

	assert.ErrorIs(t, repo.ApplyStatus(ctx, uuid.New(), model.StatusApproved), ErrNotFound)
}

func TestClientRepository_TransitionStatusIsGuarded(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	client := seedClient(t, db, "Bautista")
	ctx := context.Background()

	require.NoError(t, repo.TransitionStatus(ctx, client.ID, model.StatusRequested, model.StatusPendingRegistration))
	assert.ErrorIs(t, repo.TransitionStatus(ctx, client.ID, model.StatusRequested, model.StatusPendingRegistration), ErrStatusChanged)

	found, err := repo.FindByIDForUpdate(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingRegistration, found.RegistrationStatus)
}

func TestClientRepository_UpdateDetailsIsGuarded(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	client := seedClient(t, db, "Mendoza")
	ctx := context.Background()

	client.BusinessName = "Mendoza Trading"
	client.TermDays = 0
	assert.ErrorIs(t, repo.UpdateDetails(ctx, client, model.StatusPendingRegistration), ErrStatusChanged)

	found, err := repo.FindByID(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mendoza Store", found.BusinessName)

	client.TermDays = 30
	require.NoError(t, repo.UpdateDetails(ctx, client, model.StatusRequested))
	found, err = repo.FindByID(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mendoza Trading", found.BusinessName)
	assert.Equal(t, 30, found.TermDays)
	assert.Equal(t, model.StatusRequested, found.RegistrationStatus)
}

func TestClientRepository_ListFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	seedClient(t, db, "Santos")
	seedClient(t, db, "Reyes")

	clients, total, err := repo.List(context.Background(), ClientFilter{Search: "Reyes"}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, clients, 1)
	assert.Equal(t, "Reyes", clients[0].Fullname)
}

func newFreebie(t *testing.T, db *gorm.DB, repo FreebieRepository) *model.FreebieRequest {
	t.Helper()
	client := seedClient(t, db, "Garcia")
	number, err := repo.NextTransactionNumber(context.Background())
	require.NoError(t, err)
	freebie := &model.FreebieRequest{
		ClientID:          client.ID,
		TransactionNumber: number,
		Status:            model.StatusForFreebieApproval,
		RequestedBy:       uuid.New(),
		Items: []model.FreebieItem{
			{ItemID: uuid.New(), ItemCode: "SKU-1", Quantity: 2},
			{ItemID: uuid.New(), ItemCode: "SKU-2", Quantity: 1},
		},
	}
	require.NoError(t, repo.Create(context.Background(), freebie))
	return freebie
}

func TestFreebieRepository_NextTransactionNumber(t *testing.T) {
	db := newTestDB(t)
	repo := NewFreebieRepository(db)
	prefix := "FR-" + time.Now().Format("20060102") + "-"

	first := newFreebie(t, db, repo)
	second := newFreebie(t, db, repo)

	assert.Equal(t, prefix+"00001", first.TransactionNumber)
	assert.Equal(t, fmt.Sprintf("%s%05d", prefix, 2), second.TransactionNumber)
}

func TestFreebieRepository_MarkReleasedOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewFreebieRepository(db)
	freebie := newFreebie(t, db, repo)
	ctx := context.Background()

	freebie.Status = model.StatusReleased
	freebie.PhotoProofPath = "http://files/freebies/1/photo-proof.jpg"
	freebie.ESignaturePath = "http://files/freebies/1/e-signature.png"
	require.NoError(t, repo.MarkReleased(ctx, freebie))

	found, err := repo.FindByID(ctx, freebie.ID)
	require.NoError(t, err)
	assert.True(t, found.IsDelivered)
	assert.Equal(t, model.StatusReleased, found.Status)
	assert.Equal(t, freebie.PhotoProofPath, found.PhotoProofPath)
	require.Len(t, found.Items, 2)
	for _, item := range found.Items {
		assert.True(t, item.IsDelivered)
	}

	assert.ErrorIs(t, repo.MarkReleased(ctx, freebie), ErrAlreadyResolved)
}

func TestFreebieRepository_HasOpenBatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewFreebieRepository(db)
	freebie := newFreebie(t, db, repo)
	ctx := context.Background()

	open, err := repo.HasOpenBatch(ctx, freebie.ClientID)
	require.NoError(t, err)
	assert.True(t, open)

	require.NoError(t, repo.ApplyStatus(ctx, freebie.ID, model.StatusRejected))
	open, err = repo.HasOpenBatch(ctx, freebie.ClientID)
	require.NoError(t, err)
	assert.False(t, open)

	locked, err := repo.FindByIDForUpdate(ctx, freebie.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, locked.Status)
	assert.Len(t, locked.Items, 2)
}

func TestFreebieRepository_ReplaceItems(t *testing.T) {
	db := newTestDB(t)
	repo := NewFreebieRepository(db)
	freebie := newFreebie(t, db, repo)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceItems(ctx, freebie.ID, []model.FreebieItem{{ItemID: uuid.New(), ItemCode: "SKU-9", Quantity: 5}}))

	found, err := repo.FindByID(ctx, freebie.ID)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "SKU-9", found.Items[0].ItemCode)
}

func TestListingFeeRepository_FilterByCurrentApprover(t *testing.T) {
	db := newTestDB(t)
	fees := NewListingFeeRepository(db)
	requests := NewRequestRepository(db)
	client := seedClient(t, db, "Lim")
	ctx := context.Background()
	x, y := uuid.New(), uuid.New()

	mine := seedRequest(t, requests, model.ModuleListingFee, []uuid.UUID{x})
	theirs := seedRequest(t, requests, model.ModuleListingFee, []uuid.UUID{y})
	for _, req := range []*model.Request{mine, theirs} {
		fee := &model.ListingFee{
			ClientID:    client.ID,
			Status:      model.StatusForListingFeeApproval,
			RequestedBy: uuid.New(),
			IsActive:    true,
			Items:       []model.ListingFeeItem{{ItemID: uuid.New(), Sku: 3, UnitCost: decimal.RequireFromString("150.25")}},
			Total:       decimal.RequireFromString("450.75"),
		}
		require.NoError(t, fees.Create(ctx, fee))
		require.NoError(t, fees.AttachRequest(ctx, fee.ID, req.ID))
	}

	list, total, err := fees.List(ctx, ListingFeeFilter{CurrentApproverID: &x}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].RequestID)
	assert.Equal(t, mine.ID, *list[0].RequestID)
	assert.True(t, decimal.RequireFromString("450.75").Equal(list[0].Total))
	require.Len(t, list[0].Items, 1)
	assert.True(t, decimal.RequireFromString("450.75").Equal(list[0].Items[0].LineTotal()))
}

func TestApproverRepository_ReplaceChain(t *testing.T) {
	db := newTestDB(t)
	repo := NewApproverRepository(db)
	ctx := context.Background()
	a := seedUser(t, db, "a", model.RoleApprover)
	b := seedUser(t, db, "b", model.RoleApprover)

	require.NoError(t, repo.ReplaceChain(ctx, model.ModuleFreebie, []model.Approver{{UserID: a.ID, Level: 1}}))
	require.NoError(t, repo.ReplaceChain(ctx, model.ModuleListingFee, []model.Approver{{UserID: a.ID, Level: 1}}))
	require.NoError(t, repo.ReplaceChain(ctx, model.ModuleFreebie, []model.Approver{
		{UserID: b.ID, Level: 2},
		{UserID: a.ID, Level: 1},
	}))

	chain, err := repo.ListByModule(ctx, model.ModuleFreebie)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, a.ID, chain[0].UserID)
	assert.Equal(t, 1, chain[0].Level)
	require.NotNil(t, chain[1].User)
	assert.Equal(t, "b", chain[1].User.Username)

	other, err := repo.ListByModule(ctx, model.ModuleListingFee)
	require.NoError(t, err)
	assert.Len(t, other, 1, "other modules untouched")
}
