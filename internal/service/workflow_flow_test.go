package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"arcana/internal/model"
	"arcana/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approvedFreebie walks a prospect through freebie approval.
func approvedFreebie(t *testing.T, env *testEnv) (*model.User, *model.Client, *model.FreebieRequest) {
	t.Helper()
	ctx := context.Background()
	cdo := env.user(t, "cdo", model.RoleCdo)
	approver := env.user(t, "freebie.approver", model.RoleApprover)
	env.chain(t, model.ModuleFreebie, approver)

	client, err := env.clientSvc.CreateProspect(ctx, cdo.ID, details("Reyes"))
	require.NoError(t, err)
	freebie, err := env.freebieSvc.RequestFreebies(ctx, cdo.ID, client.ID, freebieItems())
	require.NoError(t, err)
	require.NotNil(t, freebie.RequestID)

	res := env.approve(t, *freebie.RequestID, approver)
	require.Equal(t, model.StatusApproved, res.Status)

	freebie, err = env.freebieSvc.GetFreebie(ctx, freebie.ID)
	require.NoError(t, err)
	return cdo, client, freebie
}

func TestFreebieFlow_RequestApproveRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo, client, freebie := approvedFreebie(t, env)
	assert.Equal(t, model.StatusApproved, freebie.Status)

	released, err := env.freebieSvc.ReleaseFreebies(ctx, ReleaseInput{
		FreebieID:  freebie.ID,
		ActorID:    cdo.ID,
		PhotoProof: Evidence{Filename: "proof.jpg", Content: strings.NewReader("photo")},
		ESignature: Evidence{Filename: "sign.png", Content: strings.NewReader("signature")},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusReleased, released.Status)
	assert.True(t, released.IsDelivered)
	assert.Equal(t, "http://files/freebies/"+freebie.ID.String()+"/photo-proof.jpg", released.PhotoProofPath)
	assert.Equal(t, "http://files/freebies/"+freebie.ID.String()+"/e-signature.png", released.ESignaturePath)
	for _, item := range released.Items {
		assert.True(t, item.IsDelivered)
	}

	updated, err := env.clientSvc.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingRegistration, updated.RegistrationStatus)

	_, err = env.freebieSvc.ReleaseFreebies(ctx, ReleaseInput{
		FreebieID:  freebie.ID,
		ActorID:    cdo.ID,
		PhotoProof: Evidence{Filename: "proof.jpg", Content: strings.NewReader("photo")},
		ESignature: Evidence{Filename: "sign.png", Content: strings.NewReader("signature")},
	})
	assert.ErrorIs(t, err, workflow.ErrSubjectNotEditable)
}

func TestReleaseFreebies_SignatureUploadFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo, client, freebie := approvedFreebie(t, env)

	env.uploader.UploadFunc = func(key string) error {
		if strings.Contains(key, "e-signature") {
			return errors.New("storage unavailable")
		}
		return nil
	}

	_, err := env.freebieSvc.ReleaseFreebies(ctx, ReleaseInput{
		FreebieID:  freebie.ID,
		ActorID:    cdo.ID,
		PhotoProof: Evidence{Filename: "proof.jpg", Content: strings.NewReader("photo")},
		ESignature: Evidence{Filename: "sign.png", Content: strings.NewReader("signature")},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrMediaUpload)
	assert.Equal(t, workflow.KindExternalDependency, workflow.KindOf(err))
	assert.True(t, workflow.IsRetryable(err))
	assert.Len(t, env.uploader.keys, 1, "photo was uploaded before the signature failed")

	after, err := env.freebieSvc.GetFreebie(ctx, freebie.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, after.Status)
	assert.False(t, after.IsDelivered)
	assert.Empty(t, after.PhotoProofPath)
	for _, item := range after.Items {
		assert.False(t, item.IsDelivered)
	}

	c, err := env.clientSvc.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequested, c.RegistrationStatus)

	// retry once storage is back
	env.uploader.UploadFunc = nil
	released, err := env.freebieSvc.ReleaseFreebies(ctx, ReleaseInput{
		FreebieID:  freebie.ID,
		ActorID:    cdo.ID,
		PhotoProof: Evidence{Filename: "proof.jpg", Content: strings.NewReader("photo")},
		ESignature: Evidence{Filename: "sign.png", Content: strings.NewReader("signature")},
	})
	require.NoError(t, err)
	assert.True(t, released.IsDelivered)
}

func TestReleaseFreebies_RequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo := env.user(t, "cdo", model.RoleCdo)
	env.chain(t, model.ModuleFreebie, env.user(t, "approver", model.RoleApprover))
	client, err := env.clientSvc.CreateProspect(ctx, cdo.ID, details("Santos"))
	require.NoError(t, err)
	freebie, err := env.freebieSvc.RequestFreebies(ctx, cdo.ID, client.ID, freebieItems())
	require.NoError(t, err)

	_, err = env.freebieSvc.ReleaseFreebies(ctx, ReleaseInput{
		FreebieID:  freebie.ID,
		ActorID:    cdo.ID,
		PhotoProof: Evidence{Filename: "proof.jpg", Content: strings.NewReader("photo")},
		ESignature: Evidence{Filename: "sign.png", Content: strings.NewReader("signature")},
	})

	assert.ErrorIs(t, err, workflow.ErrSubjectNotEditable)
	assert.Empty(t, env.uploader.keys, "nothing is uploaded for an unapproved batch")
}

func TestUpdateFreebieItems_OnlyWhileUnderReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo := env.user(t, "cdo", model.RoleCdo)
	approver := env.user(t, "approver", model.RoleApprover)
	env.chain(t, model.ModuleFreebie, approver)
	client, err := env.clientSvc.CreateProspect(ctx, cdo.ID, details("Cruz"))
	require.NoError(t, err)
	freebie, err := env.freebieSvc.RequestFreebies(ctx, cdo.ID, client.ID, freebieItems())
	require.NoError(t, err)
	assert.Equal(t, model.StatusForFreebieApproval, freebie.Status)

	one := []FreebieItemInput{{ItemID: uuid.New(), ItemCode: "BEV-009", Quantity: 3}}
	updated, err := env.freebieSvc.UpdateFreebieItems(ctx, cdo.ID, freebie.ID, one)
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)

	_, err = env.freebieSvc.UpdateFreebieItems(ctx, approver.ID, freebie.ID, one)
	assert.Equal(t, workflow.KindUnauthorized, workflow.KindOf(err))

	env.approve(t, *freebie.RequestID, approver)
	_, err = env.freebieSvc.UpdateFreebieItems(ctx, cdo.ID, freebie.ID, one)
	assert.ErrorIs(t, err, workflow.ErrSubjectNotEditable)
}

func TestRegistrationAndListingFeeFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo, client, freebie := approvedFreebie(t, env)
	x := env.user(t, "regular.x", model.RoleApprover)
	y := env.user(t, "regular.y", model.RoleApprover)
	env.chain(t, model.ModuleRegularRegistration, x, y)
	feeApprover := env.user(t, "fee.approver", model.RoleApprover)
	env.chain(t, model.ModuleListingFee, feeApprover)

	_, err := env.clientSvc.RegisterRegular(ctx, cdo.ID, client.ID, details("Reyes"))
	assert.ErrorIs(t, err, workflow.ErrSubjectNotEditable, "freebies must be released first")

	_, err = env.freebieSvc.ReleaseFreebies(ctx, ReleaseInput{
		FreebieID:  freebie.ID,
		ActorID:    cdo.ID,
		PhotoProof: Evidence{Filename: "proof.jpg", Content: strings.NewReader("photo")},
		ESignature: Evidence{Filename: "sign.png", Content: strings.NewReader("signature")},
	})
	require.NoError(t, err)

	reg, err := env.clientSvc.RegisterRegular(ctx, cdo.ID, client.ID, details("Reyes"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusForRegularApproval, reg.Client.RegistrationStatus)

	pending, total, err := env.approvalSvc.ListPending(ctx, x.ID, PendingFilter{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, pending, 1)
	assert.Equal(t, reg.Request.ID, pending[0].RequestID)
	assert.Equal(t, "User cdo", pending[0].RequesterName)

	// two-level chain: X then Y
	res := env.approve(t, reg.Request.ID, x)
	assert.Equal(t, model.StatusUnderReview, res.Status)
	require.NotNil(t, res.CurrentApproverID)
	assert.Equal(t, y.ID, *res.CurrentApproverID)
	res = env.approve(t, reg.Request.ID, y)
	assert.Equal(t, model.StatusApproved, res.Status)

	registered, err := env.clientSvc.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, registered.RegistrationStatus)

	history, err := env.approvalSvc.History(ctx, reg.Request.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "User regular.x", history[0].ApproverName)
	assert.Equal(t, model.ModuleRegularRegistration, history[1].Module)
	assert.NotNil(t, history[1].DecidedAt)

	fee, err := env.feeSvc.RequestListingFee(ctx, cdo.ID, client.ID, []ListingFeeItemInput{
		{ItemID: uuid.New(), ItemCode: "BEV-001", Sku: 4, UnitCost: decimal.RequireFromString("125.50")},
		{ItemID: uuid.New(), ItemCode: "SNK-002", Sku: 2, UnitCost: decimal.RequireFromString("80")},
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("662").Equal(fee.Total), "got %s", fee.Total)
	assert.Equal(t, model.StatusForListingFeeApproval, fee.Status)

	mine, _, err := env.feeSvc.ListListingFees(ctx, ListingFeeListFilter{CurrentApproverID: &feeApprover.ID, Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	// a reject needs a reason
	_, err = env.approvalSvc.Decide(ctx, *fee.RequestID, feeApprover.ID, DecisionRequest{Decision: "Reject"})
	assert.ErrorIs(t, err, workflow.ErrMissingReason)

	res, err = env.approvalSvc.Decide(ctx, *fee.RequestID, feeApprover.ID, DecisionRequest{Decision: "Reject", Reason: "incomplete docs"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, res.Status)

	fee, err = env.feeSvc.GetListingFee(ctx, fee.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, fee.Status)

	logs, err := NewAuditService(env.audits).GetEntityLogs(ctx, fee.RequestID.String())
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionOpenRequest, logs[0].Action)
	assert.Equal(t, model.ActionRejectRequest, logs[1].Action)
}

func TestRequestFreebies_OnlyOnceBeforeRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo, client, freebie := approvedFreebie(t, env)
	env.chain(t, model.ModuleRegularRegistration, env.user(t, "regular.x", model.RoleApprover))

	_, err := env.freebieSvc.RequestFreebies(ctx, cdo.ID, client.ID, freebieItems())
	assert.ErrorIs(t, err, workflow.ErrSubjectNotEditable, "approved batch not yet released")

	_, err = env.freebieSvc.ReleaseFreebies(ctx, ReleaseInput{
		FreebieID:  freebie.ID,
		ActorID:    cdo.ID,
		PhotoProof: Evidence{Filename: "proof.jpg", Content: strings.NewReader("photo")},
		ESignature: Evidence{Filename: "sign.png", Content: strings.NewReader("signature")},
	})
	require.NoError(t, err)
	_, err = env.clientSvc.RegisterRegular(ctx, cdo.ID, client.ID, details("Reyes"))
	require.NoError(t, err)

	// a second batch would reset the client to pending registration
	_, err = env.freebieSvc.RequestFreebies(ctx, cdo.ID, client.ID, freebieItems())
	assert.ErrorIs(t, err, workflow.ErrSubjectNotEditable)

	found, err := env.clientSvc.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusForRegularApproval, found.RegistrationStatus)
	_, total, err := env.freebieSvc.ListFreebies(ctx, FreebieListFilter{ClientID: &client.ID, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRequestFreebies_AfterRejectedBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo := env.user(t, "cdo", model.RoleCdo)
	approver := env.user(t, "approver", model.RoleApprover)
	env.chain(t, model.ModuleFreebie, approver)
	client, err := env.clientSvc.CreateProspect(ctx, cdo.ID, details("Villanueva"))
	require.NoError(t, err)
	first, err := env.freebieSvc.RequestFreebies(ctx, cdo.ID, client.ID, freebieItems())
	require.NoError(t, err)

	_, err = env.approvalSvc.Decide(ctx, *first.RequestID, approver.ID, DecisionRequest{Decision: "Reject", Reason: "out of stock"})
	require.NoError(t, err)

	second, err := env.freebieSvc.RequestFreebies(ctx, cdo.ID, client.ID, freebieItems())
	require.NoError(t, err)
	assert.Equal(t, model.StatusForFreebieApproval, second.Status)
}

func TestReleaseFreebies_ClientMovedOn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo, client, freebie := approvedFreebie(t, env)
	require.NoError(t, env.clients.ApplyStatus(ctx, client.ID, model.StatusVoided))

	_, err := env.freebieSvc.ReleaseFreebies(ctx, ReleaseInput{
		FreebieID:  freebie.ID,
		ActorID:    cdo.ID,
		PhotoProof: Evidence{Filename: "proof.jpg", Content: strings.NewReader("photo")},
		ESignature: Evidence{Filename: "sign.png", Content: strings.NewReader("signature")},
	})
	assert.ErrorIs(t, err, workflow.ErrSubjectNotEditable)

	// the batch write rolls back with the client write
	found, err := env.freebieSvc.GetFreebie(ctx, freebie.ID)
	require.NoError(t, err)
	assert.False(t, found.IsDelivered)
	assert.Equal(t, model.StatusApproved, found.Status)
	moved, err := env.clientSvc.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVoided, moved.RegistrationStatus)
}

func TestListingFee_RequiresRegisteredClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo := env.user(t, "cdo", model.RoleCdo)
	env.chain(t, model.ModuleListingFee, env.user(t, "fee.approver", model.RoleApprover))
	client, err := env.clientSvc.CreateProspect(ctx, cdo.ID, details("Lim"))
	require.NoError(t, err)

	_, err = env.feeSvc.RequestListingFee(ctx, cdo.ID, client.ID, []ListingFeeItemInput{
		{ItemID: uuid.New(), Sku: 1, UnitCost: decimal.NewFromInt(10)},
	})

	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))
}

// The client insert is rolled back with the failed request.
func TestRegisterDirect_NoChainConfigured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo := env.user(t, "cdo", model.RoleCdo)

	_, err := env.clientSvc.RegisterDirect(ctx, cdo.ID, details("Tan"))

	assert.ErrorIs(t, err, workflow.ErrNoApproverConfigured)
	var clients, requests int64
	require.NoError(t, env.db.Model(&model.Client{}).Count(&clients).Error)
	require.NoError(t, env.db.Model(&model.Request{}).Count(&requests).Error)
	assert.Zero(t, clients)
	assert.Zero(t, requests)
}

func TestRegisterDirect_VoidedByAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cdo := env.user(t, "cdo", model.RoleCdo)
	admin := env.user(t, "admin", model.RoleAdmin)
	env.chain(t, model.ModuleDirectRegistration, env.user(t, "direct.approver", model.RoleApprover))

	reg, err := env.clientSvc.RegisterDirect(ctx, cdo.ID, details("Go"))
	require.NoError(t, err)
	assert.Equal(t, model.OriginDirect, reg.Client.Origin)
	assert.Equal(t, model.StatusDirectRegistrationApproval, reg.Client.RegistrationStatus)

	res, err := env.approvalSvc.Void(ctx, reg.Request.ID, admin.ID, true, VoidRequest{Reason: "duplicate store"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusVoided, res.Status)

	c, err := env.clientSvc.GetClient(ctx, reg.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVoided, c.RegistrationStatus)
}
