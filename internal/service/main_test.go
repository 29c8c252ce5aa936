package service

import (
	"context"
	"io"
	"testing"
	"time"

	"arcana/internal/database"
	"arcana/internal/model"
	"arcana/internal/repository"
	"arcana/internal/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// mockUploader records uploads and fails when UploadFunc says so.
type mockUploader struct {
	UploadFunc func(key string) error
	keys       []string
}

func (m *mockUploader) Upload(_ context.Context, key string, content io.Reader) (string, error) {
	if _, err := io.ReadAll(content); err != nil {
		return "", err
	}
	if m.UploadFunc != nil {
		if err := m.UploadFunc(key); err != nil {
			return "", err
		}
	}
	m.keys = append(m.keys, key)
	return "http://files/" + key, nil
}

type testEnv struct {
	db        *gorm.DB
	tx        repository.TransactionManager
	requests  repository.RequestRepository
	approvers repository.ApproverRepository
	clients   repository.ClientRepository
	freebies  repository.FreebieRepository
	fees      repository.ListingFeeRepository
	users     repository.UserRepository
	audits    repository.AuditRepository
	uploader  *mockUploader
	engine    *workflow.Engine

	clientSvc   ClientService
	freebieSvc  FreebieService
	feeSvc      ListingFeeService
	approvalSvc ApprovalService
	approverSvc ApproverService
	userSvc     UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	env := &testEnv{
		db:        db,
		tx:        repository.NewTransactionManager(db),
		requests:  repository.NewRequestRepository(db),
		approvers: repository.NewApproverRepository(db),
		clients:   repository.NewClientRepository(db),
		freebies:  repository.NewFreebieRepository(db),
		fees:      repository.NewListingFeeRepository(db),
		users:     repository.NewUserRepository(db),
		audits:    repository.NewAuditRepository(db),
		uploader:  &mockUploader{},
	}

	projector, err := workflow.NewProjector(workflow.DefaultStatusTable, map[model.SubjectType]workflow.StatusWriter{
		model.SubjectClient:         env.clients,
		model.SubjectFreebieRequest: env.freebies,
		model.SubjectListingFee:     env.fees,
	})
	require.NoError(t, err)

	log := zap.NewNop()
	env.engine = workflow.NewEngine(env.tx, env.requests, env.audits, workflow.NewChainResolver(env.approvers), projector, log)
	env.clientSvc = NewClientService(env.tx, env.clients, env.engine, log)
	env.freebieSvc = NewFreebieService(env.tx, env.freebies, env.clients, env.audits, env.engine, projector, env.uploader, nil, log)
	env.feeSvc = NewListingFeeService(env.tx, env.fees, env.clients, env.engine, log)
	env.approvalSvc = NewApprovalService(env.requests, env.engine)
	env.approverSvc = NewApproverService(env.tx, env.approvers, env.users, env.audits, log)
	env.userSvc = NewUserService(env.users, TokenConfig{Secret: []byte("test-secret"), Issuer: "arcana", TTL: time.Hour})
	return env
}

func (e *testEnv) user(t *testing.T, username, role string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{Fullname: "User " + username, Username: username, Password: string(hash), Role: role, IsActive: true}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

// chain configures one approver per level for module.
func (e *testEnv) chain(t *testing.T, module model.Module, approvers ...*model.User) {
	t.Helper()
	var entries []ApproverEntry
	for i, a := range approvers {
		entries = append(entries, ApproverEntry{UserID: a.ID, Level: i + 1})
	}
	_, err := e.approverSvc.ReplaceChain(context.Background(), uuid.New(), module, ReplaceChainRequest{Approvers: entries})
	require.NoError(t, err)
}

func (e *testEnv) approve(t *testing.T, requestID uuid.UUID, approver *model.User) *workflow.Result {
	t.Helper()
	res, err := e.approvalSvc.Decide(context.Background(), requestID, approver.ID, DecisionRequest{Decision: "Approve"})
	require.NoError(t, err)
	return res
}

func freebieItems() []FreebieItemInput {
	return []FreebieItemInput{
		{ItemID: uuid.New(), ItemCode: "BEV-001", ItemDescription: "Cola 1L", Uom: "PCS", Quantity: 12},
		{ItemID: uuid.New(), ItemCode: "SNK-002", ItemDescription: "Chips", Uom: "PCK", Quantity: 6},
	}
}

func details(name string) ClientDetails {
	return ClientDetails{Fullname: name, BusinessName: name + " Sari-Sari Store", PhoneNumber: "09171234567", StoreType: "Sari-sari", TermDays: 30}
}
