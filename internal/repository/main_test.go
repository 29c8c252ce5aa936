package repository

import (
	"context"
	"testing"

	"arcana/internal/database"
	"arcana/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps every statement on the same in-memory database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) *model.User {
	t.Helper()
	user := &model.User{Fullname: username, Username: username, Password: "x", Role: role, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

// seedRequest stores a request whose chain has one level per entry of levels.
func seedRequest(t *testing.T, repo RequestRepository, module model.Module, levels ...[]uuid.UUID) *model.Request {
	t.Helper()
	first := levels[0][0]
	req := &model.Request{
		Module:            module,
		SubjectType:       model.SubjectTypeOf(module),
		SubjectID:         uuid.New(),
		Status:            model.StatusUnderReview,
		RequesterID:       uuid.New(),
		CurrentApproverID: &first,
		CurrentLevel:      1,
		Version:           1,
	}
	for i, ids := range levels {
		approval := model.Approval{Level: i + 1, Status: model.ApprovalPending, IsActive: true}
		for pos, id := range ids {
			approval.Candidates = append(approval.Candidates, model.ApprovalCandidate{ApproverID: id, Position: pos})
		}
		req.Approvals = append(req.Approvals, approval)
	}
	require.NoError(t, repo.Create(context.Background(), req))
	return req
}
