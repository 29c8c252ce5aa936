package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arcana/internal/middleware"
	"arcana/internal/model"
	"arcana/internal/service"
	"arcana/internal/workflow"
	"arcana/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("handler-secret")

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + s
}

type stubApprovals struct {
	service.ApprovalService
	decideErr error
	gotActor  uuid.UUID
	gotAdmin  bool
	gotReq    service.DecisionRequest
}

func (s *stubApprovals) Decide(_ context.Context, requestID, approverID uuid.UUID, req service.DecisionRequest) (*workflow.Result, error) {
	s.gotActor, s.gotReq = approverID, req
	if s.decideErr != nil {
		return nil, s.decideErr
	}
	return &workflow.Result{RequestID: requestID, Status: model.StatusApproved, Final: true}, nil
}

func (s *stubApprovals) Void(_ context.Context, requestID, actorID uuid.UUID, isAdmin bool, _ service.VoidRequest) (*workflow.Result, error) {
	s.gotActor, s.gotAdmin = actorID, isAdmin
	return &workflow.Result{RequestID: requestID, Status: model.StatusVoided, Final: true}, nil
}

func approvalRouter(svc service.ApprovalService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewApprovalHandler(svc, middleware.NewAuth(testSecret, false)).RegisterRoutes(r.Group(""))
	return r
}

func decode(t *testing.T, body io.Reader) response.Response {
	t.Helper()
	var res response.Response
	require.NoError(t, json.NewDecoder(body).Decode(&res))
	return res
}

func TestDecide(t *testing.T) {
	approver := uuid.New()
	requestID := uuid.New()

	tests := []struct {
		name     string
		role     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"approved", model.RoleApprover, `{"decision":"Approve"}`, nil, http.StatusOK, ""},
		{"unknown decision", model.RoleApprover, `{"decision":"Maybe"}`, nil, http.StatusBadRequest, ""},
		{"cdo cannot decide", model.RoleCdo, `{"decision":"Approve"}`, nil, http.StatusForbidden, ""},
		{"missing reason", model.RoleApprover, `{"decision":"Reject"}`, workflow.Newf(workflow.ErrMissingReason, "reason required"), http.StatusBadRequest, "MISSING_REASON"},
		{"already resolved", model.RoleApprover, `{"decision":"Approve"}`, workflow.Newf(workflow.ErrLevelAlreadyResolved, "level 1 resolved"), http.StatusConflict, "LEVEL_ALREADY_RESOLVED"},
		{"not current approver", model.RoleApprover, `{"decision":"Approve"}`, workflow.Newf(workflow.ErrNotCurrentApprover, "nope"), http.StatusForbidden, "NOT_CURRENT_APPROVER"},
		{"no chain", model.RoleApprover, `{"decision":"Approve"}`, workflow.Newf(workflow.ErrNoApproverConfigured, "none"), http.StatusInternalServerError, "NO_APPROVER_CONFIGURED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubApprovals{decideErr: tt.err}
			req := httptest.NewRequest(http.MethodPost, "/api/requests/"+requestID.String()+"/decision", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", bearer(t, approver, tt.role))
			w := httptest.NewRecorder()

			approvalRouter(svc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode(t, w.Body).Code)
			}
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, approver, svc.gotActor)
			}
		})
	}
}

func TestDecide_InvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/requests/not-a-uuid/decision", bytes.NewBufferString(`{"decision":"Approve"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, uuid.New(), model.RoleApprover))
	w := httptest.NewRecorder()

	approvalRouter(&stubApprovals{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoid_PassesAdminFlag(t *testing.T) {
	admin := uuid.New()
	svc := &stubApprovals{}
	req := httptest.NewRequest(http.MethodPost, "/api/requests/"+uuid.NewString()+"/void", nil)
	req.Header.Set("Authorization", bearer(t, admin, model.RoleAdmin))
	w := httptest.NewRecorder()

	approvalRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, admin, svc.gotActor)
	assert.True(t, svc.gotAdmin)
}

type stubFreebies struct {
	service.FreebieService
	got     service.ReleaseInput
	photo   string
	sign    string
	release error
}

func (s *stubFreebies) ReleaseFreebies(_ context.Context, in service.ReleaseInput) (*model.FreebieRequest, error) {
	s.got = in
	p, _ := io.ReadAll(in.PhotoProof.Content)
	e, _ := io.ReadAll(in.ESignature.Content)
	s.photo, s.sign = string(p), string(e)
	if s.release != nil {
		return nil, s.release
	}
	return &model.FreebieRequest{ID: in.FreebieID, Status: model.StatusReleased, IsDelivered: true}, nil
}

func releaseRequest(t *testing.T, id uuid.UUID, cdo uuid.UUID, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/freebies/"+id.String()+"/release", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", bearer(t, cdo, model.RoleCdo))
	return req
}

func TestRelease(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id, cdo := uuid.New(), uuid.New()

	t.Run("uploads both files", func(t *testing.T) {
		svc := &stubFreebies{}
		r := gin.New()
		NewFreebieHandler(svc, middleware.NewAuth(testSecret, false)).RegisterRoutes(r.Group(""))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, releaseRequest(t, id, cdo, map[string]string{"photo_proof": "photo", "e_signature": "sig"}))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, id, svc.got.FreebieID)
		assert.Equal(t, cdo, svc.got.ActorID)
		assert.Equal(t, "photo", svc.photo)
		assert.Equal(t, "sig", svc.sign)
	})

	t.Run("missing signature", func(t *testing.T) {
		r := gin.New()
		NewFreebieHandler(&stubFreebies{}, middleware.NewAuth(testSecret, false)).RegisterRoutes(r.Group(""))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, releaseRequest(t, id, cdo, map[string]string{"photo_proof": "photo"}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("storage failure is retryable", func(t *testing.T) {
		svc := &stubFreebies{release: workflow.Newf(workflow.ErrMediaUpload, "e-signature upload failed")}
		r := gin.New()
		NewFreebieHandler(svc, middleware.NewAuth(testSecret, false)).RegisterRoutes(r.Group(""))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, releaseRequest(t, id, cdo, map[string]string{"photo_proof": "photo", "e_signature": "sig"}))

		require.Equal(t, http.StatusBadGateway, w.Code)
		res := decode(t, w.Body)
		assert.True(t, res.Retryable)
		assert.Equal(t, "MEDIA_UPLOAD_FAILED", res.Code)
	})
}
