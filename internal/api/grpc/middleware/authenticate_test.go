package middleware

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/accessgate/internal/mocks"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/testutil"
)

func TestAuthenticate_AuthFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mdAuthHeader   string
		callsService   bool
		tokenSvcUserID uuid.UUID
		tokenSvcErr    error
		wantGRPCCode   codes.Code
		wantMsg        string
		wantErr        bool
	}{
		{
			name:         "missing authorization header",
			wantGRPCCode: codes.Unauthenticated,
			wantMsg:      "missing authorization token",
			wantErr:      true,
		},
		{
			name:         "non bearer scheme",
			mdAuthHeader: "Basic abc",
			wantGRPCCode: codes.Unauthenticated,
			wantMsg:      "missing authorization token",
			wantErr:      true,
		},
		{
			name:         "expired token",
			mdAuthHeader: "Bearer old",
			callsService: true,
			tokenSvcErr:  model.ErrTokenExpired,
			wantGRPCCode: codes.Unauthenticated,
			wantMsg:      "authorization token expired",
			wantErr:      true,
		},
		{
			name:         "forged token",
			mdAuthHeader: "Bearer forged",
			callsService: true,
			tokenSvcErr:  model.ErrTokenBadSignature,
			wantGRPCCode: codes.Unauthenticated,
			wantMsg:      "invalid authorization token",
			wantErr:      true,
		},
		{
			name:           "nil user id from token",
			mdAuthHeader:   "Bearer token",
			callsService:   true,
			tokenSvcUserID: uuid.Nil,
			wantGRPCCode:   codes.Unauthenticated,
			wantMsg:        "invalid authorization token",
			wantErr:        true,
		},
		{
			name:           "valid token",
			mdAuthHeader:   "Bearer token",
			callsService:   true,
			tokenSvcUserID: uuid.New(),
			wantGRPCCode:   codes.OK,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lg := testutil.MakeNoopLogger()
			cm := mocks.NewContextManager(t)

			if !tt.wantErr {
				cm.On("SetUserIDToContext", mock.Anything, tt.tokenSvcUserID).Return(context.Background())
			}

			svc := mocks.NewTokenService(t)
			if tt.callsService {
				svc.On("GetUserID", mock.Anything, mock.AnythingOfType("string")).Return(tt.tokenSvcUserID, tt.tokenSvcErr)
			}
			m := NewAuthenticate(svc, cm, lg)

			ctx := context.Background()
			if tt.mdAuthHeader != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", tt.mdAuthHeader))
			}

			newCtx, err := m.AuthFunc(ctx)

			if tt.wantErr {
				assert.Error(t, err)
				st, ok := status.FromError(err)
				assert.True(t, ok)
				assert.Equal(t, tt.wantGRPCCode, st.Code())
				assert.Equal(t, tt.wantMsg, st.Message())
				assert.Nil(t, newCtx)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, newCtx)
			}
		})
	}
}
