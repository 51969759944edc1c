package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/stricklysoft-identity/internal/testutil"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

var testUnaryInfo = &grpc.UnaryServerInfo{FullMethod: "/identity.v1.Accounts/Me"}

func incoming(authorization string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, authorization))
}

func TestUnaryServerInterceptor_Authenticates(t *testing.T) {
	t.Parallel()
	v := &stubVerifier{claims: testClaims()}
	interceptor := UnaryServerInterceptor(v, &stubResolver{account: testAccount()}, testutil.DiscardLogger())

	resp, err := interceptor(incoming("Bearer token"), "req", testUnaryInfo,
		func(ctx context.Context, req any) (any, error) {
			account, ok := AccountFromContext(ctx)
			require.True(t, ok)
			return account.ID, nil
		})
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp)
	assert.Equal(t, "Bearer token", v.got)
}

func TestUnaryServerInterceptor_StatusCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"authentication", sserr.New(sserr.CodeAuthenticationSignature, "bad signature"), codes.Unauthenticated},
		{"jwks unavailable", sserr.New(sserr.CodeUnavailableJWKS, "down"), codes.Unavailable},
		{"account creation", sserr.New(sserr.CodeInternalAccountCreation, "failed"), codes.Internal},
		{"timeout", sserr.New(sserr.CodeTimeoutDatabase, "slow"), codes.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			interceptor := UnaryServerInterceptor(&stubVerifier{err: tt.err}, &stubResolver{}, testutil.DiscardLogger())
			_, err := interceptor(incoming("Bearer token"), nil, testUnaryInfo,
				func(context.Context, any) (any, error) {
					t.Error("handler must not run")
					return nil, nil
				})
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestUnaryServerInterceptor_NoMetadata(t *testing.T) {
	t.Parallel()
	v := &stubVerifier{err: sserr.New(sserr.CodeAuthenticationMissing, "missing")}
	interceptor := UnaryServerInterceptor(v, &stubResolver{}, nil)

	_, err := interceptor(context.Background(), nil, testUnaryInfo,
		func(context.Context, any) (any, error) { return nil, nil })
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "", v.got)
}

type testServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *testServerStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	t.Parallel()
	interceptor := StreamServerInterceptor(&stubVerifier{claims: testClaims()},
		&stubResolver{account: testAccount()}, testutil.DiscardLogger())

	info := &grpc.StreamServerInfo{FullMethod: "/identity.v1.Accounts/Watch"}
	err := interceptor(nil, &testServerStream{ctx: incoming("Bearer token")}, info,
		func(_ any, ss grpc.ServerStream) error {
			claims, ok := ClaimsFromContext(ss.Context())
			require.True(t, ok)
			assert.NotEmpty(t, claims.SubjectID)
			return nil
		})
	require.NoError(t, err)

	denied := StreamServerInterceptor(&stubVerifier{err: sserr.New(sserr.CodeAuthenticationExpired, "expired")},
		&stubResolver{}, testutil.DiscardLogger())
	err = denied(nil, &testServerStream{ctx: incoming("Bearer token")}, info,
		func(any, grpc.ServerStream) error { return nil })
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
