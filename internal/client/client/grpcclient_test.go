package client

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/dmitrijs2005/courial/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type handlerFunc func(req *structpb.Struct) (map[string]any, error)

// fakeBackend serves every backend method from a table of handlers and
// records what it received.
type fakeBackend struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	requests map[string][]*structpb.Struct
	tokens   []string
}

func (f *fakeBackend) handle(method string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}
		md, _ := metadata.FromIncomingContext(ctx)

		f.mu.Lock()
		f.requests[method] = append(f.requests[method], in)
		f.tokens = append(f.tokens, strings.Join(md.Get(common.AccessTokenHeaderName), ","))
		h := f.handlers[method]
		f.mu.Unlock()

		if h == nil {
			return nil, status.Error(codes.Unimplemented, method)
		}
		out, err := h(in)
		if err != nil {
			return nil, err
		}
		return structpb.NewStruct(out)
	}
}

func (f *fakeBackend) serviceDesc(service string, methods ...string) *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{ServiceName: service, HandlerType: (*any)(nil)}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m,
			Handler:    f.handle("/" + service + "/" + m),
		})
	}
	return desc
}

func (f *fakeBackend) last(method string) *structpb.Struct {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[method]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

func startBackend(t *testing.T, handlers map[string]handlerFunc, token TokenSource) (*GRPCClient, *fakeBackend) {
	t.Helper()
	f := &fakeBackend{handlers: handlers, requests: map[string][]*structpb.Struct{}}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(f.serviceDesc("courial.v1.CourialService", "Ping", "RegisterPush", "ResolveCourialID", "CheckDiscount", "SendSMS", "SignIn"), struct{}{})
	srv.RegisterService(f.serviceDesc("courial.v1.BillingService", "GetCustomerInfo"), struct{}{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", token,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, f
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPing(t *testing.T) {
	c, _ := startBackend(t, map[string]handlerFunc{
		MethodPing: func(*structpb.Struct) (map[string]any, error) { return map[string]any{"status": "OK"}, nil },
	}, nil)
	require.NoError(t, c.Ping(ctxT(t)))
}

func TestPing_NotOK(t *testing.T) {
	c, _ := startBackend(t, map[string]handlerFunc{
		MethodPing: func(*structpb.Struct) (map[string]any, error) { return map[string]any{"status": "DRAINING"}, nil },
	}, nil)
	require.ErrorIs(t, c.Ping(ctxT(t)), ErrUnavailable)
}

func TestInterceptor_AttachesCurrentToken(t *testing.T) {
	token := "t1"
	c, f := startBackend(t, map[string]handlerFunc{
		MethodPing: func(*structpb.Struct) (map[string]any, error) { return map[string]any{"status": "OK"}, nil },
	}, func() string { return token })

	require.NoError(t, c.Ping(ctxT(t)))
	token = "t2"
	require.NoError(t, c.Ping(ctxT(t)))
	token = ""
	require.NoError(t, c.Ping(ctxT(t)))

	assert.Equal(t, []string{"t1", "t2", ""}, f.tokens)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.Unauthenticated, ErrUnauthorized},
		{codes.PermissionDenied, ErrUnauthorized},
		{codes.Unavailable, ErrUnavailable},
		{codes.DeadlineExceeded, ErrUnavailable},
	}
	for _, tt := range tests {
		code := tt.code
		c, _ := startBackend(t, map[string]handlerFunc{
			MethodPing: func(*structpb.Struct) (map[string]any, error) { return nil, status.Error(code, "x") },
		}, nil)
		require.ErrorIs(t, c.Ping(ctxT(t)), tt.want, code.String())
	}

	c, _ := startBackend(t, map[string]handlerFunc{
		MethodPing: func(*structpb.Struct) (map[string]any, error) { return nil, status.Error(codes.Internal, "boom") },
	}, nil)
	err := c.Ping(ctxT(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "rpc error")
}

func TestPush_Register(t *testing.T) {
	c, f := startBackend(t, map[string]handlerFunc{
		MethodRegisterPush: func(*structpb.Struct) (map[string]any, error) { return map[string]any{"success": true}, nil },
	}, nil)

	res, err := NewPush(c, "dev-1").Register(ctxT(t))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "dev-1", f.last(MethodRegisterPush).GetFields()["device_token"].GetStringValue())
}

func TestPush_NoDeviceTokenFailsLocally(t *testing.T) {
	c, f := startBackend(t, nil, nil)

	res, err := NewPush(c, "").Register(ctxT(t))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, f.last(MethodRegisterPush))
}

func TestBilling_FetchSnapshot(t *testing.T) {
	c, f := startBackend(t, map[string]handlerFunc{
		MethodGetCustomerInfo: func(*structpb.Struct) (map[string]any, error) {
			return map[string]any{
				"found": true,
				"entitlements": []any{
					map[string]any{"id": "basic", "active": false},
					map[string]any{"id": "pro", "active": true},
				},
			}, nil
		},
	}, nil)
	b := NewBilling(c, "key-1")
	ctx := ctxT(t)

	require.NoError(t, b.Initialize(ctx))
	require.True(t, b.IsConfigured())
	require.NoError(t, b.Identify(ctx, "u1"))

	snap, err := b.FetchSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entitlements, 2)
	assert.Equal(t, session.PlanPro, b.DeriveState(snap).Plan)

	req := f.last(MethodGetCustomerInfo).GetFields()
	assert.Equal(t, "u1", req["app_user_id"].GetStringValue())
	assert.Equal(t, "key-1", req["api_key"].GetStringValue())
}

func TestBilling_NotFoundIsNilSnapshot(t *testing.T) {
	c, _ := startBackend(t, map[string]handlerFunc{
		MethodGetCustomerInfo: func(*structpb.Struct) (map[string]any, error) { return map[string]any{"found": false}, nil },
	}, nil)
	b := NewBilling(c, "key-1")
	ctx := ctxT(t)
	require.NoError(t, b.Initialize(ctx))
	require.NoError(t, b.Identify(ctx, "u1"))

	snap, err := b.FetchSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestBilling_WithoutKeyIsNotConfigured(t *testing.T) {
	c, _ := startBackend(t, nil, nil)
	b := NewBilling(c, "")
	require.NoError(t, b.Initialize(ctxT(t)))
	assert.False(t, b.IsConfigured())

	_, err := b.FetchSnapshot(ctxT(t))
	assert.ErrorIs(t, err, common.ErrorNotConfigured)
}

func TestResolver_Resolve(t *testing.T) {
	c, f := startBackend(t, map[string]handlerFunc{
		MethodResolveID: func(*structpb.Struct) (map[string]any, error) {
			return map[string]any{"success": true, "courial_id": "CR-1"}, nil
		},
	}, nil)

	res, err := NewResolver(c).Resolve(ctxT(t), session.UserRecord{ID: "u1", Phone: "+1555"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.CourialID)
	assert.Equal(t, "CR-1", *res.CourialID)
	assert.Equal(t, "+1555", f.last(MethodResolveID).GetFields()["phone"].GetStringValue())
}

func TestResolver_Failure(t *testing.T) {
	c, _ := startBackend(t, map[string]handlerFunc{
		MethodResolveID: func(*structpb.Struct) (map[string]any, error) {
			return map[string]any{"success": false, "error": "unknown user"}, nil
		},
	}, nil)

	res, err := NewResolver(c).Resolve(ctxT(t), session.UserRecord{ID: "u1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.CourialID)
	assert.Equal(t, "unknown user", res.Error)
}

func TestDiscount_Check(t *testing.T) {
	c, f := startBackend(t, map[string]handlerFunc{
		MethodCheckDiscount: func(*structpb.Struct) (map[string]any, error) {
			return map[string]any{"success": true, "discount_checked_at": "2026-04-01T10:00:00Z"}, nil
		},
	}, nil)
	id := "CR-1"

	res, err := NewDiscount(c).Check(ctxT(t), session.UserRecord{ID: "u1", CourialID: &id})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.CheckedAt)
	assert.True(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC).Equal(*res.CheckedAt))
	assert.Equal(t, "CR-1", f.last(MethodCheckDiscount).GetFields()["courial_id"].GetStringValue())
}

func TestDiscount_BadTimestamp(t *testing.T) {
	c, _ := startBackend(t, map[string]handlerFunc{
		MethodCheckDiscount: func(*structpb.Struct) (map[string]any, error) {
			return map[string]any{"success": true, "discount_checked_at": "yesterday"}, nil
		},
	}, nil)

	_, err := NewDiscount(c).Check(ctxT(t), session.UserRecord{ID: "u1"})
	require.ErrorIs(t, err, ErrBadResponse)
}

func TestSMS_Send(t *testing.T) {
	c, f := startBackend(t, map[string]handlerFunc{
		MethodSendSMS: func(req *structpb.Struct) (map[string]any, error) {
			if req.GetFields()["phone"].GetStringValue() == "+0" {
				return map[string]any{"success": false, "error": "invalid number"}, nil
			}
			return map[string]any{"success": true}, nil
		},
	}, nil)
	s := NewSMS(c)

	require.NoError(t, s.Send(ctxT(t), "+15550100", "123456"))
	assert.Equal(t, "123456", f.last(MethodSendSMS).GetFields()["code"].GetStringValue())

	err := s.Send(ctxT(t), "+0", "123456")
	require.ErrorIs(t, err, common.ErrorRejected)
	require.Contains(t, err.Error(), "invalid number")
}

func TestSignIn(t *testing.T) {
	c, f := startBackend(t, map[string]handlerFunc{
		MethodSignIn: func(req *structpb.Struct) (map[string]any, error) {
			if req.GetFields()["phone"].GetStringValue() == "+0" {
				return map[string]any{}, nil
			}
			return map[string]any{"access_token": "tok-1"}, nil
		},
	}, nil)

	token, err := c.SignIn(ctxT(t), "+15550100")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "+15550100", f.last(MethodSignIn).GetFields()["phone"].GetStringValue())

	_, err = c.SignIn(ctxT(t), "+0")
	require.ErrorIs(t, err, ErrBadResponse)
}
