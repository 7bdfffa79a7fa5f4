package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/courial/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Backend method names.
const (
	MethodPing            = "/courial.v1.CourialService/Ping"
	MethodRegisterPush    = "/courial.v1.CourialService/RegisterPush"
	MethodResolveID       = "/courial.v1.CourialService/ResolveCourialID"
	MethodCheckDiscount   = "/courial.v1.CourialService/CheckDiscount"
	MethodSendSMS         = "/courial.v1.CourialService/SendSMS"
	MethodSignIn          = "/courial.v1.CourialService/SignIn"
	MethodGetCustomerInfo = "/courial.v1.BillingService/GetCustomerInfo"
)

// TokenSource returns the access token to present, or "" for none.
type TokenSource func() string

type GRPCClient struct {
	conn  *grpc.ClientConn
	token TokenSource
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.token != nil {
		ctx = withAccessToken(ctx, s.token())
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient dials target lazily. Extra dial options are appended after
// the defaults, so tests can swap the dialer.
func NewGRPCClient(target string, token TokenSource, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{token: token}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client: %w", err)
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// call sends req to method and returns the decoded reply.
func (s *GRPCClient) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	out := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.call(ctx, MethodPing, nil)
	if err != nil {
		return err
	}
	if str(resp, "status") != "OK" {
		return ErrUnavailable
	}
	return nil
}

// SignIn exchanges a verified phone number for an access token. The code
// is checked on the device, so the request carries no proof of it; a
// production backend must verify the code it sent before issuing a token.
func (s *GRPCClient) SignIn(ctx context.Context, phone string) (string, error) {
	resp, err := s.call(ctx, MethodSignIn, map[string]any{"phone": phone})
	if err != nil {
		return "", err
	}
	token := str(resp, "access_token")
	if token == "" {
		return "", fmt.Errorf("%w: missing access_token", ErrBadResponse)
	}
	return token, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func boolean(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}
