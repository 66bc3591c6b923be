package grpc

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/server/keyring"
	"github.com/dinicsek/LovassyApp/internal/server/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	healthServicePrefix     = "/grpc.health.v1.Health/"
	reflectionServicePrefix = "/grpc.reflection."
)

func (s *GRPCServer) isPublic(method string) bool {
	if strings.HasPrefix(method, healthServicePrefix) || strings.HasPrefix(method, reflectionServicePrefix) {
		return true
	}
	_, ok := s.publicMethods[method]
	return ok
}

// bearerToken extracts the session token from the authorization header.
// Clients usually send the token exactly as issued, which is URL-encoded; it
// is decoded once here.
func bearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(common.AuthorizationHeaderName)
	if len(values) == 0 {
		return "", false
	}

	token, ok := strings.CutPrefix(values[0], common.BearerPrefix)
	if !ok || token == "" {
		return "", false
	}
	if strings.Contains(token, "%") {
		unescaped, err := url.QueryUnescape(token)
		if err != nil {
			return "", false
		}
		token = unescaped
	}
	return token, true
}

// authenticate resumes the caller's session and puts both the session handle
// and the unlocked master key into the returned context.
func (s *GRPCServer) authenticate(ctx context.Context) (context.Context, error) {
	token, ok := bearerToken(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	m := s.sessions.NewManager()
	if err := m.ResumeSession(ctx, token); err != nil {
		if errors.Is(err, common.ErrSessionNotFound) {
			return nil, status.Error(codes.Unauthenticated, "session not found")
		}
		s.logger.Error(ctx, "resume session failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	ctx = session.WithManager(ctx, m)

	masterKey, ok, err := session.MasterKey.Get(m)
	if err != nil {
		s.logger.Error(ctx, "session master key unreadable", "error", err)
		return nil, status.Error(codes.Unauthenticated, "session not found")
	}
	if ok {
		ctx = keyring.WithMasterKey(ctx, masterKey)
	}
	return ctx, nil
}

func (s *GRPCServer) sessionInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.isPublic(info.FullMethod) {
		return handler(ctx, req)
	}

	ctx, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := handler(ctx, req)
	return resp, ToStatus(err)
}

type sessionStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *sessionStream) Context() context.Context { return s.ctx }

func (s *GRPCServer) sessionStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if s.isPublic(info.FullMethod) {
		return handler(srv, ss)
	}

	ctx, err := s.authenticate(ss.Context())
	if err != nil {
		return err
	}
	return ToStatus(handler(srv, &sessionStream{ServerStream: ss, ctx: ctx}))
}

// ToStatus maps domain errors onto gRPC status codes. Errors that already
// carry a status pass through.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, common.ErrSessionNotFound),
		errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrRefreshTokenExpired),
		errors.Is(err, common.ErrKeyUnlockFailed):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrResetKeyPasswordNotSet),
		errors.Is(err, common.ErrInvalidImport):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
