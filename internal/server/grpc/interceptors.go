package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/and161185/keyqueue/internal/api"
	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/limiter"
	"github.com/and161185/keyqueue/internal/metrics"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// PublicMethods are served without a bearer token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		api.FullMethod(api.MethodRegisterUser):   true,
		api.FullMethod(api.MethodRegisterClient): true,
	}
}

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, payloads are ciphertext
		log.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// MetricsUnary records per-method latency and status codes.
func MetricsUnary(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		m.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// AuthUnary verifies the bearer token, spends one token of the caller's
// allowance and stores the client id in the context. Methods listed in
// public skip both steps. A nil limiter disables the allowance.
func AuthUnary(tokens TokenIssuer, lim limiter.Limiter, m *metrics.Metrics, public map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if public[info.FullMethod] {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		clientID, err := tokens.Verify(tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if lim != nil {
			if _, err := lim.Take(ctx, clientID); err != nil {
				switch {
				case errors.Is(err, errs.ErrRateLimited):
					m.RateLimited()
					return nil, status.Error(codes.ResourceExhausted, "rate limited")
				case errors.Is(err, errs.ErrNotFound):
					return nil, status.Error(codes.Unauthenticated, "unknown client")
				default:
					return nil, toStatus("rate limit", err)
				}
			}
		}
		return next(WithClientID(ctx, clientID), req)
	}
}
