// Package grpcserver exposes the keyqueue gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"strings"

	"github.com/and161185/keyqueue/internal/api"
	"github.com/and161185/keyqueue/internal/convert"
	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/and161185/keyqueue/internal/service"
	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenIssuer issues and verifies bearer tokens.
type TokenIssuer interface {
	Issue(clientID uuid.UUID) (model.Tokens, error)
	Verify(token string) (uuid.UUID, error)
}

// Services groups the application services served over gRPC.
type Services struct {
	Clients            service.ClientService
	KeyPackages        service.KeyPackageService
	ConnectionPackages service.ConnectionPackageService
	Queues             service.QueueService
	Handles            service.HandleService
}

// Server wires services into gRPC handlers.
type Server struct {
	api.UnimplementedKeyQueueServer
	svc    Services
	tokens TokenIssuer
}

// New constructs a gRPC server with injected services.
func New(svc Services, tokens TokenIssuer) *Server {
	return &Server{svc: svc, tokens: tokens}
}

// --- Clients ---

// RegisterUser creates a user with a fresh friendship token.
func (s *Server) RegisterUser(ctx context.Context, _ *api.Empty) (*api.RegisterUserResponse, error) {
	u, err := s.svc.Clients.RegisterUser(ctx)
	if err != nil {
		return nil, toStatus("register user", err)
	}
	return &api.RegisterUserResponse{UserID: u.UserID, FriendshipToken: u.FriendshipToken}, nil
}

// RegisterClient creates a client record and returns its first access token.
func (s *Server) RegisterClient(ctx context.Context, req *api.RegisterClientRequest) (*api.RegisterClientResponse, error) {
	id, err := s.svc.Clients.RegisterClient(ctx, req.UserID, convert.FromAPICredential(req.Credential), req.QueueEncryptionKey, req.Ratchet)
	if err != nil {
		return nil, toStatus("register client", err)
	}
	tok, err := s.tokens.Issue(id)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "issue token: %v", err)
	}
	return &api.RegisterClientResponse{ClientID: id, AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt}, nil
}

// RefreshToken issues a new access token for the calling client.
func (s *Server) RefreshToken(ctx context.Context, _ *api.Empty) (*api.TokenResponse, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := s.tokens.Issue(caller)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "issue token: %v", err)
	}
	return &api.TokenResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt}, nil
}

// GetClient returns the caller's own client record.
func (s *Server) GetClient(ctx context.Context, req *api.ClientRequest) (*api.GetClientResponse, error) {
	if err := requireSelf(ctx, req.ClientID); err != nil {
		return nil, err
	}
	c, err := s.svc.Clients.Get(ctx, req.ClientID)
	if err != nil {
		return nil, toStatus("get client", err)
	}
	return convert.ToAPIClient(c), nil
}

// RotateCredential replaces the caller's credential.
func (s *Server) RotateCredential(ctx context.Context, req *api.RotateCredentialRequest) (*api.Empty, error) {
	if err := requireSelf(ctx, req.ClientID); err != nil {
		return nil, err
	}
	err := s.svc.Clients.RotateCredential(ctx, req.ClientID, convert.FromAPICredential(req.Credential), req.ActivityTime, req.RemainingTokens)
	if err != nil {
		return nil, toStatus("rotate credential", err)
	}
	return &api.Empty{}, nil
}

// UpdateQueueState stores the caller's advanced ratchet.
func (s *Server) UpdateQueueState(ctx context.Context, req *api.UpdateQueueStateRequest) (*api.Empty, error) {
	if err := requireSelf(ctx, req.ClientID); err != nil {
		return nil, err
	}
	if err := s.svc.Clients.UpdateQueueState(ctx, req.ClientID, req.QueueEncryptionKey, req.Ratchet); err != nil {
		return nil, toStatus("update queue state", err)
	}
	return &api.Empty{}, nil
}

// DeleteClient removes the caller with its pools and queue.
func (s *Server) DeleteClient(ctx context.Context, req *api.ClientRequest) (*api.Empty, error) {
	if err := requireSelf(ctx, req.ClientID); err != nil {
		return nil, err
	}
	if err := s.svc.Clients.Delete(ctx, req.ClientID); err != nil {
		return nil, toStatus("delete client", err)
	}
	return &api.Empty{}, nil
}

// --- Key packages ---

// ReplenishKeyPackages publishes the caller's key packages.
func (s *Server) ReplenishKeyPackages(ctx context.Context, req *api.ReplenishKeyPackagesRequest) (*api.Empty, error) {
	if err := requireSelf(ctx, req.ClientID); err != nil {
		return nil, err
	}
	err := s.svc.KeyPackages.Replenish(ctx, req.ClientID, convert.FromAPIBlobs(req.KeyPackages), convert.FromAPILastResort(req.LastResort))
	if err != nil {
		return nil, toStatus("replenish key packages", err)
	}
	return &api.Empty{}, nil
}

// ConsumeKeyPackage hands out key packages by friendship token, for one
// client, or for a list of recipients.
func (s *Server) ConsumeKeyPackage(ctx context.Context, req *api.ConsumeKeyPackageRequest) (*api.ConsumeKeyPackageResponse, error) {
	var (
		res []model.KeyPackageResult
		err error
	)
	switch {
	case len(req.FriendshipToken) > 0 && len(req.ClientIDs) > 0:
		return nil, status.Error(codes.InvalidArgument, "friendship token and client ids are mutually exclusive")
	case len(req.FriendshipToken) > 0:
		res, err = s.svc.KeyPackages.ConsumeForUser(ctx, req.FriendshipToken)
	case len(req.ClientIDs) == 1:
		var one model.KeyPackageResult
		one, err = s.svc.KeyPackages.Consume(ctx, req.ClientIDs[0])
		res = []model.KeyPackageResult{one}
	case len(req.ClientIDs) > 1:
		res, err = s.svc.KeyPackages.ConsumeForRecipients(ctx, req.ClientIDs)
	default:
		return nil, status.Error(codes.InvalidArgument, "no recipients")
	}
	if err != nil {
		return nil, toStatus("consume key package", err)
	}
	out, err := convert.ToAPIKeyPackageResults(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "consume key package: %v", err)
	}
	return &api.ConsumeKeyPackageResponse{Results: out}, nil
}

// --- Connection packages ---

// ReplenishConnectionPackages publishes connection packages. Client-owned
// pools may only be filled by that client. Handle-owned pools need the
// plaintext handle; the hash is public to every sender and proves nothing.
func (s *Server) ReplenishConnectionPackages(ctx context.Context, req *api.ReplenishConnectionPackagesRequest) (*api.Empty, error) {
	owner, err := s.ownerID(req.Owner)
	if err != nil {
		return nil, err
	}
	switch {
	case req.Owner.ClientID != uuid.Nil:
		if err := requireSelf(ctx, req.Owner.ClientID); err != nil {
			return nil, err
		}
	case req.Owner.Handle.Handle == "":
		return nil, status.Error(codes.PermissionDenied, "handle pools are replenished by plaintext handle")
	}
	if err := s.svc.ConnectionPackages.Replenish(ctx, owner, convert.FromAPIBlobs(req.ConnectionPackages)); err != nil {
		return nil, toStatus("replenish connection packages", err)
	}
	return &api.Empty{}, nil
}

// ConsumeConnectionPackage hands out one connection package of the owner.
func (s *Server) ConsumeConnectionPackage(ctx context.Context, req *api.ConsumeConnectionPackageRequest) (*api.ConsumeConnectionPackageResponse, error) {
	owner, err := s.ownerID(req.Owner)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.ConnectionPackages.Consume(ctx, owner)
	if err != nil {
		return nil, toStatus("consume connection package", err)
	}
	out, err := convert.ToAPIConnectionPackage(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "consume connection package: %v", err)
	}
	return out, nil
}

// --- Queues ---

// EnqueueMessage appends a message to any client's queue.
func (s *Server) EnqueueMessage(ctx context.Context, req *api.EnqueueMessageRequest) (*api.EnqueueMessageResponse, error) {
	seq, err := s.svc.Queues.Enqueue(ctx, req.QueueID, req.Payload)
	if err != nil {
		return nil, toStatus("enqueue", err)
	}
	return &api.EnqueueMessageResponse{SequenceNumber: seq}, nil
}

// FetchMessages trims and reads the caller's own queue.
func (s *Server) FetchMessages(ctx context.Context, req *api.FetchMessagesRequest) (*api.FetchMessagesResponse, error) {
	if err := requireSelf(ctx, req.QueueID); err != nil {
		return nil, err
	}
	batch, err := s.svc.Queues.Fetch(ctx, req.QueueID, req.SequenceNumber, req.Limit)
	if err != nil {
		return nil, toStatus("fetch", err)
	}
	return convert.ToAPIQueueBatch(batch), nil
}

// --- Handle mailbox ---

// EnqueueHandleMessage stores a message for a handle.
func (s *Server) EnqueueHandleMessage(ctx context.Context, req *api.EnqueueHandleMessageRequest) (*api.EnqueueHandleMessageResponse, error) {
	h, err := s.handleHash(req.Handle)
	if err != nil {
		return nil, err
	}
	id, err := s.svc.Handles.Enqueue(ctx, h, req.Payload)
	if err != nil {
		return nil, toStatus("enqueue handle message", err)
	}
	return &api.EnqueueHandleMessageResponse{MessageID: id}, nil
}

// FetchHandleMessages claims messages of a handle for the caller.
func (s *Server) FetchHandleMessages(ctx context.Context, req *api.FetchHandleMessagesRequest) (*api.FetchHandleMessagesResponse, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	h, err := s.handleHash(req.Handle)
	if err != nil {
		return nil, err
	}
	msgs, err := s.svc.Handles.Fetch(ctx, h, caller, req.Limit)
	if err != nil {
		return nil, toStatus("fetch handle messages", err)
	}
	return &api.FetchHandleMessagesResponse{Messages: convert.ToAPIHandleMessages(msgs)}, nil
}

// AckHandleMessage deletes a handle message the caller has claimed.
func (s *Server) AckHandleMessage(ctx context.Context, req *api.AckHandleMessageRequest) (*api.Empty, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Handles.Ack(ctx, req.MessageID, caller); err != nil {
		return nil, toStatus("ack handle message", err)
	}
	return &api.Empty{}, nil
}

// --- helpers ---

func (s *Server) handleHash(ref api.HandleRef) (model.HandleHash, error) {
	if ref.Handle != "" {
		h, err := s.svc.Handles.ResolveHandle(ref.Handle)
		if err != nil {
			return model.HandleHash{}, toStatus("resolve handle", err)
		}
		return h, nil
	}
	h, ok := model.HandleHashFromBytes(ref.Hash)
	if !ok {
		return model.HandleHash{}, status.Error(codes.InvalidArgument, "handle or 32 byte hash required")
	}
	return h, nil
}

func (s *Server) ownerID(ref api.OwnerRef) (model.OwnerID, error) {
	hasHandle := ref.Handle.Handle != "" || len(ref.Handle.Hash) > 0
	switch {
	case ref.ClientID != uuid.Nil && hasHandle:
		return nil, status.Error(codes.InvalidArgument, "owner is either a client or a handle")
	case ref.ClientID != uuid.Nil:
		return model.ClientOwner(ref.ClientID), nil
	case hasHandle:
		h, err := s.handleHash(ref.Handle)
		if err != nil {
			return nil, err
		}
		return model.HandleOwner(h), nil
	default:
		return nil, status.Error(codes.InvalidArgument, "empty owner")
	}
}

func callerID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ClientIDFromCtx(ctx)
	if !ok {
		return uuid.Nil, status.Error(codes.Unauthenticated, "no auth")
	}
	return id, nil
}

// requireSelf allows the call only when the caller acts on its own record.
func requireSelf(ctx context.Context, clientID uuid.UUID) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	if caller != clientID {
		return status.Error(codes.PermissionDenied, "not the owner")
	}
	return nil
}

// toStatus maps domain errors to gRPC codes. Anything unclassified is a
// storage failure the caller may retry.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, errs.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: not found", op)
	case errors.Is(err, errs.ErrExhausted):
		return status.Errorf(codes.NotFound, "%s: pool exhausted", op)
	case errors.Is(err, errs.ErrContended):
		return status.Errorf(codes.Unavailable, "%s: contended, retry", op)
	case errors.Is(err, errs.ErrRateLimited):
		return status.Errorf(codes.ResourceExhausted, "%s: rate limited", op)
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Errorf(codes.Unauthenticated, "%s: unauthorized", op)
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Errorf(codes.AlreadyExists, "%s: already exists", op)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: canceled", op)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: deadline exceeded", op)
	default:
		return status.Errorf(codes.Unavailable, "%s: transient storage failure", op)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
