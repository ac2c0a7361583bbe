package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "keyqueue.v1.KeyQueue"

// Method names.
const (
	MethodRegisterUser                = "RegisterUser"
	MethodRegisterClient              = "RegisterClient"
	MethodRefreshToken                = "RefreshToken"
	MethodGetClient                   = "GetClient"
	MethodRotateCredential            = "RotateCredential"
	MethodUpdateQueueState            = "UpdateQueueState"
	MethodDeleteClient                = "DeleteClient"
	MethodReplenishKeyPackages        = "ReplenishKeyPackages"
	MethodConsumeKeyPackage           = "ConsumeKeyPackage"
	MethodReplenishConnectionPackages = "ReplenishConnectionPackages"
	MethodConsumeConnectionPackage    = "ConsumeConnectionPackage"
	MethodEnqueueMessage              = "EnqueueMessage"
	MethodFetchMessages               = "FetchMessages"
	MethodEnqueueHandleMessage        = "EnqueueHandleMessage"
	MethodFetchHandleMessages         = "FetchHandleMessages"
	MethodAckHandleMessage            = "AckHandleMessage"
)

// FullMethod returns the "/service/method" path used by interceptors.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// KeyQueueServer is the server API for the KeyQueue service.
// Implementations must embed UnimplementedKeyQueueServer.
type KeyQueueServer interface {
	RegisterUser(context.Context, *Empty) (*RegisterUserResponse, error)
	RegisterClient(context.Context, *RegisterClientRequest) (*RegisterClientResponse, error)
	RefreshToken(context.Context, *Empty) (*TokenResponse, error)
	GetClient(context.Context, *ClientRequest) (*GetClientResponse, error)
	RotateCredential(context.Context, *RotateCredentialRequest) (*Empty, error)
	UpdateQueueState(context.Context, *UpdateQueueStateRequest) (*Empty, error)
	DeleteClient(context.Context, *ClientRequest) (*Empty, error)
	ReplenishKeyPackages(context.Context, *ReplenishKeyPackagesRequest) (*Empty, error)
	ConsumeKeyPackage(context.Context, *ConsumeKeyPackageRequest) (*ConsumeKeyPackageResponse, error)
	ReplenishConnectionPackages(context.Context, *ReplenishConnectionPackagesRequest) (*Empty, error)
	ConsumeConnectionPackage(context.Context, *ConsumeConnectionPackageRequest) (*ConsumeConnectionPackageResponse, error)
	EnqueueMessage(context.Context, *EnqueueMessageRequest) (*EnqueueMessageResponse, error)
	FetchMessages(context.Context, *FetchMessagesRequest) (*FetchMessagesResponse, error)
	EnqueueHandleMessage(context.Context, *EnqueueHandleMessageRequest) (*EnqueueHandleMessageResponse, error)
	FetchHandleMessages(context.Context, *FetchHandleMessagesRequest) (*FetchHandleMessagesResponse, error)
	AckHandleMessage(context.Context, *AckHandleMessageRequest) (*Empty, error)
	mustEmbedUnimplementedKeyQueueServer()
}

// UnimplementedKeyQueueServer returns codes.Unimplemented for every method.
type UnimplementedKeyQueueServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedKeyQueueServer) RegisterUser(context.Context, *Empty) (*RegisterUserResponse, error) {
	return nil, unimplemented(MethodRegisterUser)
}
func (UnimplementedKeyQueueServer) RegisterClient(context.Context, *RegisterClientRequest) (*RegisterClientResponse, error) {
	return nil, unimplemented(MethodRegisterClient)
}
func (UnimplementedKeyQueueServer) RefreshToken(context.Context, *Empty) (*TokenResponse, error) {
	return nil, unimplemented(MethodRefreshToken)
}
func (UnimplementedKeyQueueServer) GetClient(context.Context, *ClientRequest) (*GetClientResponse, error) {
	return nil, unimplemented(MethodGetClient)
}
func (UnimplementedKeyQueueServer) RotateCredential(context.Context, *RotateCredentialRequest) (*Empty, error) {
	return nil, unimplemented(MethodRotateCredential)
}
func (UnimplementedKeyQueueServer) UpdateQueueState(context.Context, *UpdateQueueStateRequest) (*Empty, error) {
	return nil, unimplemented(MethodUpdateQueueState)
}
func (UnimplementedKeyQueueServer) DeleteClient(context.Context, *ClientRequest) (*Empty, error) {
	return nil, unimplemented(MethodDeleteClient)
}
func (UnimplementedKeyQueueServer) ReplenishKeyPackages(context.Context, *ReplenishKeyPackagesRequest) (*Empty, error) {
	return nil, unimplemented(MethodReplenishKeyPackages)
}
func (UnimplementedKeyQueueServer) ConsumeKeyPackage(context.Context, *ConsumeKeyPackageRequest) (*ConsumeKeyPackageResponse, error) {
	return nil, unimplemented(MethodConsumeKeyPackage)
}
func (UnimplementedKeyQueueServer) ReplenishConnectionPackages(context.Context, *ReplenishConnectionPackagesRequest) (*Empty, error) {
	return nil, unimplemented(MethodReplenishConnectionPackages)
}
func (UnimplementedKeyQueueServer) ConsumeConnectionPackage(context.Context, *ConsumeConnectionPackageRequest) (*ConsumeConnectionPackageResponse, error) {
	return nil, unimplemented(MethodConsumeConnectionPackage)
}
func (UnimplementedKeyQueueServer) EnqueueMessage(context.Context, *EnqueueMessageRequest) (*EnqueueMessageResponse, error) {
	return nil, unimplemented(MethodEnqueueMessage)
}
func (UnimplementedKeyQueueServer) FetchMessages(context.Context, *FetchMessagesRequest) (*FetchMessagesResponse, error) {
	return nil, unimplemented(MethodFetchMessages)
}
func (UnimplementedKeyQueueServer) EnqueueHandleMessage(context.Context, *EnqueueHandleMessageRequest) (*EnqueueHandleMessageResponse, error) {
	return nil, unimplemented(MethodEnqueueHandleMessage)
}
func (UnimplementedKeyQueueServer) FetchHandleMessages(context.Context, *FetchHandleMessagesRequest) (*FetchHandleMessagesResponse, error) {
	return nil, unimplemented(MethodFetchHandleMessages)
}
func (UnimplementedKeyQueueServer) AckHandleMessage(context.Context, *AckHandleMessageRequest) (*Empty, error) {
	return nil, unimplemented(MethodAckHandleMessage)
}
func (UnimplementedKeyQueueServer) mustEmbedUnimplementedKeyQueueServer() {}

// unary builds the method descriptor for one request/response pair.
func unary[Req, Resp any](name string, call func(KeyQueueServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(KeyQueueServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(KeyQueueServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// KeyQueue_ServiceDesc is the grpc.ServiceDesc for the KeyQueue service.
var KeyQueue_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KeyQueueServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRegisterUser, KeyQueueServer.RegisterUser),
		unary(MethodRegisterClient, KeyQueueServer.RegisterClient),
		unary(MethodRefreshToken, KeyQueueServer.RefreshToken),
		unary(MethodGetClient, KeyQueueServer.GetClient),
		unary(MethodRotateCredential, KeyQueueServer.RotateCredential),
		unary(MethodUpdateQueueState, KeyQueueServer.UpdateQueueState),
		unary(MethodDeleteClient, KeyQueueServer.DeleteClient),
		unary(MethodReplenishKeyPackages, KeyQueueServer.ReplenishKeyPackages),
		unary(MethodConsumeKeyPackage, KeyQueueServer.ConsumeKeyPackage),
		unary(MethodReplenishConnectionPackages, KeyQueueServer.ReplenishConnectionPackages),
		unary(MethodConsumeConnectionPackage, KeyQueueServer.ConsumeConnectionPackage),
		unary(MethodEnqueueMessage, KeyQueueServer.EnqueueMessage),
		unary(MethodFetchMessages, KeyQueueServer.FetchMessages),
		unary(MethodEnqueueHandleMessage, KeyQueueServer.EnqueueHandleMessage),
		unary(MethodFetchHandleMessages, KeyQueueServer.FetchHandleMessages),
		unary(MethodAckHandleMessage, KeyQueueServer.AckHandleMessage),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keyqueue/v1/keyqueue.json",
}

// RegisterKeyQueueServer registers srv on s.
func RegisterKeyQueueServer(s grpc.ServiceRegistrar, srv KeyQueueServer) {
	s.RegisterService(&KeyQueue_ServiceDesc, srv)
}

// KeyQueueClient is the client API for the KeyQueue service. Every call is
// sent with the JSON content-subtype.
type KeyQueueClient struct {
	cc grpc.ClientConnInterface
}

// NewKeyQueueClient wraps a client connection.
func NewKeyQueueClient(cc grpc.ClientConnInterface) *KeyQueueClient {
	return &KeyQueueClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *KeyQueueClient) RegisterUser(ctx context.Context, opts ...grpc.CallOption) (*RegisterUserResponse, error) {
	return invoke[RegisterUserResponse](ctx, c.cc, MethodRegisterUser, &Empty{}, opts)
}

func (c *KeyQueueClient) RegisterClient(ctx context.Context, in *RegisterClientRequest, opts ...grpc.CallOption) (*RegisterClientResponse, error) {
	return invoke[RegisterClientResponse](ctx, c.cc, MethodRegisterClient, in, opts)
}

func (c *KeyQueueClient) RefreshToken(ctx context.Context, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, MethodRefreshToken, &Empty{}, opts)
}

func (c *KeyQueueClient) GetClient(ctx context.Context, in *ClientRequest, opts ...grpc.CallOption) (*GetClientResponse, error) {
	return invoke[GetClientResponse](ctx, c.cc, MethodGetClient, in, opts)
}

func (c *KeyQueueClient) RotateCredential(ctx context.Context, in *RotateCredentialRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodRotateCredential, in, opts)
	return err
}

func (c *KeyQueueClient) UpdateQueueState(ctx context.Context, in *UpdateQueueStateRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodUpdateQueueState, in, opts)
	return err
}

func (c *KeyQueueClient) DeleteClient(ctx context.Context, in *ClientRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodDeleteClient, in, opts)
	return err
}

func (c *KeyQueueClient) ReplenishKeyPackages(ctx context.Context, in *ReplenishKeyPackagesRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodReplenishKeyPackages, in, opts)
	return err
}

func (c *KeyQueueClient) ConsumeKeyPackage(ctx context.Context, in *ConsumeKeyPackageRequest, opts ...grpc.CallOption) (*ConsumeKeyPackageResponse, error) {
	return invoke[ConsumeKeyPackageResponse](ctx, c.cc, MethodConsumeKeyPackage, in, opts)
}

func (c *KeyQueueClient) ReplenishConnectionPackages(ctx context.Context, in *ReplenishConnectionPackagesRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodReplenishConnectionPackages, in, opts)
	return err
}

func (c *KeyQueueClient) ConsumeConnectionPackage(ctx context.Context, in *ConsumeConnectionPackageRequest, opts ...grpc.CallOption) (*ConsumeConnectionPackageResponse, error) {
	return invoke[ConsumeConnectionPackageResponse](ctx, c.cc, MethodConsumeConnectionPackage, in, opts)
}

func (c *KeyQueueClient) EnqueueMessage(ctx context.Context, in *EnqueueMessageRequest, opts ...grpc.CallOption) (*EnqueueMessageResponse, error) {
	return invoke[EnqueueMessageResponse](ctx, c.cc, MethodEnqueueMessage, in, opts)
}

func (c *KeyQueueClient) FetchMessages(ctx context.Context, in *FetchMessagesRequest, opts ...grpc.CallOption) (*FetchMessagesResponse, error) {
	return invoke[FetchMessagesResponse](ctx, c.cc, MethodFetchMessages, in, opts)
}

func (c *KeyQueueClient) EnqueueHandleMessage(ctx context.Context, in *EnqueueHandleMessageRequest, opts ...grpc.CallOption) (*EnqueueHandleMessageResponse, error) {
	return invoke[EnqueueHandleMessageResponse](ctx, c.cc, MethodEnqueueHandleMessage, in, opts)
}

func (c *KeyQueueClient) FetchHandleMessages(ctx context.Context, in *FetchHandleMessagesRequest, opts ...grpc.CallOption) (*FetchHandleMessagesResponse, error) {
	return invoke[FetchHandleMessagesResponse](ctx, c.cc, MethodFetchHandleMessages, in, opts)
}

func (c *KeyQueueClient) AckHandleMessage(ctx context.Context, in *AckHandleMessageRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MethodAckHandleMessage, in, opts)
	return err
}
