package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/keyqueue/internal/api"
)

// stubServer records the last request of each RPC it answers.
type stubServer struct {
	api.UnimplementedKeyQueueServer

	mu       sync.Mutex
	consume  *api.ConsumeKeyPackageRequest
	conns    *api.ReplenishConnectionPackagesRequest
	enqueue  *api.EnqueueMessageRequest
	fetch    *api.FetchMessagesRequest
	rotate   *api.RotateCredentialRequest
	deleted  uuid.UUID
	clientID uuid.UUID
}

func (s *stubServer) RegisterClient(_ context.Context, req *api.RegisterClientRequest) (*api.RegisterClientResponse, error) {
	return &api.RegisterClientResponse{
		ClientID:    s.clientID,
		AccessToken: "issued",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (s *stubServer) GetClient(_ context.Context, req *api.ClientRequest) (*api.GetClientResponse, error) {
	return &api.GetClientResponse{ClientID: req.ClientID, RemainingTokens: 42}, nil
}

func (s *stubServer) RotateCredential(_ context.Context, req *api.RotateCredentialRequest) (*api.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = req
	return &api.Empty{}, nil
}

func (s *stubServer) DeleteClient(_ context.Context, req *api.ClientRequest) (*api.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = req.ClientID
	return &api.Empty{}, nil
}

func (s *stubServer) ConsumeKeyPackage(_ context.Context, req *api.ConsumeKeyPackageRequest) (*api.ConsumeKeyPackageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consume = req
	out := &api.ConsumeKeyPackageResponse{}
	for _, id := range req.ClientIDs {
		out.Results = append(out.Results, api.KeyPackageResult{ClientID: id, Outcome: api.OutcomeConsumed, KeyPackage: []byte("kp")})
	}
	return out, nil
}

func (s *stubServer) ReplenishConnectionPackages(_ context.Context, req *api.ReplenishConnectionPackagesRequest) (*api.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns = req
	return &api.Empty{}, nil
}

func (s *stubServer) EnqueueMessage(_ context.Context, req *api.EnqueueMessageRequest) (*api.EnqueueMessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueue = req
	return &api.EnqueueMessageResponse{SequenceNumber: 7}, nil
}

func (s *stubServer) FetchMessages(_ context.Context, req *api.FetchMessagesRequest) (*api.FetchMessagesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetch = req
	return &api.FetchMessagesResponse{Messages: []api.QueueMessage{{SequenceNumber: req.SequenceNumber, Payload: []byte("m")}}}, nil
}

func startStub(t *testing.T) (*stubServer, *api.KeyQueueClient) {
	t.Helper()
	stub := &stubServer{clientID: uuid.Must(uuid.NewV4())}
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	api.RegisterKeyQueueServer(gs, stub)
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return stub, api.NewKeyQueueClient(cc)
}

func writeTmp(t *testing.T, name string, body []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, body, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func credFile(t *testing.T) string {
	t.Helper()
	now := time.Now().UTC()
	b, _ := json.Marshal(api.Credential{
		Payload:   []byte("cred"),
		Signature: []byte("sig"),
		NotBefore: now.Add(-time.Hour),
		NotAfter:  now.Add(time.Hour),
	})
	return writeTmp(t, "cred.json", b)
}

func Test_parseUUIDs(t *testing.T) {
	t.Parallel()

	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	ids, err := parseUUIDs(a.String() + ", " + b.String() + ",")
	if err != nil || len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Fatalf("parseUUIDs: %v %v", ids, err)
	}
	if _, err := parseUUIDs("nope"); err == nil {
		t.Fatalf("expected error for bad uuid")
	}
}

func Test_handleRef(t *testing.T) {
	t.Parallel()

	ref, err := handleRef("alice", "ignored")
	if err != nil || ref.Handle != "alice" || ref.Hash != nil {
		t.Fatalf("plaintext handle must win: %+v %v", ref, err)
	}
	ref, err = handleRef("", base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	if err != nil || len(ref.Hash) != 3 {
		t.Fatalf("hash: %+v %v", ref, err)
	}
	if _, err := handleRef("", ""); err == nil {
		t.Fatalf("expected error without handle")
	}
	if _, err := handleRef("", "!!"); err == nil {
		t.Fatalf("expected error for bad base64")
	}
}

func Test_fileList_Repeats(t *testing.T) {
	t.Parallel()

	var f fileList
	_ = f.Set("a")
	_ = f.Set("b")
	if len(f) != 2 || f.String() != "a,b" {
		t.Fatalf("fileList: %v", f)
	}
}

func Test_withTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := withTimeout()
	defer cancel()
	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("deadline not set")
	}
	if rem := time.Until(dl); rem < 25*time.Second || rem > 35*time.Second {
		t.Fatalf("unexpected timeout window: %v", rem)
	}
}

func Test_selfOr(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := selfOr(""); err == nil {
		t.Fatalf("expected error without saved client")
	}
	id := uuid.Must(uuid.NewV4())
	_ = saveToken(tokenFile{ClientID: id, AccessToken: "t", ExpiresAt: time.Now().Add(time.Minute)})
	got, err := selfOr("")
	if err != nil || got != id {
		t.Fatalf("selfOr default: %v %v", got, err)
	}
	other := uuid.Must(uuid.NewV4())
	got, err = selfOr(other.String())
	if err != nil || got != other {
		t.Fatalf("selfOr explicit: %v %v", got, err)
	}
}

func Test_cmdRegisterClient_SavesToken(t *testing.T) {
	_ = withTmpConfig(t)
	stub, cli := startStub(t)

	out, err := cmdRegisterClient(context.Background(), cli, []string{
		"-user", uuid.Must(uuid.NewV4()).String(),
		"-cred", credFile(t),
		"-qek", writeTmp(t, "qek", []byte("key")),
	})
	if err != nil {
		t.Fatalf("register-client: %v", err)
	}
	if m, ok := out.(map[string]any); !ok || m["client_id"] != stub.clientID {
		t.Fatalf("unexpected output: %#v", out)
	}
	tf, err := loadToken()
	if err != nil || tf.AccessToken != "issued" || tf.ClientID != stub.clientID {
		t.Fatalf("saved token: %+v %v", tf, err)
	}

	if _, err := cmdRegisterClient(context.Background(), cli, []string{"-user", "x"}); err == nil {
		t.Fatalf("expected error for bad -user")
	}
}

func Test_cmdRotate_KeepsBudget(t *testing.T) {
	_ = withTmpConfig(t)
	stub, cli := startStub(t)
	id := uuid.Must(uuid.NewV4())

	if _, err := cmdRotate(context.Background(), cli, []string{"-id", id.String(), "-cred", credFile(t)}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if stub.rotate == nil || stub.rotate.ClientID != id || stub.rotate.RemainingTokens != 42 {
		t.Fatalf("rotate request: %+v", stub.rotate)
	}

	if _, err := cmdRotate(context.Background(), cli, []string{"-id", id.String(), "-cred", credFile(t), "-remaining", "5"}); err != nil {
		t.Fatalf("rotate explicit: %v", err)
	}
	if stub.rotate.RemainingTokens != 5 {
		t.Fatalf("explicit budget not sent: %+v", stub.rotate)
	}
}

func Test_cmdDeleteClient_DropsOwnToken(t *testing.T) {
	_ = withTmpConfig(t)
	stub, cli := startStub(t)
	id := uuid.Must(uuid.NewV4())
	_ = saveToken(tokenFile{ClientID: id, AccessToken: "t", ExpiresAt: time.Now().Add(time.Minute)})

	if _, err := cmdDeleteClient(context.Background(), cli, nil); err != nil {
		t.Fatalf("delete-client: %v", err)
	}
	if stub.deleted != id {
		t.Fatalf("deleted %v, want %v", stub.deleted, id)
	}
	if _, err := os.Stat(tokenPath()); !os.IsNotExist(err) {
		t.Fatalf("token file must be removed: %v", err)
	}
}

func Test_cmdConsumeKeys_Selectors(t *testing.T) {
	_ = withTmpConfig(t)
	stub, cli := startStub(t)
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	out, err := cmdConsumeKeys(context.Background(), cli, []string{"-clients", a.String() + "," + b.String()})
	if err != nil {
		t.Fatalf("consume-keys: %v", err)
	}
	res, ok := out.([]api.KeyPackageResult)
	if !ok || len(res) != 2 || res[0].ClientID != a || res[1].Outcome != api.OutcomeConsumed {
		t.Fatalf("unexpected results: %#v", out)
	}

	tok := base64.StdEncoding.EncodeToString([]byte("friend"))
	if _, err := cmdConsumeKeys(context.Background(), cli, []string{"-token", tok}); err != nil {
		t.Fatalf("consume-keys by token: %v", err)
	}
	if string(stub.consume.FriendshipToken) != "friend" || len(stub.consume.ClientIDs) != 0 {
		t.Fatalf("token request: %+v", stub.consume)
	}

	for _, args := range [][]string{
		nil,
		{"-token", tok, "-clients", a.String()},
		{"-token", "!!"},
		{"-clients", "bad"},
	} {
		if _, err := cmdConsumeKeys(context.Background(), cli, args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func Test_cmdReplenishConns_Owners(t *testing.T) {
	_ = withTmpConfig(t)
	stub, cli := startStub(t)
	cp1 := writeTmp(t, "cp1", []byte("cp1"))
	cp2 := writeTmp(t, "cp2", []byte("cp2"))

	if _, err := cmdReplenishConns(context.Background(), cli, []string{"-handle", "alice", "-file", cp1, "-file", cp2}); err != nil {
		t.Fatalf("replenish-conns: %v", err)
	}
	if stub.conns.Owner.Handle.Handle != "alice" || len(stub.conns.ConnectionPackages) != 2 {
		t.Fatalf("handle owner request: %+v", stub.conns)
	}

	id := uuid.Must(uuid.NewV4())
	if _, err := cmdReplenishConns(context.Background(), cli, []string{"-client", id.String(), "-file", cp1}); err != nil {
		t.Fatalf("replenish-conns client: %v", err)
	}
	if stub.conns.Owner.ClientID != id {
		t.Fatalf("client owner request: %+v", stub.conns)
	}

	if _, err := cmdReplenishConns(context.Background(), cli, []string{"-client", id.String(), "-handle", "a", "-file", cp1}); err == nil {
		t.Fatalf("expected error for two owners")
	}
	if _, err := cmdReplenishConns(context.Background(), cli, []string{"-handle", "a"}); err == nil {
		t.Fatalf("expected error without -file")
	}
}

func Test_cmdEnqueueAndFetch(t *testing.T) {
	_ = withTmpConfig(t)
	stub, cli := startStub(t)
	queue := uuid.Must(uuid.NewV4())

	out, err := cmdEnqueue(context.Background(), cli, []string{"-queue", queue.String(), "-file", writeTmp(t, "m", []byte("hello"))})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if r, ok := out.(*api.EnqueueMessageResponse); !ok || r.SequenceNumber != 7 {
		t.Fatalf("enqueue output: %#v", out)
	}
	if stub.enqueue.QueueID != queue || string(stub.enqueue.Payload) != "hello" {
		t.Fatalf("enqueue request: %+v", stub.enqueue)
	}

	if _, err := cmdFetch(context.Background(), cli, []string{"-queue", queue.String(), "-seq", "3", "-limit", "10"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if stub.fetch.QueueID != queue || stub.fetch.SequenceNumber != 3 || stub.fetch.Limit != 10 {
		t.Fatalf("fetch request: %+v", stub.fetch)
	}

	if _, err := cmdEnqueue(context.Background(), cli, []string{"-queue", queue.String()}); err == nil {
		t.Fatalf("expected error without -file")
	}
}

func Test_cmd_UnimplementedSurfaces(t *testing.T) {
	_ = withTmpConfig(t)
	_, cli := startStub(t)

	if _, err := cmdAckHandle(context.Background(), cli, []string{"-id", uuid.Must(uuid.NewV4()).String()}); err == nil {
		t.Fatalf("stub does not implement ack; expected rpc error")
	}
	if _, err := cmdAckHandle(context.Background(), cli, []string{"-id", "x"}); err == nil {
		t.Fatalf("expected error for bad -id")
	}
}
