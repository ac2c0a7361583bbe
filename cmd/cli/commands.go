package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/keyqueue/internal/api"
)

// command is one kq subcommand. run returns the value printed as JSON, or
// nil when there is nothing to print.
type command struct {
	usage  string
	public bool // runs without a saved token
	run    func(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error)
}

var commands = map[string]command{
	"register-user":   {usage: "(prints user id and friendship token)", public: true, run: cmdRegisterUser},
	"register-client": {usage: "-user <uuid> -cred <json> -qek <file> [-ratchet <file>]  (saves token)", public: true, run: cmdRegisterClient},
	"refresh":         {usage: "(saves a fresh token)", run: cmdRefresh},
	"get-client":      {usage: "[-id <uuid>]", run: cmdGetClient},
	"rotate":          {usage: "[-id <uuid>] -cred <json> [-remaining <n>]", run: cmdRotate},
	"update-queue":    {usage: "[-id <uuid>] -qek <file> [-ratchet <file>]", run: cmdUpdateQueue},
	"delete-client":   {usage: "[-id <uuid>]", run: cmdDeleteClient},
	"replenish-keys":  {usage: "[-id <uuid>] -file <kp>... [-last-resort <kp>]", run: cmdReplenishKeys},
	"consume-keys":    {usage: "-token <base64> | -clients <uuid,uuid>", run: cmdConsumeKeys},
	"replenish-conns": {usage: "[-client <uuid> | -handle <h>] -file <cp>...", run: cmdReplenishConns},
	"consume-conn":    {usage: "-client <uuid> | -handle <h> | -hash <base64>", run: cmdConsumeConn},
	"enqueue":         {usage: "-queue <uuid> -file <payload>", run: cmdEnqueue},
	"fetch":           {usage: "[-queue <uuid>] -seq <n> [-limit <n>]", run: cmdFetch},
	"enqueue-handle":  {usage: "-handle <h> | -hash <base64>, -file <payload>", run: cmdEnqueueHandle},
	"fetch-handle":    {usage: "-handle <h> | -hash <base64> [-limit <n>]", run: cmdFetchHandle},
	"ack-handle":      {usage: "-id <message uuid>", run: cmdAckHandle},
}

// ------- helpers -------

// fileList collects a repeated -file flag.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func readBlobs(paths []string) ([][]byte, error) {
	out := make([][]byte, 0, len(paths))
	for _, p := range paths {
		b, err := readAll(p)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// readOptional reads p, or returns nil for an empty path.
func readOptional(p string) ([]byte, error) {
	if p == "" {
		return nil, nil
	}
	return readAll(p)
}

func readCredential(p string) (api.Credential, error) {
	var c api.Credential
	if p == "" {
		return c, errors.New("need -cred")
	}
	b, err := readAll(p)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("credential %s: %w", p, err)
	}
	return c, nil
}

func parseUUIDs(s string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.FromString(part)
		if err != nil {
			return nil, fmt.Errorf("bad uuid %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func handleRef(handle, hash string) (api.HandleRef, error) {
	if handle != "" {
		return api.HandleRef{Handle: handle}, nil
	}
	if hash == "" {
		return api.HandleRef{}, errors.New("need -handle or -hash")
	}
	h, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return api.HandleRef{}, fmt.Errorf("bad -hash: %w", err)
	}
	return api.HandleRef{Hash: h}, nil
}

// selfOr resolves an optional -id flag, defaulting to the saved client.
func selfOr(id string) (uuid.UUID, error) {
	if id != "" {
		return uuid.FromString(id)
	}
	tf, _ := loadToken()
	if tf.ClientID.IsNil() {
		return uuid.Nil, errors.New("no saved client; pass -id")
	}
	return tf.ClientID, nil
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ------- clients -------

func cmdRegisterUser(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("register-user", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cli.RegisterUser(ctx)
}

func cmdRegisterClient(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("register-client", flag.ContinueOnError)
	user := fs.String("user", "", "user id (uuid)")
	credPath := fs.String("cred", "", "credential JSON file")
	qek := fs.String("qek", "", "queue encryption key file")
	ratchet := fs.String("ratchet", "", "ratchet state file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	userID, err := uuid.FromString(*user)
	if err != nil {
		return nil, fmt.Errorf("need -user: %w", err)
	}
	cred, err := readCredential(*credPath)
	if err != nil {
		return nil, err
	}
	if *qek == "" {
		return nil, errors.New("need -qek")
	}
	key, err := readAll(*qek)
	if err != nil {
		return nil, err
	}
	r, err := readOptional(*ratchet)
	if err != nil {
		return nil, err
	}

	resp, err := cli.RegisterClient(ctx, &api.RegisterClientRequest{
		UserID:             userID,
		Credential:         cred,
		QueueEncryptionKey: key,
		Ratchet:            r,
	})
	if err != nil {
		return nil, err
	}
	if err := saveToken(tokenFile{
		ClientID:    resp.ClientID,
		AccessToken: resp.AccessToken,
		ExpiresAt:   expiryOf(resp.AccessToken, resp.ExpiresAt),
	}); err != nil {
		return nil, err
	}
	return map[string]any{"client_id": resp.ClientID}, nil
}

func cmdRefresh(ctx context.Context, cli *api.KeyQueueClient, _ []string) (any, error) {
	prev, err := loadToken()
	if err != nil {
		return nil, err
	}
	resp, err := cli.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}
	exp := expiryOf(resp.AccessToken, resp.ExpiresAt)
	if err := saveToken(tokenFile{ClientID: prev.ClientID, AccessToken: resp.AccessToken, ExpiresAt: exp}); err != nil {
		return nil, err
	}
	return map[string]any{"expires_at": exp}, nil
}

func cmdGetClient(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("get-client", flag.ContinueOnError)
	id := fs.String("id", "", "client id (default: saved client)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	clientID, err := selfOr(*id)
	if err != nil {
		return nil, err
	}
	return cli.GetClient(ctx, &api.ClientRequest{ClientID: clientID})
}

func cmdRotate(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("rotate", flag.ContinueOnError)
	id := fs.String("id", "", "client id (default: saved client)")
	credPath := fs.String("cred", "", "credential JSON file")
	remaining := fs.Int("remaining", -1, "token budget to store (-1 keeps the current one)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	clientID, err := selfOr(*id)
	if err != nil {
		return nil, err
	}
	cred, err := readCredential(*credPath)
	if err != nil {
		return nil, err
	}
	budget := int32(*remaining)
	if budget < 0 {
		cur, err := cli.GetClient(ctx, &api.ClientRequest{ClientID: clientID})
		if err != nil {
			return nil, err
		}
		budget = cur.RemainingTokens
	}
	return nil, cli.RotateCredential(ctx, &api.RotateCredentialRequest{
		ClientID:        clientID,
		Credential:      cred,
		ActivityTime:    time.Now().UTC(),
		RemainingTokens: budget,
	})
}

func cmdUpdateQueue(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("update-queue", flag.ContinueOnError)
	id := fs.String("id", "", "client id (default: saved client)")
	qek := fs.String("qek", "", "queue encryption key file")
	ratchet := fs.String("ratchet", "", "ratchet state file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	clientID, err := selfOr(*id)
	if err != nil {
		return nil, err
	}
	if *qek == "" {
		return nil, errors.New("need -qek")
	}
	key, err := readAll(*qek)
	if err != nil {
		return nil, err
	}
	r, err := readOptional(*ratchet)
	if err != nil {
		return nil, err
	}
	return nil, cli.UpdateQueueState(ctx, &api.UpdateQueueStateRequest{
		ClientID:           clientID,
		QueueEncryptionKey: key,
		Ratchet:            r,
	})
}

func cmdDeleteClient(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("delete-client", flag.ContinueOnError)
	id := fs.String("id", "", "client id (default: saved client)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	clientID, err := selfOr(*id)
	if err != nil {
		return nil, err
	}
	if err := cli.DeleteClient(ctx, &api.ClientRequest{ClientID: clientID}); err != nil {
		return nil, err
	}
	if tf, _ := loadToken(); tf.ClientID == clientID {
		return nil, removeToken()
	}
	return nil, nil
}

// ------- key packages -------

func cmdReplenishKeys(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("replenish-keys", flag.ContinueOnError)
	id := fs.String("id", "", "client id (default: saved client)")
	var files fileList
	fs.Var(&files, "file", "key package file (repeatable, '-'=stdin)")
	lastResort := fs.String("last-resort", "", "last resort key package file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if len(files) == 0 && *lastResort == "" {
		return nil, errors.New("need -file or -last-resort")
	}
	clientID, err := selfOr(*id)
	if err != nil {
		return nil, err
	}
	kps, err := readBlobs(files)
	if err != nil {
		return nil, err
	}
	lr, err := readOptional(*lastResort)
	if err != nil {
		return nil, err
	}
	return nil, cli.ReplenishKeyPackages(ctx, &api.ReplenishKeyPackagesRequest{
		ClientID:    clientID,
		KeyPackages: kps,
		LastResort:  lr,
	})
}

func cmdConsumeKeys(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("consume-keys", flag.ContinueOnError)
	token := fs.String("token", "", "friendship token (base64)")
	clients := fs.String("clients", "", "comma separated client ids")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	var req api.ConsumeKeyPackageRequest
	switch {
	case *token != "" && *clients != "":
		return nil, errors.New("-token and -clients are exclusive")
	case *token != "":
		t, err := base64.StdEncoding.DecodeString(*token)
		if err != nil {
			return nil, fmt.Errorf("bad -token: %w", err)
		}
		req.FriendshipToken = t
	case *clients != "":
		ids, err := parseUUIDs(*clients)
		if err != nil {
			return nil, err
		}
		req.ClientIDs = ids
	default:
		return nil, errors.New("need -token or -clients")
	}
	resp, err := cli.ConsumeKeyPackage(ctx, &req)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ------- connection packages -------

func ownerFlags(fs *flag.FlagSet) func() (api.OwnerRef, error) {
	client := fs.String("client", "", "owning client id")
	handle := fs.String("handle", "", "owning handle")
	hash := fs.String("hash", "", "owning handle hash (base64)")
	return func() (api.OwnerRef, error) {
		if *handle != "" || *hash != "" {
			if *client != "" {
				return api.OwnerRef{}, errors.New("-client and -handle/-hash are exclusive")
			}
			ref, err := handleRef(*handle, *hash)
			return api.OwnerRef{Handle: ref}, err
		}
		id, err := selfOr(*client)
		return api.OwnerRef{ClientID: id}, err
	}
}

func cmdReplenishConns(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("replenish-conns", flag.ContinueOnError)
	owner := ownerFlags(fs)
	var files fileList
	fs.Var(&files, "file", "connection package file (repeatable, '-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("need -file")
	}
	ref, err := owner()
	if err != nil {
		return nil, err
	}
	cps, err := readBlobs(files)
	if err != nil {
		return nil, err
	}
	return nil, cli.ReplenishConnectionPackages(ctx, &api.ReplenishConnectionPackagesRequest{
		Owner:              ref,
		ConnectionPackages: cps,
	})
}

func cmdConsumeConn(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("consume-conn", flag.ContinueOnError)
	owner := ownerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	ref, err := owner()
	if err != nil {
		return nil, err
	}
	return cli.ConsumeConnectionPackage(ctx, &api.ConsumeConnectionPackageRequest{Owner: ref})
}

// ------- queues -------

func cmdEnqueue(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	queue := fs.String("queue", "", "queue id (recipient client uuid)")
	file := fs.String("file", "", "payload file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	queueID, err := uuid.FromString(*queue)
	if err != nil {
		return nil, fmt.Errorf("need -queue: %w", err)
	}
	if *file == "" {
		return nil, errors.New("need -file")
	}
	payload, err := readAll(*file)
	if err != nil {
		return nil, err
	}
	return cli.EnqueueMessage(ctx, &api.EnqueueMessageRequest{QueueID: queueID, Payload: payload})
}

func cmdFetch(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	queue := fs.String("queue", "", "queue id (default: saved client)")
	seq := fs.Int64("seq", 0, "first sequence number to return; lower ones are trimmed")
	limit := fs.Int("limit", 0, "max messages (0 = server default)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	queueID, err := selfOr(*queue)
	if err != nil {
		return nil, err
	}
	return cli.FetchMessages(ctx, &api.FetchMessagesRequest{
		QueueID:        queueID,
		SequenceNumber: *seq,
		Limit:          *limit,
	})
}

// ------- handle mailbox -------

func cmdEnqueueHandle(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("enqueue-handle", flag.ContinueOnError)
	handle := fs.String("handle", "", "handle")
	hash := fs.String("hash", "", "handle hash (base64)")
	file := fs.String("file", "", "payload file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	ref, err := handleRef(*handle, *hash)
	if err != nil {
		return nil, err
	}
	if *file == "" {
		return nil, errors.New("need -file")
	}
	payload, err := readAll(*file)
	if err != nil {
		return nil, err
	}
	return cli.EnqueueHandleMessage(ctx, &api.EnqueueHandleMessageRequest{Handle: ref, Payload: payload})
}

func cmdFetchHandle(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("fetch-handle", flag.ContinueOnError)
	handle := fs.String("handle", "", "handle")
	hash := fs.String("hash", "", "handle hash (base64)")
	limit := fs.Int("limit", 0, "max messages (0 = server default)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	ref, err := handleRef(*handle, *hash)
	if err != nil {
		return nil, err
	}
	resp, err := cli.FetchHandleMessages(ctx, &api.FetchHandleMessagesRequest{Handle: ref, Limit: *limit})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func cmdAckHandle(ctx context.Context, cli *api.KeyQueueClient, args []string) (any, error) {
	fs := flag.NewFlagSet("ack-handle", flag.ContinueOnError)
	id := fs.String("id", "", "message id (uuid)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	msgID, err := uuid.FromString(*id)
	if err != nil {
		return nil, fmt.Errorf("need -id: %w", err)
	}
	return nil, cli.AckHandleMessage(ctx, &api.AckHandleMessageRequest{MessageID: msgID})
}
