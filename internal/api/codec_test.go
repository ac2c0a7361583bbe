package api

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	require.Equal(t, CodecName, c.Name())
}

func TestCodec_BytesAndIDs(t *testing.T) {
	c := jsonCodec{}
	id := uuid.Must(uuid.NewV4())
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	in := &FetchHandleMessagesResponse{Messages: []HandleMessage{
		{MessageID: id, Payload: []byte{0, 1, 2, 0xff}, CreatedAt: at},
	}}

	b, err := c.Marshal(in)
	require.NoError(t, err)
	require.Contains(t, string(b), id.String())

	var out FetchHandleMessagesResponse
	require.NoError(t, c.Unmarshal(b, &out))
	require.Len(t, out.Messages, 1)
	require.Equal(t, id, out.Messages[0].MessageID)
	require.Equal(t, []byte{0, 1, 2, 0xff}, out.Messages[0].Payload)
	require.True(t, at.Equal(out.Messages[0].CreatedAt))
}

func TestCodec_EmptyBodyAndGarbage(t *testing.T) {
	c := jsonCodec{}
	var e Empty
	require.NoError(t, c.Unmarshal(nil, &e))

	var req EnqueueMessageRequest
	require.Error(t, c.Unmarshal([]byte("{not json"), &req))
}

func TestFullMethod(t *testing.T) {
	require.Equal(t, "/keyqueue.v1.KeyQueue/FetchMessages", FullMethod(MethodFetchMessages))
	require.Len(t, KeyQueue_ServiceDesc.Methods, 16)
}
