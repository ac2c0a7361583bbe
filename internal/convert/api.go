// Package convert maps domain types to wire messages and back.
package convert

import (
	"fmt"

	"github.com/and161185/keyqueue/internal/api"
	"github.com/and161185/keyqueue/internal/model"
)

// --- Credential ---

// FromAPICredential converts a wire credential to the domain struct.
func FromAPICredential(c api.Credential) model.Credential {
	return model.Credential{
		Payload:           c.Payload,
		Signature:         c.Signature,
		NotBefore:         c.NotBefore,
		NotAfter:          c.NotAfter,
		SignerFingerprint: c.SignerFingerprint,
	}
}

// ToAPICredential converts a domain credential to the wire struct.
func ToAPICredential(c model.Credential) api.Credential {
	return api.Credential{
		Payload:           c.Payload,
		Signature:         c.Signature,
		NotBefore:         c.NotBefore,
		NotAfter:          c.NotAfter,
		SignerFingerprint: c.SignerFingerprint,
	}
}

// ToAPIClient converts a client record; nil maps to nil.
func ToAPIClient(c *model.ClientRecord) *api.GetClientResponse {
	if c == nil {
		return nil
	}
	return &api.GetClientResponse{
		ClientID:           c.ClientID,
		UserID:             c.UserID,
		QueueEncryptionKey: c.QueueEncryptionKey,
		Ratchet:            c.Ratchet,
		Credential:         ToAPICredential(c.Credential),
		ActivityTime:       c.ActivityTime,
		RemainingTokens:    c.RemainingTokens,
	}
}

// --- Packages ---

// FromAPIBlobs converts raw byte slices into ciphertexts. Empty entries
// are kept so validation can report their index.
func FromAPIBlobs(in [][]byte) []model.Ciphertext {
	out := make([]model.Ciphertext, len(in))
	for i := range in {
		out[i] = model.Ciphertext(in[i])
	}
	return out
}

// FromAPILastResort keeps "absent" distinct from "present but empty".
func FromAPILastResort(b []byte) model.Ciphertext {
	if b == nil {
		return nil
	}
	return model.Ciphertext(b)
}

// ToAPIOutcome returns the wire name of an outcome.
func ToAPIOutcome(o model.ConsumeOutcome) (string, error) {
	switch o {
	case model.Consumed:
		return api.OutcomeConsumed, nil
	case model.Borrowed:
		return api.OutcomeBorrowed, nil
	case model.Unavailable:
		return api.OutcomeUnavailable, nil
	default:
		return "", fmt.Errorf("unknown outcome %d", int(o))
	}
}

// ToAPIKeyPackageResults converts per-client results; Unavailable entries
// carry no package.
func ToAPIKeyPackageResults(in []model.KeyPackageResult) ([]api.KeyPackageResult, error) {
	out := make([]api.KeyPackageResult, 0, len(in))
	for i, r := range in {
		oc, err := ToAPIOutcome(r.Outcome)
		if err != nil {
			return nil, fmt.Errorf("result[%d]: %w", i, err)
		}
		res := api.KeyPackageResult{ClientID: r.ClientID, Outcome: oc}
		if r.Outcome != model.Unavailable {
			res.KeyPackage = r.Package.Payload
		}
		out = append(out, res)
	}
	return out, nil
}

// ToAPIConnectionPackage converts a connection package result.
func ToAPIConnectionPackage(r model.ConnectionPackageResult) (*api.ConsumeConnectionPackageResponse, error) {
	oc, err := ToAPIOutcome(r.Outcome)
	if err != nil {
		return nil, err
	}
	return &api.ConsumeConnectionPackageResponse{Outcome: oc, ConnectionPackage: r.Package.Payload}, nil
}

// --- Queues ---

// ToAPIQueueBatch converts a fetched batch.
func ToAPIQueueBatch(b model.QueueBatch) *api.FetchMessagesResponse {
	msgs := make([]api.QueueMessage, 0, len(b.Messages))
	for _, m := range b.Messages {
		msgs = append(msgs, api.QueueMessage{SequenceNumber: m.SequenceNumber, Payload: m.Payload})
	}
	return &api.FetchMessagesResponse{Messages: msgs, Remaining: b.Remaining}
}

// ToAPIHandleMessages converts claimed handle messages.
func ToAPIHandleMessages(in []model.HandleMessage) []api.HandleMessage {
	out := make([]api.HandleMessage, 0, len(in))
	for _, m := range in {
		out = append(out, api.HandleMessage{MessageID: m.MessageID, Payload: m.Payload, CreatedAt: m.CreatedAt})
	}
	return out
}
