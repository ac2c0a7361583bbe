package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func sampleClient() *model.ClientRecord {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.ClientRecord{
		ClientID:           uuid.Must(uuid.NewV4()),
		UserID:             uuid.Must(uuid.NewV4()),
		QueueEncryptionKey: []byte("qek"),
		Ratchet:            []byte("r0"),
		Credential: model.Credential{
			Payload:           []byte("cred"),
			Signature:         []byte("sig"),
			NotBefore:         now.Add(-time.Hour),
			NotAfter:          now.Add(time.Hour),
			SignerFingerprint: []byte("fp"),
		},
		ActivityTime:    now,
		RemainingTokens: 1000,
	}
}

func TestClientRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	ctx := context.Background()
	c := sampleClient()
	args := []any{
		c.ClientID, c.UserID, c.QueueEncryptionKey, c.Ratchet,
		c.Credential.Payload, c.Credential.Signature, c.Credential.NotBefore, c.Credential.NotAfter, c.Credential.SignerFingerprint,
		c.ActivityTime, c.RemainingTokens,
	}

	mock.ExpectExec(`INSERT INTO client_records`).WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, c))

	mock.ExpectExec(`INSERT INTO client_records`).WithArgs(args...).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	require.ErrorIs(t, r.Create(ctx, c), errs.ErrNotFound)

	mock.ExpectExec(`INSERT INTO client_records`).WithArgs(args...).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, c), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	ctx := context.Background()
	c := sampleClient()
	cols := []string{
		"client_id", "user_id", "queue_encryption_key", "ratchet",
		"credential", "credential_signature", "credential_not_before", "credential_not_after", "signer_fingerprint",
		"activity_time", "remaining_tokens",
	}

	mock.ExpectQuery(`FROM client_records WHERE client_id=\$1`).
		WithArgs(c.ClientID).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			c.ClientID, c.UserID, c.QueueEncryptionKey, c.Ratchet,
			c.Credential.Payload, c.Credential.Signature, c.Credential.NotBefore, c.Credential.NotAfter, c.Credential.SignerFingerprint,
			c.ActivityTime, c.RemainingTokens,
		))
	got, err := r.Get(ctx, c.ClientID)
	require.NoError(t, err)
	require.Equal(t, c, got)

	mock.ExpectQuery(`FROM client_records WHERE client_id=\$1`).
		WithArgs(c.ClientID).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, c.ClientID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestClientRepo_UpdateCredential(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	ctx := context.Background()
	c := sampleClient()
	cred := c.Credential
	at := c.ActivityTime.Add(time.Minute)

	mock.ExpectExec(`UPDATE client_records SET credential=\$2`).
		WithArgs(c.ClientID, cred.Payload, cred.Signature, cred.NotBefore, cred.NotAfter, cred.SignerFingerprint, at, int32(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateCredential(ctx, c.ClientID, cred, at, 5))

	mock.ExpectExec(`UPDATE client_records SET credential=\$2`).
		WithArgs(c.ClientID, cred.Payload, cred.Signature, cred.NotBefore, cred.NotAfter, cred.SignerFingerprint, at, int32(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateCredential(ctx, c.ClientID, cred, at, 5), errs.ErrNotFound)
}

func TestClientRepo_UpdateQueueState(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE client_records SET queue_encryption_key=\$2, ratchet=\$3 WHERE client_id=\$1`).
		WithArgs(id, []byte("k2"), []byte("r1")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateQueueState(ctx, id, []byte("k2"), []byte("r1")))

	mock.ExpectExec(`UPDATE client_records SET queue_encryption_key`).
		WithArgs(id, []byte("k2"), []byte("r1")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateQueueState(ctx, id, []byte("k2"), []byte("r1")), errs.ErrNotFound)
}

func TestClientRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM connection_packages WHERE owner_id=\$1`).WithArgs(id.Bytes()).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM queue_messages WHERE queue_id=\$1`).WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM client_records WHERE client_id=\$1`).WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	require.NoError(t, r.Delete(ctx, id))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM connection_packages`).WithArgs(id.Bytes()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM queue_messages`).WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM client_records`).WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()
	require.ErrorIs(t, r.Delete(ctx, id), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
