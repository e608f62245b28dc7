package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"ombudsman_deadline_notifier/internal/domain/casefile"
	"ombudsman_deadline_notifier/internal/domain/deadline"
	"ombudsman_deadline_notifier/internal/domain/directory"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestCaseRepository_ListCandidates(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT protocol, manifestation_type, department.*FROM cases`).
		WillReturnRows(sqlmock.NewRows([]string{
			"protocol", "manifestation_type", "department", "created_at", "data_criacao",
			"completed_at", "data_conclusao", "payload",
		}).
			AddRow("OUV-1", "Reclamação", "Secretaria de Obras", created, nil, nil, nil, nil).
			AddRow(nil, nil, nil, nil, "02/01/2025", nil, "03/01/2025", []byte(`{"protocolo":"OUV-2"}`)))

	cases, err := NewPostgresCaseRepository(db, time.UTC).ListCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, "OUV-1", cases[0].Protocol)
	assert.True(t, cases[0].CreatedAt.Valid)
	assert.False(t, cases[0].LegacyCreated.Valid)

	assert.Equal(t, "OUV-2", casefile.ProtocolOf(cases[1]))
	assert.Equal(t, "02/01/2025", cases[1].LegacyCreated.String)
	assert.Equal(t, "03/01/2025", cases[1].LegacyCompleted.String)
}

func TestCaseRepository_DatesNativeTimestampsInConfiguredZone(t *testing.T) {
	db, mock := newMock(t)
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	// 2025-01-01 22:00 in São Paulo, as a UTC session returns it.
	created := time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT protocol, manifestation_type, department.*FROM cases`).
		WillReturnRows(sqlmock.NewRows([]string{
			"protocol", "manifestation_type", "department", "created_at", "data_criacao",
			"completed_at", "data_conclusao", "payload",
		}).AddRow("OUV-9", "Reclamação", "Secretaria de Obras", created, nil, nil, nil, nil))

	cases, err := NewPostgresCaseRepository(db, saoPaulo).ListCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 1)

	assert.Equal(t, saoPaulo, cases[0].CreatedAt.Time.Location())
	assert.True(t, created.Equal(cases[0].CreatedAt.Time))

	ev := deadline.Evaluate(cases[0], deadline.MustParseDate("2025-01-16"))
	assert.Equal(t, "2025-01-01", ev.CreatedOn.String())
	assert.Equal(t, "2025-01-31", ev.DueDate.String())
	assert.Equal(t, deadline.BucketDueIn15, ev.Bucket)
}

func TestDirectoryRepository_FindByName(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresDirectoryRepository(db)

	mock.ExpectQuery(`FROM department_directory`).
		WithArgs("Secretaria de Obras").
		WillReturnRows(sqlmock.NewRows([]string{"name", "email", "email_alternativo"}).
			AddRow("SECRETARIA DE OBRAS", "obras@x.gov", ""))
	e, err := repo.FindByName(context.Background(), "Secretaria de Obras")
	require.NoError(t, err)
	assert.Equal(t, []string{"obras@x.gov"}, e.Addresses())

	mock.ExpectQuery(`FROM department_directory`).
		WithArgs("Nada").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByName(context.Background(), "Nada")
	assert.ErrorIs(t, err, directory.ErrEntryNotFound)
}

func TestDirectoryRepository_List(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM department_directory`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "email", "email_alternativo"}).
			AddRow("A", "a@x.gov", "").
			AddRow("B", "", "b@x.gov"))

	entries, err := NewPostgresDirectoryRepository(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b@x.gov", entries[1].Alternate)
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	db, mock := newMock(t)
	store := NewPostgresCredentialStore(db)
	expiry := time.Date(2025, 1, 21, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM delivery_credentials`).WillReturnError(sql.ErrNoRows)
	tok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tok)

	mock.ExpectExec(`INSERT INTO delivery_credentials`).
		WithArgs("access", "refresh", "Bearer", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Save(context.Background(), &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry}))

	mock.ExpectQuery(`FROM delivery_credentials`).
		WillReturnRows(sqlmock.NewRows([]string{"access_token", "refresh_token", "token_type", "expiry"}).
			AddRow("access", "refresh", "Bearer", expiry))
	tok, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.True(t, expiry.Equal(tok.Expiry))

	mock.ExpectExec(`DELETE FROM delivery_credentials`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Clear(context.Background()))

	mock.ExpectExec(`DELETE FROM delivery_credentials`).WillReturnError(errors.New("boom"))
	assert.Error(t, store.Clear(context.Background()))
}
