package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cian_scrooper/models"
)

func TestPostgresStore_Migrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listing_phones").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, NewPostgresStoreWithPool(mock).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pass := uuid.New()
	l := models.Listing{ID: "1", URL: "https://tyumen.cian.ru/sale/flat/1/", AuthorType: "developer", Location: "Тюмень"}
	rec := models.PhoneRecord{Phone: "+7 (900) 123-45-67", NotFormattedPhone: "79001234567", Source: models.SourceAPI, Method: "api"}

	mock.ExpectExec("INSERT INTO listing_phones").
		WithArgs("1", l.URL, "developer", "Тюмень", rec.Phone, "79001234567", "api", "api", "", pass).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPostgresStoreWithPool(mock).UpsertPhone(context.Background(), l, rec, pass))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPhoneError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO listing_phones").
		WillReturnError(fmt.Errorf("connection reset"))

	err = NewPostgresStoreWithPool(mock).UpsertPhone(context.Background(), models.Listing{ID: "1"}, models.PhoneRecord{}, uuid.New())
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	raw, method := "79001234567", "api"
	mock.ExpectQuery("SELECT phone, raw_digits, source, method, reason").
		WithArgs("1").
		WillReturnRows(pgxmock.NewRows([]string{"phone", "raw_digits", "source", "method", "reason"}).
			AddRow("+7 (900) 123-45-67", &raw, "api", &method, (*string)(nil)))
	mock.ExpectQuery("SELECT phone, raw_digits, source, method, reason").
		WithArgs("2").
		WillReturnRows(pgxmock.NewRows([]string{"phone", "raw_digits", "source", "method", "reason"}))

	store := NewPostgresStoreWithPool(mock)

	rec, err := store.GetPhone(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.SourceAPI, rec.Source)
	assert.Equal(t, "79001234567", rec.NotFormattedPhone)

	rec, err = store.GetPhone(context.Background(), "2")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.NoError(t, mock.ExpectationsWereMet())
}
