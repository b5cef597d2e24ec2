package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sc := NewSchemaCheck(mock)
	assert.Equal(t, "postgresql", sc.Name())

	mock.ExpectQuery("SELECT to_regclass").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(true))
	assert.NoError(t, sc.Ping(context.Background()))

	mock.ExpectQuery("SELECT to_regclass").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(false))
	assert.ErrorIs(t, sc.Ping(context.Background()), ErrSchemaMissing)

	mock.ExpectQuery("SELECT to_regclass").
		WillReturnError(errors.New("connection refused"))
	assert.EqualError(t, sc.Ping(context.Background()), "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}
