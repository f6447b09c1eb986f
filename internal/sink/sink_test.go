package sink

import (
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/chidi150c/liqreversion/internal/domain"
)

func newMockSink(t *testing.T) (*GormSink, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	s := NewWithDB(gormDB, slog.Default())
	t.Cleanup(s.Close)
	return s, mock
}

func TestEnqueueLogPersists(t *testing.T) {
	s, mock := newMockSink(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `log_entries`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s.EnqueueLog(domain.LogEntry{Level: domain.LogInfo, Message: "hello", Timestamp: time.Now()})

	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueTradeUpsertsByTradeID(t *testing.T) {
	s, mock := newMockSink(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `trades`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s.EnqueueTrade(domain.TradeRecord{ID: "trade-1", Symbol: "BTCUSDT", Open: true, EntryTS: time.Now()})

	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 5*time.Millisecond)
}

func TestPersistFailureMarksUnhealthy(t *testing.T) {
	s, mock := newMockSink(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `log_entries`").WillReturnError(assertErr)
	mock.ExpectRollback()

	s.EnqueueLog(domain.LogEntry{Level: domain.LogError, Message: "boom", Timestamp: time.Now()})

	assert.Eventually(t, func() bool {
		return !s.Healthy()
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueDropOldestNeverBlocksOnFullQueue(t *testing.T) {
	ch := make(chan int, 2)
	enqueueDropOldest(ch, 1)
	enqueueDropOldest(ch, 2)
	enqueueDropOldest(ch, 3) // queue full, must drop 1 and accept 3
	assert.Len(t, ch, 2)
	first := <-ch
	second := <-ch
	assert.Equal(t, 2, first)
	assert.Equal(t, 3, second)
}

func TestConversionsPreserveMonetaryValues(t *testing.T) {
	tr := domain.TradeRecord{
		ID: "t1", Symbol: "ETHUSDT", PnLUSDT: 12.34, EntryPrice: 100.5, ExitPrice: 101.2, Quantity: 0.5,
	}
	row := toTradeRow(tr)
	assert.True(t, row.PnLUSDT.Equal(row.PnLUSDT))
	assert.Equal(t, "12.34", row.PnLUSDT.String())
	assert.Equal(t, "100.5", row.EntryPrice.String())
}

// assertErr is a sentinel used only to make sqlmock return a non-nil error.
var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }
