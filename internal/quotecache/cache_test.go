package quotecache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/search"
)

const testKey = "JFK:CAI:2026-03-10:2026-03-17:2:economy"

func testResult() *search.Result {
	return &search.Result{
		QueryKey: testKey,
		Flights: []offer.Offer{{
			ProviderID:      "skyline",
			ProviderOfferID: "F1",
			Kind:            offer.KindFlight,
			Price:           offer.Money{Amount: 90000, Currency: "USD"},
			ValidUntil:      time.Now().Add(time.Hour).UTC().Truncate(time.Second),
			Flight:          &offer.FlightDetails{Origin: "JFK", Destination: "CAI"},
		}},
		Hotels:     []offer.Offer{},
		Providers:  []string{"skyline"},
		Succeeded:  []string{"skyline"},
		SearchedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestGetOrCompute_ConcurrentMissesComputeOnce(t *testing.T) {
	c := New(time.Minute, zap.NewNop())
	var calls int32
	compute := func(ctx context.Context) (*search.Result, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return testResult(), nil
	}

	const callers = 25
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]*search.Result, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], _, errs[i] = c.GetOrCompute(context.Background(), testKey, compute)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Flights, results[i].Flights)
	}

	// Results are independent copies.
	results[0].Flights[0].Price.Amount = 1
	assert.Equal(t, int64(90000), results[1].Flights[0].Price.Amount)
}

func TestGetOrCompute_HitSkipsCompute(t *testing.T) {
	c := New(time.Minute, zap.NewNop())
	var calls int32
	compute := func(ctx context.Context) (*search.Result, error) {
		atomic.AddInt32(&calls, 1)
		return testResult(), nil
	}

	_, hit, err := c.GetOrCompute(context.Background(), testKey, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = c.GetOrCompute(context.Background(), testKey, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), calls)
}

func TestGetOrCompute_FailuresAreNotCached(t *testing.T) {
	c := New(time.Minute, zap.NewNop())
	boom := errors.New("all providers down")

	_, _, err := c.GetOrCompute(context.Background(), testKey, func(ctx context.Context) (*search.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	res, hit, err := c.GetOrCompute(context.Background(), testKey, func(ctx context.Context) (*search.Result, error) {
		return testResult(), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, res)
}

func TestGetOrCompute_EntriesExpire(t *testing.T) {
	c := New(time.Minute, zap.NewNop())
	base := time.Now()
	c.local.now = func() time.Time { return base }

	_, _, err := c.GetOrCompute(context.Background(), testKey, func(ctx context.Context) (*search.Result, error) {
		return testResult(), nil
	})
	require.NoError(t, err)
	_, ok := c.Lookup(context.Background(), testKey)
	assert.True(t, ok)

	c.local.now = func() time.Time { return base.Add(61 * time.Second) }
	_, ok = c.Lookup(context.Background(), testKey)
	assert.False(t, ok)
	assert.Equal(t, 0, c.local.Len())
}

func TestGetOrCompute_CancelledCallerDoesNotCancelComputation(t *testing.T) {
	c := New(time.Minute, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(ctx, testKey, func(cctx context.Context) (*search.Result, error) {
			<-release
			if cctx.Err() != nil {
				return nil, cctx.Err()
			}
			return testResult(), nil
		})
		done <- err
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	close(release)

	require.Eventually(t, func() bool {
		_, ok := c.Lookup(context.Background(), testKey)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestRedisTier_SharesResultsAcrossInstances(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "quotes:")
	res := testResult()
	payload, err := json.Marshal(res)
	require.NoError(t, err)

	mock.ExpectGet("quotes:" + testKey).RedisNil()
	mock.ExpectSet("quotes:"+testKey, string(payload), time.Minute).SetVal("OK")

	first := New(time.Minute, zap.NewNop(), WithSharedStore(store))
	_, hit, err := first.GetOrCompute(context.Background(), testKey, func(ctx context.Context) (*search.Result, error) {
		return res, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectGet("quotes:" + testKey).SetVal(string(payload))

	second := New(time.Minute, zap.NewNop(), WithSharedStore(store))
	got, hit, err := second.GetOrCompute(context.Background(), testKey, func(ctx context.Context) (*search.Result, error) {
		t.Fatal("replica should reuse the shared result")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "F1", got.Flights[0].ProviderOfferID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisTier_ReadErrorsDegradeToMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(time.Minute, zap.NewNop(), WithSharedStore(NewRedisStore(db, "quotes:")))

	mock.ExpectGet("quotes:" + testKey).SetErr(errors.New("connection refused"))

	_, ok := c.Lookup(context.Background(), testKey)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
