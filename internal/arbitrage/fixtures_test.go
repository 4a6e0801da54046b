package arbitrage

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"frontrunner/internal/model"
)

// standardSet is a market with every pair below threshold.
func standardSet() model.DivergenceSet {
	return model.DivergenceSet{
		State: model.PriceSnapshot{
			Heartbeat:   3,
			BlockNumber: 1054363,
			FeedPrices: map[model.Pair]float64{
				model.BTCUSD: 45894.6, model.ETHUSD: 3154.3, model.LINKUSD: 24.51, model.UNIUSD: 28.39, model.AAVEUSD: 381.7,
			},
			OraclePrices: map[model.Pair]float64{
				model.BTCUSD: 45976.82, model.ETHUSD: 3158.7, model.LINKUSD: 24.53, model.UNIUSD: 28.4, model.AAVEUSD: 380.36,
			},
			SynthPrices: map[model.Pair]float64{
				model.BTCUSD: 45976.82, model.ETHUSD: 3158.7, model.LINKUSD: 24.53, model.UNIUSD: 28.4, model.AAVEUSD: 380.36,
			},
		},
		OracleToFeed: map[model.Pair]float64{
			model.BTCUSD:  -0.001791277886444842,
			model.ETHUSD:  -0.001417108654507615,
			model.LINKUSD: -0.0008122396478202898,
			model.UNIUSD:  -0.0005470742095599057,
			model.AAVEUSD: 0.0005201366487180863,
		},
	}
}

// withSet returns a copy of standardSet with a new heartbeat and block.
func withSet(hb int64, block uint64, mutate func(*model.DivergenceSet)) model.DivergenceSet {
	s := standardSet()
	s.State.Heartbeat = hb
	s.State.BlockNumber = block
	if mutate != nil {
		mutate(&s)
	}
	return s
}

func oneOpportunitySet() model.DivergenceSet {
	return withSet(5, 1054365, func(s *model.DivergenceSet) {
		s.State.FeedPrices[model.BTCUSD] = 47356.1
		s.OracleToFeed[model.BTCUSD] = 0.03
	})
}

func twoOpportunitiesSet() model.DivergenceSet {
	return withSet(8, 1054367, func(s *model.DivergenceSet) {
		s.State.FeedPrices[model.BTCUSD] = 47356.1
		s.State.FeedPrices[model.LINKUSD] = 25.26
		s.OracleToFeed[model.BTCUSD] = 0.03
		s.OracleToFeed[model.LINKUSD] = 0.03
	})
}

func closeSet() model.DivergenceSet {
	return withSet(7, 1054367, func(s *model.DivergenceSet) {
		s.State.FeedPrices[model.BTCUSD] = 47356.1
		s.State.OraclePrices[model.BTCUSD] = 47356.1
		s.OracleToFeed[model.BTCUSD] = 0
	})
}

type MockTradeRepository struct {
	mock.Mock
}

func (m *MockTradeRepository) Create(ctx context.Context, t *model.Trade) (string, error) {
	args := m.Called(ctx, t)
	if args.Error(1) == nil {
		t.ID = args.String(0)
	}
	return args.String(0), args.Error(1)
}

func (m *MockTradeRepository) Update(ctx context.Context, t *model.Trade) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTradeRepository) GetByID(ctx context.Context, id string) (model.Trade, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Trade), args.Error(1)
}

func (m *MockTradeRepository) GetOpenTrades(ctx context.Context) ([]model.Trade, error) {
	args := m.Called(ctx)
	trades, _ := args.Get(0).([]model.Trade)
	return trades, args.Error(1)
}

type MockRoamRepository struct {
	mock.Mock
}

func (m *MockRoamRepository) Create(ctx context.Context, t *model.RoamTrade) (string, error) {
	args := m.Called(ctx, t)
	if args.Error(1) == nil {
		t.ID = args.String(0)
	}
	return args.String(0), args.Error(1)
}

func (m *MockRoamRepository) Update(ctx context.Context, t *model.RoamTrade) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockRoamRepository) GetByID(ctx context.Context, id string) (model.RoamTrade, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.RoamTrade), args.Error(1)
}

func (m *MockRoamRepository) GetOpenTrades(ctx context.Context) ([]model.RoamTrade, error) {
	args := m.Called(ctx)
	trades, _ := args.Get(0).([]model.RoamTrade)
	return trades, args.Error(1)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, o Order) (Execution, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(Execution), args.Error(1)
}

// gatedExecutor blocks every Execute until release is closed.
type gatedExecutor struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedExecutor) Execute(ctx context.Context, o Order) (Execution, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return SimulatedExecutor{}.Execute(ctx, o)
}
