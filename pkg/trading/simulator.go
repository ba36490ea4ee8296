package trading

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tunogya/augur/pkg/model"
)

// Request asks a simulator to trade a ticker on a model's predictions
type Request struct {
	Ticker       string                   `json:"ticker"`
	ModelType    model.ModelType          `json:"model_type"`
	WindowSize   int                      `json:"window_size"`
	InitialMoney float64                  `json:"initial_money"`
	Iterations   int                      `json:"iterations"`
	Records      []model.PredictionRecord `json:"-"`
}

// Trade sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Transaction is one executed trade. Date is the session the trade was
// placed for; Price is the close it executed at, the one before Date.
type Transaction struct {
	Date   time.Time `json:"date"`
	Side   string    `json:"side"`
	Price  float64   `json:"price"`
	Shares int64     `json:"shares"`
	Cash   float64   `json:"cash"`
}

// Result summarizes a simulation
type Result struct {
	TotalGains       float64       `json:"total_gains"`
	InvestmentReturn float64       `json:"investment_return"` // percent
	TradesBuy        int           `json:"trades_buy"`
	TradesSell       int           `json:"trades_sell"`
	Transactions     []Transaction `json:"transactions"`
}

// Simulator runs a trading strategy over predictions
type Simulator interface {
	Simulate(ctx context.Context, req Request) (*Result, error)
}

// SignalSimulator goes all in when the predicted return is positive and
// sells everything when it turns negative. Each record's prediction covers
// the move from the preceding close into Date, so trades execute at that
// preceding close and a long position earns the predicted day. The first
// WindowSize records are used as warmup and never traded; Iterations is
// ignored.
type SignalSimulator struct{}

var _ Simulator = SignalSimulator{}

// Simulate replays the records in order and marks any open position at the
// last actual close
func (SignalSimulator) Simulate(ctx context.Context, req Request) (*Result, error) {
	if req.InitialMoney <= 0 {
		return nil, errors.New("initial money must be positive")
	}
	if req.WindowSize < 0 || req.WindowSize >= len(req.Records) {
		return nil, errors.New("not enough predictions to trade after the warmup window")
	}

	initial := decimal.NewFromFloat(req.InitialMoney)
	cash := initial
	var shares int64
	res := &Result{}

	for _, rec := range req.Records[req.WindowSize:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		price := decimal.NewFromFloat(rec.EntryPrice())
		if !price.IsPositive() {
			continue
		}

		switch {
		case rec.PredictedReturnPct > 0 && shares == 0:
			n := cash.Div(price).Floor().IntPart()
			if n == 0 {
				continue
			}
			shares = n
			cash = cash.Sub(price.Mul(decimal.NewFromInt(n)))
			res.TradesBuy++
			res.Transactions = append(res.Transactions, transaction(rec.Date, SideBuy, price, n, cash))
		case rec.PredictedReturnPct < 0 && shares > 0:
			cash = cash.Add(price.Mul(decimal.NewFromInt(shares)))
			res.TradesSell++
			res.Transactions = append(res.Transactions, transaction(rec.Date, SideSell, price, shares, cash))
			shares = 0
		}
	}

	final := cash
	if shares > 0 {
		last := decimal.NewFromFloat(req.Records[len(req.Records)-1].ActualPrice)
		final = final.Add(last.Mul(decimal.NewFromInt(shares)))
	}
	gains := final.Sub(initial)
	res.TotalGains = gains.Round(2).InexactFloat64()
	res.InvestmentReturn = gains.Div(initial).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
	return res, nil
}

func transaction(date time.Time, side string, price decimal.Decimal, shares int64, cash decimal.Decimal) Transaction {
	return Transaction{
		Date:   date,
		Side:   side,
		Price:  price.InexactFloat64(),
		Shares: shares,
		Cash:   cash.Round(2).InexactFloat64(),
	}
}
