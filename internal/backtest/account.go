package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

// quantities below this are treated as zero
const quantityEpsilon = 1e-9

var orderNode = mustNode()

func mustNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// OrderRequest describes an order to place
type OrderRequest struct {
	Symbol     string
	Side       models.OrderSide
	Type       models.OrderType
	Quantity   float64
	Price      *float64
	StopLoss   *float64
	TakeProfit *float64
	ReduceOnly bool
}

// Account is the simulated ledger of one run: cash, open positions, orders,
// closed trades and the equity curve. Balance moves only on commission and
// realized PnL; equity is balance plus unrealized PnL. It is owned by a
// single run and is not safe for concurrent use.
type Account struct {
	initialBalance float64
	balance        float64
	now            time.Time

	positions map[string]*models.Position
	orders    map[string]*models.Order
	// all order IDs in creation order
	orderSeq []string
	// IDs of orders that may still be open, in creation order
	openSeq []string

	trades []models.Trade
	equity EquityCurve
}

// NewAccount creates an account holding initialBalance in cash
func NewAccount(initialBalance float64) *Account {
	a := &Account{initialBalance: initialBalance}
	a.Reset()
	return a
}

// Reset restores the account to its pristine initial state
func (a *Account) Reset() {
	a.balance = a.initialBalance
	a.now = time.Time{}
	a.positions = make(map[string]*models.Position)
	a.orders = make(map[string]*models.Order)
	a.orderSeq = nil
	a.openSeq = nil
	a.trades = nil
	a.equity = nil
}

// InitialBalance returns the starting cash
func (a *Account) InitialBalance() float64 { return a.initialBalance }

// Balance returns the cash balance
func (a *Account) Balance() float64 { return a.balance }

// Now returns the current replay time
func (a *Account) Now() time.Time { return a.now }

// SetTime advances the account clock
func (a *Account) SetTime(t time.Time) { a.now = t }

// Equity returns balance plus unrealized PnL of all open positions
func (a *Account) Equity() float64 {
	eq := a.balance
	for _, p := range a.positions {
		eq += p.UnrealizedPnL
	}
	return eq
}

// Position returns a copy of the open position in symbol
func (a *Account) Position(symbol string) (models.Position, bool) {
	p, ok := a.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions sorted by symbol
func (a *Account) Positions() []models.Position {
	out := make([]models.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenOrders returns copies of the open orders in symbol in creation order
func (a *Account) OpenOrders(symbol string) []models.Order {
	var out []models.Order
	for _, id := range a.openSeq {
		o := a.orders[id]
		if !o.IsTerminal() && o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out
}

// Orders returns copies of every order placed, in creation order
func (a *Account) Orders() []models.Order {
	out := make([]models.Order, 0, len(a.orderSeq))
	for _, id := range a.orderSeq {
		out = append(out, *a.orders[id])
	}
	return out
}

// Trades returns the closed trades in closing order
func (a *Account) Trades() []models.Trade {
	out := make([]models.Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// EquityCurve returns a copy of the recorded snapshots
func (a *Account) EquityCurve() EquityCurve {
	out := make(EquityCurve, len(a.equity))
	copy(out, a.equity)
	return out
}

// Snapshot records the current equity at the current time
func (a *Account) Snapshot() {
	a.equity.Append(a.now, a.Equity())
}

// Mark revalues the open position in symbol at price
func (a *Account) Mark(symbol string, price float64) {
	if p, ok := a.positions[symbol]; ok {
		p.Mark(price)
	}
}

// PlaceOrder records a new open order and returns it
func (a *Account) PlaceOrder(req OrderRequest) (*models.Order, error) {
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return nil, fmt.Errorf("%w: non-positive quantity %.8f", ErrInvalidSignal, req.Quantity)
	}
	if req.Type == "" {
		req.Type = models.OrderTypeMarket
	}
	if req.Type != models.OrderTypeMarket && (req.Price == nil || *req.Price <= 0) {
		return nil, fmt.Errorf("%w: %s order requires a positive price", ErrInvalidSignal, req.Type)
	}
	order := &models.Order{
		ID:         orderNode.Generate().String(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		ReduceOnly: req.ReduceOnly,
		Status:     models.OrderStatusOpen,
		CreatedAt:  a.now,
	}
	a.orders[order.ID] = order
	a.orderSeq = append(a.orderSeq, order.ID)
	a.openSeq = append(a.openSeq, order.ID)
	return order, nil
}

// CancelOrder cancels one open order
func (a *Account) CancelOrder(id string) error {
	o, ok := a.orders[id]
	if !ok || o.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	o.Status = models.OrderStatusCancelled
	return nil
}

// CancelOrders cancels every open order in symbol and returns the count
func (a *Account) CancelOrders(symbol string) int {
	n := 0
	for _, id := range a.openSeq {
		o := a.orders[id]
		if !o.IsTerminal() && o.Symbol == symbol {
			o.Status = models.OrderStatusCancelled
			n++
		}
	}
	return n
}

// expire ends an order with an unfilled remainder. It counts as filled when
// any quantity was executed.
func (a *Account) expire(o *models.Order) {
	if o.IsTerminal() {
		return
	}
	if o.FilledQuantity > 0 {
		o.Status = models.OrderStatusFilled
		return
	}
	o.Status = models.OrderStatusCancelled
}

// pendingOrders returns the open limit and stop orders in creation order and
// compacts the open index.
func (a *Account) pendingOrders() []*models.Order {
	kept := a.openSeq[:0]
	var out []*models.Order
	for _, id := range a.openSeq {
		o := a.orders[id]
		if o.IsTerminal() {
			continue
		}
		kept = append(kept, id)
		if o.Type != models.OrderTypeMarket {
			out = append(out, o)
		}
	}
	a.openSeq = kept
	return out
}

// ApplyFill books a fill against the order and nets it into the position.
// A fill on the same side grows the position at an averaged entry, a fill
// on the opposite side reduces or closes it and any remainder opens the
// reverse side. A reduce-only fill is capped at the open quantity and is
// cancelled unfilled when there is nothing on the opposite side to reduce.
func (a *Account) ApplyFill(o *models.Order, fill FillOutcome) {
	if fill.Quantity <= 0 {
		return
	}
	side := models.PositionSideLong
	if o.Side == models.OrderSideSell {
		side = models.PositionSideShort
	}
	pos, ok := a.positions[o.Symbol]

	if o.ReduceOnly {
		if !ok || pos.Side == side {
			a.expire(o)
			return
		}
		if fill.Quantity > pos.Quantity {
			scale := pos.Quantity / fill.Quantity
			fill.Quantity = pos.Quantity
			fill.Commission *= scale
			fill.Slippage *= scale
		}
	}

	prev := o.FilledQuantity
	o.FilledQuantity += fill.Quantity
	o.FillPrice = (o.FillPrice*prev + fill.Price*fill.Quantity) / o.FilledQuantity
	o.Commission += fill.Commission
	o.Slippage += fill.Slippage
	filledAt := fill.FilledAt
	o.FilledAt = &filledAt
	if o.RemainingQuantity() <= quantityEpsilon {
		o.Status = models.OrderStatusFilled
	}

	switch {
	case !ok:
		a.open(o, side, fill.Quantity, fill.Price, fill.Commission)
	case pos.Side == side:
		a.add(pos, o, fill.Quantity, fill.Price, fill.Commission)
	default:
		closeQty := math.Min(fill.Quantity, pos.Quantity)
		closeCommission := fill.Commission * closeQty / fill.Quantity
		a.reduce(pos, closeQty, fill.Price, closeCommission, models.ExitReasonManual)
		if rest := fill.Quantity - closeQty; rest > quantityEpsilon && !o.ReduceOnly {
			a.open(o, side, rest, fill.Price, fill.Commission-closeCommission)
		}
	}
}

// ClosePosition closes the whole position in symbol at price
func (a *Account) ClosePosition(symbol string, price, commission float64, reason models.ExitReason) (models.Trade, bool) {
	pos, ok := a.positions[symbol]
	if !ok {
		return models.Trade{}, false
	}
	n := len(a.trades)
	a.reduce(pos, pos.Quantity, price, commission, reason)
	if len(a.trades) == n {
		return models.Trade{}, false
	}
	return a.trades[n], true
}

func (a *Account) open(o *models.Order, side models.PositionSide, qty, price, commission float64) {
	pos := &models.Position{
		ID:          uuid.NewString(),
		Symbol:      o.Symbol,
		Side:        side,
		Quantity:    qty,
		EntryPrice:  price,
		RealizedPnL: -commission,
		Commission:  commission,
		EntryTime:   a.now,
		StopLoss:    o.StopLoss,
		TakeProfit:  o.TakeProfit,
	}
	pos.Mark(price)
	a.balance -= commission
	a.positions[o.Symbol] = pos
}

func (a *Account) add(pos *models.Position, o *models.Order, qty, price, commission float64) {
	total := pos.Quantity + qty
	pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*qty) / total
	pos.Quantity = total
	pos.RealizedPnL -= commission
	pos.Commission += commission
	if o.StopLoss != nil {
		pos.StopLoss = o.StopLoss
	}
	if o.TakeProfit != nil {
		pos.TakeProfit = o.TakeProfit
	}
	pos.Mark(price)
	a.balance -= commission
}

func (a *Account) reduce(pos *models.Position, qty, price, commission float64, reason models.ExitReason) {
	gross := pos.GrossPnL(qty, price)
	a.balance += gross - commission
	pos.RealizedPnL += gross - commission
	pos.Commission += commission
	pos.ClosedQuantity += qty
	pos.ExitNotional += qty * price
	pos.Quantity -= qty

	if pos.Quantity > quantityEpsilon {
		pos.Mark(price)
		return
	}

	exit := a.now
	pos.Quantity = 0
	pos.ExitTime = &exit
	pos.ExitReason = reason
	pos.UnrealizedPnL = 0
	a.trades = append(a.trades, models.Trade{
		ID:          pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryTime:   pos.EntryTime,
		EntryPrice:  pos.EntryPrice,
		ExitTime:    exit,
		ExitPrice:   pos.ExitNotional / pos.ClosedQuantity,
		Quantity:    pos.ClosedQuantity,
		RealizedPnL: pos.RealizedPnL,
		Commission:  pos.Commission,
		HoldTime:    exit.Sub(pos.EntryTime),
		ExitReason:  reason,
	})
	delete(a.positions, pos.Symbol)
	a.expireReduceOnly(pos.Symbol)
}

// expireReduceOnly ends the open reduce-only orders of a symbol once its
// position is gone.
func (a *Account) expireReduceOnly(symbol string) {
	for _, id := range a.openSeq {
		if o := a.orders[id]; o.ReduceOnly && o.Symbol == symbol {
			a.expire(o)
		}
	}
}

// accountView hides the mutating methods of Account from strategies
type accountView struct {
	a *Account
}

var _ strategy.AccountView = accountView{}

func (v accountView) Balance() float64        { return v.a.Balance() }
func (v accountView) Equity() float64         { return v.a.Equity() }
func (v accountView) InitialBalance() float64 { return v.a.InitialBalance() }
func (v accountView) Position(symbol string) (models.Position, bool) {
	return v.a.Position(symbol)
}
func (v accountView) OpenOrders(symbol string) []models.Order {
	return v.a.OpenOrders(symbol)
}
