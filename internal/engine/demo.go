package engine

import (
	"sync"

	"github.com/lucabot/exchange/venues/types"
)

// demoStartingEquity 模拟盘起始净值（USDT）
const demoStartingEquity = 10000.0

// demoFallbackPrice 行情不可达时的固定参考价。
// 模拟盘必须在零外部依赖下可用，成交价退化链为：
// 实时行情 → 该交易对最近一次成交参考价 → 固定参考价。
const demoFallbackPrice = 1000.0

// demoAccount 模拟盘内存账户。绕过所有驱动，使同一套门面接口在
// 零外部依赖下可用。成交永远按 filled 上报，净值不会被驱动为负。
type demoAccount struct {
	mu        sync.Mutex
	equity    float64
	available float64
	positions map[string]*types.Position // symbol|side → 持仓
	conds     map[string]string          // symbol|品类 → 条件单 ID
	lastPrice map[string]float64         // symbol → 最近一次成交参考价
}

func newDemoAccount() *demoAccount {
	return &demoAccount{
		equity:    demoStartingEquity,
		available: demoStartingEquity,
		positions: make(map[string]*types.Position),
		conds:     make(map[string]string),
		lastPrice: make(map[string]float64),
	}
}

// refPrice 解析本次成交使用的参考价并记录为该交易对的最新参考价。
// 调用方必须已持有锁。
func (d *demoAccount) refPrice(symbol string, live float64) float64 {
	if live > 0 {
		d.lastPrice[symbol] = live
		return live
	}
	if p := d.lastPrice[symbol]; p > 0 {
		return p
	}
	d.lastPrice[symbol] = demoFallbackPrice
	return demoFallbackPrice
}

func demoKey(symbol string, side types.PositionSide) string {
	return symbol + "|" + string(side)
}

// balance 当前账户快照
func (d *demoAccount) balance() *types.Balance {
	d.mu.Lock()
	defer d.mu.Unlock()
	marginUsed := d.equity - d.available
	bal := &types.Balance{
		TotalEquity:      d.equity,
		AvailableBalance: d.available,
		MarginUsed:       marginUsed,
		Timestamp:        types.Now(),
	}
	if d.equity > 0 {
		bal.MarginUsedPct = marginUsed / d.equity * 100
	}
	return bal
}

// list 当前持仓列表
func (d *demoAccount) list() []types.Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Position, 0, len(d.positions))
	for _, p := range d.positions {
		out = append(out, *p)
	}
	return out
}

// open 模拟开仓。保证金 = 数量 × 价格 / 杠杆，从可用余额中冻结。
func (d *demoAccount) open(symbol string, side types.PositionSide, quantity float64, leverage int, price float64) (*types.TradeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	price = d.refPrice(symbol, price)
	if leverage <= 0 {
		leverage = 1
	}
	margin := quantity * price / float64(leverage)
	if margin > d.available {
		return nil, types.NewValidationError("quantity", "模拟盘可用余额不足")
	}
	d.available -= margin

	key := demoKey(symbol, side)
	if p, ok := d.positions[key]; ok {
		// 加仓：开仓价按数量加权
		total := p.Quantity + quantity
		p.EntryPrice = (p.EntryPrice*p.Quantity + price*quantity) / total
		p.Quantity = total
		p.MarginUsed += margin
		p.MarkPrice = price
		p.Leverage = leverage
		p.UpdateTime = types.Now()
	} else {
		d.positions[key] = &types.Position{
			Symbol:     symbol,
			Side:       side,
			Quantity:   quantity,
			EntryPrice: price,
			MarkPrice:  price,
			Leverage:   leverage,
			MarginUsed: margin,
			UpdateTime: types.Now(),
		}
	}

	return &types.TradeResult{
		Success:  true,
		OrderID:  newClientOrderID(),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Leverage: leverage,
		AvgPrice: price,
		Status:   types.OrderStatusFilled,
	}, nil
}

// close 模拟平仓。释放对应比例的保证金并结算已实现盈亏；
// 净值与可用余额都不会被驱动为负。
func (d *demoAccount) close(symbol string, side types.PositionSide, quantity, price float64) (*types.TradeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	price = d.refPrice(symbol, price)
	key := demoKey(symbol, side)
	p, ok := d.positions[key]
	if !ok {
		return nil, types.ErrNoPosition(VenueDemo, symbol, side)
	}
	// 超量平仓按只减仓语义收敛到当前持仓量
	if quantity <= 0 || quantity > p.Quantity {
		quantity = p.Quantity
	}

	fraction := quantity / p.Quantity
	released := p.MarginUsed * fraction

	var pnl float64
	if price > 0 && p.EntryPrice > 0 {
		if side == types.PositionLong {
			pnl = (price - p.EntryPrice) * quantity
		} else {
			pnl = (p.EntryPrice - price) * quantity
		}
	}

	d.equity += pnl
	if d.equity < 0 {
		d.equity = 0
	}
	d.available += released + pnl
	if d.available < 0 {
		d.available = 0
	}
	if d.available > d.equity {
		d.available = d.equity
	}

	if quantity >= p.Quantity {
		delete(d.positions, key)
	} else {
		p.Quantity -= quantity
		p.MarginUsed -= released
		p.UpdateTime = types.Now()
	}

	return &types.TradeResult{
		Success:  true,
		OrderID:  newClientOrderID(),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		AvgPrice: price,
		Status:   types.OrderStatusFilled,
	}, nil
}

// setConditional 模拟条件单：同品类只保留最后一张
func (d *demoAccount) setConditional(symbol string, orderType types.OrderType, triggerPrice float64) (*types.ConditionalResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := newClientOrderID()
	d.conds[symbol+"|"+string(orderType)] = id
	return &types.ConditionalResult{
		Success: true,
		OrderID: id,
		Type:    orderType,
		Price:   triggerPrice,
	}, nil
}

// closeAll 模拟全部平仓
func (d *demoAccount) closeAll() []types.CloseResult {
	positions := d.list()
	results := make([]types.CloseResult, 0, len(positions))
	for _, p := range positions {
		res, err := d.close(p.Symbol, p.Side, p.Quantity, p.MarkPrice)
		if err != nil {
			results = append(results, types.CloseResult{
				Success: false, Symbol: p.Symbol, Side: p.Side, Error: err.Error(),
			})
			continue
		}
		results = append(results, types.CloseResult{
			Success: true, Symbol: p.Symbol, Side: p.Side,
			Quantity: res.Quantity, OrderID: res.OrderID,
		})
	}
	return results
}
