package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"equitybot/src/broker"
	"equitybot/src/market"
	"equitybot/src/timeframes"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// ErrTradingDisabled 未开启交易权限
var ErrTradingDisabled = errors.New("trading is disabled in binance config")

// Client 币安券商实现
type Client struct {
	client *binance.Client
	config Config

	mu        sync.Mutex
	listenKey string
}

// NewClient 创建币安客户端
func NewClient(config Config) *Client {
	c := binance.NewClient(config.APIKey, config.SecretKey)
	if config.BaseURL != "" {
		c.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		c.HTTPClient = &http.Client{Timeout: time.Duration(config.Timeout) * time.Second}
	}
	if config.KlineLimit <= 0 {
		config.KlineLimit = 1000
	}

	return &Client{client: c, config: config}
}

// GetName 券商名称
func (c *Client) GetName() string {
	return "binance"
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Quote 买一卖一取 book ticker，最新价取 ticker price
func (c *Client) Quote(ctx context.Context, symbol string) (*broker.Quote, error) {
	books, err := c.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get book ticker from Binance: %w", err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("no book ticker for %s", symbol)
	}

	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get last price from Binance: %w", err)
	}

	q := &broker.Quote{
		Symbol: symbol,
		Bid:    parseDecimal(books[0].BidPrice),
		Ask:    parseDecimal(books[0].AskPrice),
	}
	if len(prices) > 0 {
		q.Last = parseDecimal(prices[0].Price)
	}
	return q, nil
}

// SubmitLimitOrder 提交GTC限价单
func (c *Client) SubmitLimitOrder(ctx context.Context, symbol string, side broker.OrderSide, price, qty decimal.Decimal) (string, error) {
	if !c.config.EnableTrading {
		return "", ErrTradingDisabled
	}

	binanceSide := binance.SideTypeBuy
	if side == broker.OrderSideSell {
		binanceSide = binance.SideTypeSell
	}

	res, err := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(qty.String()).
		Price(price.String()).
		NewClientOrderID(clientOrderID()).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to place %s order on Binance: %w", side, err)
	}
	if res.OrderID == 0 {
		return "", nil
	}
	return strconv.FormatInt(res.OrderID, 10), nil
}

// clientOrderID 客户端订单号，币安限制 36 个字符
func clientOrderID() string {
	return "eb-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GetOrder 查询订单
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*broker.OrderReport, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid binance order id %q: %w", orderID, err)
	}

	o, err := c.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order from Binance: %w", err)
	}
	return convertOrder(o), nil
}

func convertOrder(o *binance.Order) *broker.OrderReport {
	filled := parseDecimal(o.ExecutedQuantity)
	avg := parseDecimal(o.Price)
	if quote := parseDecimal(o.CummulativeQuoteQuantity); filled.IsPositive() && quote.IsPositive() {
		avg = quote.Div(filled)
	}

	side := broker.OrderSideBuy
	if o.Side == binance.SideTypeSell {
		side = broker.OrderSideSell
	}

	return &broker.OrderReport{
		OrderID:   strconv.FormatInt(o.OrderID, 10),
		Symbol:    o.Symbol,
		Side:      side,
		Status:    convertStatus(o.Status),
		Quantity:  parseDecimal(o.OrigQuantity),
		FilledQty: filled,
		AvgPrice:  avg,
		UpdatedAt: time.UnixMilli(o.UpdateTime),
	}
}

// convertStatus 映射币安订单状态，未知状态原样透传由上层判定
func convertStatus(s binance.OrderStatusType) broker.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePendingCancel:
		return broker.StatusWorking
	case binance.OrderStatusTypePartiallyFilled:
		return broker.StatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return broker.StatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return broker.StatusCancelled
	case binance.OrderStatusTypeRejected:
		return broker.StatusFailed
	default:
		return broker.OrderStatus(s)
	}
}

// CancelOrder 撤单
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid binance order id %q: %w", orderID, err)
	}

	_, err = c.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order on Binance: %w", err)
	}
	return true, nil
}

// GetPositions 非计价资产余额视为持仓
func (c *Client) GetPositions(ctx context.Context) ([]*broker.Holding, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account from Binance: %w", err)
	}

	var holdings []*broker.Holding
	for _, b := range account.Balances {
		if b.Asset == c.config.QuoteAsset {
			continue
		}
		qty := parseDecimal(b.Free).Add(parseDecimal(b.Locked))
		if !qty.IsPositive() {
			continue
		}
		holdings = append(holdings, &broker.Holding{
			Symbol:   b.Asset + c.config.QuoteAsset,
			Quantity: qty,
		})
	}
	return holdings, nil
}

// GetAccount 计价资产余额作为现金，当日盈亏不提供
func (c *Client) GetAccount(ctx context.Context) (*broker.Account, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account from Binance: %w", err)
	}

	res := &broker.Account{}
	for _, b := range account.Balances {
		if b.Asset == c.config.QuoteAsset {
			res.Cash = parseDecimal(b.Free)
			break
		}
	}
	return res, nil
}

// GetTopGainers 24h涨幅榜，币安全天交易，时段参数不影响结果
func (c *Client) GetTopGainers(ctx context.Context, class timeframes.HourClass) ([]*broker.Candidate, error) {
	return c.topMovers(ctx, true)
}

// GetTopLosers 24h跌幅榜
func (c *Client) GetTopLosers(ctx context.Context, class timeframes.HourClass) ([]*broker.Candidate, error) {
	return c.topMovers(ctx, false)
}

func (c *Client) topMovers(ctx context.Context, gainers bool) ([]*broker.Candidate, error) {
	stats, err := c.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get 24h stats from Binance: %w", err)
	}
	return rankCandidates(stats, c.config, gainers), nil
}

func rankCandidates(stats []*binance.PriceChangeStats, config Config, gainers bool) []*broker.Candidate {
	minQuote := decimal.NewFromFloat(config.MinQuoteVolume)
	var out []*broker.Candidate
	for _, s := range stats {
		if !strings.HasSuffix(s.Symbol, config.QuoteAsset) {
			continue
		}
		turnover := parseDecimal(s.QuoteVolume)
		if turnover.LessThan(minQuote) {
			continue
		}
		out = append(out, &broker.Candidate{
			Symbol:        s.Symbol,
			Last:          parseDecimal(s.LastPrice),
			ChangePercent: parseDecimal(s.PriceChangePercent),
			Volume:        parseDecimal(s.Volume),
			Turnover:      turnover,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if gainers {
			return out[i].ChangePercent.GreaterThan(out[j].ChangePercent)
		}
		return out[i].ChangePercent.LessThan(out[j].ChangePercent)
	})
	if config.TopN > 0 && len(out) > config.TopN {
		out = out[:config.TopN]
	}
	return out
}

// GetBars 分批拉取1分钟K线以突破单次条数限制
func (c *Client) GetBars(ctx context.Context, symbol string, start, end time.Time, limit int) ([]*market.Bar, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Binance")

	if limit <= 0 || limit > c.config.KlineLimit {
		limit = c.config.KlineLimit
	}

	var bars []*market.Bar
	cursor := start
	for cursor.Before(end) {
		klines, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(timeframes.NativeInterval).
			StartTime(cursor.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get klines from Binance: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			bars = append(bars, convertKline(k))
		}
		cursor = time.UnixMilli(klines[len(klines)-1].CloseTime).Add(time.Millisecond)

		if len(klines) < limit {
			break
		}
	}

	logger.Debug(fmt.Sprintf("fetched %d bars for %s", len(bars), symbol))
	return bars, nil
}

func convertKline(k *binance.Kline) *market.Bar {
	volume := parseDecimal(k.Volume)
	close := parseDecimal(k.Close)
	vwap := close
	if quote := parseDecimal(k.QuoteAssetVolume); volume.IsPositive() {
		vwap = quote.Div(volume)
	}

	return &market.Bar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   parseDecimal(k.Open),
		High:   parseDecimal(k.High),
		Low:    parseDecimal(k.Low),
		Close:  close,
		Volume: volume,
		VWAP:   vwap,
	}
}

// Ping 测试连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("Binance ping failed: %w", err)
	}
	return nil
}

// GetServerTime 获取服务器时间
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	ms, err := c.client.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get server time: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// RefreshToken 用户数据流 listenKey 即会话令牌：首次创建，之后续期
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listenKey != "" {
		err := c.client.NewKeepaliveUserStreamService().ListenKey(c.listenKey).Do(ctx)
		if err == nil {
			return c.listenKey, nil
		}
		// 续期失败时重新申请
		c.listenKey = ""
	}

	key, err := c.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start user stream: %w", err)
	}
	c.listenKey = key
	return key, nil
}
