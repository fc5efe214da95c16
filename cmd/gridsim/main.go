package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"math/rand"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridex-go/config"
	"gridex-go/exchange"
	"gridex-go/internal/container"
	"gridex-go/lens"
	"gridex-go/order"
	"gridex-go/settlement"
	"gridex-go/strategy"
)

const (
	baseDecimals  = 18
	quoteDecimals = 6
)

var (
	weth      = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	usdc      = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	demoAdmin = "0x00000000000000000000000000000000000000ad"
	maker     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	taker     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// 本地网格模拟：下一个 linear 网格，随机 taker 流量吃单，最后打印余额和收益。
// 不连接任何链或交易所。
func main() {
	cfgPath := flag.String("config", "", "配置文件路径，留空使用默认配置")
	steps := flag.Int("steps", 200, "随机成交步数")
	seed := flag.Int64("seed", 1, "随机种子")
	metricsAddr := flag.String("metrics", "", "Prometheus metrics 监听地址，留空则使用配置")
	flag.Parse()

	c, err := newContainer(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *metricsAddr != "" {
		c.SetMetricsListen(*metricsAddr)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	cfg, lg := c.Config(), c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := c.Start(ctx); err != nil {
		lg.Fatal("start container", zap.Error(err))
	}
	defer c.Stop()

	engine, ledger, x := c.Engine(), c.Ledger(), c.Exchange()
	admin := cfg.AdminAddress()
	pair, err := x.RegisterPair(weth, usdc)
	if err != nil {
		lg.Fatal("register pair", zap.Error(err))
	}

	fund(ledger, maker, "20", "50000")
	fund(ledger, taker, "20", "50000")

	params, err := demoGrid()
	if err != nil {
		lg.Fatal("build grid params", zap.Error(err))
	}
	placed, err := x.PlaceGrid(maker, pair, params)
	if err != nil {
		lg.Fatal("place grid", zap.Error(err))
	}
	grid, _ := engine.Grid(placed.GridID)
	fmt.Printf("grid %d placed: collateral %s WETH + %s USDC\n", grid.GridID,
		lens.FormatAmount(placed.RequiredBase, baseDecimals),
		lens.FormatAmount(placed.RequiredQuote, quoteDecimals))

	rng := rand.New(rand.NewSource(*seed))
	var fills, failed int
	for i := 0; i < *steps; i++ {
		select {
		case rc := <-c.Reloads():
			if err := c.ApplyReload(rc); err != nil {
				lg.Warn("apply reloaded fee", zap.Error(err))
			}
		default:
		}
		if err := step(x, grid, rng); err != nil {
			failed++
			lg.Debug("fill skipped", zap.Int("step", i), zap.String("kind", order.ErrorKind(err)), zap.Error(err))
			continue
		}
		fills++
	}

	profit, err := x.WithdrawProfit(maker, grid.GridID, nil)
	if err != nil {
		profit = new(uint256.Int)
	}
	fees, err := x.WithdrawProtocolFees(admin, pair, admin, nil)
	if err != nil {
		fees = new(uint256.Int)
	}

	fmt.Printf("steps=%d fills=%d skipped=%d\n", *steps, fills, failed)
	fmt.Printf("grid profit withdrawn: %s USDC\n", lens.FormatAmount(profit, quoteDecimals))
	fmt.Printf("protocol fees withdrawn: %s USDC\n", lens.FormatAmount(fees, quoteDecimals))
	for _, acct := range []common.Address{maker, taker} {
		fmt.Printf("%s  WETH %s  USDC %s\n", acct.Hex(),
			lens.FormatAmount(ledger.BalanceOf(weth, acct), baseDecimals).StringFixed(6),
			lens.FormatAmount(ledger.BalanceOf(usdc, acct), quoteDecimals).StringFixed(2))
	}

	if cfg.Metrics.Listen != "" {
		fmt.Printf("serving metrics on %s, Ctrl-C to exit\n", cfg.Metrics.Listen)
		<-ctx.Done()
	}
}

// newContainer 未指定配置文件时使用默认配置和演示 admin
func newContainer(path string) (*container.Container, error) {
	if path != "" {
		return container.New(path)
	}
	cfg := config.Default()
	cfg.Admin = demoAdmin
	return container.NewWithConfig(cfg), nil
}

func fund(l *settlement.Ledger, acct common.Address, base, quote string) {
	b, _ := lens.ParseAmount(base, baseDecimals)
	q, _ := lens.ParseAmount(quote, quoteDecimals)
	_ = l.Credit(weth, acct, b)
	_ = l.Credit(usdc, acct, q)
}

// rawPrice 把 "USDC per WETH" 的人类价格换算成原始单位之比
func rawPrice(human string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return nil, err
	}
	return lens.ParsePrice(d.Shift(quoteDecimals - baseDecimals).String())
}

// demoGrid asks 1860 起每档 +10，bids 1840 起每档 -10，各 5 档，每档 0.5 WETH
func demoGrid() (order.PlaceParams, error) {
	amt, err := lens.ParseAmount("0.5", baseDecimals)
	if err != nil {
		return order.PlaceParams{}, err
	}
	askBase, err := rawPrice("1860")
	if err != nil {
		return order.PlaceParams{}, err
	}
	bidBase, err := rawPrice("1840")
	if err != nil {
		return order.PlaceParams{}, err
	}
	gap, err := rawPrice("10")
	if err != nil {
		return order.PlaceParams{}, err
	}
	return order.PlaceParams{
		BaseAmount: amt,
		Ask: order.SideParams{
			Strategy: strategy.Ref(strategy.TypeLinear),
			Params:   strategy.LinearParams{BasePrice: askBase, Gap: gap.ToBig()},
			Count:    5,
		},
		Bid: order.SideParams{
			Strategy: strategy.Ref(strategy.TypeLinear),
			Params:   strategy.LinearParams{BasePrice: bidBase, Gap: new(big.Int).Neg(gap.ToBig())},
			Count:    5,
		},
		FeeBps: 3000,
	}, nil
}

// step 随机挑一个档位和方向，吃掉最多半档；每 10 步走一次批量成交
func step(x *exchange.Exchange, g order.GridConfig, rng *rand.Rand) error {
	pick := func() exchange.FillTarget {
		idx := uint32(rng.Intn(5))
		h := g.AskHandle(idx)
		if rng.Intn(2) == 0 {
			h = g.BidHandle(idx)
		}
		amt := new(uint256.Int).Div(g.BaseAmount, uint256.NewInt(uint64(rng.Intn(4)+2)))
		return exchange.FillTarget{Handle: h, Amount: amt, Buy: rng.Intn(2) == 0}
	}
	if rng.Intn(10) == 0 {
		_, err := x.FillOrders(taker, []exchange.FillTarget{pick(), pick()})
		return err
	}
	t := pick()
	if t.Buy {
		_, err := x.FillAsk(taker, t.Handle, t.Amount)
		return err
	}
	_, err := x.FillBid(taker, t.Handle, t.Amount)
	return err
}
