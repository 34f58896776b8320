package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	clearScreen = "\033[H\033[2J"
	callTimeout = 10 * time.Second
)

// SafeState is a thread-safe container for the latest engine state.
type SafeState struct {
	mu    sync.RWMutex
	state *engine.State
}

func (s *SafeState) Update(newState *engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// PoolAPI is the subset of the pool client the console drives.
type PoolAPI interface {
	Tokens(ctx context.Context) ([]ledger.TokenMeta, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*uint256.Int, error)
	Quote(ctx context.Context, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error)
	QuoteIn(ctx context.Context, tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error)
	SimpleSwap(ctx context.Context, caller, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error)
	AddLiquidity(ctx context.Context, caller common.Address, amount0, amount1 *uint256.Int) (*uint256.Int, error)
	RemoveLiquidity(ctx context.Context, caller common.Address, shares *uint256.Int) (amount0, amount1 *uint256.Int, err error)
}

// Console is an interactive menu over a pool server. State views come from
// the stream; writes go through PoolAPI on behalf of the selected account.
type Console struct {
	in      *bufio.Reader
	out     io.Writer
	pool    PoolAPI
	state   *SafeState
	account common.Address
	// symbols caches token metadata by address once it has been fetched.
	symbols map[common.Address]ledger.TokenMeta
}

func NewConsole(in io.Reader, out io.Writer, pool PoolAPI, state *SafeState, account common.Address) *Console {
	return &Console{
		in:      bufio.NewReader(in),
		out:     out,
		pool:    pool,
		state:   state,
		account: account,
		symbols: make(map[common.Address]ledger.TokenMeta),
	}
}

// LoadTokens caches token metadata so prompts can show symbols.
func (c *Console) LoadTokens(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	tokens, err := c.pool.Tokens(ctx)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		c.symbols[t.Address] = t
	}
	return nil
}

// Run shows the menu until the user quits, input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context) {
	for ctx.Err() == nil {
		c.printMenu()

		fmt.Fprint(c.out, Bold+"Enter selection: "+Reset)
		input, err := c.in.ReadString('\n')
		if err != nil {
			return
		}

		if quit := c.Handle(ctx, strings.TrimSpace(input)); quit {
			return
		}

		fmt.Fprintln(c.out, "\n"+Gray+"[Press Enter to continue]"+Reset)
		if _, err := c.in.ReadString('\n'); err != nil {
			return
		}
	}
}

func (c *Console) printMenu() {
	fmt.Fprint(c.out, clearScreen)
	fmt.Fprintln(c.out, Bold+"SIMPLESWAP CONSOLE"+Reset+Gray+" | account "+c.account.Hex()+Reset)
	fmt.Fprintln(c.out, Gray+"-----------------------------------"+Reset)
	fmt.Fprintf(c.out, " %s1.%s Pool Status\n", Cyan, Reset)
	fmt.Fprintf(c.out, " %s2.%s Balances\n", Cyan, Reset)
	fmt.Fprintf(c.out, " %s3.%s Quote      %s(Exact In or Exact Out)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Fprintf(c.out, " %s4.%s Swap\n", Cyan, Reset)
	fmt.Fprintf(c.out, " %s5.%s Add Liquidity\n", Cyan, Reset)
	fmt.Fprintf(c.out, " %s6.%s Remove Liquidity\n", Cyan, Reset)
	fmt.Fprintf(c.out, " %s7.%s Watch Pool %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Fprintln(c.out, Gray+"-----------------------------------"+Reset)
	fmt.Fprintf(c.out, " %sa.%s Switch Account\n", Yellow, Reset)
	fmt.Fprintf(c.out, " %sh.%s Help\n", Yellow, Reset)
	fmt.Fprintf(c.out, " %sq.%s Quit\n", Red, Reset)
	fmt.Fprintln(c.out, "")
}

// Handle runs a single menu selection and reports whether the user asked to quit.
func (c *Console) Handle(ctx context.Context, input string) bool {
	state := c.state.Get()

	// Allow help, account switching and quit even if state isn't ready
	if state == nil && input != "q" && input != "h" && input != "a" {
		fmt.Fprintln(c.out, "\n"+Yellow+"[INFO] Waiting for first state update... (Check connection/logs)"+Reset)
		return false
	}

	switch input {
	case "1":
		c.printStatus(state)
	case "2":
		c.printBalances(ctx, state)
	case "3":
		c.quote(ctx, state)
	case "4":
		c.swap(ctx, state)
	case "5":
		c.addLiquidity(ctx)
	case "6":
		c.removeLiquidity(ctx)
	case "7":
		c.watch(ctx)
	case "a":
		c.switchAccount()
	case "h":
		c.printHelp()
	case "q":
		fmt.Fprintln(c.out, Yellow+"Goodbye."+Reset)
		return true
	default:
		fmt.Fprintln(c.out, Red+"Unknown command."+Reset)
	}
	return false
}

// --- COMMAND HANDLERS ---

func (c *Console) header(title string) {
	fmt.Fprintln(c.out, "\n"+Bold+Cyan+":: "+title+" ::"+Reset)
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, clearScreen)
	c.header("SIMPLESWAP")
	fmt.Fprintln(c.out, "The server runs one constant-product pool over two assets.")
	fmt.Fprintln(c.out, "   - "+Yellow+"Swaps"+Reset+" pay a fixed 0.3% fee that stays in the pool.")
	fmt.Fprintln(c.out, "   - "+Yellow+"Shares"+Reset+" are minted to liquidity providers in proportion to their deposit.")
	fmt.Fprintln(c.out, "   - "+Yellow+"State"+Reset+" is streamed: one full snapshot, then one diff per mutation.")
	fmt.Fprintln(c.out, "")
	fmt.Fprintln(c.out, "Amounts are entered in base units. Writes are sent on behalf of the")
	fmt.Fprintln(c.out, "selected account, which must have approved the pool beforehand.")
}

func (c *Console) printStatus(state *engine.State) {
	ts := time.Unix(0, int64(state.Timestamp)).Format("15:04:05")
	fmt.Fprintf(c.out, "\n%sSTATUS  ::%s Sequence %s#%d%s | Time %s%s%s\n",
		Green, Reset,
		Bold, state.Sequence, Reset,
		Bold, ts, Reset,
	)
	if state.HasErrors() {
		fmt.Fprintf(c.out, "%s[ERROR] %s%s\n", Red, state.Error, Reset)
	}
	c.printPool(state)
}

func (c *Console) printPool(state *engine.State) {
	p := state.Pool
	c.header("POOL")
	w := tabwriter.NewWriter(c.out, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "Address\t%s\t\n", p.Address.Hex())
	fmt.Fprintf(w, "Token0\t%s\t%s\t\n", p.Token0.Hex(), c.symbol(p.Token0))
	fmt.Fprintf(w, "Token1\t%s\t%s\t\n", p.Token1.Hex(), c.symbol(p.Token1))
	fmt.Fprintf(w, "Reserve0\t%s\t\n", decimal(p.Reserve0))
	fmt.Fprintf(w, "Reserve1\t%s\t\n", decimal(p.Reserve1))
	fmt.Fprintf(w, "Share Supply\t%s\t\n", decimal(p.ShareSupply))
	fmt.Fprintf(w, "Fee\t%d bps\t\n", p.FeeBps)
	if price := spotPrice(p.Reserve0, p.Reserve1); price != "" {
		fmt.Fprintf(w, "Spot Price\t%s token1 per token0\t\n", price)
	}
	w.Flush()
}

func (c *Console) printBalances(ctx context.Context, state *engine.State) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	c.header("BALANCES " + c.account.Hex())
	w := tabwriter.NewWriter(c.out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tADDRESS\tBALANCE\t")
	fmt.Fprintln(w, "-----\t-------\t-------\t")

	tokens, err := c.pool.Tokens(ctx)
	if err != nil {
		fmt.Fprintf(c.out, Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	for _, t := range tokens {
		c.symbols[t.Address] = t
		balance, err := c.pool.BalanceOf(ctx, t.Address, c.account)
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", t.Symbol, t.Address.Hex(), Red+err.Error()+Reset)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", t.Symbol, t.Address.Hex(), balance.Dec())
	}
	w.Flush()
}

func (c *Console) quote(ctx context.Context, state *engine.State) {
	c.header("QUOTE")
	tokenIn, ok := c.readTokenIn(state)
	if !ok {
		return
	}
	tokenOut := other(state, tokenIn)

	fmt.Fprint(c.out, Bold+"2. Fix which side? (in = exact input, out = exact output): "+Reset)
	side, _ := c.in.ReadString('\n')
	side = strings.TrimSpace(side)
	if side != "in" && side != "out" {
		fmt.Fprintln(c.out, Red+"[ERROR] Expected 'in' or 'out'."+Reset)
		return
	}

	fmt.Fprint(c.out, Bold+"3. Amount: "+Reset)
	amount, ok := c.readAmount()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if side == "in" {
		out, err := c.pool.Quote(ctx, tokenIn, amount)
		if err != nil {
			fmt.Fprintf(c.out, Red+"[ERROR] %v%s\n", err, Reset)
			return
		}
		fmt.Fprintf(c.out, "%s%s %s -> %s %s%s\n", Green, amount.Dec(), c.symbol(tokenIn), out.Dec(), c.symbol(tokenOut), Reset)
		return
	}

	in, err := c.pool.QuoteIn(ctx, tokenIn, amount)
	if err != nil {
		fmt.Fprintf(c.out, Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Fprintf(c.out, "%s%s %s needed for %s %s%s\n", Green, in.Dec(), c.symbol(tokenIn), amount.Dec(), c.symbol(tokenOut), Reset)
}

func (c *Console) swap(ctx context.Context, state *engine.State) {
	c.header("SWAP")
	tokenIn, amountIn, ok := c.readSwapInput(state)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	out, err := c.pool.SimpleSwap(ctx, c.account, tokenIn, amountIn)
	if err != nil {
		fmt.Fprintf(c.out, Red+"[ERROR] Swap failed: %v%s\n", err, Reset)
		return
	}
	fmt.Fprintf(c.out, "%sSwapped %s %s for %s %s%s\n", Green, amountIn.Dec(), c.symbol(tokenIn), out.Dec(), c.symbol(other(state, tokenIn)), Reset)
}

func (c *Console) addLiquidity(ctx context.Context) {
	c.header("ADD LIQUIDITY")
	fmt.Fprint(c.out, Bold+"1. Amount of token0: "+Reset)
	amount0, ok := c.readAmount()
	if !ok {
		return
	}
	fmt.Fprint(c.out, Bold+"2. Amount of token1: "+Reset)
	amount1, ok := c.readAmount()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	shares, err := c.pool.AddLiquidity(ctx, c.account, amount0, amount1)
	if err != nil {
		fmt.Fprintf(c.out, Red+"[ERROR] Deposit failed: %v%s\n", err, Reset)
		return
	}
	fmt.Fprintf(c.out, "%sMinted %s shares%s\n", Green, shares.Dec(), Reset)
}

func (c *Console) removeLiquidity(ctx context.Context) {
	c.header("REMOVE LIQUIDITY")
	fmt.Fprint(c.out, Bold+"Shares to burn: "+Reset)
	shares, ok := c.readAmount()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	amount0, amount1, err := c.pool.RemoveLiquidity(ctx, c.account, shares)
	if err != nil {
		fmt.Fprintf(c.out, Red+"[ERROR] Withdrawal failed: %v%s\n", err, Reset)
		return
	}
	fmt.Fprintf(c.out, "%sReceived %s token0 and %s token1%s\n", Green, amount0.Dec(), amount1.Dec(), Reset)
}

// watch redraws the pool each time a newer state arrives until Enter is pressed.
func (c *Console) watch(ctx context.Context) {
	fmt.Fprintln(c.out, Green+"Starting Live Watch... (Press 'Enter' to stop)"+Reset)

	stopCh := make(chan struct{})
	go func() {
		c.in.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last *uint64
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := c.state.Get()
			if state == nil || (last != nil && state.Sequence <= *last) {
				continue
			}
			seq := state.Sequence
			last = &seq

			fmt.Fprint(c.out, clearScreen)
			fmt.Fprintf(c.out, Bold+"\n--- LIVE MONITOR (Sequence: %d) ---\n"+Reset, state.Sequence)
			fmt.Fprintln(c.out, Gray+"Press ENTER to return to menu."+Reset)
			c.printPool(state)
		}
	}
}

func (c *Console) switchAccount() {
	fmt.Fprint(c.out, "\n"+Bold+"[Account] Enter Address (Hex): "+Reset)
	input, _ := c.in.ReadString('\n')
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		fmt.Fprintln(c.out, Red+"[ERROR] Invalid address."+Reset)
		return
	}
	c.account = common.HexToAddress(input)
	fmt.Fprintf(c.out, "%sActing as %s%s\n", Green, c.account.Hex(), Reset)
}

// --- INPUT HELPERS ---

// readTokenIn reads the input side as "0", "1" or a token address.
func (c *Console) readTokenIn(state *engine.State) (common.Address, bool) {
	fmt.Fprintf(c.out, Bold+"1. Token In (0 = %s, 1 = %s, or address): "+Reset, c.symbol(state.Pool.Token0), c.symbol(state.Pool.Token1))
	input, _ := c.in.ReadString('\n')
	input = strings.TrimSpace(input)

	switch {
	case input == "0":
		return state.Pool.Token0, true
	case input == "1":
		return state.Pool.Token1, true
	case common.IsHexAddress(input):
		return common.HexToAddress(input), true
	default:
		fmt.Fprintln(c.out, Red+"[ERROR] Expected 0, 1 or a token address."+Reset)
		return common.Address{}, false
	}
}

// readSwapInput reads the input token and an exact input amount.
func (c *Console) readSwapInput(state *engine.State) (common.Address, *uint256.Int, bool) {
	tokenIn, ok := c.readTokenIn(state)
	if !ok {
		return common.Address{}, nil, false
	}

	fmt.Fprint(c.out, Bold+"2. Amount In: "+Reset)
	amount, ok := c.readAmount()
	if !ok {
		return common.Address{}, nil, false
	}
	return tokenIn, amount, true
}

func (c *Console) readAmount() (*uint256.Int, bool) {
	input, _ := c.in.ReadString('\n')
	amount, err := uint256.FromDecimal(strings.TrimSpace(input))
	if err != nil {
		fmt.Fprintf(c.out, Red+"[ERROR] Invalid amount: %v%s\n", err, Reset)
		return nil, false
	}
	return amount, true
}

func (c *Console) symbol(addr common.Address) string {
	if meta, ok := c.symbols[addr]; ok && meta.Symbol != "" {
		return meta.Symbol
	}
	return addr.Hex()[:10]
}

func other(state *engine.State, token common.Address) common.Address {
	if token == state.Pool.Token0 {
		return state.Pool.Token1
	}
	return state.Pool.Token0
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// spotPrice is reserve1/reserve0 to six decimal places, or "" for an empty pool.
func spotPrice(reserve0, reserve1 *big.Int) string {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() == 0 {
		return ""
	}
	return new(big.Rat).SetFrac(reserve1, reserve0).FloatString(6)
}
