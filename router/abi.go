package router

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// routerABIJSON covers the UniswapV2Router02-compatible surface the builder
// dispatches against: the six swap entry points plus the read-only helpers.
const routerABIJSON = `[
  {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable","inputs":[
    {"name":"amountOutMin","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapETHForExactTokens","stateMutability":"payable","inputs":[
    {"name":"amountOut","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactTokensForETH","stateMutability":"nonpayable","inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMin","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapTokensForExactETH","stateMutability":"nonpayable","inputs":[
    {"name":"amountOut","type":"uint256"},
    {"name":"amountInMax","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable","inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMin","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapTokensForExactTokens","stateMutability":"nonpayable","inputs":[
    {"name":"amountOut","type":"uint256"},
    {"name":"amountInMax","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"path","type":"address[]"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"getAmountsIn","stateMutability":"view","inputs":[
    {"name":"amountOut","type":"uint256"},
    {"name":"path","type":"address[]"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"quote","stateMutability":"pure","inputs":[
    {"name":"amountA","type":"uint256"},
    {"name":"reserveA","type":"uint256"},
    {"name":"reserveB","type":"uint256"}],
   "outputs":[{"name":"amountB","type":"uint256"}]},
  {"type":"function","name":"WETH","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"factory","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address"}]}
]`

var routerABI = mustParseABI(routerABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
