package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const aggregatorABIJSON = `[{"inputs":[],"name":"latestRoundData","outputs":[
{"internalType":"uint80","name":"roundId","type":"uint80"},
{"internalType":"int256","name":"answer","type":"int256"},
{"internalType":"uint256","name":"startedAt","type":"uint256"},
{"internalType":"uint256","name":"updatedAt","type":"uint256"},
{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
"stateMutability":"view","type":"function"}]`

const exchangeRatesABIJSON = `[{"constant":true,"inputs":[
{"internalType":"bytes32","name":"currencyKey","type":"bytes32"}],
"name":"rateForCurrency","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],
"payable":false,"stateMutability":"view","type":"function"}]`

const synthetixABIJSON = `[{"constant":false,"inputs":[
{"internalType":"bytes32","name":"sourceCurrencyKey","type":"bytes32"},
{"internalType":"uint256","name":"sourceAmount","type":"uint256"},
{"internalType":"bytes32","name":"destinationCurrencyKey","type":"bytes32"}],
"name":"exchange","outputs":[{"internalType":"uint256","name":"amountReceived","type":"uint256"}],
"payable":false,"stateMutability":"nonpayable","type":"function"},
{"anonymous":false,"inputs":[
{"indexed":true,"internalType":"address","name":"account","type":"address"},
{"indexed":false,"internalType":"bytes32","name":"fromCurrencyKey","type":"bytes32"},
{"indexed":false,"internalType":"uint256","name":"fromAmount","type":"uint256"},
{"indexed":false,"internalType":"bytes32","name":"toCurrencyKey","type":"bytes32"},
{"indexed":false,"internalType":"uint256","name":"toAmount","type":"uint256"},
{"indexed":false,"internalType":"address","name":"toAddress","type":"address"}],
"name":"SynthExchange","type":"event"}]`

var (
	aggregatorABI    = mustParseABI(aggregatorABIJSON)
	exchangeRatesABI = mustParseABI(exchangeRatesABIJSON)
	synthetixABI     = mustParseABI(synthetixABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// currencyKey encodes a synth symbol the way Synthetix keys currencies.
func currencyKey(symbol string) [32]byte {
	var key [32]byte
	copy(key[:], symbol)
	return key
}
