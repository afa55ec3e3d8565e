// Package router carries the contract-facing constants of the destination
// router: the calldata encoding for receiveAndForward and the settlement
// event signatures used to classify confirmation receipts.
package router

import (
	"math/big"
	"strings"

	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const receiveAndForwardABI = `[{"inputs":[{"internalType":"bytes","name":"message","type":"bytes"},{"internalType":"bytes","name":"attestation","type":"bytes"},{"internalType":"uint256","name":"relayFee","type":"uint256"}],"name":"receiveAndForward","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

var (
	routerABI = mustParseABI(receiveAndForwardABI)

	// Event topic[0] discriminants, derived from the canonical signatures.
	relayedSignature           = crypto.Keccak256Hash([]byte("Relayed(uint32,bytes32,bytes32,uint256,uint256)"))
	fallbackTriggeredSignature = crypto.Keccak256Hash([]byte("FallbackTriggered(address,uint256,uint256)"))
	operatorRoutedSignature    = crypto.Keccak256Hash([]byte("OperatorRouted(bytes32,bytes32,uint256,string)"))
	recoveredNonceSignature    = crypto.Keccak256Hash([]byte("RecoveredFromConsumedNonce(bytes32,uint256)"))
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PackReceiveAndForward encodes the calldata for the router's single entry
// point carrying the attested payload and the relay fee claim.
func PackReceiveAndForward(message, attestation []byte, relayFee *big.Int) ([]byte, error) {
	data, err := routerABI.Pack("receiveAndForward", message, attestation, relayFee)
	if err != nil {
		return nil, errors.Wrap(err, "could not pack receiveAndForward calldata")
	}
	return data, nil
}

// ClassifyReceipt determines the settlement outcome of a successful
// destination transaction from its event logs. Only logs emitted by the
// router or the transmitter are considered; the first match among the three
// primary signatures wins. The recovered return reports whether a
// RecoveredFromConsumedNonce event accompanied the settlement, which may
// co-occur with any outcome.
func ClassifyReceipt(logs []*gethtypes.Log, routerAddr, transmitterAddr common.Address) (types.Outcome, bool) {
	outcome := types.OutcomeUnknown
	recovered := false
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) == 0 {
			continue
		}
		if lg.Address != routerAddr && lg.Address != transmitterAddr {
			continue
		}
		switch lg.Topics[0] {
		case recoveredNonceSignature:
			recovered = true
			continue
		}
		if outcome != types.OutcomeUnknown {
			continue
		}
		switch lg.Topics[0] {
		case relayedSignature:
			outcome = types.OutcomeForwarded
		case fallbackTriggeredSignature:
			outcome = types.OutcomeFallback
		case operatorRoutedSignature:
			outcome = types.OutcomeOperatorRouted
		}
	}
	return outcome, recovered
}
