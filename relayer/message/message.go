// Package message parses and validates the packed binary payload covered by
// an attestation before it is handed to the destination router. All fields
// live at fixed absolute byte offsets with big-endian integers.
package message

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/SeungheonOh/xreserve-relay/config/params"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "message")

const (
	destinationDomainOffset = 8
	nonceOffset             = 12
	destinationCallerOffset = 108
	mintRecipientOffset     = 184
	amountOffset            = 216

	// MinLength covers the outer header through the amount field.
	MinLength = 248
)

var zeroCaller [32]byte

// Details are the fields of an attested payload that the relay binds to
// local policy before submission.
type Details struct {
	DestinationDomain uint32
	Nonce             [32]byte
	DestinationCaller common.Address
	MintRecipient     common.Address
	Amount            *big.Int
}

// Validate parses the raw attested payload and enforces that it is bound to
// this relay's destination: the destination domain must be the local one,
// the mint recipient must be the router, and the destination caller must be
// the router or unset. Returns the decoded details on success.
func Validate(raw []byte, router common.Address) (*Details, error) {
	if len(raw) < MinLength {
		return nil, errors.Errorf("message too short: %d bytes", len(raw))
	}

	localDomain := params.RelayNodeConfig().LocalDomain
	destinationDomain := binary.BigEndian.Uint32(raw[destinationDomainOffset : destinationDomainOffset+4])
	if destinationDomain != localDomain {
		return nil, errors.Errorf("destination domain %d != %d", destinationDomain, localDomain)
	}

	var nonce [32]byte
	copy(nonce[:], raw[nonceOffset:nonceOffset+32])

	var caller [32]byte
	copy(caller[:], raw[destinationCallerOffset:destinationCallerOffset+32])
	if caller == zeroCaller {
		log.WithField("router", router.Hex()).Warn(
			"Destination caller is unset, any caller may execute this transfer (front-running exposure)")
	} else if !isAddressBytes32(caller, router) {
		return nil, errors.Errorf("destinationCaller %#x != router or zero", caller)
	}

	recipientWord := raw[mintRecipientOffset : mintRecipientOffset+32]
	mintRecipient := common.BytesToAddress(recipientWord[12:])
	if mintRecipient != router {
		return nil, errors.Errorf("mintRecipient %s != router %s", mintRecipient.Hex(), router.Hex())
	}

	amount := new(big.Int).SetBytes(raw[amountOffset : amountOffset+32])

	return &Details{
		DestinationDomain: destinationDomain,
		Nonce:             nonce,
		DestinationCaller: common.BytesToAddress(caller[12:]),
		MintRecipient:     mintRecipient,
		Amount:            amount,
	}, nil
}

// isAddressBytes32 reports whether the word is the bytes32 form of addr:
// twelve zero bytes followed by the 20 address bytes.
func isAddressBytes32(word [32]byte, addr common.Address) bool {
	if !bytes.Equal(word[:12], zeroCaller[:12]) {
		return false
	}
	return common.BytesToAddress(word[12:]) == addr
}
