package events

import (
	"strconv"

	"custody/core/types"
)

const (
	TypeSignerAdded      = "multisig.signer_added"
	TypeSignerRemoved    = "multisig.signer_removed"
	TypeThresholdChanged = "multisig.threshold_changed"
)

type SignerAdded struct {
	Account [20]byte
	Signer  []byte
}

func (SignerAdded) EventType() string { return TypeSignerAdded }

func (e SignerAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeSignerAdded,
		Attributes: map[string]string{
			"account": addrAttr(e.Account),
			"signer":  keyAttr(e.Signer),
		},
	}
}

type SignerRemoved struct {
	Account [20]byte
	Signer  []byte
}

func (SignerRemoved) EventType() string { return TypeSignerRemoved }

func (e SignerRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeSignerRemoved,
		Attributes: map[string]string{
			"account": addrAttr(e.Account),
			"signer":  keyAttr(e.Signer),
		},
	}
}

type ThresholdChanged struct {
	Account   [20]byte
	Threshold uint32
}

func (ThresholdChanged) EventType() string { return TypeThresholdChanged }

func (e ThresholdChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeThresholdChanged,
		Attributes: map[string]string{
			"account":   addrAttr(e.Account),
			"threshold": strconv.FormatUint(uint64(e.Threshold), 10),
		},
	}
}
