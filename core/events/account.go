package events

import (
	"encoding/hex"
	"strconv"

	"custody/core/types"
	"custody/crypto"
)

const (
	TypeOwnerChanged            = "account.owner_changed"
	TypeGuardianChanged         = "account.guardian_changed"
	TypeGuardianBackupChanged   = "account.guardian_backup_changed"
	TypeEscapeOwnerTriggered    = "account.escape_owner_triggered"
	TypeEscapeGuardianTriggered = "account.escape_guardian_triggered"
	TypeOwnerEscaped            = "account.owner_escaped"
	TypeGuardianEscaped         = "account.guardian_escaped"
	TypeEscapeCanceled          = "account.escape_canceled"
	TypeOutsideExecuted         = "account.outside_executed"
)

func keyAttr(key []byte) string {
	if crypto.IsNullKey(key) {
		return ""
	}
	return hex.EncodeToString(key)
}

func addrAttr(addr [20]byte) string {
	return crypto.NewAddress(crypto.CustodyPrefix, addr[:]).String()
}

// OwnerChanged is emitted after the owner key rotates, whether through a
// direct change or a completed escape.
type OwnerChanged struct {
	Account  [20]byte
	NewOwner []byte
}

func (OwnerChanged) EventType() string { return TypeOwnerChanged }

func (e OwnerChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerChanged,
		Attributes: map[string]string{
			"account":  addrAttr(e.Account),
			"newOwner": keyAttr(e.NewOwner),
		},
	}
}

type GuardianChanged struct {
	Account     [20]byte
	NewGuardian []byte
}

func (GuardianChanged) EventType() string { return TypeGuardianChanged }

func (e GuardianChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeGuardianChanged,
		Attributes: map[string]string{
			"account":     addrAttr(e.Account),
			"newGuardian": keyAttr(e.NewGuardian),
		},
	}
}

type GuardianBackupChanged struct {
	Account   [20]byte
	NewBackup []byte
}

func (GuardianBackupChanged) EventType() string { return TypeGuardianBackupChanged }

func (e GuardianBackupChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeGuardianBackupChanged,
		Attributes: map[string]string{
			"account":   addrAttr(e.Account),
			"newBackup": keyAttr(e.NewBackup),
		},
	}
}

// EscapeOwnerTriggered records the start of a guardian-driven owner recovery.
type EscapeOwnerTriggered struct {
	Account  [20]byte
	ReadyAt  int64
	NewOwner []byte
}

func (EscapeOwnerTriggered) EventType() string { return TypeEscapeOwnerTriggered }

func (e EscapeOwnerTriggered) Event() *types.Event {
	return &types.Event{
		Type: TypeEscapeOwnerTriggered,
		Attributes: map[string]string{
			"account":  addrAttr(e.Account),
			"readyAt":  strconv.FormatInt(e.ReadyAt, 10),
			"newOwner": keyAttr(e.NewOwner),
		},
	}
}

type EscapeGuardianTriggered struct {
	Account     [20]byte
	ReadyAt     int64
	NewGuardian []byte
}

func (EscapeGuardianTriggered) EventType() string { return TypeEscapeGuardianTriggered }

func (e EscapeGuardianTriggered) Event() *types.Event {
	return &types.Event{
		Type: TypeEscapeGuardianTriggered,
		Attributes: map[string]string{
			"account":     addrAttr(e.Account),
			"readyAt":     strconv.FormatInt(e.ReadyAt, 10),
			"newGuardian": keyAttr(e.NewGuardian),
		},
	}
}

type OwnerEscaped struct {
	Account  [20]byte
	NewOwner []byte
}

func (OwnerEscaped) EventType() string { return TypeOwnerEscaped }

func (e OwnerEscaped) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerEscaped,
		Attributes: map[string]string{
			"account":  addrAttr(e.Account),
			"newOwner": keyAttr(e.NewOwner),
		},
	}
}

type GuardianEscaped struct {
	Account     [20]byte
	NewGuardian []byte
}

func (GuardianEscaped) EventType() string { return TypeGuardianEscaped }

func (e GuardianEscaped) Event() *types.Event {
	return &types.Event{
		Type: TypeGuardianEscaped,
		Attributes: map[string]string{
			"account":     addrAttr(e.Account),
			"newGuardian": keyAttr(e.NewGuardian),
		},
	}
}

// EscapeCanceled is emitted on explicit cancellation and on the implicit
// reset that accompanies a signer change. Silent cleanup of an expired escape
// does not produce this event.
type EscapeCanceled struct {
	Account [20]byte
}

func (EscapeCanceled) EventType() string { return TypeEscapeCanceled }

func (e EscapeCanceled) Event() *types.Event {
	return &types.Event{
		Type: TypeEscapeCanceled,
		Attributes: map[string]string{
			"account": addrAttr(e.Account),
		},
	}
}

// OutsideExecuted records a completed outside execution, keyed by the signed
// payload hash so submitters can correlate.
type OutsideExecuted struct {
	Account [20]byte
	Hash    [32]byte
	Nonce   [32]byte
}

func (OutsideExecuted) EventType() string { return TypeOutsideExecuted }

func (e OutsideExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeOutsideExecuted,
		Attributes: map[string]string{
			"account": addrAttr(e.Account),
			"hash":    hex.EncodeToString(e.Hash[:]),
			"nonce":   hex.EncodeToString(e.Nonce[:]),
		},
	}
}
