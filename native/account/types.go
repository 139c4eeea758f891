package account

import (
	"math/big"

	"custody/core/types"
)

const (
	// SecurityPeriod is the mandatory wait, in seconds, between triggering an
	// escape and its readiness.
	SecurityPeriod int64 = 7 * 24 * 60 * 60
	// ExpiryPeriod is the window, in seconds, after readiness during which an
	// escape remains completable before auto-invalidating.
	ExpiryPeriod int64 = 7 * 24 * 60 * 60
	// MaxEscapeAttempts caps how many direct escape invocations either party
	// may spend before the other party must intervene.
	MaxEscapeAttempts uint32 = 5
)

// MaxEscapeFee bounds the declared transaction fee on direct escape
// invocations, preventing a compromised key from draining the account through
// fee griefing.
var MaxEscapeFee = big.NewInt(50_000_000_000_000_000)

// AnyCaller is the wildcard sentinel: an outside execution declaring it may be
// submitted by any caller.
var AnyCaller = [20]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// ValidSignatureMagic is returned by the signature-validation query on
// success; a zero value means rejection.
var ValidSignatureMagic = [4]byte{0x16, 0x26, 0xba, 0x7e}

// Operation selectors recognised by the signature policy's fast path, plus
// the forbidden post-upgrade hook.
var (
	SelectorTriggerEscapeOwner    = types.NewSelector("trigger_escape_owner")
	SelectorTriggerEscapeGuardian = types.NewSelector("trigger_escape_guardian")
	SelectorEscapeOwner           = types.NewSelector("escape_owner")
	SelectorEscapeGuardian        = types.NewSelector("escape_guardian")
	SelectorExecuteAfterUpgrade   = types.NewSelector("execute_after_upgrade")
)

// Selectors for the remaining self-call operations the dispatcher routes.
var (
	SelectorChangeOwner          = types.NewSelector("change_owner")
	SelectorChangeGuardian       = types.NewSelector("change_guardian")
	SelectorChangeGuardianBackup = types.NewSelector("change_guardian_backup")
	SelectorCancelEscape         = types.NewSelector("cancel_escape")
)

// EscapeType identifies which key a pending escape replaces.
type EscapeType uint8

const (
	EscapeTypeNone EscapeType = iota
	EscapeTypeOwner
	EscapeTypeGuardian
)

func (t EscapeType) Valid() bool {
	switch t {
	case EscapeTypeNone, EscapeTypeOwner, EscapeTypeGuardian:
		return true
	default:
		return false
	}
}

func (t EscapeType) String() string {
	switch t {
	case EscapeTypeNone:
		return "none"
	case EscapeTypeOwner:
		return "owner"
	case EscapeTypeGuardian:
		return "guardian"
	default:
		return "unknown"
	}
}

// EscapeStatus is derived from the pending escape and the current time. It is
// never stored; pure time transitions must not cost a state write.
type EscapeStatus uint8

const (
	EscapeStatusNone EscapeStatus = iota
	EscapeStatusNotReady
	EscapeStatusReady
	EscapeStatusExpired
)

func (s EscapeStatus) String() string {
	switch s {
	case EscapeStatusNone:
		return "none"
	case EscapeStatusNotReady:
		return "not-ready"
	case EscapeStatusReady:
		return "ready"
	case EscapeStatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Escape is the single pending recovery request. ReadyAt of zero means no
// escape is pending, in which case Type must be EscapeTypeNone.
type Escape struct {
	ReadyAt   int64
	Type      EscapeType
	NewSigner []byte
}

func (e Escape) Clone() Escape {
	out := e
	if e.NewSigner != nil {
		out.NewSigner = make([]byte, len(e.NewSigner))
		copy(out.NewSigner, e.NewSigner)
	}
	return out
}

// StatusAt derives the escape status from the stored ready timestamp and the
// supplied current time.
func StatusAt(readyAt, now int64) EscapeStatus {
	if readyAt == 0 {
		return EscapeStatusNone
	}
	if now < readyAt {
		return EscapeStatusNotReady
	}
	if now >= readyAt+ExpiryPeriod {
		return EscapeStatusExpired
	}
	return EscapeStatusReady
}

// State is the full mutable record of one account. Keys are stored compressed;
// the empty slice is the null key. Guardian of null disables the guardian
// features entirely, and implies a null backup.
type State struct {
	Owner                  []byte
	Guardian               []byte
	GuardianBackup         []byte
	Escape                 Escape
	OwnerEscapeAttempts    uint32
	GuardianEscapeAttempts uint32
}

func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Escape:                 s.Escape.Clone(),
		OwnerEscapeAttempts:    s.OwnerEscapeAttempts,
		GuardianEscapeAttempts: s.GuardianEscapeAttempts,
	}
	out.Owner = append([]byte(nil), s.Owner...)
	out.Guardian = append([]byte(nil), s.Guardian...)
	out.GuardianBackup = append([]byte(nil), s.GuardianBackup...)
	return out
}

// Invocation carries the per-call context the engine needs for authorization
// and rate limiting: who is calling, the declared max fee, and whether the
// call arrived through the outside-execution entrypoint.
type Invocation struct {
	Caller  [20]byte
	MaxFee  *big.Int
	Outside bool
}

// SelfInvocation builds the context for a call the account makes to itself
// after signature validation.
func SelfInvocation(account [20]byte) Invocation {
	return Invocation{Caller: account}
}
