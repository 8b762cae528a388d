// Package interfaces defines the core interfaces and types for the guardian recovery system.
// It provides the contract between different components without implementation details.
package interfaces

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SecretShare is one point (x, f(x)) of a secret-sharing polynomial.
// Index is never zero.
type SecretShare struct {
	Index int
	Value *big.Int
}

type secretShareJSON struct {
	X int    `json:"x"`
	Y string `json:"y"`
}

// MarshalJSON encodes the share as {"x": index, "y": "<64 hex chars>"}.
func (s SecretShare) MarshalJSON() ([]byte, error) {
	y := ""
	if s.Value != nil {
		buf := make([]byte, 32)
		s.Value.FillBytes(buf)
		y = hex.EncodeToString(buf)
	}
	return json.Marshal(secretShareJSON{X: s.Index, Y: y})
}

// UnmarshalJSON decodes the {"x","y"} form. A 0x prefix on y is accepted.
func (s *SecretShare) UnmarshalJSON(data []byte) error {
	var raw secretShareJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	y := strings.TrimPrefix(raw.Y, "0x")
	v, ok := new(big.Int).SetString(y, 16)
	if !ok {
		return fmt.Errorf("invalid share value %q", raw.Y)
	}
	s.Index = raw.X
	s.Value = v
	return nil
}

// Wipe zeroes the share value in place.
func (s *SecretShare) Wipe() {
	if s.Value != nil {
		s.Value.SetInt64(0)
	}
}

// GuardianStatus is the lifecycle status of a guardian.
type GuardianStatus string

const (
	GuardianPending  GuardianStatus = "pending_acceptance"
	GuardianAccepted GuardianStatus = "accepted"
	GuardianRevoked  GuardianStatus = "revoked"
)

// RecoveryStatus is the state of a wallet's recovery process.
type RecoveryStatus string

const (
	StatusNormal            RecoveryStatus = "normal"
	StatusRecoveryInitiated RecoveryStatus = "recovery_initiated"
	StatusWaitingGuardians  RecoveryStatus = "waiting_guardians"
	StatusRecoveryApproved  RecoveryStatus = "recovery_approved"
	StatusCompleted         RecoveryStatus = "completed"
	StatusCancelled         RecoveryStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RecoveryStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the status belongs to an in-flight request.
func (s RecoveryStatus) IsActive() bool {
	switch s {
	case StatusRecoveryInitiated, StatusWaitingGuardians, StatusRecoveryApproved:
		return true
	default:
		return false
	}
}

// RequestKind distinguishes guardian recoveries from inheritance claims.
type RequestKind string

const (
	KindRecovery    RequestKind = "recovery"
	KindInheritance RequestKind = "inheritance"
)

// GuardianConfig describes one guardian of a wallet.
type GuardianConfig struct {
	WalletID        string         `json:"wallet_id"`
	Address         common.Address `json:"address"`
	PublicKey       []byte         `json:"public_key"`
	ShareIndex      int            `json:"share_index"`
	DeliveryPayload []byte         `json:"delivery_payload"`
	// ShareCommitment binds the guardian to the exact share value issued at setup
	ShareCommitment []byte         `json:"share_commitment"`
	Status          GuardianStatus `json:"status"`
	AddedAt         time.Time      `json:"added_at"`
	LastActivity    *time.Time     `json:"last_activity,omitempty"`
}

// RecoveryConfig is the per-wallet guardian and inheritance configuration.
type RecoveryConfig struct {
	WalletID           string           `json:"wallet_id"`
	WalletAddress      common.Address   `json:"wallet_address"`
	Guardians          []GuardianConfig `json:"guardians"`
	Threshold          int              `json:"threshold"`
	Status             RecoveryStatus   `json:"status"`
	CreatedAt          time.Time        `json:"created_at"`
	InheritanceEnabled bool             `json:"inheritance_enabled"`
	Beneficiary        *common.Address  `json:"beneficiary,omitempty"`
	InactivityPeriod   time.Duration    `json:"inactivity_period"`
	LastActivityCheck  time.Time        `json:"last_activity_check"`
}

// Guardian returns the guardian with the given address, or nil.
func (c *RecoveryConfig) Guardian(addr common.Address) *GuardianConfig {
	for i := range c.Guardians {
		if c.Guardians[i].Address == addr {
			return &c.Guardians[i]
		}
	}
	return nil
}

// ActiveGuardians counts guardians that have not been revoked.
func (c *RecoveryConfig) ActiveGuardians() int {
	n := 0
	for _, g := range c.Guardians {
		if g.Status != GuardianRevoked {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so mutations can be validated before being persisted.
func (c *RecoveryConfig) Clone() *RecoveryConfig {
	out := *c
	out.Guardians = make([]GuardianConfig, len(c.Guardians))
	for i, g := range c.Guardians {
		g.PublicKey = append([]byte(nil), g.PublicKey...)
		g.DeliveryPayload = append([]byte(nil), g.DeliveryPayload...)
		g.ShareCommitment = append([]byte(nil), g.ShareCommitment...)
		if g.LastActivity != nil {
			t := *g.LastActivity
			g.LastActivity = &t
		}
		out.Guardians[i] = g
	}
	if c.Beneficiary != nil {
		b := *c.Beneficiary
		out.Beneficiary = &b
	}
	return &out
}

// RecoveryRequest is one recovery attempt for a wallet.
type RecoveryRequest struct {
	ID               string           `json:"id"`
	Kind             RequestKind      `json:"kind"`
	WalletAddress    common.Address   `json:"wallet_address"`
	RequestorAddress common.Address   `json:"requestor_address"`
	InitiatedAt      time.Time        `json:"initiated_at"`
	TimelockEnds     time.Time        `json:"timelock_ends"`
	Status           RecoveryStatus   `json:"status"`
	Approvals        []common.Address `json:"approvals"`
	SubmittedShares  []SecretShare    `json:"submitted_shares,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
}

// HasApproved reports whether addr already approved this request.
func (r *RecoveryRequest) HasApproved(addr common.Address) bool {
	for _, a := range r.Approvals {
		if a == addr {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the request.
func (r *RecoveryRequest) Clone() *RecoveryRequest {
	out := *r
	out.Approvals = append([]common.Address(nil), r.Approvals...)
	out.SubmittedShares = make([]SecretShare, len(r.SubmittedShares))
	for i, s := range r.SubmittedShares {
		out.SubmittedShares[i] = SecretShare{Index: s.Index}
		if s.Value != nil {
			out.SubmittedShares[i].Value = new(big.Int).Set(s.Value)
		}
	}
	return &out
}

// WipeShares zeroes and drops every submitted share.
func (r *RecoveryRequest) WipeShares() {
	for i := range r.SubmittedShares {
		r.SubmittedShares[i].Wipe()
	}
	r.SubmittedShares = nil
}

// Redacted returns a copy safe to expose outside the service: no share values.
func (r *RecoveryRequest) Redacted() *RecoveryRequest {
	out := *r
	out.Approvals = append([]common.Address(nil), r.Approvals...)
	out.SubmittedShares = nil
	return &out
}

// EventType names a guardian notification.
type EventType string

const (
	EventSetup              EventType = "setup"
	EventRecoveryInitiated  EventType = "recovery_initiated"
	EventRecoveryApproved   EventType = "recovery_approved"
	EventRecoveryCompleted  EventType = "recovery_completed"
	EventRecoveryCancelled  EventType = "recovery_cancelled"
	EventInheritanceClaimed EventType = "inheritance_claimed"
	EventGuardianRevoked    EventType = "guardian_revoked"
)

// Notification is a message waiting in a guardian's mailbox.
type Notification struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Payload   []byte            `json:"payload,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NormalizeAddress parses a hex address, accepting any letter case.
func NormalizeAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("invalid address: must be 40 hex characters with optional 0x prefix")
	}
	return common.HexToAddress(s), nil
}

// AddressKey is the canonical lower-case storage key for an address.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
