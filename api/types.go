package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	// RetryAfterSeconds is set for timelock and inactivity rejections
	RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
}

// ImportKeyRequest stores a wallet private key under a password.
type ImportKeyRequest struct {
	WalletID   string        `json:"wallet_id"`
	PrivateKey hexutil.Bytes `json:"private_key"`
	Password   string        `json:"password"`
}

type ImportKeyResponse struct {
	WalletID string         `json:"wallet_id"`
	Address  common.Address `json:"address"`
}

// ChangePasswordRequest re-encrypts a stored wallet key.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// GuardianSpec names a guardian and the secp256k1 public key its share is encrypted to.
type GuardianSpec struct {
	Address   common.Address `json:"address"`
	PublicKey hexutil.Bytes  `json:"public_key"`
}

// SetupGuardiansRequest is posted to /api/v1/wallets/{wallet}/guardians.
type SetupGuardiansRequest struct {
	WalletID  string         `json:"wallet_id"`
	Guardians []GuardianSpec `json:"guardians"`
	Threshold int            `json:"threshold"`
	Password  string         `json:"password"`
}

// GuardianView is the public part of a guardian record.
type GuardianView struct {
	Address      common.Address            `json:"address"`
	ShareIndex   int                       `json:"share_index"`
	Status       interfaces.GuardianStatus `json:"status"`
	AddedAt      time.Time                 `json:"added_at,omitempty"`
	LastActivity *time.Time                `json:"last_activity,omitempty"`
}

// NewGuardianView strips the delivery payload from a guardian record.
func NewGuardianView(g interfaces.GuardianConfig) GuardianView {
	return GuardianView{
		Address:      g.Address,
		ShareIndex:   g.ShareIndex,
		Status:       g.Status,
		AddedAt:      g.AddedAt,
		LastActivity: g.LastActivity,
	}
}

type SetupGuardiansResponse struct {
	WalletAddress common.Address   `json:"wallet_address"`
	Threshold     int              `json:"threshold"`
	Guardians     []GuardianView   `json:"guardians"`
	Undelivered   []common.Address `json:"undelivered,omitempty"`
}

// SignedRequest carries an EIP-191 signature over the message of the operation.
type SignedRequest struct {
	Signature hexutil.Bytes `json:"signature"`
}

type GuardianResponse struct {
	Guardian GuardianView `json:"guardian"`
}

type InitiateRecoveryRequest struct {
	Requestor common.Address `json:"requestor"`
}

type InitiateRecoveryResponse struct {
	RequestID         string                 `json:"request_id"`
	Kind              interfaces.RequestKind `json:"kind"`
	TimelockEnds      time.Time              `json:"timelock_ends"`
	RequiredApprovals int                    `json:"required_approvals"`
	GuardianCount     int                    `json:"guardian_count"`
}

type ApproveRecoveryRequest struct {
	Guardian  common.Address         `json:"guardian"`
	Share     interfaces.SecretShare `json:"share"`
	Signature hexutil.Bytes          `json:"signature"`
}

type ApproveRecoveryResponse struct {
	ApprovalCount int  `json:"approval_count"`
	Threshold     int  `json:"threshold"`
	CanRecover    bool `json:"can_recover"`
}

// CompleteRecoveryRequest is signed by the requestor over recovery.CompleteMessage.
type CompleteRecoveryRequest struct {
	NewPassword string        `json:"new_password"`
	Signature   hexutil.Bytes `json:"signature"`
}

type CompleteRecoveryResponse struct {
	RequestID string         `json:"request_id"`
	WalletID  string         `json:"wallet_id"`
	Address   common.Address `json:"address"`
}

type CancelRecoveryResponse struct {
	RequestID string                    `json:"request_id"`
	Status    interfaces.RecoveryStatus `json:"status"`
}

type SetupInheritanceRequest struct {
	Beneficiary common.Address `json:"beneficiary"`
	// InactivityPeriodSeconds of zero selects the server default
	InactivityPeriodSeconds int64         `json:"inactivity_period_seconds"`
	Signature               hexutil.Bytes `json:"signature"`
}

type InheritanceResponse struct {
	Beneficiary             common.Address `json:"beneficiary"`
	InactivityPeriodSeconds int64          `json:"inactivity_period_seconds"`
	NextCheckIn             time.Time      `json:"next_check_in"`
}

type CheckInResponse struct {
	Message     string     `json:"message"`
	NextCheckIn *time.Time `json:"next_check_in,omitempty"`
}

type ClaimInheritanceRequest struct {
	Beneficiary common.Address `json:"beneficiary"`
	Signature   hexutil.Bytes  `json:"signature"`
}

// RecoveryStatusResponse never contains share material.
type RecoveryStatusResponse struct {
	WalletAddress           common.Address              `json:"wallet_address"`
	HasGuardians            bool                        `json:"has_guardians"`
	GuardianCount           int                         `json:"guardian_count"`
	ActiveGuardians         int                         `json:"active_guardians"`
	Threshold               int                         `json:"threshold"`
	Guardians               []GuardianView              `json:"guardians"`
	ActiveRecovery          bool                        `json:"active_recovery"`
	InheritanceEnabled      bool                        `json:"inheritance_enabled"`
	Beneficiary             *common.Address             `json:"beneficiary,omitempty"`
	InactivityPeriodSeconds int64                       `json:"inactivity_period_seconds,omitempty"`
	LastActivityCheck       *time.Time                  `json:"last_activity_check,omitempty"`
	Request                 *interfaces.RecoveryRequest `json:"request,omitempty"`
}

type NotificationsResponse struct {
	Notifications []interfaces.Notification `json:"notifications"`
}

// SubmitSealShareRequest unlocks at-rest sealing. Share is the operator's decrypted
// share, Signature an ASN.1 ECDSA signature over its SHA-256.
type SubmitSealShareRequest struct {
	Share          []byte `json:"share"`
	Signature      []byte `json:"signature"`
	OperatorPubKey string `json:"operator_pubkey"`
}

type SealStatusResponse struct {
	Unlocked  bool `json:"unlocked"`
	Threshold int  `json:"threshold"`
	Operators int  `json:"operators"`
	Received  int  `json:"received"`
}
