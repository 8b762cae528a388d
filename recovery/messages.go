package recovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/guardian-recovery/field"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// Messages below are signed with EIP-191 personal_sign. Each binds the signer to a
// specific wallet and, where a replay would matter, to the current request or state.

const messagePrefix = "guardian-recovery"

func walletLine(wallet common.Address) string {
	return "wallet: " + strings.ToLower(wallet.Hex())
}

// ApprovalMessage is signed by a guardian approving request requestID with share.
func ApprovalMessage(wallet common.Address, requestID string, share interfaces.SecretShare) []byte {
	var y []byte
	if share.Value != nil && field.InRange(share.Value) {
		y = field.ToBytes(share.Value)
	}
	return []byte(fmt.Sprintf("%s: approve recovery\n%s\nrequest: %s\nshare: %d:%x",
		messagePrefix, walletLine(wallet), requestID, share.Index, y))
}

// CancelMessage is signed by the wallet owner to cancel request requestID.
func CancelMessage(wallet common.Address, requestID string) []byte {
	return []byte(fmt.Sprintf("%s: cancel recovery\n%s\nrequest: %s",
		messagePrefix, walletLine(wallet), requestID))
}

// CompleteMessage is signed by the requestor completing request requestID. The new
// credential enters the message only as a hash.
func CompleteMessage(wallet common.Address, requestID, newCredential string) []byte {
	return []byte(fmt.Sprintf("%s: complete recovery\n%s\nrequest: %s\ncredential: %s",
		messagePrefix, walletLine(wallet), requestID, crypto.Keccak256Hash([]byte(newCredential)).Hex()))
}

// AcceptMessage is signed by a guardian accepting guardianship of wallet.
func AcceptMessage(wallet, guardian common.Address) []byte {
	return []byte(fmt.Sprintf("%s: accept guardianship\n%s\nguardian: %s",
		messagePrefix, walletLine(wallet), strings.ToLower(guardian.Hex())))
}

// RevokeMessage is signed by the wallet owner. configCreatedAt ties it to one guardian setup.
func RevokeMessage(wallet, guardian common.Address, configCreatedAt time.Time) []byte {
	return []byte(fmt.Sprintf("%s: revoke guardian\n%s\nguardian: %s\nsetup: %d",
		messagePrefix, walletLine(wallet), strings.ToLower(guardian.Hex()), configCreatedAt.Unix()))
}

// InheritanceMessage is signed by the wallet owner configuring a beneficiary.
func InheritanceMessage(wallet, beneficiary common.Address, inactivityPeriod time.Duration) []byte {
	return []byte(fmt.Sprintf("%s: setup inheritance\n%s\nbeneficiary: %s\nperiod: %d",
		messagePrefix, walletLine(wallet), strings.ToLower(beneficiary.Hex()), int64(inactivityPeriod/time.Second)))
}

// CheckInMessage is signed by the wallet owner. Including the previous check-in time
// makes every signature usable once.
func CheckInMessage(wallet common.Address, lastActivityCheck time.Time) []byte {
	return []byte(fmt.Sprintf("%s: check in\n%s\nlast: %d",
		messagePrefix, walletLine(wallet), lastActivityCheck.UnixNano()))
}

// ClaimMessage is signed by the beneficiary claiming the wallet.
func ClaimMessage(wallet, beneficiary common.Address) []byte {
	return []byte(fmt.Sprintf("%s: claim inheritance\n%s\nbeneficiary: %s",
		messagePrefix, walletLine(wallet), strings.ToLower(beneficiary.Hex())))
}

// NotificationsMessage is signed by a guardian fetching its mailbox. The timestamp
// bounds how long a signature can be replayed.
func NotificationsMessage(guardian common.Address, timestamp time.Time) []byte {
	return []byte(fmt.Sprintf("%s: fetch notifications\nguardian: %s\ntimestamp: %d",
		messagePrefix, strings.ToLower(guardian.Hex()), timestamp.Unix()))
}
