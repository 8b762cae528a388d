package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/guardian-recovery/api"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/recovery"
)

// APIError is a non-2xx reply.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with code %d: %s", e.StatusCode, e.Message)
}

// RecoveryClient talks to the recovery server.
type RecoveryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRecoveryClient creates a client. The optional timeout defaults to 30 seconds.
func NewRecoveryClient(baseURL string, timeout ...time.Duration) *RecoveryClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &RecoveryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

func (c *RecoveryClient) walletURL(wallet common.Address, suffix string) string {
	return fmt.Sprintf("%s/api/v1/wallets/%s%s", c.baseURL, wallet.Hex(), suffix)
}

// do sends body as JSON (when non-nil) and decodes a 2xx reply into out.
func (c *RecoveryClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		respBody, _ := io.ReadAll(resp.Body)
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
		} else {
			apiErr.Message = string(respBody)
		}
		if seconds, err := strconv.ParseInt(resp.Header.Get("Retry-After"), 10, 64); err == nil {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *RecoveryClient) ImportKey(ctx context.Context, walletID string, key []byte, password string) (*api.ImportKeyResponse, error) {
	var out api.ImportKeyResponse
	err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/keys", api.ImportKeyRequest{
		WalletID:   walletID,
		PrivateKey: key,
		Password:   password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword re-encrypts a stored wallet key; oldPassword must unlock it.
func (c *RecoveryClient) ChangePassword(ctx context.Context, walletID, oldPassword, newPassword string) error {
	endpoint := fmt.Sprintf("%s/api/v1/keys/%s/password", c.baseURL, url.PathEscape(walletID))
	return c.do(ctx, http.MethodPost, endpoint, api.ChangePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	}, nil)
}

func (c *RecoveryClient) SetupGuardians(ctx context.Context, wallet common.Address, req api.SetupGuardiansRequest) (*api.SetupGuardiansResponse, error) {
	var out api.SetupGuardiansResponse
	if err := c.do(ctx, http.MethodPost, c.walletURL(wallet, "/guardians"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecoveryClient) AcceptGuardianship(ctx context.Context, wallet, guardian common.Address, signature []byte) (*api.GuardianView, error) {
	var out api.GuardianResponse
	endpoint := c.walletURL(wallet, "/guardians/"+guardian.Hex()+"/accept")
	if err := c.do(ctx, http.MethodPost, endpoint, api.SignedRequest{Signature: signature}, &out); err != nil {
		return nil, err
	}
	return &out.Guardian, nil
}

func (c *RecoveryClient) RevokeGuardian(ctx context.Context, wallet, guardian common.Address, ownerSignature []byte) (*api.GuardianView, error) {
	var out api.GuardianResponse
	endpoint := c.walletURL(wallet, "/guardians/"+guardian.Hex()+"/revoke")
	if err := c.do(ctx, http.MethodPost, endpoint, api.SignedRequest{Signature: ownerSignature}, &out); err != nil {
		return nil, err
	}
	return &out.Guardian, nil
}

func (c *RecoveryClient) InitiateRecovery(ctx context.Context, wallet, requestor common.Address) (*api.InitiateRecoveryResponse, error) {
	var out api.InitiateRecoveryResponse
	if err := c.do(ctx, http.MethodPost, c.walletURL(wallet, "/recovery"), api.InitiateRecoveryRequest{Requestor: requestor}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecoveryClient) RecoveryStatus(ctx context.Context, wallet common.Address) (*api.RecoveryStatusResponse, error) {
	var out api.RecoveryStatusResponse
	if err := c.do(ctx, http.MethodGet, c.walletURL(wallet, "/recovery"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecoveryClient) ApproveRecovery(ctx context.Context, wallet, guardian common.Address, share interfaces.SecretShare, signature []byte) (*api.ApproveRecoveryResponse, error) {
	var out api.ApproveRecoveryResponse
	err := c.do(ctx, http.MethodPost, c.walletURL(wallet, "/recovery/approve"), api.ApproveRecoveryRequest{
		Guardian:  guardian,
		Share:     share,
		Signature: signature,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteRecovery completes the approved request. requestorSignature is the requestor's
// signature over recovery.CompleteMessage.
func (c *RecoveryClient) CompleteRecovery(ctx context.Context, wallet common.Address, newPassword string, requestorSignature []byte) (*api.CompleteRecoveryResponse, error) {
	var out api.CompleteRecoveryResponse
	req := api.CompleteRecoveryRequest{NewPassword: newPassword, Signature: requestorSignature}
	if err := c.do(ctx, http.MethodPost, c.walletURL(wallet, "/recovery/complete"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecoveryClient) CancelRecovery(ctx context.Context, wallet common.Address, ownerSignature []byte) (*api.CancelRecoveryResponse, error) {
	var out api.CancelRecoveryResponse
	if err := c.do(ctx, http.MethodPost, c.walletURL(wallet, "/recovery/cancel"), api.SignedRequest{Signature: ownerSignature}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecoveryClient) SetupInheritance(ctx context.Context, wallet, beneficiary common.Address, period time.Duration, ownerSignature []byte) (*api.InheritanceResponse, error) {
	var out api.InheritanceResponse
	err := c.do(ctx, http.MethodPost, c.walletURL(wallet, "/inheritance"), api.SetupInheritanceRequest{
		Beneficiary:             beneficiary,
		InactivityPeriodSeconds: int64(period / time.Second),
		Signature:               ownerSignature,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecoveryClient) CheckIn(ctx context.Context, wallet common.Address, ownerSignature []byte) (*api.CheckInResponse, error) {
	var out api.CheckInResponse
	if err := c.do(ctx, http.MethodPost, c.walletURL(wallet, "/inheritance/checkin"), api.SignedRequest{Signature: ownerSignature}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecoveryClient) ClaimInheritance(ctx context.Context, wallet, beneficiary common.Address, signature []byte) (*api.InitiateRecoveryResponse, error) {
	var out api.InitiateRecoveryResponse
	err := c.do(ctx, http.MethodPost, c.walletURL(wallet, "/inheritance/claim"), api.ClaimInheritanceRequest{
		Beneficiary: beneficiary,
		Signature:   signature,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchNotifications drains the guardian's mailbox, signing the request with guardianKey.
func (c *RecoveryClient) FetchNotifications(ctx context.Context, guardianKey *ecdsa.PrivateKey) ([]interfaces.Notification, error) {
	guardian := crypto.PubkeyToAddress(guardianKey.PublicKey)
	now := time.Now()
	sig, err := cryptoutils.SignMessage(guardianKey, recovery.NotificationsMessage(guardian, now))
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("timestamp", strconv.FormatInt(now.Unix(), 10))
	query.Set("signature", hexutil.Encode(sig))
	endpoint := fmt.Sprintf("%s/api/v1/guardians/%s/notifications?%s", c.baseURL, guardian.Hex(), query.Encode())

	var out api.NotificationsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *RecoveryClient) SealStatus(ctx context.Context) (*api.SealStatusResponse, error) {
	var out api.SealStatusResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v1/seal/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitSealShare sends an operator's decrypted sealing share.
func (c *RecoveryClient) SubmitSealShare(ctx context.Context, share, signature, operatorPubKeyPEM []byte) (*api.SealStatusResponse, error) {
	var out api.SealStatusResponse
	err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/seal/share", api.SubmitSealShareRequest{
		Share:          share,
		Signature:      signature,
		OperatorPubKey: string(operatorPubKeyPEM),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
