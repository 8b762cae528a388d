// Package notify delivers guardian notifications through per-guardian mailboxes.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// MailboxTransport implements interfaces.ShareTransport. Each guardian has a JSON
// list of pending notifications stored under notifications/<address>.
type MailboxTransport struct {
	mu      sync.Mutex
	backend interfaces.StorageBackend
	clock   clock.Clock
	log     *slog.Logger
}

// NewMailboxTransport creates a mailbox transport over backend. A nil clock means the wall clock.
func NewMailboxTransport(backend interfaces.StorageBackend, clk clock.Clock, log *slog.Logger) *MailboxTransport {
	if clk == nil {
		clk = clock.New()
	}
	return &MailboxTransport{
		backend: backend,
		clock:   clk,
		log:     log,
	}
}

// Deliver appends a notification to the guardian's mailbox.
func (m *MailboxTransport) Deliver(ctx context.Context, guardian common.Address, payload []byte, eventType interfaces.EventType, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.load(ctx, guardian)
	if err != nil {
		return err
	}

	n := interfaces.Notification{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   append([]byte(nil), payload...),
		Data:      data,
		Timestamp: m.clock.Now().UTC(),
	}
	pending = append(pending, n)

	if err := m.save(ctx, guardian, pending); err != nil {
		return err
	}

	m.log.Debug("Delivered notification",
		slog.String("guardian", guardian.Hex()),
		slog.String("type", string(eventType)),
		slog.String("id", n.ID))
	return nil
}

// FetchPending returns the guardian's notifications oldest first and empties the mailbox.
func (m *MailboxTransport) FetchPending(ctx context.Context, guardian common.Address) ([]interfaces.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.load(ctx, guardian)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return []interfaces.Notification{}, nil
	}

	if err := m.save(ctx, guardian, []interfaces.Notification{}); err != nil {
		return nil, err
	}
	return pending, nil
}

func (m *MailboxTransport) key(guardian common.Address) string {
	return interfaces.MailboxNamespace.Key(interfaces.AddressKey(guardian))
}

func (m *MailboxTransport) load(ctx context.Context, guardian common.Address) ([]interfaces.Notification, error) {
	data, err := m.backend.Get(ctx, m.key(guardian))
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox: %w", err)
	}

	var pending []interfaces.Notification
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to decode mailbox: %w", err)
	}
	return pending, nil
}

func (m *MailboxTransport) save(ctx context.Context, guardian common.Address, pending []interfaces.Notification) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode mailbox: %w", err)
	}
	if err := m.backend.Put(ctx, m.key(guardian), data); err != nil {
		return fmt.Errorf("failed to write mailbox: %w", err)
	}
	return nil
}
