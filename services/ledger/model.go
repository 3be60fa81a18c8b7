package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	EntryTypeCredit = "CREDIT"
	EntryTypeDebit  = "DEBIT"

	GenesisHash = "GENESIS"
)

type Balance struct {
	ID        string          `gorm:"column:id;primaryKey" json:"id"`
	Account   string          `gorm:"column:account;uniqueIndex:idx_balance_account_asset" json:"account"`
	Asset     string          `gorm:"column:asset;uniqueIndex:idx_balance_account_asset" json:"asset"`
	Amount    decimal.Decimal `gorm:"column:amount;type:text" json:"amount"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Balance) TableName() string { return "ledger_balances" }

// Allowance lets Spender pull up to Amount of Asset from Owner.
type Allowance struct {
	ID        string          `gorm:"column:id;primaryKey" json:"id"`
	Owner     string          `gorm:"column:owner;uniqueIndex:idx_allowance_owner_spender_asset" json:"owner"`
	Spender   string          `gorm:"column:spender;uniqueIndex:idx_allowance_owner_spender_asset" json:"spender"`
	Asset     string          `gorm:"column:asset;uniqueIndex:idx_allowance_owner_spender_asset" json:"asset"`
	Amount    decimal.Decimal `gorm:"column:amount;type:text" json:"amount"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Allowance) TableName() string { return "ledger_allowances" }

// LedgerEntry is one balance movement. Entries of an account form a hash
// chain ordered by Seq.
type LedgerEntry struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
	Account       string          `gorm:"column:account;uniqueIndex:idx_entry_account_seq" json:"account"`
	Seq           int64           `gorm:"column:seq;uniqueIndex:idx_entry_account_seq" json:"seq"`
	Asset         string          `gorm:"column:asset" json:"asset"`
	Type          string          `gorm:"column:type" json:"type"`
	Amount        decimal.Decimal `gorm:"column:amount;type:text" json:"amount"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:text" json:"balance_after"`
	Counterparty  string          `gorm:"column:counterparty" json:"counterparty,omitempty"`
	TransactionID string          `gorm:"column:transaction_id;index" json:"transaction_id"`
	ReferenceID   string          `gorm:"column:reference_id" json:"reference_id,omitempty"`
	PreviousHash  string          `gorm:"column:previous_hash" json:"previous_hash"`
	Hash          string          `gorm:"column:hash" json:"hash"`
	Metadata      datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

type LedgerParams struct {
	LedgerID      string
	Account       string
	Seq           int64
	Asset         string
	Type          string
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	Counterparty  string
	TransactionID string
	ReferenceID   string
	PreviousHash  string
	CreatedAt     time.Time
	Metadata      datatypes.JSON
}

func NewLedgerEntry(p LedgerParams) *LedgerEntry {
	e := &LedgerEntry{
		ID:            p.LedgerID,
		CreatedAt:     p.CreatedAt.UTC().Truncate(time.Microsecond),
		Account:       p.Account,
		Seq:           p.Seq,
		Asset:         p.Asset,
		Type:          p.Type,
		Amount:        p.Amount,
		BalanceAfter:  p.BalanceAfter,
		Counterparty:  p.Counterparty,
		TransactionID: p.TransactionID,
		ReferenceID:   p.ReferenceID,
		PreviousHash:  p.PreviousHash,
		Metadata:      p.Metadata,
	}
	e.Hash = e.GenerateHash()
	return e
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":             m.ID,
		"account":        m.Account,
		"seq":            fmt.Sprintf("%d", m.Seq),
		"asset":          m.Asset,
		"type":           m.Type,
		"amount":         m.Amount.String(),
		"balance_after":  m.BalanceAfter.String(),
		"counterparty":   m.Counterparty,
		"transaction_id": m.TransactionID,
		"reference_id":   m.ReferenceID,
		"created_at":     m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":  m.PreviousHash,
	}
}

func (m *LedgerEntry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

func GenerateTransactionID(now time.Time) (string, error) {
	datePart := now.UTC().Format("20060102")

	r := make([]byte, 4)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}

	return fmt.Sprintf("TX-%s-%s", datePart, strings.ToUpper(hex.EncodeToString(r))), nil
}
