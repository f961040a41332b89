package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CounterpartySnapshot freezes the business-facing fields of a party at order creation.
// It is never updated afterwards; live profile data is served separately.
type CounterpartySnapshot struct {
	Handle      string  `json:"handle"`
	CompanyName string  `json:"company_name"`
	City        *string `json:"city,omitempty"`
	CountryCode *string `json:"country_code,omitempty"`
	VATID       *string `json:"vat_id,omitempty"`
}

// Value marshals the snapshot into JSON for Postgres.
func (s CounterpartySnapshot) Value() (driver.Value, error) {
	buf, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes JSONB into the snapshot.
func (s *CounterpartySnapshot) Scan(value interface{}) error {
	if value == nil {
		*s = CounterpartySnapshot{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("counterparty snapshot: unsupported scan type %T", value)
	}

	var out CounterpartySnapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*s = out
	return nil
}
