package models

import (
	"encoding/hex"
	"maps"
	"slices"
	"time"

	"golang.org/x/crypto/blake2b"
)

type DACStatus string

const (
	DACStatusPending DACStatus = "pending"
	DACStatusSuccess DACStatus = "success"
	DACStatusFailed  DACStatus = "failed"
)

const SupersededReasonReplaced = "replaced by newer successful submission"

// FieldDigests maps a flattened field key to the hex digest of its submitted value.
type FieldDigests map[string]string

// DigestFields hashes every value together with its key so the snapshot
// never holds raw traveler data.
func DigestFields(fields map[string]string) FieldDigests {
	digests := make(FieldDigests, len(fields))
	for key, value := range fields {
		sum := blake2b.Sum256([]byte(key + "\x00" + value))
		digests[key] = hex.EncodeToString(sum[:])
	}
	return digests
}

// Differs reports the snapshotted keys whose current value no longer matches.
// With no keys every snapshotted key is checked. Keys outside the snapshot
// are ignored.
func (d FieldDigests) Differs(current map[string]string, keys []string) []string {
	if len(keys) == 0 {
		keys = slices.Sorted(maps.Keys(d))
	}

	now := DigestFields(current)
	var changed []string
	for _, key := range keys {
		submitted, ok := d[key]
		if !ok || slices.Contains(changed, key) {
			continue
		}
		if now[key] != submitted {
			changed = append(changed, key)
		}
	}
	return changed
}

// ChangedFields lists the keys whose values differ between two Fields() maps.
func ChangedFields(before, after map[string]string) []string {
	var changed []string
	for key, value := range after {
		if before[key] != value {
			changed = append(changed, key)
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changed = append(changed, key)
		}
	}
	slices.Sort(changed)
	return changed
}

type DigitalArrivalCard struct {
	BaseUUIDModel
	EntryInfoID      string       `gorm:"type:varchar(64);not null;index:idx_dac_current,priority:1" json:"entryInfoId"`
	CardType         string       `gorm:"type:varchar(32);not null;index:idx_dac_current,priority:2" json:"cardType"`
	IsSuperseded     bool         `gorm:"not null;default:false;index:idx_dac_current,priority:3"    json:"isSuperseded"`
	Status           DACStatus    `gorm:"type:varchar(16);not null;index:idx_dac_current,priority:4" json:"status"`
	ArrCardNo        *string      `gorm:"column:arr_card_no;type:varchar(64)"                        json:"arrCardNo,omitempty"`
	QRURI            *string      `gorm:"column:qr_uri;type:text"                                    json:"qrUri,omitempty"`
	PDFURL           *string      `gorm:"column:pdf_url;type:text"                                   json:"pdfUrl,omitempty"`
	ErrorDetails     *string      `gorm:"type:text"                                                  json:"errorDetails,omitempty"`
	SubmittedAt      time.Time    `gorm:"not null"                                                   json:"submittedAt"`
	SupersededAt     *time.Time   `                                                                  json:"supersededAt,omitempty"`
	SupersededBy     *string      `gorm:"type:varchar(64)"                                           json:"supersededBy,omitempty"`
	SupersededReason *string      `gorm:"type:varchar(255)"                                          json:"supersededReason,omitempty"`
	Version          int          `gorm:"not null"                                                   json:"version"`
	SnapshotDigests  FieldDigests `gorm:"type:text;serializer:json"                                  json:"-"`
}

func (DigitalArrivalCard) TableName() string {
	return "digital_arrival_cards"
}

func (d DigitalArrivalCard) IsCurrent() bool {
	return d.Status == DACStatusSuccess && !d.IsSuperseded
}

// SubmissionResult is what the DAC service answers for one attempt.
type SubmissionResult struct {
	Status       DACStatus `json:"status"`
	ArrCardNo    string    `json:"arrCardNo,omitempty"`
	QRURI        string    `json:"qrUri,omitempty"`
	PDFURL       string    `json:"pdfUrl,omitempty"`
	ErrorDetails string    `json:"errorDetails,omitempty"`
}

// SubmissionRequest is the traveler/trip context handed to the DAC service.
type SubmissionRequest struct {
	EntryInfoID string            `json:"entryInfoId"`
	CardType    string            `json:"cardType"`
	Destination string            `json:"destination"`
	Nationality string            `json:"nationality"`
	Fields      map[string]string `json:"fields"`
}
