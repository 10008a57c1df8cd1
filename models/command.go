package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdScrapeNow      CommandType = "scrape_now"
	CmdScrapeListings CommandType = "scrape_listings"
	CmdScrapePhones   CommandType = "scrape_phones"
	CmdPause          CommandType = "pause"
	CmdResume         CommandType = "resume"
)

func (c CommandType) Valid() bool {
	switch c {
	case CmdScrapeNow, CmdScrapeListings, CmdScrapePhones, CmdPause, CmdResume:
		return true
	}
	return false
}

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Clear     bool `json:"clear,omitempty"`
	MaxPhones int  `json:"max_phones,omitempty"`
}
