// SPDX-FileCopyrightText: 2018, 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import "encoding/json"

// BlockControlFlags is an uint8 which represents the Block Processing Control
// Flags as specified in 4.1.4.
type BlockControlFlags uint8

const (
	// DeleteBundle: Bundle must be deleted if this block can't be processed.
	DeleteBundle BlockControlFlags = 0x08

	// StatusReportBlock: Transmission of a status report is requested if this
	// block can't be processed.
	StatusReportBlock BlockControlFlags = 0x04

	// RemoveBlock: Block must be removed from the bundle if it can't be processed.
	RemoveBlock BlockControlFlags = 0x02

	// ReplicateBlock: This block must be replicated in every fragment.
	ReplicateBlock BlockControlFlags = 0x01
)

// Has returns true if a given flag or mask of flags is set.
func (bcf BlockControlFlags) Has(flag BlockControlFlags) bool {
	return (bcf & flag) != 0
}

// CheckValid returns an array of errors for incorrect data.
//
// Since dtn-bpbis-24, all bit masks are valid Block Processing Control Flags.
func (bcf BlockControlFlags) CheckValid() error {
	return nil
}

// MarshalJSON creates a JSON array of the names of all set flags, or null if no flag is set.
func (bcf BlockControlFlags) MarshalJSON() ([]byte, error) {
	var fields []string
	for _, check := range []struct {
		flag BlockControlFlags
		name string
	}{{DeleteBundle, "DELETE_BUNDLE"}, {StatusReportBlock, "REQUEST_STATUS_REPORT"},
		{RemoveBlock, "REMOVE_BLOCK"}, {ReplicateBlock, "REPLICATE_BLOCK"}} {
		if bcf.Has(check.flag) {
			fields = append(fields, check.name)
		}
	}
	return json.Marshal(fields)
}
