// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import "sync"

// shard is one partition of a Store: an independently-locked map of Records. The bundle store is partitioned by a
// hash of BID across N shards so that concurrent submitters/forwarders touching different bundles don't contend on
// a single lock, while state transitions for any one bundle are still serialised by its shard's own mutex.
type shard struct {
	mutex   sync.Mutex
	records map[string]Record
}

func newShard() *shard {
	return &shard{records: make(map[string]Record)}
}
