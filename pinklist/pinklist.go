// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pinklist implements the persistent peer ban list. Peers that
// supply provably malicious objects are pink-listed; the list survives
// restarts so repeat offenders stay banned.
package pinklist

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes. Permanent entries survive until explicitly removed; epoch
// entries are purged when the chain crosses into a new epoch.
var (
	permPrefix  = []byte("p/")
	epochPrefix = []byte("e/")
)

// List is a persistent set of banned peer addresses backed by a leveldb
// store.
type List struct {
	mtx sync.Mutex
	db  *leveldb.DB

	// disabled suppresses all bans; used by operators replaying known
	// chains where punishing peers is meaningless.
	disabled bool
}

// Open opens (creating if necessary) the pink list at the given directory.
func Open(path string) (*List, error) {
	db, err := leveldb.OpenFile(path, nil)
	if ldberrors.IsCorrupted(err) {
		log.Warnf("Pink list at %s is corrupted, recovering", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pink list at %s", path)
	}
	return &List{db: db}, nil
}

// Close closes the underlying store. It is idempotent.
func (l *List) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Disable suppresses all future bans.
func (l *List) Disable() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.disabled = true
}

func (l *List) put(prefix []byte, peer string) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.db == nil || l.disabled || peer == "" {
		return nil
	}
	key := append(append([]byte{}, prefix...), peer...)
	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	return errors.Wrapf(l.db.Put(key, stamp, nil), "failed to pink-list %s", peer)
}

// Pink permanently bans a peer.
func (l *List) Pink(peer string) error {
	log.Infof("Pink-listing peer %s", peer)
	return l.put(permPrefix, peer)
}

// EpochPink bans a peer for the remainder of the current epoch.
func (l *List) EpochPink(peer string) error {
	log.Infof("Epoch pink-listing peer %s", peer)
	return l.put(epochPrefix, peer)
}

// IsPinklisted returns whether the peer appears on either list.
func (l *List) IsPinklisted(peer string) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.db == nil || peer == "" {
		return false
	}
	for _, prefix := range [][]byte{permPrefix, epochPrefix} {
		key := append(append([]byte{}, prefix...), peer...)
		if ok, _ := l.db.Has(key, nil); ok {
			return true
		}
	}
	return false
}

// PurgeEpoch clears the epoch list. Called when the chain crosses a
// neo-genesis boundary.
func (l *List) PurgeEpoch() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.db == nil {
		return nil
	}
	iter := l.db.NewIterator(util.BytesPrefix(epochPrefix), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "failed to scan epoch pink list")
	}
	return errors.Wrap(l.db.Write(batch, nil), "failed to purge epoch pink list")
}
