package peerstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// Key 前缀
var (
	prefixPeer = []byte("peer/")
	prefixPing = []byte("ping/")
	prefixPong = []byte("pong/")
)

const (
	defaultGCInterval     = 10 * time.Minute
	defaultGCDiscardRatio = 0.5
)

// BadgerStore BadgerDB 持久化节点存储
//
// 写入失败只记录日志：接口语义是尽力而为，一次失败的时间戳写入
// 至多让节点多做一次验证。
type BadgerStore struct {
	db     *badger.DB
	closed atomic.Bool

	gcStop chan struct{}
	gcWg   sync.WaitGroup
}

var _ pkgif.PeerStore = (*BadgerStore)(nil)

// OpenBadger 打开 BadgerDB 存储
func OpenBadger(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	opts := badger.DefaultOptions(path).
		WithLogger(&badgerLogger{logger: log.Logger("core/peerstore/badger")}).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开 BadgerDB 失败: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		gcStop: make(chan struct{}),
	}
	s.gcWg.Add(1)
	go s.gcLoop(defaultGCInterval)

	logger.Info("节点存储已打开", "backend", "badger", "path", path)
	return s, nil
}

func key(prefix []byte, id types.PeerID) []byte {
	k := make([]byte, 0, len(prefix)+types.PeerIDLength)
	k = append(k, prefix...)
	return append(k, id[:]...)
}

func encodeTime(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}

func decodeTime(b []byte) (time.Time, bool) {
	if len(b) != 8 {
		return time.Time{}, false
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(b))), true
}

// InsertPeer 插入或覆盖节点
func (s *BadgerStore) InsertPeer(peer *types.Peer) bool {
	if s.closed.Load() {
		return false
	}
	data, err := peer.MarshalBinary()
	if err != nil {
		logger.Warn("编码节点失败", "peer", peer.ID().ShortString(), "err", err)
		return false
	}

	k := key(prefixPeer, peer.ID())
	isNew := false
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			isNew = true
		case err != nil:
			return err
		}
		return txn.Set(k, data)
	})
	if err != nil {
		logger.Warn("写入节点失败", "peer", peer.ID().ShortString(), "err", err)
		return false
	}
	return isNew
}

// RemovePeer 移除节点及其时间戳
func (s *BadgerStore) RemovePeer(id types.PeerID) bool {
	if s.closed.Load() {
		return false
	}
	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{prefixPeer, prefixPing, prefixPong} {
			k := key(prefix, id)
			_, err := txn.Get(k)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			removed = true
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("删除节点失败", "peer", id.ShortString(), "err", err)
		return false
	}
	return removed
}

func (s *BadgerStore) setTime(prefix []byte, id types.PeerID, t time.Time) {
	if s.closed.Load() {
		return
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(prefix, id), encodeTime(t))
	})
	if err != nil {
		logger.Debug("写入时间戳失败", "peer", id.ShortString(), "err", err)
	}
}

func (s *BadgerStore) getTime(prefix []byte, id types.PeerID) (time.Time, bool) {
	var (
		t  time.Time
		ok bool
	)
	if s.closed.Load() {
		return t, false
	}
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(prefix, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			t, ok = decodeTime(val)
			return nil
		})
	})
	return t, ok
}

// UpdateLastPing 记录 ping 时间
func (s *BadgerStore) UpdateLastPing(id types.PeerID, t time.Time) {
	s.setTime(prefixPing, id, t)
}

// UpdateLastPong 记录 pong 时间
func (s *BadgerStore) UpdateLastPong(id types.PeerID, t time.Time) {
	s.setTime(prefixPong, id, t)
}

// LastPing 返回 ping 时间
func (s *BadgerStore) LastPing(id types.PeerID) (time.Time, bool) {
	return s.getTime(prefixPing, id)
}

// LastPong 返回 pong 时间
func (s *BadgerStore) LastPong(id types.PeerID) (time.Time, bool) {
	return s.getTime(prefixPong, id)
}

// Peer 返回节点
func (s *BadgerStore) Peer(id types.PeerID) (*types.Peer, bool) {
	if s.closed.Load() {
		return nil, false
	}
	var p *types.Peer
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(prefixPeer, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p, err = types.UnmarshalPeer(val)
			return err
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logger.Debug("读取节点失败", "peer", id.ShortString(), "err", err)
		}
		return nil, false
	}
	return p, true
}

// Peers 返回全部节点
func (s *BadgerStore) Peers() []*types.Peer {
	if s.closed.Load() {
		return nil
	}
	var out []*types.Peer
	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixPeer, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				p, err := types.UnmarshalPeer(val)
				if err != nil {
					return err
				}
				out = append(out, p)
				return nil
			})
			if err != nil {
				logger.Debug("跳过损坏的节点记录", "key", string(it.Item().Key()), "err", err)
			}
		}
		return nil
	})
	return out
}

// Close 关闭数据库，可重复调用
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.gcStop)
	s.gcWg.Wait()
	return s.db.Close()
}

func (s *BadgerStore) gcLoop(interval time.Duration) {
	defer s.gcWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// 一直回收到没有可回收空间为止
			for s.db.RunValueLogGC(defaultGCDiscardRatio) == nil {
			}
		}
	}
}

// badgerLogger 把 badger 的日志转到组件 logger
type badgerLogger struct {
	logger *log.LazyLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
