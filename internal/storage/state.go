// internal/storage/state.go
package storage

import "sync/atomic"

// State 持久化后端的可达性
type State interface {
	Online() bool
}

// StorageState 进程级的在线/离线标记，由数据库引导程序创建并注入到持久化与历史查询中。
// 只有连接监控和显式重连会修改它。
type StorageState struct {
	online atomic.Bool
}

func NewStorageState(online bool) *StorageState {
	s := &StorageState{}
	s.online.Store(online)
	return s
}

func (s *StorageState) Online() bool {
	return s != nil && s.online.Load()
}

func (s *StorageState) String() string {
	if s.Online() {
		return "online"
	}
	return "offline"
}

// markOffline 返回是否发生了状态变化
func (s *StorageState) markOffline() bool {
	return s.online.CompareAndSwap(true, false)
}

func (s *StorageState) markOnline() bool {
	return s.online.CompareAndSwap(false, true)
}
