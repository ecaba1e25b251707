// Package store holds the in-memory registries shared by the discovery and
// node-runtime layers: the topic-to-address map used to track who is
// publishing or serving what, and the generic handler map used to track
// local callbacks waiting on a topic or service.
package store

import (
	"fmt"
	"sync"
)

// Scope restricts the visibility of an advertised endpoint, mirrored here
// from package wire to avoid a storage-layer dependency on the codec.
type Scope uint8

const (
	ScopeProcess Scope = iota
	ScopeHost
	ScopeAll
)

// Address is a single advertised endpoint: the data/control addresses of
// one node, for one topic, scoped to process/host/all.
type Address struct {
	Addr  string
	Ctrl  string
	PUuid string
	NUuid string
	Scope Scope
}

// TopicStorage indexes advertised addresses by topic, then by process
// UUID, mirroring the original's Addresses_M (topic -> pUuid -> []Address_t).
type TopicStorage struct {
	mu   sync.Mutex
	data map[string]map[string][]Address
}

// NewTopicStorage returns an empty TopicStorage.
func NewTopicStorage() *TopicStorage {
	return &TopicStorage{data: make(map[string]map[string][]Address)}
}

// AddAddress records addr as an endpoint for topic, returning true if this
// is a new entry (no record already stored for the same topic/pUuid has
// both the same Addr and the same NUuid).
func (s *TopicStorage) AddAddress(topic string, addr Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProc, ok := s.data[topic]
	if !ok {
		byProc = make(map[string][]Address)
		s.data[topic] = byProc
	}

	for _, existing := range byProc[addr.PUuid] {
		if existing.NUuid == addr.NUuid && existing.Addr == addr.Addr {
			return false
		}
	}

	byProc[addr.PUuid] = append(byProc[addr.PUuid], addr)
	return true
}

// HasTopic reports whether any address is stored for topic.
func (s *TopicStorage) HasTopic(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.data[topic]
	return ok
}

// HasAnyAddresses reports whether topic has any addresses for process
// pUuid.
func (s *TopicStorage) HasAnyAddresses(topic, pUuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProc, ok := s.data[topic]
	if !ok {
		return false
	}
	return len(byProc[pUuid]) > 0
}

// HasAddress reports whether addr.Addr is already stored under topic,
// across all processes.
func (s *TopicStorage) HasAddress(topic, addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, addrs := range s.data[topic] {
		for _, a := range addrs {
			if a.Addr == addr {
				return true
			}
		}
	}
	return false
}

// GetAddress returns the address registered for topic by node nUuid in
// process pUuid, if any, mirroring the original's
// TopicStorage::GetAddress(topic, pUuid, nUuid) lookup key.
func (s *TopicStorage) GetAddress(topic, pUuid, nUuid string) (Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.data[topic][pUuid] {
		if a.NUuid == nUuid {
			return a, true
		}
	}
	return Address{}, false
}

// GetAddresses returns every address stored for topic, across all
// processes.
func (s *TopicStorage) GetAddresses(topic string) ([]Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProc, ok := s.data[topic]
	if !ok {
		return nil, false
	}

	var out []Address
	for _, addrs := range byProc {
		out = append(out, addrs...)
	}
	return out, len(out) > 0
}

// DelAddressByNode removes the address registered by node nUuid in
// process pUuid for topic, returning true if something was removed.
func (s *TopicStorage) DelAddressByNode(topic, pUuid, nUuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProc, ok := s.data[topic]
	if !ok {
		return false
	}
	addrs, ok := byProc[pUuid]
	if !ok {
		return false
	}

	removed := false
	kept := addrs[:0]
	for _, a := range addrs {
		if a.NUuid == nUuid {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	if len(kept) == 0 {
		delete(byProc, pUuid)
	} else {
		byProc[pUuid] = kept
	}
	if len(byProc) == 0 {
		delete(s.data, topic)
	}
	return removed
}

// DelAddressesByProc removes every address registered by process pUuid,
// across all topics.
func (s *TopicStorage) DelAddressesByProc(pUuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic, byProc := range s.data {
		delete(byProc, pUuid)
		if len(byProc) == 0 {
			delete(s.data, topic)
		}
	}
}

// GetAddressesByProc returns every (topic, address) pair registered by
// process pUuid.
func (s *TopicStorage) GetAddressesByProc(pUuid string) map[string][]Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]Address)
	for topic, byProc := range s.data {
		if addrs, ok := byProc[pUuid]; ok && len(addrs) > 0 {
			cp := make([]Address, len(addrs))
			copy(cp, addrs)
			out[topic] = cp
		}
	}
	return out
}

// GetTopicList returns every topic with at least one stored address.
func (s *TopicStorage) GetTopicList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.data))
	for topic := range s.data {
		out = append(out, topic)
	}
	return out
}

// Print returns a human-readable dump of the storage as a string;
// intended for IGN_VERBOSE diagnostics, not machine consumption.
func (s *TopicStorage) Print() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ""
	for topic, byProc := range s.data {
		out += fmt.Sprintf("Topic [%s]\n", topic)
		for pUuid, addrs := range byProc {
			out += fmt.Sprintf("  Proc [%s]\n", pUuid)
			for _, a := range addrs {
				out += fmt.Sprintf("    Node [%s] Addr [%s] Ctrl [%s]\n", a.NUuid, a.Addr, a.Ctrl)
			}
		}
	}
	return out
}
