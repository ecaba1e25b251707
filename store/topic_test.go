package store

import "testing"

func TestTopicStorageAddAndGet(t *testing.T) {
	s := NewTopicStorage()

	added := s.AddAddress("/foo", Address{Addr: "tcp://a:1", PUuid: "p1", NUuid: "n1"})
	if !added {
		t.Fatal("first AddAddress returned false, want true")
	}
	if added := s.AddAddress("/foo", Address{Addr: "tcp://a:1", PUuid: "p1", NUuid: "n1"}); added {
		t.Fatal("duplicate AddAddress returned true, want false")
	}

	if !s.HasTopic("/foo") {
		t.Fatal("HasTopic(/foo) = false, want true")
	}
	if s.HasTopic("/bar") {
		t.Fatal("HasTopic(/bar) = true, want false")
	}

	addrs, ok := s.GetAddresses("/foo")
	if !ok || len(addrs) != 1 {
		t.Fatalf("GetAddresses(/foo) = %v, %v; want 1 address", addrs, ok)
	}
}

func TestTopicStorageGetAddress(t *testing.T) {
	s := NewTopicStorage()
	s.AddAddress("/foo", Address{Addr: "tcp://a:1", PUuid: "p1", NUuid: "n1"})
	s.AddAddress("/foo", Address{Addr: "tcp://a:2", PUuid: "p1", NUuid: "n2"})

	a, ok := s.GetAddress("/foo", "p1", "n2")
	if !ok || a.Addr != "tcp://a:2" {
		t.Fatalf("GetAddress(/foo, p1, n2) = %v, %v; want tcp://a:2", a, ok)
	}
	if _, ok := s.GetAddress("/foo", "p1", "n3"); ok {
		t.Fatal("GetAddress(/foo, p1, n3) = true, want false")
	}
	if _, ok := s.GetAddress("/bar", "p1", "n1"); ok {
		t.Fatal("GetAddress(/bar, p1, n1) = true, want false")
	}
}

func TestTopicStorageDelAddressByNode(t *testing.T) {
	s := NewTopicStorage()
	s.AddAddress("/foo", Address{Addr: "tcp://a:1", PUuid: "p1", NUuid: "n1"})
	s.AddAddress("/foo", Address{Addr: "tcp://a:2", PUuid: "p1", NUuid: "n2"})

	if !s.DelAddressByNode("/foo", "p1", "n1") {
		t.Fatal("DelAddressByNode returned false, want true")
	}
	if s.DelAddressByNode("/foo", "p1", "n1") {
		t.Fatal("second DelAddressByNode returned true, want false")
	}

	addrs, ok := s.GetAddresses("/foo")
	if !ok || len(addrs) != 1 || addrs[0].NUuid != "n2" {
		t.Fatalf("GetAddresses(/foo) = %v, %v; want only n2 left", addrs, ok)
	}

	if !s.DelAddressByNode("/foo", "p1", "n2") {
		t.Fatal("DelAddressByNode(n2) returned false, want true")
	}
	if s.HasTopic("/foo") {
		t.Fatal("topic should be pruned once empty")
	}
}

func TestTopicStorageDelAddressesByProc(t *testing.T) {
	s := NewTopicStorage()
	s.AddAddress("/foo", Address{Addr: "tcp://a:1", PUuid: "p1", NUuid: "n1"})
	s.AddAddress("/bar", Address{Addr: "tcp://a:2", PUuid: "p1", NUuid: "n2"})
	s.AddAddress("/bar", Address{Addr: "tcp://b:1", PUuid: "p2", NUuid: "n3"})

	s.DelAddressesByProc("p1")

	if s.HasTopic("/foo") {
		t.Fatal("/foo should be removed entirely (only had p1 addresses)")
	}
	addrs, ok := s.GetAddresses("/bar")
	if !ok || len(addrs) != 1 || addrs[0].PUuid != "p2" {
		t.Fatalf("GetAddresses(/bar) = %v, %v; want only p2 left", addrs, ok)
	}
}

func TestTopicStorageGetTopicList(t *testing.T) {
	s := NewTopicStorage()
	s.AddAddress("/foo", Address{Addr: "tcp://a:1", PUuid: "p1", NUuid: "n1"})
	s.AddAddress("/bar", Address{Addr: "tcp://a:2", PUuid: "p1", NUuid: "n2"})

	list := s.GetTopicList()
	if len(list) != 2 {
		t.Fatalf("GetTopicList() = %v, want 2 entries", list)
	}
}
