package id

import (
	"strings"
	"testing"
)

func TestPrefixes(t *testing.T) {
	if !strings.HasPrefix(string(NewDevice()), "dev_") {
		t.Error("device ID missing prefix")
	}
	if !strings.HasPrefix(string(NewSubscription()), "sub_") {
		t.Error("subscription ID missing prefix")
	}
	if !strings.HasPrefix(string(NewNotification()), "ntf_") {
		t.Error("notification ID missing prefix")
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[DeviceID]bool)
	for i := 0; i < 1000; i++ {
		d := NewDevice()
		if seen[d] {
			t.Fatalf("duplicate ID generated: %s", d)
		}
		seen[d] = true
	}
}

func TestSortable(t *testing.T) {
	a := NewNotification()
	b := NewNotification()
	if string(a) >= string(b) {
		t.Errorf("expected %s < %s", a, b)
	}
}

func TestIsDevice(t *testing.T) {
	if !IsDevice(string(NewDevice())) {
		t.Error("IsDevice rejected a device ID")
	}
	if IsDevice(string(NewSubscription())) {
		t.Error("IsDevice accepted a subscription ID")
	}
}
