package discovery

import (
	"net"
	"testing"
)

func TestNewService(t *testing.T) {
	service, err := newService("canvas-test", "canvas-test.local.", 8000, []net.IP{net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("newService() error = %v", err)
	}
	if service.Port != 8000 {
		t.Errorf("Expected port 8000, got %d", service.Port)
	}
	if service.Service != ServiceType {
		t.Errorf("Expected service %s, got %s", ServiceType, service.Service)
	}
	if len(service.TXT) != 2 {
		t.Errorf("Expected 2 TXT records, got %v", service.TXT)
	}
}

func TestNewServiceRejectsBadPort(t *testing.T) {
	if _, err := newService("canvas-test", "canvas-test.local.", 0, []net.IP{net.IPv4(127, 0, 0, 1)}); err == nil {
		t.Error("Expected error for port 0")
	}
}
