// Package discovery advertises and finds canvas servers on the local network.
package discovery

import (
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_canvas._tcp"

// Advertise announces a canvas server listening on port. Shut the returned
// server down to withdraw the announcement.
func Advertise(instance string, port int) (*mdns.Server, error) {
	service, err := newService(instance, "", port, nil)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// newService builds the mDNS zone. Empty host and nil ips are filled in from
// the local machine.
func newService(instance, host string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	service, err := mdns.NewMDNSService(
		instance,
		ServiceType,
		"",
		host,
		port,
		ips,
		[]string{"path=/ws", "protocol=canvas-json"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return service, nil
}

// Browse collects ws:// endpoints of servers that answer within timeout.
func Browse(timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	var found []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			found = append(found, fmt.Sprintf("ws://%s:%d/ws", e.AddrV4.String(), e.Port))
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done

	if err != nil {
		return nil, fmt.Errorf("mDNS query: %w", err)
	}
	return found, nil
}
