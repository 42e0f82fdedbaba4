//go:build !linux && !windows

package network

import "net"

// ReuseAddrListenConfig returns a plain net.ListenConfig on platforms
// without a tuned socket setup.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
