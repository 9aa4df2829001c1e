package tor

import (
	"fmt"
	"net"
)

// checkPortsFree fails when something already listens on one of the ports,
// typically a system-wide daemon or a leftover from a previous run.
func checkPortsFree(ports ...int) error {
	for _, port := range ports {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return fmt.Errorf("port %d is already in use: %w", port, err)
		}
		_ = l.Close()
	}
	return nil
}
