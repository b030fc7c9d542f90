package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Call sends one command to the daemon listening on socketPath and returns
// its response. A response with Success false is not an error here.
func Call(socketPath string, cmd Command) (Response, error) {
	var resp Response

	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return resp, fmt.Errorf("connect to daemon socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return resp, fmt.Errorf("send command: %w", err)
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, fmt.Errorf("receive response: %w", err)
	}
	return resp, nil
}
