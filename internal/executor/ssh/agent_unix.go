package ssh

import "net"

// agentDial connects to the ssh-agent socket at sock.
func agentDial(sock string) (net.Conn, error) {
	return net.Dial("unix", sock)
}
