package proxmox

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHChannel is the optional side-channel ProxmoxAdapter falls back to for
// guest IP extraction when the QEMU guest agent API call is unavailable
// (spec §4.5: "guest-agent exec over an optional SSH side-channel"),
// grounded on the teacher's sshprobe connect/auth pattern.
type SSHChannel struct {
	Username   string
	Password   string
	PrivateKey []byte
	Timeout    time.Duration
}

// connect dials host:22 and authenticates with whichever credential is
// configured, preferring a private key over a password.
func (s *SSHChannel) connect(ctx context.Context, host string) (*ssh.Client, error) {
	var auth []ssh.AuthMethod
	if len(s.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(s.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("proxmox sshchannel: parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.Password != "" {
		auth = append(auth, ssh.Password(s.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("proxmox sshchannel: no credential configured for %s", host)
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	config := &ssh.ClientConfig{
		User:            s.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "22"))
	if err != nil {
		return nil, fmt.Errorf("proxmox sshchannel: dial %s: %w", host, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, host, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("proxmox sshchannel: handshake %s: %w", host, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// GuestAgentExecIP connects to the Proxmox node over SSH and runs `qm agent
// <vmid> network-get-interfaces`, scraping the first non-loopback IPv4
// address from its JSON-ish output. Any failure (no SSH reachability, no
// guest agent, parse failure) is non-fatal and yields "".
func (s *SSHChannel) GuestAgentExecIP(ctx context.Context, nodeHost string, vmid int) string {
	client, err := s.connect(ctx, nodeHost)
	if err != nil {
		return ""
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return ""
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	cmd := fmt.Sprintf("qm agent %d network-get-interfaces", vmid)
	if err := session.Run(cmd); err != nil {
		return ""
	}
	return extractFirstIPv4(out.String())
}
