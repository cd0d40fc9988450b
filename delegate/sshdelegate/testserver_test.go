package sshdelegate_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// testSSHServer is a minimal in-process SSH server standing in for a
// remote host: it accepts one fixed client key and runs exec requests
// locally via sh -c, enough to exercise sshdelegate's dial/mkdir/put/run/
// get sequence without a real remote machine.
type testSSHServer struct {
	addr       string
	hostKey    ssh.Signer
	clientKey  ssh.Signer
	clientPriv ed25519.PrivateKey
	listener   net.Listener
	wg         sync.WaitGroup
}

func startTestSSHServer(t *testing.T) *testSSHServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Skip("generate host key:", err)
	}
	hostKey, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Skip("create host signer:", err)
	}

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Skip("generate client key:", err)
	}
	clientKey, err := ssh.NewSignerFromKey(clientPriv)
	if err != nil {
		t.Skip("create client signer:", err)
	}
	clientSSHPub, err := ssh.NewPublicKey(clientPub)
	if err != nil {
		t.Skip("create ssh public key:", err)
	}

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientSSHPub.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("listen:", err)
	}

	srv := &testSSHServer{
		addr:       listener.Addr().String(),
		hostKey:    hostKey,
		clientKey:  clientKey,
		clientPriv: clientPriv,
		listener:   listener,
	}
	srv.wg.Add(1)
	go srv.acceptLoop(config)
	t.Cleanup(srv.stop)
	return srv
}

func (s *testSSHServer) acceptLoop(config *ssh.ServerConfig) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn, config)
	}
}

func (s *testSSHServer) handleConn(netConn net.Conn, config *ssh.ServerConfig) {
	defer s.wg.Done()
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)
	for newChannel := range chans {
		s.wg.Add(1)
		go s.handleChannel(newChannel)
	}
}

func (s *testSSHServer) handleChannel(newChannel ssh.NewChannel) {
	defer s.wg.Done()

	if newChannel.ChannelType() != "session" {
		newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
		return
	}
	channel, requests, err := newChannel.Accept()
	if err != nil {
		return
	}
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}
		s.handleExec(channel, req)
	}
}

func (s *testSSHServer) handleExec(channel ssh.Channel, req *ssh.Request) {
	var execReq struct{ Command string }
	if err := ssh.Unmarshal(req.Payload, &execReq); err != nil {
		if req.WantReply {
			req.Reply(false, nil)
		}
		channel.Close()
		return
	}
	if req.WantReply {
		req.Reply(true, nil)
	}

	cmd := exec.Command("sh", "-c", execReq.Command)
	cmd.Stdin = channel
	cmd.Stdout = channel
	cmd.Stderr = channel.Stderr()

	exitCode := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}

	exitStatus := struct{ Status uint32 }{uint32(exitCode)}
	channel.SendRequest("exit-status", false, ssh.Marshal(&exitStatus))
	channel.Close()
}

func (s *testSSHServer) stop() {
	s.listener.Close()
	s.wg.Wait()
}
