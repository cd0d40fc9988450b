// Package sshdelegate implements the remote-shell delegate: it copies a
// before-image to a remote host over SSH, runs the helper there, and
// copies the after-image back, using the same dial/auth/Put/Get pattern
// as a file-transfer SSH session, generalized from files to wire images.
package sshdelegate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/debughook"
	"github.com/aledsdavies/delegatefunc/delegate/process"
	"github.com/aledsdavies/delegatefunc/delegate/wire"
	"github.com/aledsdavies/delegatefunc/internal/invariant"
)

// Delegate runs the helper on a remote host over SSH.
type Delegate struct {
	process.Delegate

	Host    string
	User    string
	Port    int
	KeyPath string

	// StrictHostKey enables known_hosts verification; false uses
	// InsecureIgnoreHostKey, for tests against an ephemeral server.
	StrictHostKey  bool
	KnownHostsPath string

	// RemoteHelperPath overrides HelperPath for the remote side; empty
	// resolves "delegate-function-run" on the remote $PATH.
	RemoteHelperPath string
}

// NewDelegate wraps next in a remote-shell link targeting host.
func NewDelegate(next delegate.Delegate, host, user string) *Delegate {
	d := &Delegate{Host: host, User: user, Port: 22, StrictHostKey: true}
	d.Next = next
	return d
}

func (d *Delegate) Invoke(ctx context.Context, rec *delegate.Record) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(d.Next != nil, "ssh delegate must have a subdelegate")
	invariant.Precondition(d.Host != "", "ssh delegate requires Host")

	client, err := d.dial()
	if err != nil {
		return &delegate.TransportError{Command: "ssh dial " + d.Host, Err: err}
	}
	defer client.Close()

	root, cleanupRoot, err := process.NewStagingRoot(d.StagingRoot)
	if err != nil {
		return err
	}
	defer cleanupRoot()
	files := process.NewStagingFiles(root)

	if err := writeLocalBeforeImage(files.Before, d, rec); err != nil {
		return err
	}
	defer os.Remove(files.Before)
	defer os.Remove(files.After)

	remoteID := uuid.NewString()
	remoteDir := "/tmp/" + remoteID
	remoteBefore := remoteDir + "/before.cbor"
	remoteAfter := remoteDir + "/after.cbor"

	if err := runRemote(ctx, client, fmt.Sprintf("mkdir -p %s", shellQuote(remoteDir)), nil, nil, nil, false); err != nil {
		return &delegate.TransportError{Command: "mkdir -p " + remoteDir, Err: err}
	}
	defer runRemote(context.Background(), client, fmt.Sprintf("rm -rf %s", shellQuote(remoteDir)), nil, nil, nil, false)

	if err := putFile(ctx, client, files.Before, remoteBefore); err != nil {
		return &delegate.TransportError{Command: "scp before-image", Err: err}
	}

	helperPath := d.RemoteHelperPath
	if helperPath == "" {
		helperPath = "delegate-function-run"
	}
	cmd := fmt.Sprintf("%s --delegate-before %s --delegate-after %s", shellQuote(helperPath), shellQuote(remoteBefore), shellQuote(remoteAfter))
	if d.LogLevel != "" {
		cmd += " --log-level " + shellQuote(d.LogLevel)
	}

	if err := debughook.Run(ctx, d.DebugHook, cmd); err != nil {
		return err
	}

	var stdin, stdout *os.File
	if d.Interactive {
		stdin, stdout = os.Stdin, os.Stdout
	}
	var stderr bytes.Buffer
	if err := runRemote(ctx, client, cmd, stdin, stdout, &stderr, d.Interactive); err != nil {
		return &delegate.HelperExitError{ExitCode: remoteExitCode(err), Stderr: stderr.String()}
	}

	if err := getFile(ctx, client, remoteAfter, files.After); err != nil {
		return &delegate.TransportError{Command: "scp after-image", Err: err}
	}

	f, err := os.Open(files.After)
	if err != nil {
		return &delegate.SerializationFailure{Op: "decode", Err: err}
	}
	defer f.Close()

	if err := wire.ApplyAfterImage(f, rec); err != nil {
		var userErr *delegate.UserMethodError
		if errors.As(err, &userErr) {
			return userErr
		}
		return &delegate.SerializationFailure{Op: "decode", Err: err}
	}
	return nil
}

func writeLocalBeforeImage(path string, self delegate.Delegate, rec *delegate.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return &delegate.SerializationFailure{Op: "encode", Err: err}
	}
	defer f.Close()
	if err := wire.WriteBeforeImage(f, self, rec); err != nil {
		return &delegate.SerializationFailure{Op: "encode", Err: err}
	}
	return nil
}

func (d *Delegate) dial() (*ssh.Client, error) {
	var authMethods []ssh.AuthMethod
	if d.KeyPath != "" {
		if auth := sshKeyAuth(d.KeyPath); auth != nil {
			authMethods = append(authMethods, auth)
		}
	}
	if len(authMethods) == 0 {
		if auth := sshAgentAuth(); auth != nil {
			authMethods = append(authMethods, auth)
		}
	}

	config := &ssh.ClientConfig{
		User:            d.User,
		Auth:            authMethods,
		HostKeyCallback: d.hostKeyCallback(),
	}

	port := d.Port
	if port == 0 {
		port = 22
	}
	return ssh.Dial("tcp", fmt.Sprintf("%s:%d", d.Host, port), config)
}

func (d *Delegate) hostKeyCallback() ssh.HostKeyCallback {
	if !d.StrictHostKey {
		return ssh.InsecureIgnoreHostKey()
	}
	path := d.KnownHostsPath
	if path == "" {
		path = os.ExpandEnv("$HOME/.ssh/known_hosts")
	}
	callback, err := loadKnownHosts(path)
	if err != nil {
		return ssh.InsecureIgnoreHostKey()
	}
	return callback
}

func sshKeyAuth(keyPath string) ssh.AuthMethod {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil
	}
	return ssh.PublicKeys(signer)
}

func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	client := agent.NewClient(conn)
	return ssh.PublicKeysCallback(client.Signers)
}

func loadKnownHosts(path string) (ssh.HostKeyCallback, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	knownHosts := make(map[string]ssh.PublicKey)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.Join(parts[1:3], " ")))
		if err != nil {
			continue
		}
		knownHosts[parts[0]] = key
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		known, ok := knownHosts[hostname]
		if !ok || string(known.Marshal()) != string(key.Marshal()) {
			return fmt.Errorf("host key mismatch or unknown host %q", hostname)
		}
		return nil
	}, nil
}

func runRemote(ctx context.Context, client *ssh.Client, cmd string, stdin, stdout *os.File, stderr *bytes.Buffer, interactive bool) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = stdin
	}
	if stdout != nil {
		session.Stdout = stdout
	}
	if stderr != nil {
		session.Stderr = stderr
	}

	if interactive {
		modes := ssh.TerminalModes{
			ssh.ECHO:          1,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm", 80, 40, modes); err != nil {
			return fmt.Errorf("request pty: %w", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func remoteExitCode(err error) int {
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus()
	}
	return 1
}

func putFile(ctx context.Context, client *ssh.Client, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	session.Stdin = bytes.NewReader(data)
	return session.Run(fmt.Sprintf("cat > %s", shellQuote(remotePath)))
}

func getFile(ctx context.Context, client *ssh.Client, remotePath, localPath string) error {
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	var stdout bytes.Buffer
	session.Stdout = &stdout
	if err := session.Run(fmt.Sprintf("cat %s", shellQuote(remotePath))); err != nil {
		return err
	}
	return os.WriteFile(localPath, stdout.Bytes(), 0o600)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

const kind = "ssh"

func init() {
	delegate.RegisterKind(kind, func(cfg map[string]any, base delegate.Base) (delegate.Delegate, error) {
		d := &Delegate{Port: 22, StrictHostKey: true}
		d.Base = base
		if v, ok := cfg["host"].(string); ok {
			d.Host = v
		}
		if v, ok := cfg["user"].(string); ok {
			d.User = v
		}
		if v, ok := cfg["port"].(int64); ok {
			d.Port = int(v)
		}
		if v, ok := cfg["key_path"].(string); ok {
			d.KeyPath = v
		}
		if v, ok := cfg["known_hosts_path"].(string); ok {
			d.KnownHostsPath = v
		}
		if v, ok := cfg["strict_host_key"].(bool); ok {
			d.StrictHostKey = v
		}
		if v, ok := cfg["remote_helper_path"].(string); ok {
			d.RemoteHelperPath = v
		}
		if v, ok := cfg["staging_root"].(string); ok {
			d.StagingRoot = v
		}
		if v, ok := cfg["log_level"].(string); ok {
			d.LogLevel = v
		}
		if d.Host == "" {
			return nil, &delegate.ConstructionError{Delegate: kind, Reason: "host is required"}
		}
		return d, nil
	})
}

func (d *Delegate) Kind() string { return kind }

func (d *Delegate) MarshalConfig() (map[string]any, error) {
	cfg := map[string]any{
		"host":            d.Host,
		"strict_host_key": d.StrictHostKey,
	}
	if d.User != "" {
		cfg["user"] = d.User
	}
	if d.Port != 0 {
		cfg["port"] = int64(d.Port)
	}
	if d.KeyPath != "" {
		cfg["key_path"] = d.KeyPath
	}
	if d.KnownHostsPath != "" {
		cfg["known_hosts_path"] = d.KnownHostsPath
	}
	if d.RemoteHelperPath != "" {
		cfg["remote_helper_path"] = d.RemoteHelperPath
	}
	if d.StagingRoot != "" {
		cfg["staging_root"] = d.StagingRoot
	}
	if d.LogLevel != "" {
		cfg["log_level"] = d.LogLevel
	}
	return cfg, nil
}
