package dialer

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshAgentKeyPath selects the SSH agent instead of a key file.
const sshAgentKeyPath = "agent"

// loadSSHSigners returns the signers named by keyPath: none when empty, the
// agent's keys for "agent", otherwise the private key in that file.
func loadSSHSigners(keyPath string) ([]ssh.Signer, error) {
	switch keyPath {
	case "":
		return nil, nil
	case sshAgentKeyPath:
		return sshAgentSigners()
	}

	pem, err := os.ReadFile(keyPath) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", keyPath, err)
	}
	return []ssh.Signer{signer}, nil
}

// sshAgentSigners lists the agent's keys. The agent conn stays open for the
// life of the process because the signers use it.
func sshAgentSigners() ([]ssh.Signer, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("ssh agent: SSH_AUTH_SOCK not set")
	}

	c, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("ssh agent: %w", err)
	}
	signers, err := agent.NewClient(c).Signers()
	if err == nil && len(signers) == 0 {
		err = errors.New("no keys loaded")
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ssh agent: %w", err)
	}
	return signers, nil
}

// sshHostKeyCallback checks host keys against the known_hosts file at path,
// appending hosts it has not seen before. A changed key is rejected. An empty
// path accepts every key.
func sshHostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // Host key checking explicitly disabled.
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	_ = f.Close()

	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}

	var mu sync.Mutex
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		mu.Lock()
		defer mu.Unlock()

		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err == nil || !errors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			return fmt.Errorf("host key for %s changed: %w", hostname, err)
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // Path is from user config.
		if err != nil {
			return fmt.Errorf("known_hosts: %w", err)
		}
		defer f.Close()
		if _, err := fmt.Fprintln(f, knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)); err != nil {
			return fmt.Errorf("known_hosts: %w", err)
		}

		// knownhosts.New reads the file once; reload so the new line counts.
		if check, err = knownhosts.New(path); err != nil {
			return fmt.Errorf("known_hosts: %w", err)
		}
		log.Printf("ssh: learned host key for %s", hostname)
		return nil
	}, nil
}
